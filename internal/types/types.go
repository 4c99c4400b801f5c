package types

import "strings"

// DisclosureItem is a single earnings-report row scraped from the TDnet
// listing page. It is transient; only Report is persisted.
type DisclosureItem struct {
	ID     string
	Code   string
	Name   string
	Title  string
	PDFURL string
	Time   string
}

// Analysis holds the fields extracted from a disclosure PDF. A nil
// percentage means the value could not be determined from the document,
// never that it was zero.
type Analysis struct {
	SalesPct  *float64 `json:"sales_pct"`
	ProfitPct *float64 `json:"profit_pct"`
	Summary   string   `json:"summary"`
}

// Report is the persisted record for one processed disclosure.
type Report struct {
	ID             string   `json:"id"`
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Title          string   `json:"title"`
	SalesPct       *float64 `json:"sales_pct"`
	ProfitPct      *float64 `json:"profit_pct"`
	IsDoubleGrowth bool     `json:"is_double_growth"`
	Summary        string   `json:"summary"`
	PDFURL         string   `json:"pdf_url"`
	CreatedAt      int64    `json:"created_at"`
}

var idStripper = strings.NewReplacer(
	" ", "",
	"\t", "",
	"\n", "",
	"\r", "",
	" ", "",
	":", "",
	"/", "",
)

// NewID derives the idempotency key for a listing row. Two rows with the
// same code and displayed time intentionally collide; the insert is
// ignore-on-conflict so the second one is a no-op.
func NewID(code, displayTime string) string {
	return code + "_" + idStripper.Replace(displayTime)
}

// IsDoubleGrowth reports whether both percentages were extracted and both
// are strictly positive.
func (a Analysis) IsDoubleGrowth() bool {
	return a.SalesPct != nil && a.ProfitPct != nil && *a.SalesPct > 0 && *a.ProfitPct > 0
}
