package ai

import (
	"testing"

	"github.com/shanehull/tdnetwatch/internal/types"
)

func TestParseResponseAllFields(t *testing.T) {
	got := ParseResponse(`{"sales_pct": 12.5, "profit_pct": -3.2, "summary": "増収減益"}`)

	if got.SalesPct == nil || *got.SalesPct != 12.5 {
		t.Errorf("SalesPct = %v, want 12.5", got.SalesPct)
	}
	if got.ProfitPct == nil || *got.ProfitPct != -3.2 {
		t.Errorf("ProfitPct = %v, want -3.2", got.ProfitPct)
	}
	if got.Summary != "増収減益" {
		t.Errorf("Summary = %q", got.Summary)
	}
}

func TestParseResponseSurroundingText(t *testing.T) {
	raw := "Here is the analysis you asked for:\n```json\n{\"sales_pct\": 8.0, \"profit_pct\": 4.5, \"summary\": \"好調\"}\n```\nLet me know if you need anything else."
	got := ParseResponse(raw)

	if got.SalesPct == nil || *got.SalesPct != 8.0 {
		t.Errorf("SalesPct = %v, want 8.0", got.SalesPct)
	}
	if got.Summary != "好調" {
		t.Errorf("Summary = %q", got.Summary)
	}
}

func TestParseResponseMissingField(t *testing.T) {
	got := ParseResponse(`{"profit_pct": 4.5, "summary": "一部のみ"}`)

	if got.SalesPct != nil {
		t.Errorf("SalesPct = %v, want nil for absent field", *got.SalesPct)
	}
	if got.ProfitPct == nil || *got.ProfitPct != 4.5 {
		t.Errorf("ProfitPct = %v, want 4.5", got.ProfitPct)
	}
}

func TestParseResponseNullAndMistyped(t *testing.T) {
	got := ParseResponse(`{"sales_pct": null, "profit_pct": "4.5", "summary": "型が不正"}`)

	if got.SalesPct != nil {
		t.Errorf("SalesPct = %v, want nil for null", *got.SalesPct)
	}
	if got.ProfitPct != nil {
		t.Errorf("ProfitPct = %v, want nil for mistyped field", *got.ProfitPct)
	}
	if got.Summary != "型が不正" {
		t.Errorf("Summary = %q", got.Summary)
	}
}

func TestParseResponseMissingSummary(t *testing.T) {
	got := ParseResponse(`{"sales_pct": 1.0, "profit_pct": 2.0}`)

	if got.Summary != SummaryNone {
		t.Errorf("Summary = %q, want %q", got.Summary, SummaryNone)
	}
}

func TestParseResponseNoJSON(t *testing.T) {
	got := ParseResponse("申し訳ありませんが、このPDFは読み取れませんでした。")

	assertFailed(t, got)
}

func TestParseResponseMalformedJSON(t *testing.T) {
	got := ParseResponse(`{"sales_pct": 12.5, "profit_pct":`)

	assertFailed(t, got)
}

func TestParseResponseEmpty(t *testing.T) {
	assertFailed(t, ParseResponse(""))
}

func assertFailed(t *testing.T, got types.Analysis) {
	t.Helper()
	if got.SalesPct != nil || got.ProfitPct != nil {
		t.Errorf("degraded analysis should have nil percentages, got %v / %v", got.SalesPct, got.ProfitPct)
	}
	if got.Summary != SummaryAnalysisFailed {
		t.Errorf("Summary = %q, want %q", got.Summary, SummaryAnalysisFailed)
	}
}
