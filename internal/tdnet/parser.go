package tdnet

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/shanehull/tdnetwatch/internal/types"
)

// listingRow is the markup-independent view of one table row: cell texts in
// document order plus the href of the first PDF link, if any. Keeping the
// row abstraction separate from the HTML traversal makes the filtering
// heuristics testable with synthetic rows.
type listingRow struct {
	cells   []string
	pdfHref string
}

// ParseListing extracts earnings-report items from the list page document.
// Rows that don't look like disclosure entries are skipped; no rows is a
// valid, non-error outcome.
func ParseListing(doc *html.Node, baseURL string) []types.DisclosureItem {
	var items []types.DisclosureItem
	for _, row := range collectRows(doc) {
		if item, ok := parseRow(row, baseURL); ok {
			items = append(items, item)
		}
	}
	return items
}

// parseRow applies the positional heuristics to a single row. Cell order is
// the only structural assumption: [0] time, [1] code, [2] company name,
// [3] title.
func parseRow(row listingRow, baseURL string) (types.DisclosureItem, bool) {
	// Header and decoration rows have fewer cells.
	if len(row.cells) < 4 {
		return types.DisclosureItem{}, false
	}
	if row.pdfHref == "" {
		return types.DisclosureItem{}, false
	}

	displayTime := strings.TrimSpace(row.cells[0])
	code := firstRunes(strings.TrimSpace(row.cells[1]), 4)
	name := strings.TrimSpace(row.cells[2])
	title := strings.TrimSpace(row.cells[3])

	if !strings.Contains(title, earningsKeyword) {
		return types.DisclosureItem{}, false
	}
	if !codePattern.MatchString(code) {
		return types.DisclosureItem{}, false
	}

	pdfURL := row.pdfHref
	if !strings.HasPrefix(pdfURL, "http") {
		pdfURL = baseURL + pdfURL
	}

	return types.DisclosureItem{
		ID:     types.NewID(code, displayTime),
		Code:   code,
		Name:   name,
		Title:  title,
		PDFURL: pdfURL,
		Time:   displayTime,
	}, true
}

// collectRows walks the document and flattens every <tr> into a listingRow.
func collectRows(doc *html.Node) []listingRow {
	var rows []listingRow
	var f func(*html.Node)

	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			row := listingRow{}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && c.Data == "td" {
					row.cells = append(row.cells, extractText(c))
				}
			}
			row.pdfHref = findPDFHref(n)
			rows = append(rows, row)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}

	f(doc)
	return rows
}

// findPDFHref returns the href of the first anchor in the row whose target
// looks like a PDF document.
func findPDFHref(n *html.Node) string {
	var href string
	var f func(*html.Node)

	f = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && strings.Contains(strings.ToLower(attr.Val), ".pdf") {
					href = strings.TrimSpace(attr.Val)
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if href != "" {
				return
			}
			f(c)
		}
	}

	f(n)
	return href
}

func extractText(n *html.Node) string {
	var extract func(*html.Node) string

	extract = func(n *html.Node) string {
		if n.Type == html.TextNode {
			return n.Data
		}
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			sb.WriteString(extract(c))
		}
		return sb.String()
	}

	return extract(n)
}

func firstRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		return string(runes[:n])
	}
	return s
}
