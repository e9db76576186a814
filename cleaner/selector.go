package cleaner

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/wimp/models"
)

// CompileSelector parses a CSS selector so malformed site profiles fail
// before a browser is launched.
func CompileSelector(selector string) (cascadia.Selector, error) {
	if strings.TrimSpace(selector) == "" {
		return nil, fmt.Errorf("empty selector")
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", selector, err)
	}
	return sel, nil
}

// RowsFromDocument applies the same absence-then-presence decision the
// browser path makes, on an already parsed document.
//
// found is false when neither marker matches. The caller decides what that
// means (for a static document there is nothing more to wait for).
func RowsFromDocument(doc *goquery.Document, rowSel, noDataSel cascadia.Selector) (rows models.Result, found bool) {
	if doc.FindMatcher(noDataSel).Length() > 0 {
		return models.Empty(), true
	}

	cells := doc.FindMatcher(rowSel)
	if cells.Length() == 0 {
		return nil, false
	}

	rows = make(models.Result, 0, cells.Length())
	cells.Each(func(_ int, s *goquery.Selection) {
		rows = append(rows, SplitLines(InnerText(s)))
	})
	return rows, true
}
