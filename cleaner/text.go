package cleaner

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/wimp/models"
	"golang.org/x/net/html"
)

// blockTags require a line break before and after their content, the way a
// browser's innerText does for block-level boxes. The value is the number of
// required breaks; paragraphs get two.
var blockTags = map[string]int{
	"address": 1, "article": 1, "aside": 1, "blockquote": 1, "dd": 1,
	"div": 1, "dl": 1, "dt": 1, "fieldset": 1, "figure": 1, "footer": 1,
	"form": 1, "h1": 1, "h2": 1, "h3": 1, "h4": 1, "h5": 1, "h6": 1,
	"header": 1, "hr": 1, "li": 1, "main": 1, "nav": 1, "ol": 1,
	"p": 2, "pre": 1, "section": 1, "table": 1, "tr": 1, "ul": 1,
}

// hiddenTags never contribute visible text.
var hiddenTags = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "template": {}, "head": {},
}

// InnerText approximates element.innerText for the nodes of a selection.
// Whitespace is collapsed and dropped at line edges, <br> is a literal line
// break, and adjacent block boundaries merge into the largest required
// break count. Required breaks at the very start or end are removed, so
// nested blocks never produce blank lines a browser would not.
func InnerText(s *goquery.Selection) string {
	w := &textWriter{lineStart: true}
	for _, n := range s.Nodes {
		w.walk(n)
	}
	return w.b.String()
}

type textWriter struct {
	b         strings.Builder
	breaks    int  // pending required line breaks
	space     bool // pending collapsible space
	written   bool // anything emitted yet
	lineStart bool
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.ElementNode:
		if _, ok := hiddenTags[n.Data]; ok {
			return
		}
		if hasHiddenAttr(n) {
			return
		}
		switch n.Data {
		case "br":
			w.literal('\n')
			return
		case "td", "th":
			if prevCell(n) {
				w.literal('\t')
			}
		}
	}

	count := 0
	if n.Type == html.ElementNode {
		count = blockTags[n.Data]
	}
	w.require(count)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	w.require(count)
}

func (w *textWriter) require(count int) {
	if count > w.breaks {
		w.breaks = count
	}
}

// flushBreaks emits pending required breaks unless nothing precedes them.
func (w *textWriter) flushBreaks() {
	if w.breaks == 0 {
		return
	}
	if w.written {
		w.b.WriteString(strings.Repeat("\n", w.breaks))
		w.lineStart = true
	}
	w.breaks = 0
	w.space = false
}

func (w *textWriter) literal(c byte) {
	w.flushBreaks()
	w.b.WriteByte(c)
	w.written = true
	w.space = false
	w.lineStart = c == '\n'
}

func (w *textWriter) text(s string) {
	for _, r := range s {
		switch r {
		case ' ', '\t', '\r', '\n', '\f':
			if !w.lineStart {
				w.space = true
			}
			continue
		}
		w.flushBreaks()
		if w.space && !w.lineStart {
			w.b.WriteByte(' ')
		}
		w.b.WriteRune(r)
		w.written = true
		w.space = false
		w.lineStart = false
	}
}

// prevCell reports whether a table cell follows another cell in its row.
func prevCell(n *html.Node) bool {
	for p := n.PrevSibling; p != nil; p = p.PrevSibling {
		if p.Type == html.ElementNode && (p.Data == "td" || p.Data == "th") {
			return true
		}
	}
	return false
}

func hasHiddenAttr(n *html.Node) bool {
	for _, a := range n.Attr {
		if a.Key == "hidden" {
			return true
		}
		if a.Key == "style" && strings.Contains(strings.ReplaceAll(a.Val, " ", ""), "display:none") {
			return true
		}
	}
	return false
}

// SplitLines turns one cell's visible text into a Row by splitting on line
// breaks. Lines are kept verbatim, blanks included, so every field stays at
// its position; only CRLF is normalised. An empty cell yields Row{""}.
func SplitLines(text string) models.Row {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
