package cleaner

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/wimp/models"
)

func docFrom(t *testing.T, markup string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	require.NoError(t, err)
	return doc
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want models.Row
	}{
		{"single line", "Landed 19:42", models.Row{"Landed 19:42"}},
		{"three lines", "BGY\n19:42\n+32", models.Row{"BGY", "19:42", "+32"}},
		{"crlf", "BGY\r\n19:42", models.Row{"BGY", "19:42"}},
		{"blank lines keep their slot", "KTW\nScheduled\n\n19:42", models.Row{"KTW", "Scheduled", "", "19:42"}},
		{"lines are not trimmed", " BGY \n\t19:42", models.Row{" BGY ", "\t19:42"}},
		{"trailing break", "BGY\n", models.Row{"BGY", ""}},
		{"empty cell", "", models.Row{""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitLines(tt.in))
		})
	}
}

func TestInnerText_BlocksAndBreaks(t *testing.T) {
	doc := docFrom(t, `<div id="cell">
		<span>BGY</span><br><span>19:42</span>
		<div class="delay">+32</div>
	</div>`)

	got := SplitLines(InnerText(doc.Find("#cell")))
	assert.Equal(t, models.Row{"BGY", "19:42", "+32"}, got)
}

func TestInnerText_SkipsHiddenContent(t *testing.T) {
	doc := docFrom(t, `<div id="cell">Departed<script>var x = 1;</script>
		<span style="display: none">tooltip</span><span hidden>hidden</span>
		<p>KTW</p></div>`)

	got := SplitLines(InnerText(doc.Find("#cell")))
	assert.Equal(t, models.Row{"Departed", "", "KTW"}, got, "a paragraph is set off by a blank line")
}

func TestInnerText_DoubleBreakKeepsBlankLine(t *testing.T) {
	doc := docFrom(t, `<div id="cell">KTW<br>Scheduled<br><br>19:42</div>`)

	assert.Equal(t, "KTW\nScheduled\n\n19:42", InnerText(doc.Find("#cell")))
	assert.Equal(t, models.Row{"KTW", "Scheduled", "", "19:42"}, SplitLines(InnerText(doc.Find("#cell"))))
}

func TestInnerText_NestedBlocksMergeBreaks(t *testing.T) {
	doc := docFrom(t, `<div id="cell">
		<div><div><span>BGY</span></div></div>
		<div>
			<div>19:42</div>
		</div>
		<section><div>+32</div></section>
	</div>`)

	assert.Equal(t, "BGY\n19:42\n+32", InnerText(doc.Find("#cell")))
}

func TestInnerText_EdgeBreaksRemoved(t *testing.T) {
	doc := docFrom(t, `<div id="cell"><div>A<br><br>B</div></div>`)

	assert.Equal(t, "A\n\nB", InnerText(doc.Find("#cell")))
}

func TestInnerText_TableCellsTabSeparated(t *testing.T) {
	doc := docFrom(t, `<table id="t"><tr><td>BGY</td><td>19:42</td></tr><tr><td>KTW</td><td>21:35</td></tr></table>`)

	assert.Equal(t, "BGY\t19:42\nKTW\t21:35", InnerText(doc.Find("#t")))
}

func TestInnerText_CollapsesWhitespace(t *testing.T) {
	doc := docFrom(t, `<span id="t">Estimated
	   departure    21:10</span>`)

	assert.Equal(t, "Estimated departure 21:10", InnerText(doc.Find("#t")))
}

func TestCompileSelector(t *testing.T) {
	_, err := CompileSelector(`[class^="ListItem__TimeAndDelay"]`)
	assert.NoError(t, err)

	_, err = CompileSelector(`div[class^=`)
	assert.Error(t, err)

	_, err = CompileSelector("   ")
	assert.Error(t, err)
}

func TestRowsFromDocument(t *testing.T) {
	rowSel, err := CompileSelector(`[class^="row-"]`)
	require.NoError(t, err)
	noDataSel, err := CompileSelector(`[class^="no-data"]`)
	require.NoError(t, err)

	t.Run("rows in document order", func(t *testing.T) {
		doc := docFrom(t, `<table>
			<tr><td class="row-a"><div>BGY</div><div>19:42</div></td></tr>
			<tr><td class="row-b"><div>KTW</div><div>21:35</div><div>+5</div></td></tr>
			<tr><td class="other">ignored</td></tr>
		</table>`)

		rows, found := RowsFromDocument(doc, rowSel, noDataSel)
		require.True(t, found)
		assert.Equal(t, models.Result{
			{"BGY", "19:42"},
			{"KTW", "21:35", "+5"},
		}, rows)
	})

	t.Run("no-data marker wins", func(t *testing.T) {
		doc := docFrom(t, `<div class="no-data-box">No flights</div><div class="row-x">stale</div>`)

		rows, found := RowsFromDocument(doc, rowSel, noDataSel)
		require.True(t, found)
		assert.NotNil(t, rows)
		assert.Empty(t, rows)
	})

	t.Run("neither marker", func(t *testing.T) {
		doc := docFrom(t, `<div class="redesigned">BGY 19:42</div>`)

		rows, found := RowsFromDocument(doc, rowSel, noDataSel)
		assert.False(t, found)
		assert.Nil(t, rows)
	})
}
