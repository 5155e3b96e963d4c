package testutil

import (
	"fmt"
	"html"
	"sort"
	"strings"
)

// Row describes one finisher row of a results table fixture.
type Row struct {
	// Attrs become data-* attributes on the <tr>, e.g. "position": "1".
	Attrs map[string]string

	// Time is rendered inside the time cell.
	Time string

	// CompactTime, when set, is rendered in a nested div.compact.
	CompactTime string

	// Cells overrides the number of <td> cells (default 6).
	Cells int

	// NoTimeCell omits the Results-table-td--time class.
	NoTimeCell bool
}

// Finisher returns a typical fully populated row.
func Finisher(position int, name, timeText string) Row {
	return Row{
		Attrs: map[string]string{
			"position":    fmt.Sprintf("%d", position),
			"name":        name,
			"gender":      "Female",
			"agegroup":    "VW35-39",
			"club":        "Eastville Runners",
			"runs":        "42",
			"vols":        "3",
			"agegrade":    "65.12 %",
			"achievement": "First Timer!",
		},
		Time:        timeText,
		CompactTime: timeText,
	}
}

// ResultsPage renders a results page with a header row and the given rows.
func ResultsPage(rows ...Row) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><title>results</title></head><body>\n")
	b.WriteString(`<div class="Results"><table class="Results-table Results-table--compact js-ResultsTable">`)
	b.WriteString("\n<thead><tr class=\"Results-table-row\"><th>Position</th><th>parkrunner</th><th>Gender</th><th>Age Group</th><th>Club</th><th>Time</th></tr></thead>\n<tbody>\n")
	for _, row := range rows {
		b.WriteString(renderRow(row))
		b.WriteString("\n")
	}
	b.WriteString("</tbody></table></div>\n</body></html>\n")
	return b.String()
}

// PageWithoutTable renders a page that exists but holds no results table.
func PageWithoutTable() string {
	return "<!DOCTYPE html><html><body><h1>Results</h1><p>No results have been published yet.</p></body></html>"
}

func renderRow(row Row) string {
	keys := make([]string, 0, len(row.Attrs))
	for key := range row.Attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(`<tr class="Results-table-row"`)
	for _, key := range keys {
		fmt.Fprintf(&b, ` data-%s="%s"`, key, html.EscapeString(row.Attrs[key]))
	}
	b.WriteString(">")

	cells := row.Cells
	if cells == 0 {
		cells = 6
	}
	for i := 0; i < cells; i++ {
		if i == cells-1 {
			b.WriteString(renderTimeCell(row))
			continue
		}
		fmt.Fprintf(&b, `<td class="Results-table-td">cell %d</td>`, i+1)
	}
	b.WriteString("</tr>")
	return b.String()
}

func renderTimeCell(row Row) string {
	class := "Results-table-td Results-table-td--time"
	if row.NoTimeCell {
		class = "Results-table-td"
	}
	if row.CompactTime != "" {
		return fmt.Sprintf(`<td class="%s"><div class="compact">%s</div><div class="detailed">PB %s</div></td>`,
			class, html.EscapeString(row.CompactTime), html.EscapeString(row.CompactTime))
	}
	return fmt.Sprintf(`<td class="%s">%s</td>`, class, html.EscapeString(row.Time))
}
