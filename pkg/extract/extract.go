// Package extract turns a results page into ordered finisher records.
package extract

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/Sternrassler/parkrun-harvester/pkg/results"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"
)

var (
	rowsExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_rows_extracted_total",
		Help: "Total result rows turned into records",
	})

	rowsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_rows_skipped_total",
		Help: "Total result rows skipped by reason",
	}, []string{"reason"})

	tablesMissingTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvest_tables_missing_total",
		Help: "Total pages without a results table",
	})
)

const (
	tableSelector    = "table.Results-table"
	timeCellSelector = "td.Results-table-td--time"
	compactSelector  = "div.compact"

	// MinCells is the fewest <td> cells a finisher row may have.
	MinCells = 6
)

// SkipReason explains why a row produced no record.
type SkipReason string

const (
	ReasonTooFewCells SkipReason = "too_few_cells"
	ReasonMalformed   SkipReason = "malformed"
)

// RowResult is the outcome of reading one table row.
type RowResult struct {
	// Row is the 1-based position among data rows (header excluded).
	Row     int
	Record  results.ResultRecord
	Skipped bool
	Reason  SkipReason
	Err     error
}

// Extraction holds every row outcome of one page in document order.
type Extraction struct {
	Rows []RowResult
}

// Records returns the records of the rows that were not skipped, in
// document order. The slice is never nil.
func (e *Extraction) Records() []results.ResultRecord {
	records := make([]results.ResultRecord, 0, len(e.Rows))
	for _, row := range e.Rows {
		if !row.Skipped {
			records = append(records, row.Record)
		}
	}
	return records
}

// Skipped returns how many rows were skipped.
func (e *Extraction) Skipped() int {
	n := 0
	for _, row := range e.Rows {
		if row.Skipped {
			n++
		}
	}
	return n
}

// SkipReasons tallies skipped rows by reason.
func (e *Extraction) SkipReasons() map[SkipReason]int {
	tally := make(map[SkipReason]int)
	for _, row := range e.Rows {
		if row.Skipped {
			tally[row.Reason]++
		}
	}
	return tally
}

// Extractor reads the results table of a page.
type Extractor struct {
	logger zerolog.Logger
}

// New creates an Extractor.
func New(logger zerolog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract parses content and reads every data row of its results table. A
// page without the table fails with results.ErrParseFailure.
func (x *Extractor) Extract(content []byte) (*Extraction, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", results.ErrParseFailure, err)
	}

	table := doc.Find(tableSelector).First()
	if table.Length() == 0 {
		tablesMissingTotal.Inc()
		return nil, results.ErrParseFailure
	}

	extraction := &Extraction{}
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			// header
			return
		}
		result := readRow(row)
		result.Row = i
		if result.Skipped {
			rowsSkippedTotal.WithLabelValues(string(result.Reason)).Inc()
			x.logger.Debug().
				Int("row", i).
				Str("reason", string(result.Reason)).
				Err(result.Err).
				Msg("Row skipped")
		} else {
			rowsExtractedTotal.Inc()
		}
		extraction.Rows = append(extraction.Rows, result)
	})

	return extraction, nil
}

// readRow builds a sparse record from one <tr>.
func readRow(row *goquery.Selection) RowResult {
	cells := row.Find("td")
	if cells.Length() < MinCells {
		return RowResult{
			Skipped: true,
			Reason:  ReasonTooFewCells,
			Err:     fmt.Errorf("row has %d cells, want at least %d", cells.Length(), MinCells),
		}
	}

	timeText, err := readTime(row)
	if err != nil {
		return RowResult{Skipped: true, Reason: ReasonMalformed, Err: err}
	}

	record := results.ResultRecord{
		Position:    parsePosition(row.AttrOr("data-position", "0")),
		Name:        attr(row, "data-name"),
		Gender:      attr(row, "data-gender"),
		Time:        timeText,
		AgeGroup:    attr(row, "data-agegroup"),
		Club:        attr(row, "data-club"),
		Runs:        attr(row, "data-runs"),
		Vols:        attr(row, "data-vols"),
		AgeGrade:    attr(row, "data-agegrade"),
		Achievement: attr(row, "data-achievement"),
	}

	return RowResult{Record: record}
}

// readTime prefers the compact rendering nested in the time cell, then the
// cell's own text. A row without a time cell has an empty time; a row with
// more than one is ambiguous and rejected.
func readTime(row *goquery.Selection) (string, error) {
	cell := row.Find(timeCellSelector)
	switch cell.Length() {
	case 0:
		return "", nil
	case 1:
	default:
		return "", fmt.Errorf("row has %d time cells", cell.Length())
	}

	if compact := cell.Find(compactSelector); compact.Length() > 0 {
		return strippedText(compact.First()), nil
	}
	return strippedText(cell), nil
}

func attr(row *goquery.Selection, name string) string {
	return strings.TrimSpace(row.AttrOr(name, ""))
}

func parsePosition(value string) int {
	position, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return position
}

// strippedText joins the trimmed text nodes under sel, dropping the
// whitespace that markup indentation puts between elements.
func strippedText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, node := range sel.Nodes {
		collectText(node, &b)
	}
	return b.String()
}

func collectText(node *html.Node, b *strings.Builder) {
	if node.Type == html.TextNode {
		b.WriteString(strings.TrimSpace(node.Data))
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, b)
	}
}
