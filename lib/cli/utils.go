package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vardex/vardex/lib/varapi"
)

// formatCell renders one query result value for terminal display.
// Missing values print as a dot, the VCF convention.
func formatCell(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "."
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// renderTable prints rows as space-aligned columns under a header
// line.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, header := range headers {
		widths[i] = len(header)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, 0, len(cells))
		for i, cell := range cells {
			parts = append(parts, cell+strings.Repeat(" ", widths[i]-len(cell)))
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	printRow(headers)
	underlines := make([]string, len(headers))
	for i := range headers {
		underlines[i] = strings.Repeat("-", widths[i])
	}
	printRow(underlines)
	for _, row := range rows {
		printRow(row)
	}
}

// renderPage prints a result page in the order its columns were
// selected.
func renderPage(w io.Writer, page *varapi.Page) {
	rows := make([][]string, 0, len(page.Rows))
	for _, row := range page.Rows {
		cells := make([]string, 0, len(page.Columns))
		for _, column := range page.Columns {
			cells = append(cells, formatCell(row[column]))
		}
		rows = append(rows, cells)
	}
	renderTable(w, page.Columns, rows)
}
