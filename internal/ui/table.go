package ui

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Table writes headers and rows aligned in columns. Cells are cleaned with
// PlainText and cut to maxCell runes (0 = no limit).
func Table(w io.Writer, headers []string, rows [][]string, maxCell int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	for _, row := range rows {
		cells := make([]string, len(headers))
		for i := range cells {
			if i < len(row) {
				cells[i] = Truncate(PlainText(row[i]), maxCell)
			}
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

// CellWidth splits the terminal width between columns, never below 8.
func CellWidth(width, columns int) int {
	if columns < 1 {
		return width
	}
	n := width/columns - 2
	if n < 8 {
		n = 8
	}
	return n
}
