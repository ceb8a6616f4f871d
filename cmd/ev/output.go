package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alfredjeanlab/eventify/internal/client"
	"github.com/alfredjeanlab/eventify/internal/listing"
	"github.com/alfredjeanlab/eventify/internal/model"
	"github.com/alfredjeanlab/eventify/internal/ui"
)

// listOutput is the --json shape of one rendered page.
type listOutput struct {
	Screen  string          `json:"screen"`
	Filters []model.Filter  `json:"filters"`
	Page    model.PageState `json:"page"`
	Items   []model.Record  `json:"items"`
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// rows renders items through the screen's columns.
func rows(scr client.Screen, items []model.Record) ([]string, [][]string) {
	headers := make([]string, len(scr.Columns))
	for i, col := range scr.Columns {
		headers[i] = col.Header
	}
	out := make([][]string, len(items))
	for i, rec := range items {
		cells := make([]string, len(scr.Columns))
		for j, col := range scr.Columns {
			cells[j] = col.Value(rec)
		}
		out[i] = cells
	}
	return headers, out
}

// printState writes what a list screen shows: the table, the pager and the
// range line. A failed fetch is reported under the last good page.
func printState(w io.Writer, scr client.Screen, st listing.State[model.Record], width int) error {
	if jsonOutput {
		return printJSON(w, listOutput{
			Screen:  scr.Name,
			Filters: append([]model.Filter{}, st.Spec.Active()...),
			Page:    st.Page,
			Items:   st.Items,
		})
	}

	fmt.Fprintln(w, ui.RenderAccent(scr.Title)+filterSummary(st.Query))
	if len(st.Items) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("(nothing to show)"))
	} else {
		headers, cells := rows(scr, st.Items)
		if err := ui.Table(w, headers, cells, ui.CellWidth(width, len(headers))); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, ui.PagerLine(listing.BuildPager(st.Page, listing.DefaultWindow)))
	fmt.Fprintln(w, ui.RangeLine(listing.DisplayRange(st.Page, len(st.Items))))
	if st.Loading {
		fmt.Fprintln(w, ui.RenderMuted("loading..."))
	}
	if st.Err != nil {
		fmt.Fprintln(w, ui.RenderError("fetch failed: ")+st.Err.Error())
	}
	return nil
}

func filterSummary(q model.QuerySpec) string {
	active := q.Active()
	if len(active) == 0 {
		return ""
	}
	parts := make([]string, len(active))
	for i, f := range active {
		parts[i] = f.Key + "=" + f.Value
	}
	return ui.RenderMuted("  (" + strings.Join(parts, ", ") + ")")
}

// parseFilters turns "key=value" arguments into filters. An empty value is
// allowed and clears the filter.
func parseFilters(args []string) ([]model.Filter, error) {
	out := make([]model.Filter, 0, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q (want key=value)", arg)
		}
		out = append(out, model.Filter{Key: key, Value: strings.TrimSpace(value)})
	}
	return out, nil
}
