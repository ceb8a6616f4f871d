// Package export walks every page of a list screen and writes the complete
// result set to files, S3 or Postgres, once or on a schedule.
package export

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/eventify/internal/idgen"
	"github.com/alfredjeanlab/eventify/internal/listing"
	"github.com/alfredjeanlab/eventify/internal/model"
)

// MaxCursorPages bounds the walk of a backend that reports neither a count
// nor a page total and only says whether a next page exists.
const MaxCursorPages = 1000

// Snapshot is the complete result set of one screen for one filter set.
type Snapshot struct {
	ID      string         `json:"id"`
	Screen  string         `json:"screen"`
	Filters []model.Filter `json:"filters,omitempty"`
	TakenAt time.Time      `json:"taken_at"`
	Count   int            `json:"count"`
	Pages   int            `json:"pages"`
	Items   []model.Record `json:"-"`
}

// Collect fetches every page of spec's result set. The first page is fetched
// alone to learn the page count; the rest are fetched concurrently, at most
// concurrency at a time, and reassembled in page order.
func Collect(ctx context.Context, src listing.DataSource[model.Record], spec model.QuerySpec, concurrency int) ([]model.Record, model.PageState, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	size := spec.PageSize()
	first, err := src.FetchPage(ctx, spec.WithPage(1))
	if err != nil {
		return nil, model.PageState{}, fmt.Errorf("fetching page 1: %w", err)
	}
	if first.Meta.Count <= 0 && first.Meta.TotalPages <= 0 && first.Meta.Next != nil {
		return collectCursor(ctx, src, spec, first)
	}

	st, _ := listing.Reconcile(first.Meta, size, 1)
	pages := make([][]model.Record, st.TotalPages)
	pages[0] = first.Items

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for p := 2; p <= st.TotalPages; p++ {
		g.Go(func() error {
			page, err := src.FetchPage(gctx, spec.WithPage(p))
			if err != nil {
				return fmt.Errorf("fetching page %d: %w", p, err)
			}
			pages[p-1] = page.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, model.PageState{}, err
	}

	var items []model.Record
	for _, p := range pages {
		items = append(items, p...)
	}
	if st.TotalCount == 0 {
		st.TotalCount = len(items)
	}
	return items, st, nil
}

// collectCursor follows next flags one page at a time.
func collectCursor(ctx context.Context, src listing.DataSource[model.Record], spec model.QuerySpec, first model.Page[model.Record]) ([]model.Record, model.PageState, error) {
	items := append([]model.Record(nil), first.Items...)
	page := first
	n := 1
	for page.Meta.Next != nil && *page.Meta.Next {
		if n >= MaxCursorPages {
			return nil, model.PageState{}, fmt.Errorf("result set exceeds %d pages", MaxCursorPages)
		}
		n++
		var err error
		page, err = src.FetchPage(ctx, spec.WithPage(n))
		if err != nil {
			return nil, model.PageState{}, fmt.Errorf("fetching page %d: %w", n, err)
		}
		items = append(items, page.Items...)
	}
	st := model.PageState{
		CurrentPage: 1,
		TotalPages:  n,
		TotalCount:  len(items),
		PageSize:    spec.PageSize(),
		HasNext:     n > 1,
	}
	return items, st, nil
}

// Exporter takes snapshots of one screen.
type Exporter struct {
	Screen      string
	Source      listing.DataSource[model.Record]
	Spec        model.QuerySpec
	Concurrency int
}

// Snapshot collects the screen's full result set.
func (e *Exporter) Snapshot(ctx context.Context) (*Snapshot, error) {
	if err := e.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("export %s: %w", e.Screen, err)
	}
	items, st, err := Collect(ctx, e.Source, e.Spec.WithPage(1), e.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", e.Screen, err)
	}
	return &Snapshot{
		ID:      idgen.MustWithPrefix(idgen.ExportPrefix),
		Screen:  e.Screen,
		Filters: e.Spec.Active(),
		TakenAt: time.Now().UTC(),
		Count:   st.TotalCount,
		Pages:   st.TotalPages,
		Items:   items,
	}, nil
}
