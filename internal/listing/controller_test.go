package listing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/eventify/internal/model"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestController(t *testing.T, src *gatedSource, opts Options) *Controller[string] {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger
	}
	c := New[string](src, opts)
	t.Cleanup(func() {
		c.Close()
		src.releaseAll()
		c.Wait()
	})
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var eventFilters = []FilterConfig{
	{Key: "search"},
	{Key: "status", Immediate: true},
	{Key: "category", Default: "all", Immediate: true},
}

func TestController_NoFetchUntilAsked(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{Filters: eventFilters})

	src.expectNone(t, 30*time.Millisecond)
	st := c.State()
	if st.Loading {
		t.Error("Loading = true before any dispatch")
	}
	if st.Page.CurrentPage != 1 || st.Page.TotalPages != 1 {
		t.Errorf("initial page = %d/%d, want 1/1", st.Page.CurrentPage, st.Page.TotalPages)
	}
	if st.Items == nil || len(st.Items) != 0 {
		t.Errorf("initial items = %#v, want empty slice", st.Items)
	}
	if got := st.Query.Get("category"); got != "all" {
		t.Errorf("default category = %q, want all", got)
	}
	if c.ID() == "" {
		t.Error("ID() is empty")
	}
}

// Dispatch A, then B 100ms later; A resolves after 800ms, B after 50ms.
func TestController_StaleResponseDiscarded(t *testing.T) {
	src := SourceFunc[string](func(_ context.Context, spec model.QuerySpec) (model.Page[string], error) {
		if spec.Get("search") == "" {
			time.Sleep(800 * time.Millisecond)
			return model.Page[string]{Items: []string{"everything"}, Meta: model.PageMeta{Count: 95}}, nil
		}
		time.Sleep(50 * time.Millisecond)
		return model.Page[string]{Items: []string{"music"}, Meta: model.PageMeta{Count: 1}}, nil
	})

	var mu sync.Mutex
	var settled []model.FetchRequest
	c := New[string](src, Options{
		Logger:  quietLogger,
		Filters: []FilterConfig{{Key: "search", Immediate: true}},
		OnSettle: func(r model.FetchRequest) {
			mu.Lock()
			settled = append(settled, r)
			mu.Unlock()
		},
	})
	defer c.Close()

	start := time.Now()
	c.Refresh()
	time.Sleep(100 * time.Millisecond)
	c.SetFilter("search", "music")

	waitFor(t, "music results", func() bool { return c.State().Sequence == 2 })
	if elapsed := time.Since(start); elapsed > 700*time.Millisecond {
		t.Errorf("B committed after %v, expected well before A resolves", elapsed)
	}
	st := c.State()
	if !reflect.DeepEqual(st.Items, []string{"music"}) {
		t.Fatalf("items = %v, want [music]", st.Items)
	}
	if st.Loading {
		t.Error("Loading = true after latest request fulfilled")
	}

	c.Wait()
	st = c.State()
	if !reflect.DeepEqual(st.Items, []string{"music"}) {
		t.Errorf("after A resolved items = %v, want [music]", st.Items)
	}
	if st.Page.TotalCount != 1 {
		t.Errorf("TotalCount = %d, want 1", st.Page.TotalCount)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(settled) != 2 {
		t.Fatalf("settled %d requests, want 2", len(settled))
	}
	if settled[0].Sequence != 2 || settled[0].Status != model.FetchFulfilled {
		t.Errorf("first settle = %d %s, want 2 fulfilled", settled[0].Sequence, settled[0].Status)
	}
	if settled[1].Sequence != 1 || settled[1].Status != model.FetchDiscarded {
		t.Errorf("second settle = %d %s, want 1 discarded", settled[1].Sequence, settled[1].Status)
	}
}

func TestController_StaleFailureIgnored(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{})

	c.Refresh()
	first := src.next(t)
	c.SetPage(2)
	second := src.next(t)

	first.fail(errors.New("gateway timeout"))
	waitFor(t, "stale failure settled", func() bool { return len(c.History()) == 1 })

	st := c.State()
	if st.Err != nil {
		t.Errorf("stale failure surfaced: %v", st.Err)
	}
	if !st.Loading {
		t.Error("stale failure cleared Loading for the newer request")
	}

	second.ok(30, "p2a", "p2b")
	waitFor(t, "page 2", func() bool { return !c.State().Loading })
	st = c.State()
	if st.Page.CurrentPage != 2 || st.Err != nil {
		t.Errorf("state = page %d err %v, want page 2 no error", st.Page.CurrentPage, st.Err)
	}
}

func TestController_DebounceCoalesces(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{Debounce: 60 * time.Millisecond, Filters: eventFilters})

	for _, v := range []string{"m", "mu", "mus", "musi", "music"} {
		c.SetFilter("search", v)
		time.Sleep(5 * time.Millisecond)
	}
	if c.State().Loading {
		t.Error("Loading = true while the debounce is still pending")
	}
	if got := c.State().Query.Get("search"); got != "music" {
		t.Errorf("Query search = %q, want music", got)
	}

	call := src.next(t)
	if got := call.spec.Get("search"); got != "music" {
		t.Errorf("dispatched search = %q, want music", got)
	}
	if call.spec.Page() != 1 {
		t.Errorf("dispatched page = %d, want 1", call.spec.Page())
	}
	src.expectNone(t, 150*time.Millisecond)
}

func TestController_PerKeyDelay(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{
		Debounce: time.Hour,
		Filters:  []FilterConfig{{Key: "search", Delay: 20 * time.Millisecond}},
	})

	c.SetFilter("search", "jazz")
	call := src.next(t)
	if call.spec.Get("search") != "jazz" {
		t.Errorf("dispatched %s", call.spec)
	}
}

func TestController_ImmediateDispatch(t *testing.T) {
	for _, tc := range []struct {
		name     string
		act      func(c *Controller[string])
		wantPage int
	}{
		{name: "SetPage", act: func(c *Controller[string]) { c.SetPage(3) }, wantPage: 3},
		{name: "Refresh", act: func(c *Controller[string]) { c.Refresh() }, wantPage: 1},
		{name: "ImmediateFilter", act: func(c *Controller[string]) { c.SetFilter("status", "pending") }, wantPage: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := newGatedSource()
			c := newTestController(t, src, Options{Debounce: 100 * time.Millisecond, Filters: eventFilters})

			c.SetFilter("search", "rock")
			tc.act(c)
			if !c.State().Loading {
				t.Fatal("Loading = false right after an immediate action")
			}

			call := src.next(t)
			if call.spec.Page() != tc.wantPage {
				t.Errorf("dispatched page = %d, want %d", call.spec.Page(), tc.wantPage)
			}
			if call.spec.Get("search") != "rock" {
				t.Errorf("dispatched search = %q, want the pending input rock", call.spec.Get("search"))
			}
			src.expectNone(t, 200*time.Millisecond)
		})
	}
}

func TestController_OutOfRangeRedispatch(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{})

	states, cancel := c.Subscribe()
	defer cancel()
	var seen []model.PageState
	var seenMu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		for st := range states {
			seenMu.Lock()
			seen = append(seen, st.Page)
			seenMu.Unlock()
		}
	}()

	c.SetPage(5)
	src.next(t).ok(95, "p5")
	waitFor(t, "page 5", func() bool { return c.State().Page.CurrentPage == 5 })

	// The result set shrinks to 25 rows before the next refresh.
	c.Refresh()
	src.next(t).ok(25)

	call := src.next(t)
	if call.spec.Page() != 3 {
		t.Fatalf("re-dispatched page = %d, want 3", call.spec.Page())
	}
	st := c.State()
	if !st.Loading {
		t.Error("Loading = false while the clamped page is in flight")
	}
	if st.Query.Page() != 3 {
		t.Errorf("Query page = %d, want 3", st.Query.Page())
	}
	if st.Page.CurrentPage != 5 || st.Page.TotalPages != 10 {
		t.Errorf("out-of-range response was committed: %d of %d", st.Page.CurrentPage, st.Page.TotalPages)
	}

	call.ok(25, "p3a", "p3b", "p3c", "p3d", "p3e")
	waitFor(t, "clamped page", func() bool { return !c.State().Loading })
	st = c.State()
	if st.Page.CurrentPage != 3 || st.Page.TotalPages != 3 {
		t.Errorf("page = %d of %d, want 3 of 3", st.Page.CurrentPage, st.Page.TotalPages)
	}
	if st.Page.HasNext || !st.Page.HasPrevious {
		t.Errorf("next/prev = %v/%v, want false/true", st.Page.HasNext, st.Page.HasPrevious)
	}

	cancel()
	<-done
	seenMu.Lock()
	defer seenMu.Unlock()
	for _, p := range seen {
		if p.CurrentPage > p.TotalPages {
			t.Errorf("observed page %d of %d", p.CurrentPage, p.TotalPages)
		}
	}
}

func TestController_ErrorKeepsLastGoodState(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{})

	c.Refresh()
	src.next(t).ok(2, "a", "b")
	waitFor(t, "first page", func() bool { return !c.State().Loading })
	good := c.State()

	c.Refresh()
	src.next(t).fail(errors.New("502 bad gateway"))
	waitFor(t, "failure", func() bool { return c.State().Err != nil })

	st := c.State()
	if st.Loading {
		t.Error("Loading = true after failure")
	}
	if !reflect.DeepEqual(st.Items, []string{"a", "b"}) {
		t.Errorf("items = %v, want [a b]", st.Items)
	}
	if st.Page != good.Page {
		t.Errorf("page state = %+v, want %+v", st.Page, good.Page)
	}

	// A later success clears the error.
	c.Refresh()
	src.next(t).ok(1, "c")
	waitFor(t, "recovery", func() bool { return !c.State().Loading })
	if err := c.State().Err; err != nil {
		t.Errorf("Err after success = %v", err)
	}
}

func TestController_DedupesIdenticalSpecs(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{Debounce: 40 * time.Millisecond, Filters: eventFilters})

	c.Refresh()
	src.next(t).ok(40)
	waitFor(t, "initial page", func() bool { return !c.State().Loading })

	// Typed and cleared again before the debounce fired.
	c.SetFilter("search", "jazz")
	c.SetFilter("search", "")
	src.expectNone(t, 100*time.Millisecond)

	// Toggled on and back off: the second toggle matches the first page.
	c.SetFilter("status", "pending")
	src.next(t).ok(3)
	c.SetFilter("status", "pending")
	src.expectNone(t, 30*time.Millisecond)
	c.SetFilter("status", "")
	src.next(t).ok(40)

	// Refresh always fetches.
	waitFor(t, "settled", func() bool { return !c.State().Loading })
	c.Refresh()
	src.next(t).ok(40)
}

func TestController_RetriesAfterFailureWithSameSpec(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{Filters: eventFilters})

	c.SetFilter("status", "pending")
	src.next(t).fail(errors.New("boom"))
	waitFor(t, "failure", func() bool { return c.State().Err != nil })

	c.SetFilter("status", "pending")
	call := src.next(t)
	if call.spec.Get("status") != "pending" {
		t.Errorf("retried %s", call.spec)
	}
}

func TestController_NextPrev(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{})

	if c.NextPage() || c.PrevPage() {
		t.Fatal("navigation allowed before anything was fetched")
	}

	c.Refresh()
	src.next(t).ok(30, "a")
	waitFor(t, "page 1", func() bool { return !c.State().Loading })

	if c.PrevPage() {
		t.Error("PrevPage() on page 1 = true")
	}
	if !c.NextPage() {
		t.Fatal("NextPage() on page 1 of 3 = false")
	}
	call := src.next(t)
	if call.spec.Page() != 2 {
		t.Errorf("NextPage dispatched page %d, want 2", call.spec.Page())
	}
	call.ok(30, "b")
	waitFor(t, "page 2", func() bool { return c.State().Page.CurrentPage == 2 })

	if !c.PrevPage() {
		t.Fatal("PrevPage() on page 2 = false")
	}
	if got := src.next(t).spec.Page(); got != 1 {
		t.Errorf("PrevPage dispatched page %d, want 1", got)
	}
}

func TestController_ResetFilters(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{PageSize: 12, Filters: eventFilters})

	c.SetFilter("category", "music")
	src.next(t).ok(50)
	c.SetPage(4)
	src.next(t).ok(50)

	c.ResetFilters()
	call := src.next(t)
	if call.spec.Page() != 1 {
		t.Errorf("reset page = %d, want 1", call.spec.Page())
	}
	if call.spec.PageSize() != 12 {
		t.Errorf("reset page size = %d, want 12", call.spec.PageSize())
	}
	if got := call.spec.Get("category"); got != "all" {
		t.Errorf("reset category = %q, want default all", got)
	}
}

func TestController_InvalidateCoalesces(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{})

	c.Refresh()
	src.next(t).ok(5)
	waitFor(t, "initial", func() bool { return !c.State().Loading })

	c.Invalidate(30 * time.Millisecond)
	c.Invalidate(30 * time.Millisecond)
	c.Invalidate(30 * time.Millisecond)

	call := src.next(t)
	if call.spec.Page() != 1 {
		t.Errorf("invalidate page = %d, want 1", call.spec.Page())
	}
	src.expectNone(t, 100*time.Millisecond)
}

func TestController_Subscribe(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{})

	ch, cancel := c.Subscribe()
	first := <-ch
	if first.Loading {
		t.Error("initial snapshot Loading = true")
	}

	c.Refresh()
	loading := <-ch
	if !loading.Loading {
		t.Error("snapshot after Refresh Loading = false")
	}

	src.next(t).ok(1, "x")
	var final State[string]
	select {
	case final = <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot after fetch settled")
	}
	if final.Loading || !reflect.DeepEqual(final.Items, []string{"x"}) {
		t.Errorf("final snapshot = loading %v items %v", final.Loading, final.Items)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}
}

func TestController_Close(t *testing.T) {
	src := newGatedSource()
	c := New[string](src, Options{Logger: quietLogger, Debounce: 30 * time.Millisecond, Filters: eventFilters})

	ch, _ := c.Subscribe()
	<-ch

	c.Refresh()
	inflight := src.next(t)
	c.SetFilter("search", "late")

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	select {
	case <-inflight.ctx.Done():
	case <-time.After(time.Second):
		t.Error("in-flight request not cancelled by Close")
	}
	for range ch {
	}

	st := c.State()
	if st.Loading || !errors.Is(st.Err, ErrClosed) {
		t.Errorf("after Close loading %v err %v, want false/ErrClosed", st.Loading, st.Err)
	}

	c.SetPage(2)
	c.Refresh()
	src.expectNone(t, 80*time.Millisecond)

	inflight.ok(10, "ignored")
	c.Wait()
	if len(c.State().Items) != 0 {
		t.Errorf("response committed after Close: %v", c.State().Items)
	}

	sub, _ := c.Subscribe()
	if _, ok := <-sub; ok {
		t.Error("Subscribe after Close returned an open channel")
	}
}

func TestController_RefreshIsFresh(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{Filters: eventFilters})

	c.Refresh()
	call := src.next(t)
	if !IsFresh(call.ctx) {
		t.Error("Refresh dispatched a cacheable fetch")
	}
	call.ok(30, "a")
	waitFor(t, "page 1", func() bool { return !c.State().Loading })

	c.SetPage(2)
	if call := src.next(t); IsFresh(call.ctx) {
		t.Error("SetPage dispatched a fresh fetch")
	}
}

// A filter edit that ends where it started must not swallow a pending
// invalidation.
func TestController_InvalidateSurvivesNoopFilterEdit(t *testing.T) {
	for _, tc := range []struct {
		name string
		edit func(c *Controller[string])
	}{
		{name: "SameDropdownValue", edit: func(c *Controller[string]) {
			c.SetFilter("status", "pending")
		}},
		{name: "TypedAndCleared", edit: func(c *Controller[string]) {
			c.SetFilter("search", "j")
			c.SetFilter("search", "")
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := newGatedSource()
			c := newTestController(t, src, Options{Debounce: 40 * time.Millisecond, Filters: eventFilters})

			c.SetFilter("status", "pending")
			src.next(t).ok(3)
			waitFor(t, "first page", func() bool { return !c.State().Loading })

			c.Invalidate(50 * time.Millisecond)
			tc.edit(c)

			call := src.next(t)
			if !IsFresh(call.ctx) {
				t.Error("refresh after invalidation was not fresh")
			}
			if call.spec.Get("status") != "pending" || call.spec.Get("search") != "" {
				t.Errorf("refreshed %s", call.spec)
			}
			call.ok(3)
			src.expectNone(t, 120*time.Millisecond)
		})
	}
}

// An invalidation arriving mid-typing waits for the typing debounce instead
// of sending the half-typed search early.
func TestController_InvalidateWaitsForTyping(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{Debounce: 150 * time.Millisecond, Filters: eventFilters})

	c.Refresh()
	src.next(t).ok(40)
	waitFor(t, "first page", func() bool { return !c.State().Loading })

	c.SetFilter("search", "jaz")
	c.Invalidate(20 * time.Millisecond)
	src.expectNone(t, 80*time.Millisecond)

	call := src.next(t)
	if call.spec.Get("search") != "jaz" {
		t.Errorf("dispatched %s, want the typed search", call.spec)
	}
	if !IsFresh(call.ctx) {
		t.Error("typing dispatch did not carry the pending refresh")
	}
	call.ok(1, "jazz night")
	src.expectNone(t, 100*time.Millisecond)
}

// Once the invalidation has been served, identical specs are deduplicated
// again.
func TestController_InvalidateThenDedupe(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{Filters: eventFilters})

	c.SetFilter("status", "pending")
	src.next(t).ok(3)
	waitFor(t, "first page", func() bool { return !c.State().Loading })

	c.Invalidate(10 * time.Millisecond)
	src.next(t).ok(3)
	waitFor(t, "refreshed", func() bool { return !c.State().Loading })

	c.SetFilter("status", "pending")
	src.expectNone(t, 50*time.Millisecond)
}

func TestController_SetQueryDispatchesOnce(t *testing.T) {
	src := newGatedSource()
	c := newTestController(t, src, Options{Debounce: 100 * time.Millisecond, Filters: eventFilters})

	c.SetQuery([]model.Filter{
		{Key: "status", Value: "pending"},
		{Key: "category", Value: "music"},
		{Key: "search", Value: "jazz"},
	}, 3)
	if !c.State().Loading {
		t.Fatal("Loading = false right after SetQuery")
	}

	call := src.next(t)
	for key, want := range map[string]string{"status": "pending", "category": "music", "search": "jazz"} {
		if got := call.spec.Get(key); got != want {
			t.Errorf("dispatched %s = %q, want %q", key, got, want)
		}
	}
	if call.spec.Page() != 3 {
		t.Errorf("dispatched page = %d, want 3", call.spec.Page())
	}
	call.ok(95)
	src.expectNone(t, 200*time.Millisecond)
}
