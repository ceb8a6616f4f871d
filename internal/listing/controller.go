// Package listing drives paginated, filterable list views against a remote
// data source.
//
// A Controller holds the filters and page the user currently wants, debounces
// typing-style filter changes, dispatches fetches tagged with sequence
// numbers and only ever commits the response to the most recently dispatched
// request. Out-of-order responses are discarded, failures keep the last good
// page on screen, and a page that falls off the end after a filter change is
// re-fetched at the last valid page.
//
// Invalidate marks the data stale without touching the query: the next
// dispatch, whichever input causes it, bypasses caches and duplicate
// suppression. Its timer is separate from the input debounce, so neither
// cancels nor hurries the other.
package listing

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/eventify/internal/idgen"
	"github.com/alfredjeanlab/eventify/internal/model"
)

// DefaultDebounce is the delay applied to filter keys without their own.
const DefaultDebounce = 400 * time.Millisecond

// ErrClosed is reported by State.Err after the controller has been closed
// while a request was still loading.
var ErrClosed = errors.New("listing: controller closed")

// FilterConfig describes how changes to one filter key are dispatched.
type FilterConfig struct {
	Key       string
	Default   string
	Immediate bool          // dispatch without debounce (dropdowns, toggles)
	Delay     time.Duration // 0 = Options.Debounce
}

// Options configures a Controller.
type Options struct {
	PageSize int
	Debounce time.Duration
	Filters  []FilterConfig
	Logger   *slog.Logger

	// OnSettle is called after every request reaches a terminal status,
	// outside the controller's lock.
	OnSettle func(model.FetchRequest)

	// ID labels log lines; generated when empty.
	ID string
}

// State is the snapshot a view renders.
type State[T any] struct {
	Items   []T
	Loading bool
	Err     error
	Page    model.PageState

	// Query is what the user currently asked for; it runs ahead of Spec while
	// a debounced change is waiting or a request is in flight.
	Query model.QuerySpec
	// Spec is the query whose response produced Items.
	Spec model.QuerySpec
	// Sequence is the request that produced Items, 0 before the first success.
	Sequence uint64
}

// Controller orchestrates fetches for one list view. All methods are safe for
// concurrent use; none of them block on the network.
type Controller[T any] struct {
	id       string
	log      *slog.Logger
	debounce *Debouncer // user input
	refresh  *Debouncer // invalidations
	seq      *Sequencer[T]
	onSettle func(model.FetchRequest)

	defaultDelay time.Duration
	filters      map[string]FilterConfig
	defaults     model.QuerySpec

	mu            sync.Mutex
	query         model.QuerySpec
	lastSpec      model.QuerySpec
	hasDispatched bool
	stale         bool // an invalidation is waiting for a fresh fetch
	version       uint64
	state         State[T]
	subs          map[int]chan State[T]
	nextSub       int
	closed        bool
}

// New creates a controller over source. It does not fetch anything until the
// first mutation or Refresh.
func New[T any](source DataSource[T], opts Options) *Controller[T] {
	if opts.PageSize < 1 {
		opts.PageSize = model.DefaultPageSize
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ID == "" {
		opts.ID = idgen.MustWithPrefix(idgen.ControllerPrefix)
	}

	c := &Controller[T]{
		id:           opts.ID,
		log:          opts.Logger,
		debounce:     NewDebouncer(),
		refresh:      NewDebouncer(),
		onSettle:     opts.OnSettle,
		defaultDelay: opts.Debounce,
		filters:      make(map[string]FilterConfig, len(opts.Filters)),
		subs:         make(map[int]chan State[T]),
	}

	defaults := model.NewQuerySpec(opts.PageSize)
	for _, fc := range opts.Filters {
		c.filters[fc.Key] = fc
		defaults = defaults.WithFilter(fc.Key, fc.Default)
	}
	c.defaults = defaults
	c.query = defaults
	c.state = State[T]{
		Items: []T{},
		Page:  model.InitialPageState(opts.PageSize),
		Query: defaults,
		Spec:  defaults,
	}
	c.seq = NewSequencer[T](source, c.settle)
	return c
}

// ID returns the controller's log label.
func (c *Controller[T]) ID() string {
	return c.id
}

// SetFilter changes one filter and moves back to page 1. The fetch is
// debounced unless the key is configured as immediate. A change that leads
// back to the spec already dispatched does not fetch again.
func (c *Controller[T]) SetFilter(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	next := c.query.WithFilter(key, value).WithPage(1)
	c.query = next
	c.version++

	if c.isDuplicateLocked(next) {
		c.debounce.Cancel()
		c.log.Debug("listing: filter change matches dispatched spec",
			"id", c.id, "key", key, "spec", next.String())
		c.notifyLocked()
		return
	}

	cfg, ok := c.filters[key]
	if ok && cfg.Immediate {
		c.debounce.ScheduleImmediate(func() { c.dispatchLocked(next, false) })
		return
	}

	delay := c.defaultDelay
	if ok && cfg.Delay > 0 {
		delay = cfg.Delay
	}
	version := c.version
	c.debounce.Schedule(delay, func() { c.fire(version) })
	c.notifyLocked()
}

// SetPage moves to page and fetches it at once, cancelling any pending
// debounced fetch.
func (c *Controller[T]) SetPage(page int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	next := c.query.WithPage(page)
	c.query = next
	c.version++
	c.debounce.ScheduleImmediate(func() { c.dispatchLocked(next, false) })
}

// SetQuery applies filters in order and moves to page as a single change,
// fetching at once. Callers that know the whole query up front use it
// instead of a run of SetFilter calls, which would fetch per immediate key.
func (c *Controller[T]) SetQuery(filters []model.Filter, page int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	next := c.query.WithFilters(filters).WithPage(page)
	c.query = next
	c.version++
	c.debounce.ScheduleImmediate(func() { c.dispatchLocked(next, false) })
}

// NextPage moves forward one page when the current page has a successor.
func (c *Controller[T]) NextPage() bool {
	c.mu.Lock()
	st := c.state.Page
	c.mu.Unlock()
	if !st.HasNext {
		return false
	}
	c.SetPage(st.CurrentPage + 1)
	return true
}

// PrevPage moves back one page when the current page is not the first.
func (c *Controller[T]) PrevPage() bool {
	c.mu.Lock()
	st := c.state.Page
	c.mu.Unlock()
	if !st.HasPrevious {
		return false
	}
	c.SetPage(st.CurrentPage - 1)
	return true
}

// ResetFilters restores every filter to its default, returns to page 1 and
// fetches at once.
func (c *Controller[T]) ResetFilters() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.query = c.defaults
	c.version++
	next := c.query
	c.debounce.ScheduleImmediate(func() { c.dispatchLocked(next, false) })
}

// Refresh fetches the current query at once from the backend, bypassing
// debounce, duplicate suppression and caches. Pending debounced input is
// flushed with it.
func (c *Controller[T]) Refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.version++
	next := c.query
	c.debounce.ScheduleImmediate(func() { c.dispatchLocked(next, true) })
}

// Invalidate marks the shown data stale and schedules a fresh fetch of the
// current query after delay. It is meant for out-of-band change
// notifications; repeated calls coalesce. While user input is still being
// debounced the refresh waits for it and rides on its dispatch.
func (c *Controller[T]) Invalidate(delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.stale = true
	c.refresh.Schedule(delay, c.fireRefresh)
}

// State returns a snapshot of what the view should show.
func (c *Controller[T]) State() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// History returns recently settled requests, oldest first.
func (c *Controller[T]) History() []model.FetchRequest {
	return c.seq.History()
}

// Subscribe returns a channel that always holds the latest state after each
// observable change. Intermediate states may be skipped by a slow reader.
// The channel is closed by the returned cancel function or by Close.
func (c *Controller[T]) Subscribe() (<-chan State[T], func()) {
	ch := make(chan State[T], 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshotLocked()
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Close cancels pending timers and in-flight requests and closes every
// subscription. Later calls to any mutator are no-ops.
func (c *Controller[T]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.debounce.Stop()
	c.refresh.Stop()
	if c.state.Loading {
		c.state.Loading = false
		c.state.Err = ErrClosed
	}
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.seq.Close()
	c.log.Debug("listing: closed", "id", c.id)
	return nil
}

// Wait blocks until every fetch goroutine has finished. Useful after Close.
func (c *Controller[T]) Wait() {
	c.seq.Wait()
}

// fire runs when the input debounce expires. Input that arrived after the
// timer was armed bumps version and makes this a no-op.
func (c *Controller[T]) fire(version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || version != c.version {
		return
	}
	if c.isDuplicateLocked(c.query) {
		return
	}
	c.dispatchLocked(c.query, false)
}

// fireRefresh runs when the invalidation timer expires.
func (c *Controller[T]) fireRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.stale {
		return
	}
	if c.debounce.Pending() {
		// The pending input dispatch will be fresh.
		return
	}
	c.dispatchLocked(c.query, true)
}

func (c *Controller[T]) isDuplicateLocked(spec model.QuerySpec) bool {
	if c.stale || !c.hasDispatched || !spec.Equal(c.lastSpec) {
		return false
	}
	switch c.seq.LatestStatus() {
	case model.FetchPending, model.FetchFulfilled:
		return true
	}
	return false
}

// dispatchLocked starts a fetch of spec. Any dispatch made while the data is
// stale is fresh and settles the invalidation.
func (c *Controller[T]) dispatchLocked(spec model.QuerySpec, fresh bool) {
	if c.stale {
		fresh = true
		c.stale = false
		c.refresh.Cancel()
	}
	c.lastSpec = spec
	c.hasDispatched = true
	dispatch := c.seq.Dispatch
	if fresh {
		dispatch = c.seq.DispatchFresh
	}
	seq := dispatch(spec)
	if seq == 0 {
		return
	}
	c.state.Loading = true
	c.log.Debug("listing: dispatch", "id", c.id, "seq", seq, "fresh", fresh, "spec", spec.String())
	c.notifyLocked()
}

// settle is the sequencer's delivery function; it runs on the fetch goroutine.
func (c *Controller[T]) settle(res Result[T]) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	status := c.seq.Settle(res.Sequence, res.Err)
	switch status {
	case model.FetchDiscarded:
		c.log.Debug("listing: discarded stale response",
			"id", c.id, "seq", res.Sequence, "latest", c.seq.Latest())

	case model.FetchFailed:
		c.state.Loading = false
		c.state.Err = res.Err
		c.log.Warn("listing: fetch failed",
			"id", c.id, "seq", res.Sequence, "spec", res.Spec.String(), "err", res.Err)
		c.notifyLocked()

	case model.FetchFulfilled:
		st, redispatch := Reconcile(res.Page.Meta, res.Spec.PageSize(), res.Spec.Page())
		if redispatch > 0 {
			c.log.Debug("listing: requested page out of range",
				"id", c.id, "requested", res.Spec.Page(), "total_pages", st.TotalPages)
			if c.query.Equal(res.Spec) {
				c.query = c.query.WithPage(redispatch)
			}
			c.dispatchLocked(res.Spec.WithPage(redispatch), res.Fresh)
			break
		}
		items := res.Page.Items
		if items == nil {
			items = []T{}
		}
		c.state.Items = items
		c.state.Page = st
		c.state.Err = nil
		c.state.Loading = false
		c.state.Spec = res.Spec
		c.state.Sequence = res.Sequence
		c.notifyLocked()
	}
	c.mu.Unlock()

	if c.onSettle != nil {
		if req, ok := c.seq.Request(res.Sequence); ok {
			c.onSettle(req)
		}
	}
}

func (c *Controller[T]) snapshotLocked() State[T] {
	st := c.state
	st.Items = make([]T, len(c.state.Items))
	copy(st.Items, c.state.Items)
	st.Query = c.query
	return st
}

// notifyLocked replaces whatever each subscriber has not read yet with the
// current snapshot. Only the controller sends, so the drain-then-send never
// blocks.
func (c *Controller[T]) notifyLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
