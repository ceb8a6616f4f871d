package listing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alfredjeanlab/eventify/internal/model"
)

// DataSource fetches one page of items for a spec. Implementations must return
// an error on transport failure or a non-success response and never a partial
// page.
type DataSource[T any] interface {
	FetchPage(ctx context.Context, spec model.QuerySpec) (model.Page[T], error)
}

// SourceFunc adapts a plain function to DataSource.
type SourceFunc[T any] func(ctx context.Context, spec model.QuerySpec) (model.Page[T], error)

// FetchPage calls f.
func (f SourceFunc[T]) FetchPage(ctx context.Context, spec model.QuerySpec) (model.Page[T], error) {
	return f(ctx, spec)
}

type freshKey struct{}

// WithFresh marks ctx as asking for data straight from the backend. Caching
// data sources must not answer such a fetch from their cache.
func WithFresh(ctx context.Context) context.Context {
	return context.WithValue(ctx, freshKey{}, true)
}

// IsFresh reports whether ctx was marked by WithFresh.
func IsFresh(ctx context.Context) bool {
	fresh, _ := ctx.Value(freshKey{}).(bool)
	return fresh
}

// Result is what a dispatched fetch produced, handed to the delivery function
// once the data source returns.
type Result[T any] struct {
	Sequence uint64
	Spec     model.QuerySpec
	Page     model.Page[T]
	Err      error
	Fresh    bool
}

// DefaultHistorySize is how many settled requests a Sequencer remembers.
const DefaultHistorySize = 64

// Sequencer issues fetches against a DataSource and tags each one with a
// monotonically increasing sequence number. Only the most recently dispatched
// request can settle as fulfilled or failed; anything older settles as
// discarded no matter when or how it resolves.
type Sequencer[T any] struct {
	source  DataSource[T]
	deliver func(Result[T])
	now     func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu       sync.Mutex
	next     uint64
	latest   uint64
	inflight map[uint64]*inflight
	history  []model.FetchRequest
	histSize int
	closed   bool
}

type inflight struct {
	req    model.FetchRequest
	cancel context.CancelFunc
}

// NewSequencer creates a sequencer. deliver is called on the fetch goroutine
// when a request returns; it is expected to call Settle. A nil deliver settles
// immediately and drops the result.
func NewSequencer[T any](source DataSource[T], deliver func(Result[T])) *Sequencer[T] {
	ctx, stop := context.WithCancel(context.Background())
	s := &Sequencer[T]{
		source:   source,
		deliver:  deliver,
		now:      time.Now,
		ctx:      ctx,
		stop:     stop,
		inflight: make(map[uint64]*inflight),
		histSize: DefaultHistorySize,
	}
	if s.deliver == nil {
		s.deliver = func(r Result[T]) { s.Settle(r.Sequence, r.Err) }
	}
	return s
}

// Dispatch assigns the next sequence number to spec, marks it the latest
// issued request, cancels the request it supersedes and starts the fetch in
// the background. It returns without waiting; 0 means the sequencer is closed.
func (s *Sequencer[T]) Dispatch(spec model.QuerySpec) uint64 {
	return s.dispatch(spec, false)
}

// DispatchFresh is Dispatch with a context marked by WithFresh.
func (s *Sequencer[T]) DispatchFresh(spec model.QuerySpec) uint64 {
	return s.dispatch(spec, true)
}

func (s *Sequencer[T]) dispatch(spec model.QuerySpec, fresh bool) uint64 {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0
	}
	s.next++
	seq := s.next
	if prev, ok := s.inflight[s.latest]; ok {
		// Best effort only; a superseded response that still arrives is
		// discarded by Settle.
		prev.cancel()
	}
	s.latest = seq

	ctx, cancel := context.WithCancel(s.ctx)
	if fresh {
		ctx = WithFresh(ctx)
	}
	s.inflight[seq] = &inflight{
		req: model.FetchRequest{
			Sequence:     seq,
			Spec:         spec,
			Status:       model.FetchPending,
			Fresh:        fresh,
			DispatchedAt: s.now(),
		},
		cancel: cancel,
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel()
		page, err := s.fetch(ctx, spec)
		s.deliver(Result[T]{Sequence: seq, Spec: spec, Page: page, Err: err, Fresh: fresh})
	}()
	return seq
}

func (s *Sequencer[T]) fetch(ctx context.Context, spec model.QuerySpec) (page model.Page[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("data source panicked: %v", r)
		}
	}()
	return s.source.FetchPage(ctx, spec)
}

// Settle records the outcome of request seq and returns its terminal status:
// discarded when a newer request has been dispatched since, otherwise failed
// or fulfilled depending on err. Settling an unknown or already settled
// sequence returns FetchDiscarded.
func (s *Sequencer[T]) Settle(seq uint64, err error) model.FetchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	fl, ok := s.inflight[seq]
	if !ok {
		return model.FetchDiscarded
	}
	delete(s.inflight, seq)

	status := model.FetchFulfilled
	switch {
	case seq != s.latest:
		status = model.FetchDiscarded
	case err != nil:
		status = model.FetchFailed
	}

	req := fl.req
	req.Status = status
	req.SettledAt = s.now()
	if status == model.FetchFailed {
		req.Err = err
	}
	s.history = append(s.history, req)
	if len(s.history) > s.histSize {
		s.history = s.history[len(s.history)-s.histSize:]
	}
	return status
}

// Latest returns the sequence number of the most recently dispatched request.
func (s *Sequencer[T]) Latest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// LatestStatus returns the status of the most recently dispatched request, or
// "" if nothing has been dispatched.
func (s *Sequencer[T]) LatestStatus() model.FetchStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == 0 {
		return ""
	}
	if _, ok := s.inflight[s.latest]; ok {
		return model.FetchPending
	}
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Sequence == s.latest {
			return s.history[i].Status
		}
	}
	return ""
}

// Request returns the recorded state of request seq.
func (s *Sequencer[T]) Request(seq uint64) (model.FetchRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fl, ok := s.inflight[seq]; ok {
		return fl.req, true
	}
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Sequence == seq {
			return s.history[i], true
		}
	}
	return model.FetchRequest{}, false
}

// History returns the settled requests still remembered, oldest first.
func (s *Sequencer[T]) History() []model.FetchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.FetchRequest, len(s.history))
	copy(out, s.history)
	return out
}

// Close cancels every in-flight request and refuses further dispatches. It
// does not wait for fetch goroutines; use Wait for that.
func (s *Sequencer[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()
}

// Wait blocks until every dispatched fetch has returned and been delivered.
func (s *Sequencer[T]) Wait() {
	s.wg.Wait()
}
