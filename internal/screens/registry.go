// Package screens keeps the list screens of an interactive session open so
// switching back to one resumes its filters and page, and closes the ones
// left idle.
//
// Each open screen owns a listing controller (and usually a live-refresh
// subscription). A background reaper closes screens idle past a threshold,
// which cancels their pending debounce timers and in-flight fetches. The
// pinned screen, the one on display, is never reaped.
package screens

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrClosed is returned by Open after CloseAll.
var ErrClosed = errors.New("screens: registry closed")

// Opener creates the view for a screen name.
type Opener[V io.Closer] func(name string) (V, error)

// Entry is a snapshot of one open screen.
type Entry struct {
	Name     string    `json:"name"`
	OpenedAt time.Time `json:"opened_at"`
	LastUsed time.Time `json:"last_used"`
	Uses     int64     `json:"uses"`
	IdleSecs float64   `json:"idle_secs"`
	Pinned   bool      `json:"pinned,omitempty"`
}

// ReaperConfig configures the background idle-screen reaper.
type ReaperConfig struct {
	// IdleThreshold is how long a screen must go unused before it is closed.
	// Default: 10 minutes.
	IdleThreshold time.Duration

	// SweepInterval is how often the reaper scans for idle screens.
	// Default: 30 seconds.
	SweepInterval time.Duration

	// OnClose is called for each screen the reaper closed.
	// Called outside the lock.
	OnClose func(name string)
}

// Registry holds the open screens of one session.
type Registry[V io.Closer] struct {
	mu     sync.RWMutex
	open   Opener[V]
	views  map[string]*viewState[V]
	closed bool
	log    *slog.Logger

	reaperStop chan struct{}
	reaperDone chan struct{}
}

type viewState[V io.Closer] struct {
	view     V
	openedAt time.Time
	lastUsed time.Time
	uses     int64
	pinned   bool
}

// New creates a registry that opens screens with open.
func New[V io.Closer](open Opener[V], log *slog.Logger) *Registry[V] {
	if log == nil {
		log = slog.Default()
	}
	return &Registry[V]{
		open:  open,
		views: make(map[string]*viewState[V]),
		log:   log,
	}
}

// Open returns the open view for name, creating it on first use. Every call
// counts as a use.
func (r *Registry[V]) Open(name string) (V, error) {
	var zero V
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return zero, ErrClosed
	}
	if st, ok := r.views[name]; ok {
		st.lastUsed = now
		st.uses++
		return st.view, nil
	}

	v, err := r.open(name)
	if err != nil {
		return zero, fmt.Errorf("opening screen %s: %w", name, err)
	}
	r.views[name] = &viewState[V]{view: v, openedAt: now, lastUsed: now, uses: 1}
	r.log.Debug("screens: opened", "screen", name)
	return v, nil
}

// Pin exempts name from reaping and releases whichever screen was pinned
// before. Pin("") releases all of them.
func (r *Registry[V]) Pin(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n, st := range r.views {
		st.pinned = n == name
	}
}

// Close closes and forgets one screen. Closing a screen that is not open is
// a no-op.
func (r *Registry[V]) Close(name string) error {
	r.mu.Lock()
	st, ok := r.views[name]
	delete(r.views, name)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return st.view.Close()
}

// CloseAll closes every screen and stops the reaper. Later Opens fail.
func (r *Registry[V]) CloseAll() error {
	r.Stop()

	r.mu.Lock()
	views := r.views
	r.views = make(map[string]*viewState[V])
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for name, st := range views {
		if err := st.view.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// List returns the open screens, most recently used first.
func (r *Registry[V]) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	entries := make([]Entry, 0, len(r.views))
	for name, st := range r.views {
		entries = append(entries, Entry{
			Name:     name,
			OpenedAt: st.openedAt,
			LastUsed: st.lastUsed,
			Uses:     st.uses,
			IdleSecs: now.Sub(st.lastUsed).Seconds(),
			Pinned:   st.pinned,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LastUsed.Equal(entries[j].LastUsed) {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].LastUsed.After(entries[j].LastUsed)
	})
	return entries
}

// StartReaper launches a background goroutine that closes idle screens.
// Call Stop (or CloseAll) to shut it down.
func (r *Registry[V]) StartReaper(cfg *ReaperConfig) {
	if cfg == nil {
		cfg = &ReaperConfig{}
	}
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = 10 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 30 * time.Second
	}

	r.mu.Lock()
	if r.reaperStop != nil {
		r.mu.Unlock()
		return
	}
	r.reaperStop = make(chan struct{})
	r.reaperDone = make(chan struct{})
	stop, done := r.reaperStop, r.reaperDone
	r.mu.Unlock()

	go r.reapLoop(cfg, stop, done)
	r.log.Debug("screens: reaper started",
		"idle_threshold", cfg.IdleThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the reaper goroutine. Open screens stay open.
func (r *Registry[V]) Stop() {
	r.mu.Lock()
	stop, done := r.reaperStop, r.reaperDone
	r.reaperStop, r.reaperDone = nil, nil
	r.mu.Unlock()
	if stop != nil {
		close(stop)
		<-done
	}
}

func (r *Registry[V]) reapLoop(cfg *ReaperConfig, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.sweep(cfg)
		}
	}
}

func (r *Registry[V]) sweep(cfg *ReaperConfig) {
	now := time.Now()

	type idleView struct {
		name string
		view V
	}
	var idle []idleView

	r.mu.Lock()
	for name, st := range r.views {
		if !st.pinned && now.Sub(st.lastUsed) > cfg.IdleThreshold {
			idle = append(idle, idleView{name: name, view: st.view})
			delete(r.views, name)
		}
	}
	r.mu.Unlock()

	for _, v := range idle {
		if err := v.view.Close(); err != nil {
			r.log.Warn("screens: closing idle screen", "screen", v.name, "err", err)
		}
		r.log.Info("screens: reaper closed idle screen",
			"screen", v.name,
			"threshold", cfg.IdleThreshold)
		if cfg.OnClose != nil {
			cfg.OnClose(v.name)
		}
	}
}
