package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs an export to one or more destinations, once or periodically.
type Scheduler struct {
	exporter     *Exporter
	destinations []Destination
	interval     time.Duration
	logger       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that snapshots with exporter and writes
// to every destination at the specified interval.
func NewScheduler(exporter *Exporter, destinations []Destination, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		exporter:     exporter,
		destinations: destinations,
		interval:     interval,
		logger:       logger,
	}
}

// Start begins periodic export. It runs an initial export immediately, then
// on each tick.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the scheduler and waits for the current export (if any) to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("export: run failed", "screen", s.exporter.Screen, "err", err)
	}
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("export: run failed", "screen", s.exporter.Screen, "err", err)
			}
		}
	}
}

// RunOnce takes one snapshot and writes it everywhere. A failing destination
// does not stop the others; their errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	snap, err := s.exporter.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, dest := range s.destinations {
		if err := dest.Write(ctx, snap); err != nil {
			s.logger.Error("export: destination write failed", "destination", dest.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", dest.Name(), err))
		}
	}

	s.logger.Info("export: completed",
		"id", snap.ID,
		"screen", snap.Screen,
		"rows", len(snap.Items),
		"pages", snap.Pages,
		"destinations", len(s.destinations),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return snap, errors.Join(errs...)
}
