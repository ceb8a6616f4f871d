package export

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alfredjeanlab/eventify/internal/listing"
	"github.com/alfredjeanlab/eventify/internal/model"
)

// mockDestination records calls to Write.
type mockDestination struct {
	writes atomic.Int64
	last   atomic.Pointer[Snapshot]
	err    error
}

func (d *mockDestination) Write(_ context.Context, snap *Snapshot) error {
	d.writes.Add(1)
	d.last.Store(snap)
	return d.err
}

func (d *mockDestination) Name() string { return "mock" }

func staticExporter() *Exporter {
	src := listing.SourceFunc[model.Record](func(ctx context.Context, spec model.QuerySpec) (model.Page[model.Record], error) {
		return model.Page[model.Record]{
			Items: []model.Record{{"page": spec.Page()}},
			Meta:  model.PageMeta{Count: 3},
		}, nil
	})
	return &Exporter{Screen: "wallet", Source: src, Spec: model.NewQuerySpec(1), Concurrency: 2}
}

func TestSchedulerStartStop(t *testing.T) {
	dest := &mockDestination{}
	sched := NewScheduler(staticExporter(), []Destination{dest}, 50*time.Millisecond, quietLogger)
	sched.Start()

	// Wait for at least the initial export + one tick.
	time.Sleep(120 * time.Millisecond)
	sched.Stop()

	if writes := dest.writes.Load(); writes < 2 {
		t.Fatalf("expected at least 2 writes, got %d", writes)
	}
	snap := dest.last.Load()
	if snap == nil || len(snap.Items) != 3 || snap.Screen != "wallet" {
		t.Fatalf("last snapshot = %+v", snap)
	}
}

func TestSchedulerStop_NoStart(t *testing.T) {
	sched := NewScheduler(staticExporter(), nil, time.Minute, quietLogger)
	// Stop without Start should not panic.
	sched.Stop()
}

func TestSchedulerOnceWithoutInterval(t *testing.T) {
	dest := &mockDestination{}
	sched := NewScheduler(staticExporter(), []Destination{dest}, 0, quietLogger)
	sched.Start()
	time.Sleep(60 * time.Millisecond)
	sched.Stop()
	if writes := dest.writes.Load(); writes != 1 {
		t.Errorf("writes = %d, want 1", writes)
	}
}

func TestRunOnce_DestinationErrors(t *testing.T) {
	good := &mockDestination{}
	bad := &mockDestination{err: errors.New("denied")}
	sched := NewScheduler(staticExporter(), []Destination{bad, good}, 0, quietLogger)

	snap, err := sched.RunOnce(context.Background())
	if err == nil || !errors.Is(err, bad.err) {
		t.Fatalf("RunOnce() error = %v, want denied", err)
	}
	if snap == nil || good.writes.Load() != 1 {
		t.Errorf("healthy destination skipped after a failure")
	}
}

func TestRunOnce_SnapshotError(t *testing.T) {
	boom := errors.New("api down")
	e := &Exporter{
		Screen: "wallet",
		Source: listing.SourceFunc[model.Record](func(context.Context, model.QuerySpec) (model.Page[model.Record], error) {
			return model.Page[model.Record]{}, boom
		}),
		Spec: model.NewQuerySpec(10),
	}
	dest := &mockDestination{}
	sched := NewScheduler(e, []Destination{dest}, 0, quietLogger)
	if _, err := sched.RunOnce(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if dest.writes.Load() != 0 {
		t.Error("destination written after a failed snapshot")
	}
}
