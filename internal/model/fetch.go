package model

import "time"

// FetchStatus is the lifecycle state of one dispatched fetch.
type FetchStatus string

const (
	FetchPending   FetchStatus = "pending"
	FetchFulfilled FetchStatus = "fulfilled"
	FetchDiscarded FetchStatus = "discarded"
	FetchFailed    FetchStatus = "failed"
)

// String returns the string representation of the status.
func (s FetchStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the status can no longer change.
func (s FetchStatus) IsTerminal() bool {
	switch s {
	case FetchFulfilled, FetchDiscarded, FetchFailed:
		return true
	}
	return false
}

// FetchRequest is one dispatch attempt. Sequence is assigned at dispatch time
// and increases monotonically for the lifetime of a controller.
type FetchRequest struct {
	Sequence     uint64      `json:"sequence"`
	Spec         QuerySpec   `json:"-"`
	Status       FetchStatus `json:"status"`
	Fresh        bool        `json:"fresh,omitempty"` // bypassed caches
	DispatchedAt time.Time   `json:"dispatched_at"`
	SettledAt    time.Time   `json:"settled_at,omitempty"`
	Err          error       `json:"-"`
}

// Duration returns how long the request took to settle, or zero while pending.
func (r FetchRequest) Duration() time.Duration {
	if r.SettledAt.IsZero() {
		return 0
	}
	return r.SettledAt.Sub(r.DispatchedAt)
}
