package main

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/alfredjeanlab/eventify/internal/events"
)

// liveRefreshDelay coalesces a burst of change notifications into one fetch.
const liveRefreshDelay = 200 * time.Millisecond

// refresher is the part of a listing controller live updates drive.
type refresher interface {
	Refresh()
	Invalidate(delay time.Duration)
}

// liveUpdate applies one change notification to r. Bus events coalesce into a
// delayed refresh; a reconnect refreshes at once because events published
// while disconnected are lost.
func liveUpdate(r refresher, reconnected bool) {
	if reconnected {
		r.Refresh()
		return
	}
	r.Invalidate(liveRefreshDelay)
}

// follow calls onChange whenever a change relevant to the screen arrives, until
// ctx is done. With a NATS URL it listens on the bus and also fires, with
// reconnected set, after a reconnect; without one, or when the bus is
// unreachable, it polls.
func follow(ctx context.Context, natsURL string, poll time.Duration, log *slog.Logger, relevant func(category string) bool, onChange func(reconnected bool)) error {
	polled := func() { onChange(false) }
	if natsURL == "" {
		log.Debug("live: no NATS URL, polling", "interval", poll)
		events.Poll(ctx, poll, polled)
		return nil
	}

	reconnectCh := make(chan struct{}, 1)
	sub, err := events.NewNATSSubscriber(natsURL,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("live: NATS disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("live: NATS reconnected")
			select {
			case reconnectCh <- struct{}{}:
			default:
			}
		}),
	)
	if err != nil {
		log.Warn("live: falling back to polling", "err", err, "interval", poll)
		events.Poll(ctx, poll, polled)
		return nil
	}
	defer sub.Close()

	return events.Watch(ctx, sub, []string{events.TopicAll}, reconnectCh, func(msg events.Message) {
		switch {
		case msg.Subject == "":
			onChange(true)
		case relevant(events.Category(msg.Subject)):
			onChange(false)
		}
	})
}

// topicFilter reports whether a category belongs to topics.
func topicFilter(topics []string) func(string) bool {
	return func(category string) bool {
		return slices.Contains(topics, category)
	}
}
