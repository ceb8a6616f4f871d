package events

import (
	"context"
	"fmt"
	"time"
)

// Watch subscribes to every topic and calls onEvent for each message until
// ctx is done or all subscriptions are closed. Each value received on
// reconnected calls onEvent with an empty Message so the caller can refresh
// whatever it may have missed while disconnected.
func Watch(ctx context.Context, sub Subscriber, topics []string, reconnected <-chan struct{}, onEvent func(Message)) error {
	// Forwarders exit with ctx even if a subscription channel never closes.
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	merged := make(chan Message, 64)
	var cancels []func()
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	open := len(topics)
	done := make(chan struct{}, len(topics))
	for _, topic := range topics {
		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("watching %s: %w", topic, err)
		}
		cancels = append(cancels, cancel)
		go func() {
			defer func() { done <- struct{}{} }()
			for {
				var msg Message
				var ok bool
				select {
				case msg, ok = <-ch:
					if !ok {
						return
					}
				case <-ctx.Done():
					return
				}
				select {
				case merged <- msg:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for open > 0 {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-merged:
			onEvent(msg)
		case <-reconnected:
			onEvent(Message{})
		case <-done:
			open--
		}
	}
	return nil
}

// Poll calls fn every interval until ctx is done. It is the fallback when no
// event bus is configured.
func Poll(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
