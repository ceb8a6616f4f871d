package events

import "context"

// NoopPublisher drops every event. 'ev bus emit --dry-run' publishes through it.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, _ string, _ any) error {
	return ctx.Err()
}

func (n *NoopPublisher) Close() error {
	return nil
}
