// Package events carries Eventify change notifications over NATS so open
// screens can refresh when bookings, events, wallets or coupons change.
package events

import (
	"context"
	"strings"
	"time"
)

// Subject prefix shared by every topic.
const Prefix = "eventify"

// Event topic constants
const (
	TopicAll = Prefix + ".>"

	TopicEventCreated = "eventify.event.created"
	TopicEventUpdated = "eventify.event.updated"
	TopicEventDeleted = "eventify.event.deleted"

	TopicBookingCreated   = "eventify.booking.created"
	TopicBookingPaid      = "eventify.booking.paid"
	TopicBookingCancelled = "eventify.booking.cancelled"

	TopicWalletTransaction = "eventify.wallet.transaction"
	TopicWalletSettled     = "eventify.wallet.settled"

	TopicCouponCreated = "eventify.coupon.created"
	TopicCouponUpdated = "eventify.coupon.updated"
	TopicCouponDeleted = "eventify.coupon.deleted"
)

// CategoryTopic returns the wildcard subject for a change category such as
// "booking".
func CategoryTopic(category string) string {
	return Prefix + "." + category + ".>"
}

// Category extracts the category from a subject, e.g. "booking" from
// "eventify.booking.paid".
func Category(subject string) string {
	parts := strings.SplitN(subject, ".", 3)
	if len(parts) < 3 || parts[0] != Prefix {
		return ""
	}
	return parts[1]
}

// Change is the payload of every topic.
type Change struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"` // created, updated, deleted, paid, ...
	At     time.Time      `json:"at"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Message is a payload received from the bus.
type Message struct {
	Subject string
	Data    []byte
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
