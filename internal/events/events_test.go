package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func TestNoopPublisher_Publish(t *testing.T) {
	pub := &NoopPublisher{}
	err := pub.Publish(context.Background(), TopicBookingCreated, Change{ID: "bk-1"})
	if err != nil {
		t.Fatalf("NoopPublisher.Publish returned unexpected error: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("NoopPublisher.Close returned unexpected error: %v", err)
	}
}

func TestPublishers_ImplementPublisher(t *testing.T) {
	var _ Publisher = (*NoopPublisher)(nil)
	var _ Publisher = (*NATSPublisher)(nil)
}

func TestCategory(t *testing.T) {
	for _, tc := range []struct {
		subject string
		want    string
	}{
		{TopicBookingPaid, "booking"},
		{TopicWalletSettled, "wallet"},
		{"eventify.coupon", ""},
		{"orders.order.created", ""},
		{"", ""},
	} {
		if got := Category(tc.subject); got != tc.want {
			t.Errorf("Category(%q) = %q, want %q", tc.subject, got, tc.want)
		}
	}
	if got := CategoryTopic("event"); got != "eventify.event.>" {
		t.Errorf("CategoryTopic(event) = %q", got)
	}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connecting subscriber: %v", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(TopicBookingPaid, ch)
	if err != nil {
		t.Fatalf("subscribing: %v", err)
	}
	defer sub.Unsubscribe() //nolint:errcheck
	nc.Flush()

	event := Change{ID: "bk-7", Kind: "paid", Fields: map[string]any{"payment_status": "paid"}}
	if err := pub.Publish(context.Background(), TopicBookingPaid, event); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	select {
	case msg := <-ch:
		var got Change
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.ID != "bk-7" || got.Fields["payment_status"] != "paid" {
			t.Errorf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestNATSPublisher_PublishWithDeadline(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pub.Publish(ctx, TopicCouponCreated, Change{ID: "SAVE10"}); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
}

func TestNATSPublisher_Close(t *testing.T) {
	url := startTestNATS(t)

	pub, err := NewNATSPublisher(url)
	if err != nil {
		t.Fatalf("creating publisher: %v", err)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Publishing after close should fail.
	if err := pub.Publish(context.Background(), TopicEventCreated, Change{}); err == nil {
		t.Error("expected error publishing after close")
	}
}
