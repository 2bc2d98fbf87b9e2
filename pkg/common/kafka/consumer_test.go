package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestHandleWithRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	err := handleWithRetry(context.Background(), 3, 0, func() error {
		calls++
		if calls < 2 {
			return errors.New("cache busy")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second attempt, got %v after %d calls", err, calls)
	}
}

func TestHandleWithRetryGivesUp(t *testing.T) {
	boom := errors.New("cache down")
	calls := 0
	err := handleWithRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 3 {
		t.Fatalf("expected last error after 3 attempts, got %v after %d", err, calls)
	}
}

func TestHandleWithRetryHonorsCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := handleWithRetry(ctx, 5, time.Hour, func() error {
		calls++
		cancel()
		return errors.New("cache down")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected cancel after first attempt, got %v after %d", err, calls)
	}
}

func TestHeaderValue(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{
		{Key: "source", Value: []byte("cohort-review")},
		{Key: "event-type", Value: []byte("review.status.updated")},
	}}
	if got := headerValue(msg, "event-type"); got != "review.status.updated" {
		t.Fatalf("unexpected event type %q", got)
	}
	if got := headerValue(msg, "missing"); got != "" {
		t.Fatalf("expected empty header, got %q", got)
	}
}
