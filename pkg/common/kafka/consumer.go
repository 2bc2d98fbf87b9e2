package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/cohort-builder/pkg/common/config"
	"github.com/synaptica-ai/cohort-builder/pkg/common/logger"
	"github.com/synaptica-ai/cohort-builder/pkg/common/models"
)

// Consumer reads cohort events from one topic. A message is committed once
// its handler succeeds or its retries run out, so one bad event cannot stall
// the partition.
type Consumer struct {
	reader  *kafka.Reader
	topic   string
	groupID string
	retries int
	backoff time.Duration
}

type EventHandler func(ctx context.Context, event models.Event) error

func NewConsumer(cfg *config.Config, topic string, groupID string) *Consumer {
	if groupID == "" {
		groupID = cfg.KafkaGroupID
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1e6,
		MaxWait:  cfg.KafkaMaxWait,
	})

	return &Consumer{
		reader:  reader,
		topic:   topic,
		groupID: groupID,
		retries: cfg.KafkaHandlerRetries,
		backoff: cfg.KafkaRetryBackoff,
	}
}

func (c *Consumer) Consume(ctx context.Context, handler EventHandler) error {
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			c.log(message).WithError(err).Error("Failed to fetch cohort event")
			if !sleep(ctx, c.backoff) {
				return ctx.Err()
			}
			continue
		}

		entry := c.log(message)
		var event models.Event
		if err := json.Unmarshal(message.Value, &event); err != nil {
			entry.WithError(err).Warn("Skipping malformed cohort event")
		} else {
			entry = entry.WithField("event_id", event.ID)
			if err := handleWithRetry(ctx, c.retries, c.backoff, func() error { return handler(ctx, event) }); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				entry.WithError(err).Error("Dropping cohort event after retries")
			}
		}

		if err := c.reader.CommitMessages(ctx, message); err != nil {
			entry.WithError(err).Error("Failed to commit cohort event")
		}
	}
}

func (c *Consumer) log(message kafka.Message) *logrus.Entry {
	fields := logrus.Fields{
		"topic":    c.topic,
		"group_id": c.groupID,
	}
	if message.Topic != "" {
		fields["partition"] = message.Partition
		fields["offset"] = message.Offset
		fields["event_type"] = headerValue(message, "event-type")
	}
	return logger.WithFields(fields)
}

func headerValue(message kafka.Message, key string) string {
	for _, h := range message.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// handleWithRetry runs fn up to retries+1 times, waiting backoff between
// attempts. It returns the last error, or ctx's error if ctx ends first.
func handleWithRetry(ctx context.Context, retries int, backoff time.Duration, fn func() error) error {
	if retries < 0 {
		retries = 0
	}
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 && !sleep(ctx, backoff) {
			return ctx.Err()
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
