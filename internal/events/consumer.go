// foodloop - Perishable food inventory for retailers, NGOs and farmers
// Copyright (C) 2026  foodloop contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	kafka "github.com/segmentio/kafka-go"
)

const maxHandleAttempts = 3

// HandlerFunc processes one decoded event.
type HandlerFunc func(ctx context.Context, e Event) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads events from a topic and hands them to a HandlerFunc.
// Offsets are committed only after the handler returns, so delivery is
// at-least-once. Messages that cannot be decoded, or that fail every
// attempt, go to the dead-letter topic.
type Consumer struct {
	reader  messageReader
	dlq     messageWriter
	handle  HandlerFunc
	log     logr.Logger
	backoff time.Duration
}

// DLQTopic returns the dead-letter topic for topic.
func DLQTopic(topic string) string { return topic + ".dlq" }

// NewConsumer joins group on topic.
func NewConsumer(brokers []string, topic, group string, handle HandlerFunc, log logr.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        group,
		MinBytes:       1,
		MaxBytes:       1 << 20,
		CommitInterval: 0,
		StartOffset:    kafka.LastOffset,
	})
	dlq := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  DLQTopic(topic),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Consumer{reader: reader, dlq: dlq, handle: handle, log: log, backoff: 2 * time.Second}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch: %w", err)
		}

		if err := c.dispatch(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error(err, "routed message to dead-letter topic", "key", string(m.Key), "offset", m.Offset)
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.log.Error(err, "commit failed, message may be redelivered", "offset", m.Offset)
		}
	}
}

// Close releases the reader and the dead-letter writer.
func (c *Consumer) Close() error {
	rerr := c.reader.Close()
	werr := c.dlq.Close()
	if rerr != nil {
		return rerr
	}
	return werr
}

func (c *Consumer) dispatch(ctx context.Context, m kafka.Message) error {
	var e Event
	if err := json.Unmarshal(m.Value, &e); err != nil {
		return c.sendToDLQ(ctx, m, fmt.Errorf("unmarshal: %w", err))
	}

	var lastErr error
	for attempt := 1; attempt <= maxHandleAttempts; attempt++ {
		lastErr = c.handle(ctx, e)
		if lastErr == nil {
			return nil
		}
		c.log.Info("event handler failed", "id", e.ID, "type", e.Type, "attempt", attempt, "error", lastErr.Error())
		if attempt < maxHandleAttempts {
			select {
			case <-time.After(time.Duration(attempt) * c.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return c.sendToDLQ(ctx, m, lastErr)
}

func (c *Consumer) sendToDLQ(ctx context.Context, original kafka.Message, reason error) error {
	headers := make([]kafka.Header, 0, len(original.Headers)+1)
	headers = append(headers, original.Headers...)
	headers = append(headers, kafka.Header{Key: "error", Value: []byte(reason.Error())})
	err := c.dlq.WriteMessages(ctx, kafka.Message{Key: original.Key, Value: original.Value, Headers: headers})
	if err != nil {
		c.log.Error(err, "CRITICAL: could not write to dead-letter topic")
	}
	return reason
}
