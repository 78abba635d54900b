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

	"github.com/go-logr/logr"
	kafka "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes JSON-encoded events keyed by food ID, so every event for
// one food lands on one partition in order.
type Kafka struct {
	writer messageWriter
	topic  string
}

// NewKafka creates a publisher for topic on the given brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
		topic: topic,
	}
}

func (k *Kafka) Publish(ctx context.Context, evts ...Event) error {
	if len(evts) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(evts))
	for _, e := range evts {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(fmt.Sprintf("food-%d", e.FoodID)),
			Value: value,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(e.Type)},
			},
		})
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d events to %s: %w", len(msgs), k.topic, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Log writes events to the logger at debug verbosity. It is the publisher
// used when no brokers are configured.
type Log struct {
	Logger logr.Logger
}

func (l Log) Publish(_ context.Context, evts ...Event) error {
	for _, e := range evts {
		l.Logger.V(1).Info("event", "id", e.ID, "type", e.Type, "actor", e.ActorID,
			"food", e.FoodID, "item", e.ItemID, "request", e.RequestID, "quantity", e.Quantity, "status", e.Status)
	}
	return nil
}

func (Log) Close() error { return nil }

// PublishAfterCommit sends evts and logs, rather than returns, any failure:
// the change they describe is already durable.
func PublishAfterCommit(ctx context.Context, p Publisher, log logr.Logger, evts ...Event) {
	if p == nil || len(evts) == 0 {
		return
	}
	if err := p.Publish(ctx, evts...); err != nil {
		log.Error(err, "publish events", "count", len(evts), "type", evts[0].Type)
	}
}
