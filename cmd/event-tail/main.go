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

// event-tail follows the foodloop event topic and logs every event it sees.
// It is the operator's view of what the server published.
//
//	KAFKA_BROKERS   comma-separated broker list, e.g. "kafka:9092"
//	KAFKA_TOPIC     defaults to "foodloop.events"
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/jredh-dev/foodloop/config"
	"github.com/jredh-dev/foodloop/internal/events"
	"github.com/jredh-dev/foodloop/internal/logging"
)

func main() {
	envFile := pflag.String("config-env", "", "Path to a .env file (default .env)")
	group := pflag.String("group", "foodloop-event-tail", "Kafka consumer group")
	pflag.Parse()

	cfg := config.Load(*envFile)
	log, syncLog, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer syncLog()

	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("KAFKA_BROKERS is not set")
		os.Exit(1)
	}

	consumer := events.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, *group,
		func(_ context.Context, e events.Event) error {
			log.Info("event", "id", e.ID, "type", e.Type, "actor", e.ActorID, "food", e.FoodID,
				"item", e.ItemID, "request", e.RequestID, "quantity", e.Quantity, "status", e.Status,
				"at", e.OccurredAt)
			return nil
		}, log.WithName("consumer"))
	defer func() {
		if err := consumer.Close(); err != nil {
			log.Error(err, "closing consumer")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("event-tail starting", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic, "group", *group)
	if err := consumer.Run(ctx); err != nil {
		log.Error(err, "consumer stopped")
		os.Exit(1)
	}
	log.Info("event-tail shutdown complete")
}
