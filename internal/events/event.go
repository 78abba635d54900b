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

// Package events publishes domain events for committed inventory changes.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	FoodCreated       = "food.created"
	StockAdded        = "stock.added"
	StockSold         = "stock.sold"
	FoodListed        = "food.listed"
	FoodPendingReview = "food.pending_action"
	ItemRemoved       = "item.removed"
	RequestCreated    = "request.created"
	RequestApproved   = "request.approved"
	RequestIgnored    = "request.ignored"
)

// Event is the canonical schema for messages on the events topic.
//
// JSON schema:
//
//	{
//	  "id":          "550e8400-e29b-41d4-a716-446655440000",
//	  "type":        "stock.sold",
//	  "occurred_at": "2026-03-01T09:30:00Z",
//	  "actor_id":    "retailer-uid",
//	  "food_id":     7,
//	  "item_id":     12,
//	  "quantity":    "2.5",
//	  "status":      "Selling"
//	}
type Event struct {
	// ID is a UUID consumers can use to drop duplicates on replay.
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	ActorID    string    `json:"actor_id"`
	FoodID     int64     `json:"food_id,omitempty"`
	ItemID     int64     `json:"item_id,omitempty"`
	RequestID  int64     `json:"request_id,omitempty"`
	// Quantity is the food's shared quantity after the change, or the
	// requested amount for request events.
	Quantity string `json:"quantity,omitempty"`
	Status   string `json:"status,omitempty"`
}

// New returns an event of type typ stamped with a fresh ID.
func New(typ, actorID string, at time.Time) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       typ,
		OccurredAt: at.UTC(),
		ActorID:    actorID,
	}
}

// Publisher delivers events after the change they describe has committed.
type Publisher interface {
	Publish(ctx context.Context, evts ...Event) error
	Close() error
}
