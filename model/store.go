/*
LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean)

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  It is distributed in the hope that it will be useful,
  but WITHOUT ANY WARRANTY; without even the implied warranty of
  MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
  GNU General Public License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// RequestStore persists pending requests. Hubs and subscribers both
// consume it.
//
// Lookups that find nothing return datastore.ErrNoSuchEntity. Creating a
// request whose (mode, topic, callback, remote) key is already pending
// returns datastore.ErrEntityExists.
type RequestStore interface {
	// FindRequest returns the first pending request matching q.
	FindRequest(ctx context.Context, q RequestQuery) (*Request, error)

	// GetRequest returns the pending request with the given ID.
	GetRequest(ctx context.Context, id string) (*Request, error)

	// GetRequests returns all pending requests with the given mode, or
	// all pending requests when mode is empty.
	GetRequests(ctx context.Context, mode Mode) ([]Request, error)

	// CreateRequest stores r and returns a copy with its ID set.
	CreateRequest(ctx context.Context, r *Request) (*Request, error)

	// UpdateRequest replaces the request with the given ID.
	UpdateRequest(ctx context.Context, id string, r *Request) error

	// DeleteRequest deletes the request with the given ID.
	DeleteRequest(ctx context.Context, id string) error
}

// SubscriberStore persists confirmed subscriptions. Only hubs consume it.
//
// Lookups that find nothing return datastore.ErrNoSuchEntity. Creating a
// second subscriber for the same (topic, callback) returns
// datastore.ErrEntityExists.
type SubscriberStore interface {
	// FindSubscriber returns the subscriber of callback to topic.
	FindSubscriber(ctx context.Context, topic, callback string) (*Subscriber, error)

	// GetSubscribers returns the subscribers to topic, or all
	// subscribers when topic is empty.
	GetSubscribers(ctx context.Context, topic string) ([]Subscriber, error)

	// CreateSubscriber creates the subscriber that approving r yields.
	CreateSubscriber(ctx context.Context, r *Request) (*Subscriber, error)

	// UpdateSubscriber applies fn to the subscriber with the given ID.
	UpdateSubscriber(ctx context.Context, id string, fn func(*Subscriber)) error

	// DeleteSubscriber deletes the subscriber with the given ID.
	DeleteSubscriber(ctx context.Context, id string) error
}

// digest returns a hex SHA-256 digest of parts, used to form datastore
// key names that are free of the separators URLs contain.
func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
