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
	"encoding/json"
	"time"

	"github.com/ausocean/openfish/datastore"
)

const typeSubscriber = "Subscriber" // Subscriber datastore type.

// Subscriber is an entity in the datastore representing a confirmed
// subscription of a callback to a topic.
type Subscriber struct {
	ID       string    // Store assigned ID.
	Topic    string    // Subscribed topic.
	Callback string    // Subscriber's callback URL.
	Expires  time.Time // Time the lease expires.
}

// Expired returns true if the lease has expired at time t.
func (s *Subscriber) Expired(t time.Time) bool {
	return !t.Before(s.Expires)
}

// Encode serializes a Subscriber into JSON.
func (s *Subscriber) Encode() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Decode deserializes a Subscriber from JSON.
func (s *Subscriber) Decode(b []byte) error {
	err := json.Unmarshal(b, s)
	if err != nil {
		return datastore.ErrDecoding
	}
	return nil
}

// Copy copies a Subscriber to dst, or returns a copy of the Subscriber when dst is nil.
func (s *Subscriber) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var s2 *Subscriber
	if dst == nil {
		s2 = new(Subscriber)
	} else {
		var ok bool
		s2, ok = dst.(*Subscriber)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*s2 = *s
	return s2, nil
}

// GetCache returns nil, indicating no caching.
func (s *Subscriber) GetCache() datastore.Cache {
	return nil
}

// NewSubscriber returns the subscriber that approving r creates.
func NewSubscriber(r *Request) *Subscriber {
	return &Subscriber{Topic: r.Topic, Callback: r.Callback, Expires: r.Expiry()}
}
