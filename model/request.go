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

const typeRequest = "Request" // Request datastore type.

// Mode is the hub.mode of a request.
type Mode string

// Built-in modes. Hubs may register additional extension modes.
const (
	ModeSubscribe   Mode = "subscribe"
	ModeUnsubscribe Mode = "unsubscribe"
)

// VerifyMode is the hub.verify preference of a request. It is advisory:
// hubs verify synchronously regardless.
type VerifyMode string

// Verify modes.
const (
	VerifySync  VerifyMode = "sync"
	VerifyAsync VerifyMode = "async"
)

// Request is an entity in the datastore representing a pending
// subscribe or unsubscribe handshake. Hubs store inbound requests,
// subscribers store the requests they sent to hubs.
type Request struct {
	ID           string     // Store assigned ID, empty until persisted.
	Mode         Mode       // Request mode.
	Topic        string     // Topic being (un)subscribed, opaque to us.
	Callback     string     // Subscriber's callback URL.
	Remote       string     // Hub URL. Only used by subscribers.
	VerifyMode   VerifyMode // Requested verification mode.
	Token        string     `datastore:",noindex"` // Verify token.
	Requested    time.Time  // Time the request was made.
	LeaseSeconds int64      // Requested lease.
}

// Lease returns the lease as a duration.
func (r *Request) Lease() time.Duration {
	return time.Duration(r.LeaseSeconds) * time.Second
}

// Expiry returns the expiry time of a subscription approved from r.
func (r *Request) Expiry() time.Time {
	return r.Requested.Add(r.Lease())
}

// Encode serializes a Request into JSON.
func (r *Request) Encode() []byte {
	b, _ := json.Marshal(r)
	return b
}

// Decode deserializes a Request from JSON.
func (r *Request) Decode(b []byte) error {
	err := json.Unmarshal(b, r)
	if err != nil {
		return datastore.ErrDecoding
	}
	return nil
}

// Copy copies a Request to dst, or returns a copy of the Request when dst is nil.
func (r *Request) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var r2 *Request
	if dst == nil {
		r2 = new(Request)
	} else {
		var ok bool
		r2, ok = dst.(*Request)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*r2 = *r
	return r2, nil
}

// GetCache returns nil, indicating no caching.
func (r *Request) GetCache() datastore.Cache {
	return nil
}

// RequestQuery selects a pending request. Mode, Topic and Callback must
// match exactly. Remote and Token only constrain the match when not
// empty, e.g., a subscriber verifying a callback does not know which hub
// is calling.
type RequestQuery struct {
	Mode     Mode
	Topic    string
	Callback string
	Remote   string
	Token    string
}

// Matches returns true if r satisfies the query.
func (q RequestQuery) Matches(r *Request) bool {
	switch {
	case r.Mode != q.Mode, r.Topic != q.Topic, r.Callback != q.Callback:
		return false
	case q.Remote != "" && r.Remote != q.Remote:
		return false
	case q.Token != "" && r.Token != q.Token:
		return false
	}
	return true
}

// QueryFor returns the query that identifies r without its token, i.e.,
// the uniqueness key of pending requests.
func QueryFor(r *Request) RequestQuery {
	return RequestQuery{Mode: r.Mode, Topic: r.Topic, Callback: r.Callback, Remote: r.Remote}
}
