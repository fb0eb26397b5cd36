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
	"errors"
	"testing"
	"time"

	"github.com/ausocean/openfish/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// store is implemented by both store types under test.
type store interface {
	RequestStore
	SubscriberStore
}

// stores returns a fresh instance of each store implementation.
func stores(t *testing.T) map[string]store {
	ctx := context.Background()
	RegisterEntities()
	ds, err := datastore.NewStore(ctx, "file", "pubsubtest", t.TempDir())
	if err != nil {
		t.Fatalf("unable to create filestore: %v", err)
	}
	return map[string]store{
		"memory": NewMemoryStore(),
		"entity": NewEntityStore(ds),
	}
}

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func testRequest() *Request {
	return &Request{
		Mode:         ModeSubscribe,
		Topic:        "testtopic",
		Callback:     "http://example.com/pubsub/123",
		Remote:       "http://hub.example.com/",
		VerifyMode:   VerifyAsync,
		Token:        "12345",
		Requested:    testTime,
		LeaseSeconds: 604800,
	}
}

func TestRequestStore(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := s.FindRequest(ctx, QueryFor(testRequest()))
			assert.True(t, errors.Is(err, datastore.ErrNoSuchEntity), "unexpected error: %v", err)

			created, err := s.CreateRequest(ctx, testRequest())
			require.NoError(t, err)
			require.NotEmpty(t, created.ID)

			got, err := s.GetRequest(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)
			assert.Equal(t, "12345", got.Token)
			assert.True(t, testTime.Equal(got.Requested))

			// Only one pending request per key.
			_, err = s.CreateRequest(ctx, testRequest())
			assert.True(t, errors.Is(err, datastore.ErrEntityExists), "unexpected error: %v", err)

			// A different remote is a different key.
			other := testRequest()
			other.Remote = "http://other-hub.example.com/"
			_, err = s.CreateRequest(ctx, other)
			require.NoError(t, err)

			// Remote and token are wildcards when empty.
			q := RequestQuery{Mode: ModeSubscribe, Topic: "testtopic", Callback: "http://example.com/pubsub/123", Token: "12345"}
			_, err = s.FindRequest(ctx, q)
			assert.NoError(t, err)

			q.Token = "wrong"
			_, err = s.FindRequest(ctx, q)
			assert.True(t, errors.Is(err, datastore.ErrNoSuchEntity), "unexpected error: %v", err)

			q = QueryFor(testRequest())
			q.Token = "wrong"
			_, err = s.FindRequest(ctx, q)
			assert.True(t, errors.Is(err, datastore.ErrNoSuchEntity), "unexpected error: %v", err)

			q.Mode = ModeUnsubscribe
			q.Token = ""
			_, err = s.FindRequest(ctx, q)
			assert.True(t, errors.Is(err, datastore.ErrNoSuchEntity), "unexpected error: %v", err)

			// Update the token.
			upd := *got
			upd.Token = "67890"
			require.NoError(t, s.UpdateRequest(ctx, created.ID, &upd))
			found, err := s.FindRequest(ctx, QueryFor(testRequest()))
			require.NoError(t, err)
			assert.Equal(t, "67890", found.Token)
			assert.Equal(t, created.ID, found.ID)

			reqs, err := s.GetRequests(ctx, ModeSubscribe)
			require.NoError(t, err)
			assert.Len(t, reqs, 2)
			reqs, err = s.GetRequests(ctx, ModeUnsubscribe)
			require.NoError(t, err)
			assert.Len(t, reqs, 0)

			require.NoError(t, s.DeleteRequest(ctx, created.ID))
			_, err = s.GetRequest(ctx, created.ID)
			assert.True(t, errors.Is(err, datastore.ErrNoSuchEntity), "unexpected error: %v", err)
			err = s.DeleteRequest(ctx, created.ID)
			assert.True(t, errors.Is(err, datastore.ErrNoSuchEntity), "unexpected error: %v", err)
			err = s.UpdateRequest(ctx, created.ID, &upd)
			assert.True(t, errors.Is(err, datastore.ErrNoSuchEntity), "unexpected error: %v", err)
		})
	}
}

func TestSubscriberStore(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := testRequest()

			_, err := s.FindSubscriber(ctx, r.Topic, r.Callback)
			assert.True(t, errors.Is(err, datastore.ErrNoSuchEntity), "unexpected error: %v", err)

			sub, err := s.CreateSubscriber(ctx, r)
			require.NoError(t, err)
			assert.NotEmpty(t, sub.ID)
			assert.True(t, testTime.Add(604800*time.Second).Equal(sub.Expires))

			_, err = s.CreateSubscriber(ctx, r)
			assert.True(t, errors.Is(err, datastore.ErrEntityExists), "unexpected error: %v", err)

			other := testRequest()
			other.Topic = "othertopic"
			_, err = s.CreateSubscriber(ctx, other)
			require.NoError(t, err)

			found, err := s.FindSubscriber(ctx, r.Topic, r.Callback)
			require.NoError(t, err)
			assert.Equal(t, sub.ID, found.ID)

			later := testTime.Add(time.Hour)
			require.NoError(t, s.UpdateSubscriber(ctx, sub.ID, func(s *Subscriber) { s.Expires = later }))
			found, err = s.FindSubscriber(ctx, r.Topic, r.Callback)
			require.NoError(t, err)
			assert.True(t, later.Equal(found.Expires))

			subs, err := s.GetSubscribers(ctx, "")
			require.NoError(t, err)
			assert.Len(t, subs, 2)
			subs, err = s.GetSubscribers(ctx, "othertopic")
			require.NoError(t, err)
			require.Len(t, subs, 1)
			assert.Equal(t, "othertopic", subs[0].Topic)

			require.NoError(t, s.DeleteSubscriber(ctx, sub.ID))
			err = s.DeleteSubscriber(ctx, sub.ID)
			assert.True(t, errors.Is(err, datastore.ErrNoSuchEntity), "unexpected error: %v", err)
			err = s.UpdateSubscriber(ctx, sub.ID, func(*Subscriber) {})
			assert.True(t, errors.Is(err, datastore.ErrNoSuchEntity), "unexpected error: %v", err)
		})
	}
}

func TestRequestQueryMatches(t *testing.T) {
	r := testRequest()
	tests := []struct {
		name string
		q    RequestQuery
		want bool
	}{
		{"exact", QueryFor(r), true},
		{"no remote", RequestQuery{Mode: r.Mode, Topic: r.Topic, Callback: r.Callback}, true},
		{"token", RequestQuery{Mode: r.Mode, Topic: r.Topic, Callback: r.Callback, Token: "12345"}, true},
		{"bad token", RequestQuery{Mode: r.Mode, Topic: r.Topic, Callback: r.Callback, Token: "1"}, false},
		{"bad remote", RequestQuery{Mode: r.Mode, Topic: r.Topic, Callback: r.Callback, Remote: "x"}, false},
		{"bad mode", RequestQuery{Mode: ModeUnsubscribe, Topic: r.Topic, Callback: r.Callback}, false},
		{"empty topic", RequestQuery{Mode: r.Mode, Callback: r.Callback}, false},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, test.q.Matches(r), test.name)
	}
}

func TestEncodeDecode(t *testing.T) {
	r := testRequest()
	r.ID = "abc"
	var r2 Request
	require.NoError(t, r2.Decode(r.Encode()))
	assert.Equal(t, r.ID, r2.ID)
	assert.Equal(t, r.Mode, r2.Mode)
	assert.True(t, r.Requested.Equal(r2.Requested))
	assert.Equal(t, datastore.ErrDecoding, r2.Decode([]byte("not json")))

	c, err := r.Copy(nil)
	require.NoError(t, err)
	assert.Equal(t, r, c)
	_, err = r.Copy(new(Subscriber))
	assert.Equal(t, datastore.ErrWrongType, err)
}

func TestNotice(t *testing.T) {
	ctx := context.Background()
	RegisterEntities()
	ds, err := datastore.NewStore(ctx, "file", "pubsubtest", t.TempDir())
	require.NoError(t, err)

	_, err = GetNotice(ctx, ds, "approval.ops@example.com")
	assert.True(t, errors.Is(err, datastore.ErrNoSuchEntity), "unexpected error: %v", err)

	require.NoError(t, PutNotice(ctx, ds, "approval.ops@example.com", testTime))
	n, err := GetNotice(ctx, ds, "approval.ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, "approval.ops@example.com", n.Key)
	assert.True(t, testTime.Equal(n.Sent))
}
