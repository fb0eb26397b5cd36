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
	"sort"
	"sync"

	"github.com/ausocean/openfish/datastore"
	"github.com/google/uuid"
)

// MemoryStore implements RequestStore and SubscriberStore in memory.
// Values are copied in and out, so callers never share state with the
// store.
type MemoryStore struct {
	mu          sync.Mutex
	requests    map[string]Request
	subscribers map[string]Subscriber
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:    make(map[string]Request),
		subscribers: make(map[string]Subscriber),
	}
}

// FindRequest implements RequestStore.FindRequest.
func (m *MemoryStore) FindRequest(ctx context.Context, q RequestQuery) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.sortedRequests() {
		if q.Matches(&r) {
			return &r, nil
		}
	}
	return nil, datastore.ErrNoSuchEntity
}

// GetRequest implements RequestStore.GetRequest.
func (m *MemoryStore) GetRequest(ctx context.Context, id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, datastore.ErrNoSuchEntity
	}
	return &r, nil
}

// GetRequests implements RequestStore.GetRequests.
func (m *MemoryStore) GetRequests(ctx context.Context, mode Mode) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	reqs := []Request{}
	for _, r := range m.sortedRequests() {
		if mode == "" || r.Mode == mode {
			reqs = append(reqs, r)
		}
	}
	return reqs, nil
}

// CreateRequest implements RequestStore.CreateRequest.
func (m *MemoryStore) CreateRequest(ctx context.Context, r *Request) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := QueryFor(r)
	for _, existing := range m.requests {
		if q.Matches(&existing) && existing.Remote == r.Remote {
			return nil, datastore.ErrEntityExists
		}
	}
	r2 := *r
	r2.ID = uuid.NewString()
	m.requests[r2.ID] = r2
	return &r2, nil
}

// UpdateRequest implements RequestStore.UpdateRequest.
func (m *MemoryStore) UpdateRequest(ctx context.Context, id string, r *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return datastore.ErrNoSuchEntity
	}
	r2 := *r
	r2.ID = id
	m.requests[id] = r2
	return nil
}

// DeleteRequest implements RequestStore.DeleteRequest.
func (m *MemoryStore) DeleteRequest(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[id]; !ok {
		return datastore.ErrNoSuchEntity
	}
	delete(m.requests, id)
	return nil
}

// FindSubscriber implements SubscriberStore.FindSubscriber.
func (m *MemoryStore) FindSubscriber(ctx context.Context, topic, callback string) (*Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscribers {
		if s.Topic == topic && s.Callback == callback {
			return &s, nil
		}
	}
	return nil, datastore.ErrNoSuchEntity
}

// GetSubscribers implements SubscriberStore.GetSubscribers.
func (m *MemoryStore) GetSubscribers(ctx context.Context, topic string) ([]Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := []Subscriber{}
	for _, s := range m.subscribers {
		if topic == "" || s.Topic == topic {
			subs = append(subs, s)
		}
	}
	sortSubscribers(subs)
	return subs, nil
}

// CreateSubscriber implements SubscriberStore.CreateSubscriber.
func (m *MemoryStore) CreateSubscriber(ctx context.Context, r *Request) (*Subscriber, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscribers {
		if s.Topic == r.Topic && s.Callback == r.Callback {
			return nil, datastore.ErrEntityExists
		}
	}
	s := NewSubscriber(r)
	s.ID = uuid.NewString()
	m.subscribers[s.ID] = *s
	return s, nil
}

// UpdateSubscriber implements SubscriberStore.UpdateSubscriber.
func (m *MemoryStore) UpdateSubscriber(ctx context.Context, id string, fn func(*Subscriber)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subscribers[id]
	if !ok {
		return datastore.ErrNoSuchEntity
	}
	fn(&s)
	s.ID = id
	m.subscribers[id] = s
	return nil
}

// DeleteSubscriber implements SubscriberStore.DeleteSubscriber.
func (m *MemoryStore) DeleteSubscriber(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subscribers[id]; !ok {
		return datastore.ErrNoSuchEntity
	}
	delete(m.subscribers, id)
	return nil
}

// sortedRequests returns copies of the stored requests, oldest first.
// The caller must hold the lock.
func (m *MemoryStore) sortedRequests() []Request {
	reqs := make([]Request, 0, len(m.requests))
	for _, r := range m.requests {
		reqs = append(reqs, r)
	}
	sortRequests(reqs)
	return reqs
}

func sortRequests(reqs []Request) {
	sort.Slice(reqs, func(i, j int) bool {
		if !reqs[i].Requested.Equal(reqs[j].Requested) {
			return reqs[i].Requested.Before(reqs[j].Requested)
		}
		return reqs[i].ID < reqs[j].ID
	})
}

func sortSubscribers(subs []Subscriber) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Topic != subs[j].Topic {
			return subs[i].Topic < subs[j].Topic
		}
		return subs[i].Callback < subs[j].Callback
	})
}
