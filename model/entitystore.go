/*
DESCRIPTION
  EntityStore persists requests and subscribers in a datastore.

LICENSE
  Copyright (C) 2026 the Australian Ocean Lab (AusOcean).

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  This is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY
  or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public
  License for more details.

  You should have received a copy of the GNU General Public License in
  gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package model

import (
	"context"

	"github.com/ausocean/openfish/datastore"
	"github.com/pkg/errors"
)

// EntityStore implements RequestStore and SubscriberStore on top of a
// datastore.Store, i.e., either the file store in standalone mode or the
// Google Cloud Datastore. RegisterEntities must be called first.
//
// Key names are digests of the uniqueness key of each entity, so
// datastore.Store.Create enforces one pending request per (mode, topic,
// callback, remote) and one subscriber per (topic, callback).
//
// Queries are not filtered by the datastore since the file store only
// filters on key parts. Pending requests are transient and few, and
// subscriber scans happen only on publish and sweep.
type EntityStore struct {
	store datastore.Store
}

// NewEntityStore returns an EntityStore using the given datastore.
func NewEntityStore(store datastore.Store) *EntityStore {
	return &EntityStore{store: store}
}

// FindRequest implements RequestStore.FindRequest.
func (s *EntityStore) FindRequest(ctx context.Context, q RequestQuery) (*Request, error) {
	if q.Remote != "" {
		// The whole key is known, so we can go straight to the entity.
		r, err := s.GetRequest(ctx, requestName(q.Mode, q.Topic, q.Callback, q.Remote))
		if err != nil {
			return nil, err
		}
		if !q.Matches(r) {
			return nil, datastore.ErrNoSuchEntity
		}
		return r, nil
	}

	reqs, err := s.GetRequests(ctx, q.Mode)
	if err != nil {
		return nil, err
	}
	for i := range reqs {
		if q.Matches(&reqs[i]) {
			return &reqs[i], nil
		}
	}
	return nil, datastore.ErrNoSuchEntity
}

// GetRequest implements RequestStore.GetRequest.
func (s *EntityStore) GetRequest(ctx context.Context, id string) (*Request, error) {
	r := new(Request)
	err := s.store.Get(ctx, s.store.NameKey(typeRequest, id), r)
	if err != nil {
		return nil, errors.Wrapf(err, "could not get request %s", id)
	}
	return r, nil
}

// GetRequests implements RequestStore.GetRequests.
func (s *EntityStore) GetRequests(ctx context.Context, mode Mode) ([]Request, error) {
	q := s.store.NewQuery(typeRequest, false)
	var all []Request
	_, err := s.store.GetAll(ctx, q, &all)
	if err != nil {
		return nil, errors.Wrap(err, "could not get requests")
	}
	reqs := []Request{}
	for _, r := range all {
		if mode == "" || r.Mode == mode {
			reqs = append(reqs, r)
		}
	}
	sortRequests(reqs)
	return reqs, nil
}

// CreateRequest implements RequestStore.CreateRequest.
func (s *EntityStore) CreateRequest(ctx context.Context, r *Request) (*Request, error) {
	r2 := *r
	r2.ID = requestName(r.Mode, r.Topic, r.Callback, r.Remote)
	err := s.store.Create(ctx, s.store.NameKey(typeRequest, r2.ID), &r2)
	if err != nil {
		return nil, errors.Wrap(err, "could not create request")
	}
	return &r2, nil
}

// UpdateRequest implements RequestStore.UpdateRequest.
func (s *EntityStore) UpdateRequest(ctx context.Context, id string, r *Request) error {
	err := s.store.Update(ctx, s.store.NameKey(typeRequest, id), func(e datastore.Entity) {
		if dst, ok := e.(*Request); ok {
			*dst = *r
			dst.ID = id
		}
	}, new(Request))
	return errors.Wrapf(err, "could not update request %s", id)
}

// DeleteRequest implements RequestStore.DeleteRequest.
func (s *EntityStore) DeleteRequest(ctx context.Context, id string) error {
	_, err := s.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	err = s.store.DeleteMulti(ctx, []*datastore.Key{s.store.NameKey(typeRequest, id)})
	return errors.Wrapf(err, "could not delete request %s", id)
}

// FindSubscriber implements SubscriberStore.FindSubscriber.
func (s *EntityStore) FindSubscriber(ctx context.Context, topic, callback string) (*Subscriber, error) {
	return s.getSubscriber(ctx, subscriberName(topic, callback))
}

// GetSubscribers implements SubscriberStore.GetSubscribers.
func (s *EntityStore) GetSubscribers(ctx context.Context, topic string) ([]Subscriber, error) {
	q := s.store.NewQuery(typeSubscriber, false)
	var all []Subscriber
	_, err := s.store.GetAll(ctx, q, &all)
	if err != nil {
		return nil, errors.Wrap(err, "could not get subscribers")
	}
	subs := []Subscriber{}
	for _, sub := range all {
		if topic == "" || sub.Topic == topic {
			subs = append(subs, sub)
		}
	}
	sortSubscribers(subs)
	return subs, nil
}

// CreateSubscriber implements SubscriberStore.CreateSubscriber.
func (s *EntityStore) CreateSubscriber(ctx context.Context, r *Request) (*Subscriber, error) {
	sub := NewSubscriber(r)
	sub.ID = subscriberName(r.Topic, r.Callback)
	err := s.store.Create(ctx, s.store.NameKey(typeSubscriber, sub.ID), sub)
	if err != nil {
		return nil, errors.Wrap(err, "could not create subscriber")
	}
	return sub, nil
}

// UpdateSubscriber implements SubscriberStore.UpdateSubscriber.
func (s *EntityStore) UpdateSubscriber(ctx context.Context, id string, fn func(*Subscriber)) error {
	err := s.store.Update(ctx, s.store.NameKey(typeSubscriber, id), func(e datastore.Entity) {
		if sub, ok := e.(*Subscriber); ok {
			fn(sub)
			sub.ID = id
		}
	}, new(Subscriber))
	return errors.Wrapf(err, "could not update subscriber %s", id)
}

// DeleteSubscriber implements SubscriberStore.DeleteSubscriber.
func (s *EntityStore) DeleteSubscriber(ctx context.Context, id string) error {
	_, err := s.getSubscriber(ctx, id)
	if err != nil {
		return err
	}
	err = s.store.DeleteMulti(ctx, []*datastore.Key{s.store.NameKey(typeSubscriber, id)})
	return errors.Wrapf(err, "could not delete subscriber %s", id)
}

func (s *EntityStore) getSubscriber(ctx context.Context, id string) (*Subscriber, error) {
	sub := new(Subscriber)
	err := s.store.Get(ctx, s.store.NameKey(typeSubscriber, id), sub)
	if err != nil {
		return nil, errors.Wrapf(err, "could not get subscriber %s", id)
	}
	return sub, nil
}

func requestName(mode Mode, topic, callback, remote string) string {
	return digest(typeRequest, string(mode), topic, callback, remote)
}

func subscriberName(topic, callback string) string {
	return digest(typeSubscriber, topic, callback)
}
