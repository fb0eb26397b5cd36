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

// Package hub implements the hub side of the PubSubHubbub protocol:
// accepting (un)subscription requests, verifying them against the
// subscriber's callback, and managing the subscriber lifecycle.
package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/openfish/datastore"
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/pubsub/model"
	"github.com/ausocean/pubsub/notify"
	"github.com/ausocean/pubsub/protocol"
	"github.com/ausocean/pubsub/transport"
)

// HandlerFunc handles a verified request of one mode.
type HandlerFunc func(ctx context.Context, r *model.Request) (protocol.Response, error)

// Notifier sends operator notifications. It is satisfied by
// *notify.Notifier.
type Notifier interface {
	Send(ctx context.Context, kind, msg string) error
}

// Hub is a PubSubHubbub hub. A Hub holds no state between calls apart
// from what is kept in its stores, so it is safe for concurrent use
// provided the stores are.
type Hub struct {
	requests    model.RequestStore
	subscribers model.SubscriberStore
	client      transport.Client
	handlers    map[model.Mode]HandlerFunc
	approval    bool             // Whether subscriptions need manual approval.
	notifier    Notifier         // Approval notifications (optional).
	now         func() time.Time // Clock.
	rand        io.Reader        // Challenge randomness.
	log         logging.Logger
}

// New returns a new Hub that keeps pending requests and subscribers in
// the given stores and uses client to verify requests and distribute
// content. Subscriptions are approved automatically unless
// WithApproval(true) is supplied.
func New(requests model.RequestStore, subscribers model.SubscriberStore, client transport.Client, options ...Option) (*Hub, error) {
	if requests == nil || subscribers == nil || client == nil {
		return nil, errors.New("hub requires stores and a client")
	}
	h := &Hub{
		requests:    requests,
		subscribers: subscribers,
		client:      client,
		now:         time.Now,
		rand:        rand.Reader,
		log:         logging.New(logging.Error, io.Discard, true),
	}
	h.handlers = map[model.Mode]HandlerFunc{
		model.ModeSubscribe:   h.HandleSubscribe,
		model.ModeUnsubscribe: h.HandleUnsubscribe,
	}

	for i, opt := range options {
		err := opt(h)
		if err != nil {
			return nil, fmt.Errorf("could not apply option # %d, %w", i, err)
		}
	}
	return h, nil
}

// ProcessRequest validates and normalizes the parameters of an
// incoming request. Missing parameters or an invalid callback yield a
// 400 protocol.Error, and an unknown verify type or mode yields a 501
// one. The requested lease is always overridden.
func (h *Hub) ProcessRequest(params url.Values) (*model.Request, error) {
	for _, p := range []string{protocol.ParamCallback, protocol.ParamMode, protocol.ParamTopic, protocol.ParamVerify} {
		if params.Get(p) == "" {
			return nil, protocol.BadRequest("bad subscription request: %s was not present or empty", p)
		}
	}

	mode := model.Mode(strings.ToLower(params.Get(protocol.ParamMode)))
	verify := model.VerifyMode(strings.ToLower(params.Get(protocol.ParamVerify)))
	if verify != model.VerifySync && verify != model.VerifyAsync {
		return nil, protocol.NotImplemented("only sync and async verify methods are supported")
	}

	callback := params.Get(protocol.ParamCallback)
	if !protocol.ValidURL(callback) {
		return nil, protocol.BadRequest("invalid callback URL")
	}

	if _, ok := h.handlers[mode]; !ok {
		return nil, protocol.NotImplemented("%s not accepted", protocol.ParamMode)
	}

	return &model.Request{
		Mode:         mode,
		Topic:        params.Get(protocol.ParamTopic),
		Callback:     callback,
		VerifyMode:   verify,
		Token:        params.Get(protocol.ParamVerifyToken),
		Requested:    h.now(),
		LeaseSeconds: protocol.LeaseSeconds,
	}, nil
}

// VerifyRequest asks the request's callback to echo challenge, or a
// random challenge if challenge is empty. Verification succeeds only
// if the callback replies with a 2xx status and a body identical to
// the challenge.
func (h *Hub) VerifyRequest(ctx context.Context, r *model.Request, challenge string) bool {
	if challenge == "" {
		var err error
		challenge, err = protocol.Challenge(h.rand)
		if err != nil {
			h.log.Error("could not generate challenge", "error", err)
			return false
		}
	}

	q := url.Values{}
	q.Set(protocol.ParamMode, string(r.Mode))
	q.Set(protocol.ParamTopic, r.Topic)
	q.Set(protocol.ParamChallenge, challenge)
	q.Set(protocol.ParamLeaseSeconds, strconv.FormatInt(r.LeaseSeconds, 10))
	if r.Token != "" {
		q.Set(protocol.ParamVerifyToken, r.Token)
	}

	resp, err := h.client.Get(ctx, r.Callback, q)
	if err != nil {
		h.log.Warning("verification request failed", "callback", r.Callback, "error", err)
		return false
	}
	ok := resp.Success() && resp.Body == challenge
	h.log.Debug("verified request", "callback", r.Callback, "status", resp.StatusCode, "ok", ok)
	return ok
}

// HandleRequest processes, verifies and dispatches an incoming
// request to the handler registered for its mode. Protocol failures
// are reported by the returned Response; the error is non-nil only
// for failures of the hub itself, e.g., storage errors.
func (h *Hub) HandleRequest(ctx context.Context, params url.Values) (protocol.Response, error) {
	r, err := h.ProcessRequest(params)
	if err != nil {
		var pe *protocol.Error
		if errors.As(err, &pe) {
			h.log.Info("rejected request", "error", err)
			return pe.Response(), nil
		}
		return protocol.Response{}, err
	}

	if !h.VerifyRequest(ctx, r, "") {
		h.log.Info("verification failed", "mode", r.Mode, "topic", r.Topic, "callback", r.Callback)
		return protocol.PreconditionFailed("Verification failed."), nil
	}

	handler, ok := h.handlers[r.Mode]
	if !ok {
		return protocol.Reply(http.StatusNotImplemented, "Did not understand request mode."), nil
	}
	return handler(ctx, r)
}

// HandleSubscribe handles a verified subscribe request. An existing
// subscription is renewed from the request's time. Otherwise the
// request is kept pending until it is approved, either immediately or,
// if approval is required, by ApproveConnection.
func (h *Hub) HandleSubscribe(ctx context.Context, r *model.Request) (protocol.Response, error) {
	sub, err := h.subscribers.FindSubscriber(ctx, r.Topic, r.Callback)
	switch {
	case err == nil:
		expires := r.Expiry()
		err = h.subscribers.UpdateSubscriber(ctx, sub.ID, func(s *model.Subscriber) { s.Expires = expires })
		if err != nil {
			return protocol.Response{}, fmt.Errorf("could not renew subscriber: %w", err)
		}
		h.log.Info("renewed subscription", "topic", r.Topic, "callback", r.Callback, "expires", expires)
		return protocol.NoContent("Your subscription has been refreshed."), nil
	case !errors.Is(err, datastore.ErrNoSuchEntity):
		return protocol.Response{}, fmt.Errorf("could not find subscriber: %w", err)
	}

	pending, err := h.pendingRequest(ctx, r)
	if err != nil {
		return protocol.Response{}, err
	}

	if h.approval {
		h.log.Info("subscription awaiting approval", "id", pending.ID, "topic", r.Topic, "callback", r.Callback)
		h.notify(ctx, pending)
		return protocol.Accepted("Thank you for your subscription request. We will verify this request with you once the publisher has approved your access."), nil
	}

	err = h.ApproveConnection(ctx, pending.ID)
	if err != nil {
		h.log.Warning("could not approve subscription", "id", pending.ID, "error", err)
		return protocol.Accepted("There was a problem automatically approving your request. We will let you know when it has been approved manually."), nil
	}
	return protocol.NoContent("Your subscription is active."), nil
}

// HandleUnsubscribe handles a verified unsubscribe request. It
// succeeds whether or not there was a subscription to remove.
func (h *Hub) HandleUnsubscribe(ctx context.Context, r *model.Request) (protocol.Response, error) {
	sub, err := h.subscribers.FindSubscriber(ctx, r.Topic, r.Callback)
	switch {
	case errors.Is(err, datastore.ErrNoSuchEntity):
		return protocol.NoContent("You don't have an active subscription."), nil
	case err != nil:
		return protocol.Response{}, fmt.Errorf("could not find subscriber: %w", err)
	}

	err = h.subscribers.DeleteSubscriber(ctx, sub.ID)
	if err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
		return protocol.Response{}, fmt.Errorf("could not delete subscriber: %w", err)
	}
	h.log.Info("unsubscribed", "topic", r.Topic, "callback", r.Callback)
	return protocol.NoContent("Sad to see you go."), nil
}

// ApproveConnection promotes the pending subscribe request with the
// given ID to a subscriber. Approving a request that no longer exists,
// or is not a subscribe request, does nothing. Failing to delete the
// request once the subscriber exists is logged but not returned.
func (h *Hub) ApproveConnection(ctx context.Context, id string) error {
	r, err := h.requests.GetRequest(ctx, id)
	switch {
	case errors.Is(err, datastore.ErrNoSuchEntity):
		return nil
	case err != nil:
		return fmt.Errorf("could not get request: %w", err)
	case r.Mode != model.ModeSubscribe:
		return nil
	}

	_, err = h.subscribers.CreateSubscriber(ctx, r)
	if errors.Is(err, datastore.ErrEntityExists) {
		// Approved concurrently, so this is a renewal.
		err = h.renew(ctx, r)
	}
	if err != nil {
		return fmt.Errorf("could not create subscriber: %w", err)
	}

	// The subscription is active from here on, so a stale request is
	// only logged.
	err = h.requests.DeleteRequest(ctx, id)
	if err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
		h.log.Warning("could not delete approved request", "id", id, "error", err)
	}
	h.log.Info("approved subscription", "topic", r.Topic, "callback", r.Callback, "expires", r.Expiry())
	return nil
}

// RejectConnection discards the pending request with the given ID.
func (h *Hub) RejectConnection(ctx context.Context, id string) error {
	err := h.requests.DeleteRequest(ctx, id)
	if err != nil {
		return fmt.Errorf("could not reject request %s: %w", id, err)
	}
	h.log.Info("rejected subscription", "id", id)
	return nil
}

// Pending returns the subscribe requests awaiting approval, oldest first.
func (h *Hub) Pending(ctx context.Context) ([]model.Request, error) {
	return h.requests.GetRequests(ctx, model.ModeSubscribe)
}

// DistributeContent sends data to endpoint without waiting for, or
// checking, the outcome.
func (h *Hub) DistributeContent(endpoint, contentType string, data []byte) {
	h.client.PostAsync(endpoint, contentType, data)
}

// Publish distributes data to every unexpired subscriber of topic and
// returns the number of subscribers it was sent to.
func (h *Hub) Publish(ctx context.Context, topic, contentType string, data []byte) (int, error) {
	subs, err := h.subscribers.GetSubscribers(ctx, topic)
	if err != nil {
		return 0, fmt.Errorf("could not get subscribers: %w", err)
	}
	now := h.now()
	n := 0
	for _, s := range subs {
		if s.Expired(now) {
			continue
		}
		h.DistributeContent(s.Callback, contentType, data)
		n++
	}
	h.log.Debug("published content", "topic", topic, "subscribers", n)
	return n, nil
}

// Sweep deletes subscribers whose lease has expired and returns how
// many were deleted.
func (h *Hub) Sweep(ctx context.Context) (int, error) {
	subs, err := h.subscribers.GetSubscribers(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("could not get subscribers: %w", err)
	}
	now := h.now()
	n := 0
	for _, s := range subs {
		if !s.Expired(now) {
			continue
		}
		err = h.subscribers.DeleteSubscriber(ctx, s.ID)
		if err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
			return n, fmt.Errorf("could not delete subscriber %s: %w", s.ID, err)
		}
		h.log.Info("subscription expired", "topic", s.Topic, "callback", s.Callback)
		n++
	}
	return n, nil
}

// renew extends the lease of the existing subscriber matching r.
func (h *Hub) renew(ctx context.Context, r *model.Request) error {
	sub, err := h.subscribers.FindSubscriber(ctx, r.Topic, r.Callback)
	if err != nil {
		return err
	}
	expires := r.Expiry()
	return h.subscribers.UpdateSubscriber(ctx, sub.ID, func(s *model.Subscriber) { s.Expires = expires })
}

// pendingRequest gets or creates the pending request matching r,
// updating its token if r carries a different one.
func (h *Hub) pendingRequest(ctx context.Context, r *model.Request) (*model.Request, error) {
	q := model.RequestQuery{Mode: r.Mode, Topic: r.Topic, Callback: r.Callback}
	pending, err := h.requests.FindRequest(ctx, q)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		pending, err = h.requests.CreateRequest(ctx, r)
		if err == nil {
			return pending, nil
		}
		if errors.Is(err, datastore.ErrEntityExists) {
			pending, err = h.requests.FindRequest(ctx, q)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("could not get pending request: %w", err)
	}

	if pending.Token != r.Token {
		pending.Token = r.Token
		err = h.requests.UpdateRequest(ctx, pending.ID, pending)
		if err != nil {
			return nil, fmt.Errorf("could not update pending request: %w", err)
		}
	}
	return pending, nil
}

// notify tells the operator that r awaits approval. Failure to notify
// does not fail the request.
func (h *Hub) notify(ctx context.Context, r *model.Request) {
	if h.notifier == nil {
		return
	}
	msg := fmt.Sprintf("Subscription %s awaiting approval.\nTopic: %s\nCallback: %s\nRequested: %s",
		r.ID, r.Topic, r.Callback, r.Requested.Format(time.RFC3339))
	err := h.notifier.Send(ctx, notify.KindApproval, msg)
	if err != nil {
		h.log.Warning("could not send approval notification", "id", r.ID, "error", err)
	}
}
