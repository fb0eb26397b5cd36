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

// Package subscriber implements the subscriber side of the
// PubSubHubbub protocol: asking a hub to (un)subscribe a callback to a
// topic, and answering the hub's verification of that callback.
package subscriber

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/openfish/datastore"
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/pubsub/model"
	"github.com/ausocean/pubsub/protocol"
	"github.com/ausocean/pubsub/transport"
)

// Bounds of the delay before answering a failed verification.
const (
	minDelay = 30 * time.Millisecond
	maxDelay = 2000 * time.Millisecond
)

// maxContent is the largest content body accepted by ReceiveContent.
const maxContent = 10 << 20

// RejectedError is returned when a hub does not accept a request. It
// carries the hub's reply verbatim.
type RejectedError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	return fmt.Sprintf("hub rejected request with status %d: %s", e.StatusCode, e.Body)
}

// ContentHandler is called with content delivered by a hub to callback.
type ContentHandler func(ctx context.Context, callback, contentType string, body []byte) error

// Client is a PubSubHubbub subscriber. Pending requests live in the
// request store between sending a request and the hub verifying it.
type Client struct {
	store   model.RequestStore
	tr      transport.Client
	rand    io.Reader
	now     func() time.Time
	delay   func(context.Context)
	handler ContentHandler
	log     logging.Logger
}

// NewClient returns a new Client using store for pending requests and
// tr to talk to hubs.
func NewClient(store model.RequestStore, tr transport.Client, options ...Option) (*Client, error) {
	if store == nil || tr == nil {
		return nil, errors.New("client requires a store and a transport")
	}
	c := &Client{
		store: store,
		tr:    tr,
		rand:  rand.Reader,
		now:   time.Now,
		delay: randomDelay,
		log:   logging.New(logging.Error, io.Discard, true),
	}
	for i, opt := range options {
		err := opt(c)
		if err != nil {
			return nil, fmt.Errorf("could not apply option # %d, %w", i, err)
		}
	}
	return c, nil
}

// Subscribe asks the hub at hubURL to deliver topic to callback.
func (c *Client) Subscribe(ctx context.Context, hubURL, topic, callback string) error {
	return c.sendRequest(ctx, model.ModeSubscribe, hubURL, topic, callback)
}

// Unsubscribe asks the hub at hubURL to stop delivering topic to callback.
func (c *Client) Unsubscribe(ctx context.Context, hubURL, topic, callback string) error {
	return c.sendRequest(ctx, model.ModeUnsubscribe, hubURL, topic, callback)
}

// sendRequest sends a request to the hub, reusing the pending request
// and token of an earlier attempt if there is one. The pending request
// is kept only if the hub accepts the request.
func (c *Client) sendRequest(ctx context.Context, mode model.Mode, hubURL, topic, callback string) error {
	if !protocol.ValidURL(callback) {
		return protocol.BadRequest("bad callback received")
	}
	if !protocol.ValidURL(hubURL) {
		return protocol.BadRequest("bad hub URL received")
	}

	r, err := c.pendingRequest(ctx, mode, hubURL, topic, callback)
	if err != nil {
		return err
	}

	form := url.Values{}
	form.Set(protocol.ParamMode, string(mode))
	form.Set(protocol.ParamCallback, callback)
	form.Set(protocol.ParamTopic, topic)
	form.Set(protocol.ParamVerify, string(model.VerifyAsync))
	form.Set(protocol.ParamVerifyToken, r.Token)
	form.Set(protocol.ParamLeaseSeconds, strconv.Itoa(protocol.LeaseSeconds))

	resp, err := c.tr.Post(ctx, hubURL, form)
	if err == nil && (resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent) {
		c.log.Info("request accepted", "mode", mode, "hub", hubURL, "topic", topic, "status", resp.StatusCode)
		return nil
	}

	delErr := c.store.DeleteRequest(ctx, r.ID)
	if delErr != nil && !errors.Is(delErr, datastore.ErrNoSuchEntity) {
		c.log.Error("could not delete pending request", "id", r.ID, "error", delErr)
	}
	if err != nil {
		return fmt.Errorf("could not send %s request to %s: %w", mode, hubURL, err)
	}
	c.log.Warning("request rejected", "mode", mode, "hub", hubURL, "topic", topic, "status", resp.StatusCode)
	return &RejectedError{StatusCode: resp.StatusCode, Body: resp.Body}
}

// pendingRequest gets or creates the pending request for the given
// key. New requests get a fresh token.
func (c *Client) pendingRequest(ctx context.Context, mode model.Mode, hubURL, topic, callback string) (*model.Request, error) {
	q := model.RequestQuery{Mode: mode, Topic: topic, Callback: callback, Remote: hubURL}
	r, err := c.store.FindRequest(ctx, q)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, fmt.Errorf("could not find pending request: %w", err)
	}

	token, err := protocol.Token(c.rand, protocol.TokenLength)
	if err != nil {
		return nil, fmt.Errorf("could not generate token: %w", err)
	}
	r, err = c.store.CreateRequest(ctx, &model.Request{
		Mode:         mode,
		Topic:        topic,
		Callback:     callback,
		Remote:       hubURL,
		VerifyMode:   model.VerifyAsync,
		Token:        token,
		Requested:    c.now(),
		LeaseSeconds: protocol.LeaseSeconds,
	})
	if errors.Is(err, datastore.ErrEntityExists) {
		r, err = c.store.FindRequest(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("could not create pending request: %w", err)
	}
	return r, nil
}

// VerifyRequest answers a hub's verification of localCallback. It
// returns true if params match a pending request, which is then
// consumed, along with the response to send to the hub. Failed
// verifications are answered after a random delay. When quiet is true
// no response is produced and there is no delay. The error is
// non-nil only if the store fails.
func (c *Client) VerifyRequest(ctx context.Context, params url.Values, localCallback string, quiet bool) (bool, protocol.Response, error) {
	reply := func(status int, msg string) protocol.Response {
		if quiet {
			return protocol.Response{}
		}
		return protocol.Reply(status, msg)
	}

	mode := model.Mode(strings.ToLower(params.Get(protocol.ParamMode)))
	challenge := params.Get(protocol.ParamChallenge)
	token := params.Get(protocol.ParamVerifyToken)
	if mode == "" || challenge == "" || token == "" {
		const msg = "Request incomplete: missing hub.mode, hub.challenge, or hub.verify_token"
		c.log.Debug(msg)
		return false, reply(http.StatusBadRequest, msg), nil
	}
	if mode != model.ModeSubscribe && mode != model.ModeUnsubscribe {
		const msg = "Bad request: hub.mode must be either subscribe or unsubscribe"
		c.log.Debug(msg)
		return false, reply(http.StatusBadRequest, msg), nil
	}

	q := model.RequestQuery{Mode: mode, Topic: params.Get(protocol.ParamTopic), Callback: localCallback, Token: token}
	r, err := c.store.FindRequest(ctx, q)
	if err == nil {
		err = c.store.DeleteRequest(ctx, r.ID)
		if err == nil {
			c.log.Info("verified request", "mode", mode, "topic", r.Topic, "hub", r.Remote)
			return true, reply(http.StatusOK, challenge), nil
		}
		// Consumed by a concurrent verification.
	}
	if !errors.Is(err, datastore.ErrNoSuchEntity) {
		return false, protocol.Response{}, fmt.Errorf("could not verify request: %w", err)
	}

	c.log.Debug("could not find request, cannot verify", "mode", mode, "topic", q.Topic, "callback", localCallback)
	if quiet {
		return false, protocol.Response{}, nil
	}
	c.delay(ctx)
	return false, protocol.NotFound("Verification failed."), nil
}

// ReceiveContent reads content delivered by a hub to callback and
// passes it to the content handler, if any. It returns the content.
func (c *Client) ReceiveContent(ctx context.Context, callback, contentType string, body io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxContent))
	if err != nil {
		return nil, fmt.Errorf("could not read content: %w", err)
	}
	c.log.Debug("received content", "callback", callback, "type", contentType, "length", len(data))
	if c.handler == nil {
		return data, nil
	}
	err = c.handler(ctx, callback, contentType, data)
	if err != nil {
		return data, fmt.Errorf("content handler failed: %w", err)
	}
	return data, nil
}

// randomDelay sleeps for a random time between minDelay and maxDelay,
// or until ctx is done.
func randomDelay(ctx context.Context) {
	d := minDelay + mrand.N(maxDelay-minDelay+1)
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
