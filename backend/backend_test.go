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

package backend_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ausocean/pubsub/backend"
	"github.com/ausocean/pubsub/gauth"
	"github.com/ausocean/pubsub/hub"
	"github.com/ausocean/pubsub/model"
	"github.com/ausocean/pubsub/protocol"
	"github.com/ausocean/pubsub/subscriber"
	"github.com/ausocean/pubsub/transport"
)

const (
	testTopic    = "testtopic"
	testCallback = "http://localhost/callback"
)

var testSecret = []byte("3af320667aba6a8b9ff9dc475adb382c")

// echo is a transport hook that confirms every verification request.
func echo(method, u string, data url.Values) (*transport.Response, error) {
	return &transport.Response{StatusCode: http.StatusOK, Body: data.Get(protocol.ParamChallenge)}, nil
}

// testService is used to pass global scope variables to handlers.
type testService struct {
	hub *hub.Hub
	log logging.Logger
	t   *testing.T
}

func newService(t *testing.T, options ...hub.Option) (*testService, *model.MemoryStore, *transport.Mock) {
	store := model.NewMemoryStore()
	mock := &transport.Mock{OnRequest: echo}
	log := (*logging.TestLogger)(t)
	h, err := hub.New(store, store, mock, append([]hub.Option{hub.WithLogger(log)}, options...)...)
	require.NoError(t, err)
	return &testService{hub: h, log: log, t: t}, store, mock
}

// app returns a fiber app serving the hub and admin endpoints.
func (svc *testService) app() *fiber.App {
	app := fiber.New()
	app.Post("/", svc.hubHandler)
	app.Get("/admin/:action", svc.adminHandler)
	app.Post("/admin/:action", svc.adminHandler)
	return app
}

func (svc *testService) hubHandler(c *fiber.Ctx) error {
	h, err := backend.NewHTTPHandler(backend.Fiber, backend.WithFiberHandlerCtx(c))
	if err != nil {
		svc.t.Errorf("could not create handler: %v", err)
		return err
	}
	return backend.ServeHub(h, svc.hub, svc.log)
}

func (svc *testService) adminHandler(c *fiber.Ctx) error {
	h, err := backend.NewHTTPHandler(backend.Fiber, backend.WithFiberHandlerCtx(c))
	if err != nil {
		svc.t.Errorf("could not create handler: %v", err)
		return err
	}
	return backend.ServeAdmin(h, svc.hub, testSecret, c.Params("action"), svc.log)
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func subscribeForm() url.Values {
	return url.Values{
		protocol.ParamMode:     {"subscribe"},
		protocol.ParamCallback: {testCallback},
		protocol.ParamTopic:    {testTopic},
		protocol.ParamVerify:   {"sync"},
	}
}

// TestFiberHub tests the hub endpoint served by fiber.
func TestFiberHub(t *testing.T) {
	svc, store, mock := newService(t)
	app := svc.app()

	resp, err := app.Test(formRequest(http.MethodPost, "/", subscribeForm()), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, testCallback, mock.URL)

	subs, err := store.GetSubscribers(context.Background(), testTopic)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	// Query parameters are accepted too.
	form := subscribeForm()
	form.Del(protocol.ParamTopic)
	req := formRequest(http.MethodPost, "/?"+url.Values{protocol.ParamTopic: {"othertopic"}}.Encode(), form)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	form = subscribeForm()
	form.Set(protocol.ParamMode, "testmode")
	resp, err = app.Test(formRequest(http.MethodPost, "/", form), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	form = subscribeForm()
	form.Del(protocol.ParamCallback)
	resp, err = app.Test(formRequest(http.MethodPost, "/", form), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	mock.OnRequest = nil
	mock.Response = &transport.Response{StatusCode: http.StatusNotFound}
	resp, err = app.Test(formRequest(http.MethodPost, "/", subscribeForm()), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
}

// TestFiberAdmin tests the admin endpoints served by fiber.
func TestFiberAdmin(t *testing.T) {
	svc, store, mock := newService(t, hub.WithApproval(true))
	app := svc.app()
	ctx := context.Background()

	resp, err := app.Test(formRequest(http.MethodPost, "/", subscribeForm()), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// No token.
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/admin/pending", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	tok, err := gauth.NewAdminToken("ops@ausocean.org", time.Hour, testSecret)
	require.NoError(t, err)
	authorize := func(req *http.Request) *http.Request {
		req.Header.Set("Authorization", "Bearer "+tok)
		return req
	}

	resp, err = app.Test(authorize(httptest.NewRequest(http.MethodGet, "/admin/pending", nil)), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending []backend.PendingRequest
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	require.Len(t, pending, 1)
	assert.Equal(t, testTopic, pending[0].Topic)
	assert.Equal(t, testCallback, pending[0].Callback)

	resp, err = app.Test(authorize(formRequest(http.MethodPost, "/admin/approve", url.Values{})), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = app.Test(authorize(formRequest(http.MethodPost, "/admin/approve", url.Values{"id": {pending[0].ID}})), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	subs, err := store.GetSubscribers(ctx, testTopic)
	require.NoError(t, err)
	assert.Len(t, subs, 1)

	resp, err = app.Test(authorize(formRequest(http.MethodPost, "/admin/reject", url.Values{"id": {pending[0].ID}})), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req := authorize(httptest.NewRequest(http.MethodPost, "/admin/publish?topic="+testTopic, strings.NewReader("<feed/>")))
	req.Header.Set("Content-Type", "application/atom+xml")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var published map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&published))
	assert.Equal(t, 1, published["subscribers"])
	require.Len(t, mock.Delivered, 1)
	assert.Equal(t, transport.Delivery{URL: testCallback, ContentType: "application/atom+xml", Body: []byte("<feed/>")}, mock.Delivered[0])

	resp, err = app.Test(authorize(httptest.NewRequest(http.MethodGet, "/admin/unknown", nil)), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// TestNetHTTPCallback tests the callback endpoint served by net/http.
func TestNetHTTPCallback(t *testing.T) {
	ctx := context.Background()
	log := (*logging.TestLogger)(t)
	received := make(chan string, 1)
	mock := &transport.Mock{Response: &transport.Response{StatusCode: http.StatusAccepted}}
	clt, err := subscriber.NewClient(model.NewMemoryStore(), mock,
		subscriber.WithLogger(log),
		subscriber.WithDelay(nil),
		subscriber.WithContentHandler(func(ctx context.Context, callback, contentType string, body []byte) error {
			received <- string(body)
			return nil
		}),
	)
	require.NoError(t, err)
	require.NoError(t, clt.Subscribe(ctx, "http://hub.example.com/", testTopic, testCallback))
	token := mock.Data.Get(protocol.ParamVerifyToken)

	serve := func(req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h, err := backend.NewHTTPHandler(backend.NetHTTP, backend.WithHTTPWriterAndRequest(w, req))
		require.NoError(t, err)
		require.NoError(t, backend.ServeCallback(h, clt, testCallback, log))
		return w
	}

	q := url.Values{
		protocol.ParamMode:        {"subscribe"},
		protocol.ParamTopic:       {testTopic},
		protocol.ParamChallenge:   {"abc123"},
		protocol.ParamVerifyToken: {"wrong"},
	}
	w := serve(httptest.NewRequest(http.MethodGet, "/callback?"+q.Encode(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	q.Set(protocol.ParamVerifyToken, token)
	w = serve(httptest.NewRequest(http.MethodGet, "/callback?"+q.Encode(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "abc123", w.Body.String())

	q.Del(protocol.ParamChallenge)
	w = serve(httptest.NewRequest(http.MethodGet, "/callback?"+q.Encode(), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(httptest.NewRequest(http.MethodPost, "/callback", strings.NewReader("hello")))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "hello", <-received)

	w = serve(httptest.NewRequest(http.MethodDelete, "/callback", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

// TestHandshake runs a complete subscription over HTTP: the subscriber
// asks the hub to subscribe, the hub verifies the subscriber's
// callback, and content published by the hub reaches the subscriber.
func TestHandshake(t *testing.T) {
	ctx := context.Background()
	log := (*logging.TestLogger)(t)

	netClient, err := transport.NewClient(transport.WithLogger(log), transport.WithTimeout(5*time.Second))
	require.NoError(t, err)

	// Subscriber.
	received := make(chan string, 1)
	subStore := model.NewMemoryStore()
	clt, err := subscriber.NewClient(subStore, netClient,
		subscriber.WithLogger(log),
		subscriber.WithDelay(nil),
		subscriber.WithContentHandler(func(ctx context.Context, callback, contentType string, body []byte) error {
			received <- contentType + " " + string(body)
			return nil
		}),
	)
	require.NoError(t, err)
	var callback string
	cbSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, err := backend.NewHTTPHandler(backend.NetHTTP, backend.WithHTTPWriterAndRequest(w, r))
		if err != nil {
			t.Errorf("could not create handler: %v", err)
			return
		}
		backend.ServeCallback(h, clt, callback, log)
	}))
	defer cbSrv.Close()
	callback = cbSrv.URL + "/callback"

	// Hub.
	hubStore := model.NewMemoryStore()
	hb, err := hub.New(hubStore, hubStore, netClient, hub.WithLogger(log))
	require.NoError(t, err)
	hubSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, err := backend.NewHTTPHandler(backend.NetHTTP, backend.WithHTTPWriterAndRequest(w, r))
		if err != nil {
			t.Errorf("could not create handler: %v", err)
			return
		}
		backend.ServeHub(h, hb, log)
	}))
	defer hubSrv.Close()

	require.NoError(t, clt.Subscribe(ctx, hubSrv.URL, testTopic, callback))

	// The verification consumed the subscriber's pending request.
	reqs, err := subStore.GetRequests(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, reqs)
	subs, err := hubStore.GetSubscribers(ctx, testTopic)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, callback, subs[0].Callback)

	n, err := hb.Publish(ctx, testTopic, "text/plain", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	select {
	case got := <-received:
		assert.Equal(t, "text/plain hello", got)
	case <-time.After(5 * time.Second):
		t.Fatal("content not delivered")
	}

	// Unsubscribing is verified the same way.
	require.NoError(t, clt.Unsubscribe(ctx, hubSrv.URL, testTopic, callback))
	subs, err = hubStore.GetSubscribers(ctx, testTopic)
	require.NoError(t, err)
	assert.Empty(t, subs)

	// A hub that cannot verify the callback rejects the request.
	err = clt.Subscribe(ctx, hubSrv.URL, testTopic, cbSrv.URL+"/elsewhere")
	var re *subscriber.RejectedError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusPreconditionFailed, re.StatusCode)
	assert.Equal(t, "Verification failed.", re.Body)
}
