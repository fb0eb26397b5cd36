/*
DESCRIPTION
  Outbound HTTP transport used for hub requests, verification and content delivery.

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

// Package transport provides the outbound side of the protocol: form
// POSTs to hubs, verification GETs to subscriber callbacks and
// fire-and-forget content delivery.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"
	"golang.org/x/sync/semaphore"
)

// Defaults.
const (
	defaultTimeout     = 10 * time.Second
	defaultConcurrency = 16
	defaultContentType = "application/octet-stream"
	maxBodySize        = 1 << 20 // Replies longer than this are truncated.
)

// Response is the reply to an outbound request.
type Response struct {
	StatusCode int
	Body       string
}

// Success returns true if the status code is in the 2xx class.
func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is the outbound transport consumed by the hub and subscriber.
type Client interface {
	// Post sends form as an application/x-www-form-urlencoded body.
	Post(ctx context.Context, url string, form url.Values) (*Response, error)

	// Get sends query merged into any query already present in url.
	Get(ctx context.Context, url string, query url.Values) (*Response, error)

	// PostAsync sends body without waiting for, or reporting, the outcome.
	PostAsync(url, contentType string, body []byte)
}

// NetClient implements Client using net/http.
type NetClient struct {
	client  *http.Client
	timeout time.Duration
	sem     *semaphore.Weighted
	log     logging.Logger
}

// Option is a functional option supplied to NewClient.
type Option func(*NetClient) error

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *NetClient) error {
		n.client = c
		return nil
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(n *NetClient) error {
		if d <= 0 {
			return fmt.Errorf("invalid timeout %v", d)
		}
		n.timeout = d
		return nil
	}
}

// WithConcurrency limits the number of asynchronous deliveries in flight.
func WithConcurrency(max int) Option {
	return func(n *NetClient) error {
		if max < 1 {
			return fmt.Errorf("invalid concurrency %d", max)
		}
		n.sem = semaphore.NewWeighted(int64(max))
		return nil
	}
}

// WithLogger sets the logger used to report asynchronous failures.
func WithLogger(l logging.Logger) Option {
	return func(n *NetClient) error {
		n.log = l
		return nil
	}
}

// NewClient returns a NetClient with the supplied options applied.
func NewClient(options ...Option) (*NetClient, error) {
	n := &NetClient{
		client:  http.DefaultClient,
		timeout: defaultTimeout,
		sem:     semaphore.NewWeighted(defaultConcurrency),
		log:     logging.New(logging.Error, io.Discard, true),
	}
	for i, opt := range options {
		err := opt(n)
		if err != nil {
			return nil, fmt.Errorf("could not apply option # %d, %w", i, err)
		}
	}
	return n, nil
}

// Post implements Client.Post.
func (n *NetClient) Post(ctx context.Context, u string, form url.Values) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return n.do(req)
}

// Get implements Client.Get.
func (n *NetClient) Get(ctx context.Context, u string, query url.Values) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	full, err := mergeQuery(u, query)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	return n.do(req)
}

// PostAsync implements Client.PostAsync. Deliveries are attempted once;
// failures are logged and otherwise dropped.
func (n *NetClient) PostAsync(u, contentType string, body []byte) {
	if contentType == "" {
		contentType = defaultContentType
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		err := n.sem.Acquire(ctx, 1)
		if err != nil {
			n.log.Warning("delivery dropped, too many in flight", "url", u, "error", err)
			return
		}
		defer n.sem.Release(1)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			n.log.Error("could not create delivery request", "url", u, "error", err)
			return
		}
		req.Header.Set("Content-Type", contentType)
		resp, err := n.do(req)
		if err != nil {
			n.log.Warning("delivery failed", "url", u, "error", err)
			return
		}
		n.log.Debug("delivered content", "url", u, "status", resp.StatusCode)
	}()
}

func (n *NetClient) do(req *http.Request) (*Response, error) {
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send %s request to %s: %w", req.Method, req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: string(b)}, nil
}

// mergeQuery adds query to the query already present in u.
func mergeQuery(u string, query url.Values) (string, error) {
	parsed, err := url.Parse(u)
	if err != nil {
		return "", fmt.Errorf("could not parse url %s: %w", u, err)
	}
	q := parsed.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}
