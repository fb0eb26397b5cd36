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

package transport

import (
	"context"
	"net/url"
	"sync"
)

// Mock is a Client that records requests and replies with a canned
// Response. It is intended for tests.
type Mock struct {
	mu        sync.Mutex
	Response  *Response  // Reply to Post and Get.
	Err       error      // Error returned by Post and Get, if not nil.
	Method    string     // Method of the last request.
	URL       string     // URL of the last request.
	Data      url.Values // Form or query of the last request.
	Calls     int        // Number of Post and Get calls.
	Delivered []Delivery // PostAsync calls, in order.

	// OnRequest, if set, is called for every Post and Get before the
	// canned reply is returned, and may replace it.
	OnRequest func(method, url string, data url.Values) (*Response, error)
}

// Delivery records one PostAsync call.
type Delivery struct {
	URL         string
	ContentType string
	Body        []byte
}

// Post implements Client.Post.
func (m *Mock) Post(ctx context.Context, u string, form url.Values) (*Response, error) {
	return m.record("POST", u, form)
}

// Get implements Client.Get.
func (m *Mock) Get(ctx context.Context, u string, query url.Values) (*Response, error) {
	return m.record("GET", u, query)
}

// PostAsync implements Client.PostAsync synchronously so that tests can
// inspect deliveries straight away.
func (m *Mock) PostAsync(u, contentType string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Delivered = append(m.Delivered, Delivery{URL: u, ContentType: contentType, Body: body})
}

func (m *Mock) record(method, u string, data url.Values) (*Response, error) {
	m.mu.Lock()
	m.Method, m.URL, m.Data = method, u, data
	m.Calls++
	resp, err, hook := m.Response, m.Err, m.OnRequest
	m.mu.Unlock()

	if hook != nil {
		return hook(method, u, data)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &Response{StatusCode: 200}, nil
	}
	r := *resp
	return &r, nil
}
