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

package subscriber

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/ausocean/utils/logging"
)

// Option is a functional option supplied to NewClient.
type Option func(*Client) error

// WithRandom sets the source of randomness for verify tokens.
func WithRandom(r io.Reader) Option {
	return func(c *Client) error {
		if r == nil {
			return errors.New("nil random source")
		}
		c.rand = r
		return nil
	}
}

// WithClock sets the function used to get the current time.
func WithClock(now func() time.Time) Option {
	return func(c *Client) error {
		if now == nil {
			return errors.New("nil clock")
		}
		c.now = now
		return nil
	}
}

// WithDelay sets the function called before answering a failed
// verification. A nil function disables the delay.
func WithDelay(delay func(context.Context)) Option {
	return func(c *Client) error {
		if delay == nil {
			delay = func(context.Context) {}
		}
		c.delay = delay
		return nil
	}
}

// WithContentHandler sets the handler for content received from hubs.
func WithContentHandler(h ContentHandler) Option {
	return func(c *Client) error {
		c.handler = h
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(log logging.Logger) Option {
	return func(c *Client) error {
		c.log = log
		return nil
	}
}
