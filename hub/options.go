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

package hub

import (
	"errors"
	"io"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"

	"github.com/ausocean/pubsub/model"
)

// Option is a functional option supplied to New.
type Option func(*Hub) error

// WithApproval sets whether new subscriptions require manual approval.
func WithApproval(required bool) Option {
	return func(h *Hub) error {
		h.approval = required
		return nil
	}
}

// WithNotifier sets the notifier used to report subscriptions awaiting
// approval.
func WithNotifier(n Notifier) Option {
	return func(h *Hub) error {
		h.notifier = n
		return nil
	}
}

// WithClock sets the function used to get the current time.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) error {
		if now == nil {
			return errors.New("nil clock")
		}
		h.now = now
		return nil
	}
}

// WithRandom sets the source of randomness for challenges.
func WithRandom(r io.Reader) Option {
	return func(h *Hub) error {
		if r == nil {
			return errors.New("nil random source")
		}
		h.rand = r
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(log logging.Logger) Option {
	return func(h *Hub) error {
		h.log = log
		return nil
	}
}

// WithHandler registers fn as the handler for requests of the given
// mode, replacing any existing handler.
func WithHandler(mode model.Mode, fn HandlerFunc) Option {
	return func(h *Hub) error {
		mode = model.Mode(strings.ToLower(string(mode)))
		if mode == "" || fn == nil {
			return errors.New("invalid handler")
		}
		h.handlers[mode] = fn
		return nil
	}
}
