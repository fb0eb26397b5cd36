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

package notify

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"
)

// Option is a functional option supplied to Init.
type Option func(*Notifier) error

// WithSender sets the sender email address.
func WithSender(sender string) Option {
	return func(n *Notifier) error {
		n.sender = sender
		return nil
	}
}

// WithRecipient sets a single recipient email address.
func WithRecipient(recipient string) Option {
	return func(n *Notifier) error {
		n.recipients = []string{recipient}
		return nil
	}
}

// WithRecipients sets multiple recipient email addresses.
func WithRecipients(recipients []string) Option {
	return func(n *Notifier) error {
		if len(recipients) == 0 {
			return errors.New("no recipients")
		}
		n.recipients = recipients
		return nil
	}
}

// WithFilter applies a filter string. If multiple WithFilter options
// are applied, they form a compound conjunctive filter.
// Specifiying an empty filter string clears the filter.
func WithFilter(filter string) Option {
	return func(n *Notifier) error {
		if filter == "" {
			n.filters = nil
			return nil
		}
		n.filters = append(n.filters, filter)
		return nil
	}
}

// WithStore applies a TimeStore for notification persistence.
// See TimeStore.
func WithStore(store TimeStore) Option {
	return func(n *Notifier) error {
		n.store = store
		return nil
	}
}

// WithPeriod sets the minimum period between notifications of the
// same kind to the same recipient. It has no effect without a store.
func WithPeriod(period time.Duration) Option {
	return func(n *Notifier) error {
		if period < 0 {
			return errors.New("negative period")
		}
		n.period = period
		return nil
	}
}

// WithSecrets applies the secrets necessary for sending email,
// notably the public and private mail API keys. This is always
// required, unless testing.
func WithSecrets(secrets map[string]string) Option {
	return func(n *Notifier) error {
		var ok bool
		n.publicKey, ok = secrets["mailjetPublicKey"]
		if !ok {
			return errors.New("mailjetPublicKey secret not found")
		}
		n.privateKey, ok = secrets["mailjetPrivateKey"]
		if !ok {
			return errors.New("mailjetPrivateKey secret not found")
		}
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(log logging.Logger) Option {
	return func(n *Notifier) error {
		n.log = log
		return nil
	}
}

// GetOpsEnvVars is a helper function that returns the values for the
// OPS_EMAIL and OPS_PERIOD env vars or supplies their defaults
// instead. OPS_EMAIL may be a comma-separated list of addresses and
// OPS_PERIOD is in minutes.
func GetOpsEnvVars() ([]string, time.Duration, error) {
	recipients := []string{defaultRecipient}
	if v := os.Getenv("OPS_EMAIL"); v != "" {
		recipients = strings.Split(v, ",")
	}

	period := defaultPeriod
	if v := os.Getenv("OPS_PERIOD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return recipients, period, errors.New("could not convert OPS_PERIOD '" + v + "' to an integer")
		}
		period = time.Duration(n) * time.Minute
	}

	return recipients, period, nil
}
