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

// Package notify sends operator notifications by email using the
// MailJet API, e.g., to report that a subscription awaits approval.
package notify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/ausocean/utils/logging"
	mailjet "github.com/mailjet/mailjet-apiv3-go"
)

const (
	defaultSender    = "hubbubservice@gmail.com"
	defaultRecipient = "ops@ausocean.org"
	defaultPeriod    = 60 * time.Minute
)

// Notification kinds.
const (
	KindApproval = "approval" // A subscription is awaiting manual approval.
	KindRejected = "rejected" // A hub rejected one of our requests.
)

// Notifier represents a notifier that uses the MailJet API to send email.
type Notifier struct {
	mutex      sync.Mutex     // Lock access.
	sender     string         // Sender email address.
	recipients []string       // Recipient email addresses.
	store      TimeStore      // Notification store (optional).
	period     time.Duration  // Minimum time between notifications of a kind.
	filters    []string       // Message filters (optional).
	publicKey  string         // Public key for accessing MailJet API.
	privateKey string         // Private key for accessing MailJet API.
	log        logging.Logger // Logger (optional).
}

// Init initializes a notifier with the supplied options. See
// WithSender, WithRecipient, WithRecipients, WithFilter, WithStore,
// WithPeriod, WithSecrets and WithLogger for a description of the
// various options. Secrets are required to send actual emails using
// the MailJet API, but can be omitted during testing. It is
// permissable to re-initalize a Notifier with different options,
// however missing options will revert to their defaults.
func (n *Notifier) Init(options ...Option) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	// Set default values.
	n.sender = defaultSender
	n.recipients = []string{defaultRecipient}
	n.store = nil
	n.period = defaultPeriod
	n.filters = nil
	n.publicKey = ""
	n.privateKey = ""
	n.log = logging.New(logging.Info, io.Discard, true)

	// Apply options.
	for i, opt := range options {
		err := opt(n)
		if err != nil {
			return fmt.Errorf("could not apply option # %d, %v", i, err)
		}
	}

	return nil
}

// Send sends an email message to each recipient, depending on what
// options are present. With filters, then all filters must match in
// order to send. With persistence, then the message is sent only if
// it was not sent to the same recipient within the notification period.
func (n *Notifier) Send(ctx context.Context, kind, msg string) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	for _, f := range n.filters {
		if !strings.Contains(msg, f) {
			n.log.Debug("filter applied, not sending", "filter", f, "kind", kind)
			return nil
		}
	}

	for _, recipient := range n.recipients {
		key := kind + "." + recipient
		if n.store != nil {
			sendable, err := n.store.Sendable(ctx, n.period, key)
			if err != nil {
				n.log.Warning("store.Sendable returned error", "error", err)
			}
			if !sendable {
				n.log.Debug("too soon to send message", "recipient", recipient, "kind", kind)
				continue
			}
		}

		n.log.Info("sending message", "recipient", recipient, "kind", kind)
		if n.publicKey != "" && n.privateKey != "" {
			err := n.mail(recipient, kind, msg)
			if err != nil {
				return err
			}
		}

		if n.store != nil {
			err := n.store.Sent(ctx, key)
			if err != nil {
				n.log.Warning("store.Sent returned error", "error", err)
			}
		}
	}

	return nil
}

// mail sends one email message using the MailJet API.
func (n *Notifier) mail(recipient, kind, msg string) error {
	subject := "Notification"
	if kind != "" {
		subject = strings.ToUpper(kind[:1]) + kind[1:] + " notification"
	}
	clt := mailjet.NewMailjetClient(n.publicKey, n.privateKey)
	info := []mailjet.InfoMessagesV31{{
		From:     &mailjet.RecipientV31{Email: n.sender},
		To:       &mailjet.RecipientsV31{mailjet.RecipientV31{Email: recipient}},
		Subject:  subject,
		TextPart: msg,
	}}

	msgs := mailjet.MessagesV31{Info: info}
	_, err := clt.SendMailV31(&msgs)
	if err != nil {
		return fmt.Errorf("could not send mail: %w", err)
	}
	return nil
}
