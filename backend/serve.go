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

// Package backend serves the hub, subscriber callback and admin
// endpoints over either fiber or net/http.
package backend

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ausocean/openfish/datastore"
	"github.com/ausocean/utils/logging"

	"github.com/ausocean/pubsub/gauth"
	"github.com/ausocean/pubsub/model"
	"github.com/ausocean/pubsub/protocol"
)

// Admin actions.
const (
	ActionPending = "pending"
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionPublish = "publish"
)

// maxPublish is the largest content accepted for publishing.
const maxPublish = 10 << 20

// HubService is the hub functionality served by ServeHub.
type HubService interface {
	HandleRequest(ctx context.Context, params url.Values) (protocol.Response, error)
}

// CallbackService is the subscriber functionality served by ServeCallback.
type CallbackService interface {
	VerifyRequest(ctx context.Context, params url.Values, localCallback string, quiet bool) (bool, protocol.Response, error)
	ReceiveContent(ctx context.Context, callback, contentType string, body io.Reader) ([]byte, error)
}

// AdminService is the hub functionality served by ServeAdmin.
type AdminService interface {
	Pending(ctx context.Context) ([]model.Request, error)
	ApproveConnection(ctx context.Context, id string) error
	RejectConnection(ctx context.Context, id string) error
	Publish(ctx context.Context, topic, contentType string, data []byte) (int, error)
}

// PendingRequest is the JSON representation of a subscription
// awaiting approval.
type PendingRequest struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Callback  string    `json:"callback"`
	Requested time.Time `json:"requested"`
}

// ServeHub serves a (un)subscription request to a hub.
func ServeHub(h HTTPHandler, hub HubService, log logging.Logger) error {
	params, err := h.Params()
	if err != nil {
		return h.Respond(http.StatusBadRequest, "Could not parse request.")
	}

	resp, err := hub.HandleRequest(h.Context(), params)
	if err != nil {
		log.Error("could not handle hub request", "error", err)
		return h.Respond(http.StatusInternalServerError, "Internal error.")
	}
	return h.Respond(resp.Status, resp.Message)
}

// ServeCallback serves a hub's request to a subscriber's callback,
// which is either a verification (GET) or content delivery (POST).
// callback is the public URL of the callback.
func ServeCallback(h HTTPHandler, sub CallbackService, callback string, log logging.Logger) error {
	switch h.Method() {
	case http.MethodGet:
		params, err := h.Params()
		if err != nil {
			return h.Respond(http.StatusBadRequest, "Could not parse request.")
		}
		_, resp, err := sub.VerifyRequest(h.Context(), params, callback, false)
		if err != nil {
			log.Error("could not verify request", "error", err)
			return h.Respond(http.StatusInternalServerError, "Internal error.")
		}
		if resp.IsZero() {
			return nil
		}
		return h.Respond(resp.Status, resp.Message)

	case http.MethodPost:
		_, err := sub.ReceiveContent(h.Context(), callback, h.Header("Content-Type"), h.Body())
		if err != nil {
			log.Warning("could not receive content", "error", err)
			return h.Respond(http.StatusInternalServerError, "Could not receive content.")
		}
		return h.Respond(http.StatusNoContent, "")

	default:
		return h.Respond(http.StatusMethodNotAllowed, "Method not allowed.")
	}
}

// ServeAdmin serves an admin action. Requests must carry an admin
// token signed with secret as a bearer token.
func ServeAdmin(h HTTPHandler, svc AdminService, secret []byte, action string, log logging.Logger) error {
	sub, err := gauth.CheckAdminToken(h.Header("Authorization"), secret)
	if err != nil {
		log.Info("admin request denied", "action", action, "error", err)
		return h.Respond(http.StatusUnauthorized, "Unauthorized.")
	}
	ctx := h.Context()

	switch action {
	case ActionPending:
		reqs, err := svc.Pending(ctx)
		if err != nil {
			log.Error("could not get pending requests", "error", err)
			return h.Respond(http.StatusInternalServerError, "Internal error.")
		}
		pending := make([]PendingRequest, len(reqs))
		for i, r := range reqs {
			pending[i] = PendingRequest{ID: r.ID, Topic: r.Topic, Callback: r.Callback, Requested: r.Requested}
		}
		return h.JSON(http.StatusOK, pending)

	case ActionApprove, ActionReject:
		id := h.FormValue("id")
		if id == "" {
			return h.Respond(http.StatusBadRequest, "Missing id.")
		}
		if action == ActionApprove {
			err = svc.ApproveConnection(ctx, id)
		} else {
			err = svc.RejectConnection(ctx, id)
		}
		switch {
		case errors.Is(err, datastore.ErrNoSuchEntity):
			return h.Respond(http.StatusNotFound, "No such request.")
		case err != nil:
			log.Error("could not "+action+" request", "id", id, "error", err)
			return h.Respond(http.StatusInternalServerError, "Internal error.")
		}
		log.Info("admin "+action, "id", id, "by", sub)
		return h.Respond(http.StatusNoContent, "")

	case ActionPublish:
		topic := h.FormValue("topic")
		if topic == "" {
			return h.Respond(http.StatusBadRequest, "Missing topic.")
		}
		data, err := io.ReadAll(io.LimitReader(h.Body(), maxPublish))
		if err != nil {
			return h.Respond(http.StatusBadRequest, "Could not read content.")
		}
		n, err := svc.Publish(ctx, topic, h.Header("Content-Type"), data)
		if err != nil {
			log.Error("could not publish", "topic", topic, "error", err)
			return h.Respond(http.StatusInternalServerError, "Internal error.")
		}
		return h.JSON(http.StatusOK, map[string]int{"subscribers": n})

	default:
		return h.Respond(http.StatusNotFound, "No such action.")
	}
}
