/*
DESCRIPTION
  Wire-level definitions shared by the hub and subscriber roles.

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

// Package protocol holds the PubSubHubbub wire parameters, status
// replies and helpers shared by the hub and subscriber roles.
package protocol

import "net/http"

// Wire parameter names. These are fixed for compatibility with other hubs
// and subscribers.
const (
	ParamMode         = "hub.mode"
	ParamTopic        = "hub.topic"
	ParamCallback     = "hub.callback"
	ParamVerify       = "hub.verify"
	ParamVerifyToken  = "hub.verify_token"
	ParamChallenge    = "hub.challenge"
	ParamLeaseSeconds = "hub.lease_seconds"
)

// LeaseSeconds is the lease applied to every request this system issues
// or processes, regardless of what the other party asked for.
const LeaseSeconds = 604800 // 7 days.

// Response is a status/message pair describing the outcome of one
// protocol exchange. Transports map it onto their own reply, e.g., an
// HTTP status line and body.
type Response struct {
	Status  int
	Message string
}

// IsZero returns true for a response that should not be sent at all.
func (r Response) IsZero() bool {
	return r.Status == 0
}

// Reply returns a Response with the given status and message.
func Reply(status int, msg string) Response {
	return Response{Status: status, Message: msg}
}

// Accepted, NoContent and friends are shorthands for the replies used by
// the protocol status contract.
func Accepted(msg string) Response           { return Reply(http.StatusAccepted, msg) }
func NoContent(msg string) Response          { return Reply(http.StatusNoContent, msg) }
func NotFound(msg string) Response           { return Reply(http.StatusNotFound, msg) }
func PreconditionFailed(msg string) Response { return Reply(http.StatusPreconditionFailed, msg) }

// Success returns true if status is in the 2xx class.
func Success(status int) bool {
	return status >= 200 && status < 300
}
