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

package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a protocol failure together with the status code used to
// report it. InvalidInput failures carry 400 and Unsupported ones 501.
type Error struct {
	Code int    // HTTP-equivalent status code.
	Msg  string // Human readable message sent to the other party.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Msg, e.Code)
}

// Response returns the reply that reports e.
func (e *Error) Response() Response {
	return Reply(e.Code, e.Msg)
}

// BadRequest returns an InvalidInput error, i.e., malformed URL or a
// missing required field.
func BadRequest(format string, args ...interface{}) error {
	return &Error{Code: http.StatusBadRequest, Msg: fmt.Sprintf(format, args...)}
}

// NotImplemented returns an Unsupported error, i.e., an unknown mode or
// verify type.
func NotImplemented(format string, args ...interface{}) error {
	return &Error{Code: http.StatusNotImplemented, Msg: fmt.Sprintf(format, args...)}
}

// StatusCode returns the status code carried by err, or 500 when err is
// not a protocol error.
func StatusCode(err error) int {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return http.StatusInternalServerError
}

// IsInvalidInput returns true if err reports malformed input.
func IsInvalidInput(err error) bool {
	return StatusCode(err) == http.StatusBadRequest
}

// IsUnsupported returns true if err reports an unknown mode or verify type.
func IsUnsupported(err error) bool {
	return StatusCode(err) == http.StatusNotImplemented
}
