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
	"bytes"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"http://localhost/", true},
		{"https://example.com/pubsub/123", true},
		{"http://example.com/cb?x=1", true},
		{"HTTP://EXAMPLE.COM", true},
		{"badval", false},
		{"", false},
		{"ftp://example.com/", false},
		{"http://", false},
		{"/relative/path", false},
		{"http://exa mple.com/", false},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, ValidURL(test.url), "url: %q", test.url)
	}
}

func TestToken(t *testing.T) {
	tok, err := Token(rand.Reader, TokenLength)
	require.NoError(t, err)
	assert.Len(t, tok, TokenLength)
	for _, c := range tok {
		assert.True(t, strings.ContainsRune(tokenAlphabet, c), "unexpected rune %q", c)
	}

	// A deterministic source yields a deterministic token.
	src := bytes.Repeat([]byte{0, 1, 2}, 64)
	a, err := Token(bytes.NewReader(src), 6)
	require.NoError(t, err)
	assert.Equal(t, "abcabc", a)

	// Bytes outside the unbiased range are skipped.
	b, err := Token(bytes.NewReader([]byte{255, 254, 1, 1}), 2)
	require.NoError(t, err)
	assert.Equal(t, "bb", b)

	_, err = Token(bytes.NewReader(nil), 4)
	assert.Error(t, err)
}

func TestChallenge(t *testing.T) {
	c, err := Challenge(bytes.NewReader(bytes.Repeat([]byte{0xab}, 16)))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("ab", 16), c)

	_, err = Challenge(bytes.NewReader([]byte{1}))
	assert.Error(t, err)
}

func TestStatusCode(t *testing.T) {
	bad := BadRequest("missing %s", ParamTopic)
	assert.Equal(t, http.StatusBadRequest, StatusCode(bad))
	assert.True(t, IsInvalidInput(bad))
	assert.Equal(t, "missing hub.topic (code: 400)", bad.Error())

	wrapped := fmt.Errorf("processing: %w", NotImplemented("mode not accepted"))
	assert.Equal(t, http.StatusNotImplemented, StatusCode(wrapped))
	assert.True(t, IsUnsupported(wrapped))

	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("boom")))

	var pe *Error
	require.True(t, errors.As(wrapped, &pe))
	assert.Equal(t, Response{Status: 501, Message: "mode not accepted"}, pe.Response())
}

func TestSuccess(t *testing.T) {
	for _, s := range []int{200, 202, 204, 299} {
		assert.True(t, Success(s), "status %d", s)
	}
	for _, s := range []int{0, 199, 300, 404, 500} {
		assert.False(t, Success(s), "status %d", s)
	}
}
