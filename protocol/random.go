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
	"encoding/hex"
	"fmt"
	"io"
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// TokenLength is the length of verify tokens generated by subscribers.
const TokenLength = 64

// Token returns an n character alphanumeric string drawn from rnd, which
// is normally crypto/rand.Reader. Rejection sampling keeps the alphabet
// uniformly distributed.
func Token(rnd io.Reader, n int) (string, error) {
	const max = 256 - 256%len(tokenAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		_, err := io.ReadFull(rnd, buf)
		if err != nil {
			return "", fmt.Errorf("could not read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= max {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// Challenge returns a 32 character hex challenge drawn from rnd.
func Challenge(rnd io.Reader) (string, error) {
	b := make([]byte, 16)
	_, err := io.ReadFull(rnd, b)
	if err != nil {
		return "", fmt.Errorf("could not read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
