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

package gauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Audience of tokens that grant access to the hub admin API.
const AdminAudience = "hubbub-admin"

// PutClaims digitally signs JSON Web Token (JWT) claims using the
// supplied secret by means of the HMAC-SHA-256 signing method.
func PutClaims(claims map[string]interface{}, secret []byte) (string, error) {
	if secret == nil {
		return "", errors.New("missing secret")
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims))
	tokString, err := tok.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("error signing token: %w", err)
	}
	return tokString, nil
}

// GetClaims retrieves JWT claims from a token string using the supplied secret.
// Any "Bearer" string prefix will be ignored.
func GetClaims(tokString string, secret []byte) (map[string]interface{}, error) {
	tokString = strings.TrimPrefix(tokString, "Bearer ")
	if tokString == "" {
		return nil, errors.New("missing token")
	}
	if secret == nil {
		return nil, errors.New("missing secret")
	}
	tok, err := jwt.Parse(tokString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not parse token: %w", err)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !tok.Valid || !ok {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// NewAdminToken returns a signed admin token for subject, e.g., an
// operator's email address, that expires after ttl.
func NewAdminToken(subject string, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	return PutClaims(map[string]interface{}{
		"iss": "hubbub",
		"sub": subject,
		"aud": AdminAudience,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}, secret)
}

// CheckAdminToken verifies an admin token, with or without a "Bearer"
// prefix, and returns its subject. Expired tokens are rejected by
// GetClaims.
func CheckAdminToken(tokString string, secret []byte) (string, error) {
	claims, err := GetClaims(tokString, secret)
	if err != nil {
		return "", err
	}
	if aud, _ := claims["aud"].(string); aud != AdminAudience {
		return "", errors.New("not an admin token")
	}
	if _, ok := claims["exp"]; !ok {
		return "", errors.New("admin token has no expiry")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", errors.New("admin token has no subject")
	}
	return sub, nil
}
