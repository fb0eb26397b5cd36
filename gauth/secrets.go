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

// Package gauth provides secrets loading and JSON Web Token (JWT)
// signing for hubbub services.
package gauth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/ausocean/utils/filemap"
)

// The URL scheme that represents a Google Storage Bucket.
const gsbScheme = "gs://"

// GetSecrets looks up secrets from either a file or Google Storage
// bucket specified by the <PROJECTID>_SECRETS environment variable.
// Each line is a colon-separated key and value.
// The keys argument specifies required keys.
func GetSecrets(ctx context.Context, projectID string, keys []string) (map[string]string, error) {
	ev := strings.ToUpper(projectID) + "_SECRETS"
	url := os.Getenv(ev)
	if url == "" {
		return nil, errors.New(ev + " environment variable not defined")
	}
	return ReadSecrets(ctx, url, keys)
}

// ReadSecrets reads secrets from the file or Google Storage bucket
// object at url, returning an error if any of keys is missing.
func ReadSecrets(ctx context.Context, url string, keys []string) (map[string]string, error) {
	var b []byte
	var err error
	if strings.HasPrefix(url, gsbScheme) {
		b, err = ReadGoogleStorageBucket(ctx, url)
	} else {
		b, err = os.ReadFile(url)
	}
	if err != nil {
		return nil, err
	}
	return ParseSecrets(string(b), keys)
}

// ParseSecrets parses colon-separated key/value pairs, one per line.
func ParseSecrets(s string, keys []string) (map[string]string, error) {
	// Strip carriage returns, if any.
	s = strings.ReplaceAll(s, "\r", "")
	m := filemap.Split(strings.TrimSpace(s), "\n", ":")
	for _, k := range keys {
		if m[k] == "" {
			return m, fmt.Errorf("missing key %s", k)
		}
	}
	return m, nil
}

// ReadGoogleStorageBucket read the contents of the Google Storage
// bucket specified by the URL.  The URL must take the form:
// gs://<bucket_name>/<object_name>
func ReadGoogleStorageBucket(ctx context.Context, url string) ([]byte, error) {
	bucket, object, err := splitGSB(url)
	if err != nil {
		return nil, err
	}

	clt, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot create GSB client: %w", err)
	}
	defer clt.Close()

	r, err := clt.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot create GSB reader: %w", err)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return b, fmt.Errorf("cannot read GSB: %w", err)
	}
	return b, nil
}

// splitGSB splits a gs:// URL into its bucket and object names.
func splitGSB(url string) (string, string, error) {
	if !strings.HasPrefix(url, gsbScheme) {
		return "", "", fmt.Errorf("invalid GSB URL %s", url)
	}
	path := url[len(gsbScheme):]
	sep := strings.IndexByte(path, '/')
	if sep <= 0 || sep == len(path)-1 {
		return "", "", fmt.Errorf("invalid GSB URL %s", url)
	}
	return path[:sep], path[sep+1:], nil
}

// GetSecret gets a single secret from either a file or Google Storage
// bucket specified by the <PROJECTID>_SECRETS environment variable.
func GetSecret(ctx context.Context, projectID, key string) (string, error) {
	secrets, err := GetSecrets(ctx, projectID, []string{key})
	if err != nil {
		return "", err
	}
	return secrets[key], nil
}

// GetHexSecret gets a single hex-encoded secret and returns the decoded bytes.
func GetHexSecret(ctx context.Context, projectID, key string) ([]byte, error) {
	v, err := GetSecret(ctx, projectID, key)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(v)
}
