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

package model

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ausocean/openfish/datastore"
)

const typeNotice = "Notice" // Notice datastore type.

// Notice is an entity in the datastore recording when a notification
// with a given key was last sent.
type Notice struct {
	Key  string    // Notification key, e.g., kind.recipient.
	Sent time.Time // Time last sent.
}

// Encode serializes a Notice into JSON.
func (n *Notice) Encode() []byte {
	b, _ := json.Marshal(n)
	return b
}

// Decode deserializes a Notice from JSON.
func (n *Notice) Decode(b []byte) error {
	err := json.Unmarshal(b, n)
	if err != nil {
		return datastore.ErrDecoding
	}
	return nil
}

// Copy is not currently implemented.
func (n *Notice) Copy(datastore.Entity) (datastore.Entity, error) {
	return nil, datastore.ErrUnimplemented
}

// GetCache returns nil, indicating no caching.
func (n *Notice) GetCache() datastore.Cache {
	return nil
}

// GetNotice gets the notice for the given key.
func GetNotice(ctx context.Context, store datastore.Store, key string) (*Notice, error) {
	n := new(Notice)
	return n, store.Get(ctx, store.NameKey(typeNotice, digest(typeNotice, key)), n)
}

// PutNotice records that a notification with the given key was sent at t.
func PutNotice(ctx context.Context, store datastore.Store, key string, t time.Time) error {
	_, err := store.Put(ctx, store.NameKey(typeNotice, digest(typeNotice, key)), &Notice{Key: key, Sent: t})
	return err
}
