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
	"context"
	"os"
	"testing"
	"time"

	"github.com/ausocean/openfish/datastore"
	"github.com/ausocean/utils/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ausocean/pubsub/gauth"
	"github.com/ausocean/pubsub/model"
)

const (
	projectID = "hubbub"
	message   = "Subscription awaiting approval: testtopic"
	recipient = "testing@ausocean.org"
)

// testStore implements a dummy time store for testing purposes.
type testStore struct {
	Attempted int
	Delivered int
	Keys      []string
}

// TestNotifierStore tests the time store functionality.
// For this test, we supply a test store without any secrets.
func TestNotifierStore(t *testing.T) {
	ctx := context.Background()

	n := Notifier{}
	ts := testStore{}
	err := n.Init(WithStore(&ts), WithLogger((*logging.TestLogger)(t)))
	if err != nil {
		t.Errorf("Init failed with error: %v", err)
	}

	// Even numbered attempts should not be delivered.
	tests1 := []struct {
		attempted int
		delivered int
	}{
		{
			attempted: 1,
			delivered: 1,
		},
		{
			attempted: 2,
			delivered: 1,
		},
		{
			attempted: 3,
			delivered: 2,
		},
	}

	for i, test := range tests1 {
		err = n.Send(ctx, KindApproval, message)
		if err != nil {
			t.Errorf("Send #%d failed with error: %v", i, err)
		}
		if ts.Attempted != test.attempted {
			t.Errorf("Expected attempted to be %d, got  %d", test.attempted, ts.Attempted)
		}
		if ts.Delivered != test.delivered {
			t.Errorf("Expected delivered to be %d, got %d", test.delivered, ts.Delivered)
		}
	}

	// Now try with filters.
	tests2 := []struct {
		filter    string
		attempted int
		delivered int
	}{
		{
			filter:    "testtopic",
			attempted: 4,
			delivered: 2,
		},
		{
			filter:    "approval",
			attempted: 5,
			delivered: 3,
		},
		{
			filter:    "Error:",
			attempted: 5,
			delivered: 3,
		},
	}
	for i, test := range tests2 {
		// Re-initialize with the filter.
		err = n.Init(WithFilter(test.filter), WithStore(&ts))
		if err != nil {
			t.Errorf("Init failed with error: %v", err)
		}
		err = n.Send(ctx, KindApproval, message)
		if err != nil {
			t.Errorf("Send #%d failed with error: %v", i, err)
		}
		if ts.Attempted != test.attempted {
			t.Errorf("Expected attempted to be %d, got  %d", test.attempted, ts.Attempted)
		}
		if ts.Delivered != test.delivered {
			t.Errorf("Expected delivered to be %d, got %d", test.delivered, ts.Delivered)
		}
	}
}

// TestRecipients tests that each recipient is throttled separately.
func TestRecipients(t *testing.T) {
	ctx := context.Background()

	n := Notifier{}
	ts := testStore{}
	err := n.Init(WithStore(&ts), WithRecipients([]string{"a@ausocean.org", "b@ausocean.org"}))
	require.NoError(t, err)

	require.NoError(t, n.Send(ctx, KindApproval, message))
	assert.Equal(t, 2, ts.Attempted)
	assert.Equal(t, 1, ts.Delivered)
	assert.Equal(t, []string{"approval.a@ausocean.org"}, ts.Keys)

	assert.Error(t, n.Init(WithRecipients(nil)))
	assert.Error(t, n.Init(WithPeriod(-time.Minute)))
	assert.Error(t, n.Init(WithSecrets(map[string]string{"mailjetPublicKey": "x"})))
}

// TestTimeStore tests the datastore backed time store.
func TestTimeStore(t *testing.T) {
	ctx := context.Background()
	model.RegisterEntities()
	ds, err := datastore.NewStore(ctx, "file", "hubbubtest", t.TempDir())
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := &timeStore{store: ds, now: func() time.Time { return now }}

	ok, err := ts.Sendable(ctx, time.Hour, "approval."+recipient)
	require.NoError(t, err)
	assert.True(t, ok, "first message should be sendable")

	require.NoError(t, ts.Sent(ctx, "approval."+recipient))
	ok, err = ts.Sendable(ctx, time.Hour, "approval."+recipient)
	require.NoError(t, err)
	assert.False(t, ok, "message sent too recently")

	now = now.Add(time.Hour)
	ok, err = ts.Sendable(ctx, time.Hour, "approval."+recipient)
	require.NoError(t, err)
	assert.True(t, ok, "period has elapsed")
}

func TestGetOpsEnvVars(t *testing.T) {
	t.Setenv("OPS_EMAIL", "a@ausocean.org,b@ausocean.org")
	t.Setenv("OPS_PERIOD", "5")
	recipients, period, err := GetOpsEnvVars()
	require.NoError(t, err)
	assert.Equal(t, []string{"a@ausocean.org", "b@ausocean.org"}, recipients)
	assert.Equal(t, 5*time.Minute, period)

	t.Setenv("OPS_PERIOD", "often")
	_, _, err = GetOpsEnvVars()
	assert.Error(t, err)
}

// TestSend tests sending an actual email.
// For this test, we supply secrets and a test recipient.
// It is recommended to run this only locally, as it sends actual emails.
func TestSend(t *testing.T) {
	if os.Getenv("HUBBUB_SECRETS") == "" {
		t.Skip("HUBBUB_SECRETS required for TestSend")
	}

	ctx := context.Background()
	n := Notifier{}

	secrets, err := gauth.GetSecrets(ctx, projectID, nil)
	if err != nil {
		t.Errorf("Could not get secrets for %s: %v", projectID, err)
	}

	err = n.Init(WithSecrets(secrets), WithRecipient(recipient))
	if err != nil {
		t.Errorf("Init failed with error: %v", err)
	}

	err = n.Send(ctx, KindApproval, message)
	if err != nil {
		t.Errorf("Send failed with error: %v", err)
	}
}

// Sendable alternates between returning true and false.
func (ts *testStore) Sendable(ctx context.Context, period time.Duration, key string) (bool, error) {
	ts.Attempted++
	if ts.Attempted%2 == 0 {
		return false, nil
	} else {
		return true, nil
	}
}

// Sent just increments the sent counter.
func (ts *testStore) Sent(ctx context.Context, key string) error {
	ts.Delivered++
	ts.Keys = append(ts.Keys, key)
	return nil
}
