package redisstream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/notifyd/internal/domain"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func decode(t *testing.T, v string) string {
	t.Helper()
	b, err := base64.StdEncoding.DecodeString(v)
	require.NoError(t, err)
	return string(b)
}

func TestEncodeEventFlattensAssignedUsers(t *testing.T) {
	t.Parallel()

	ev := domain.AssessmentPublished{
		Envelope:       domain.Envelope{ID: "e1", Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		AssessmentID:   "a1",
		AssessmentName: "Algebra",
		Duration:       60,
		AssignedUsers: []domain.AssignedUser{
			{UserID: "u1", Username: "ann", Email: "ann@example.com"},
			{UserID: "u2", Username: "bob"},
		},
	}
	fields, err := EncodeEvent(ev, time.Now())
	require.NoError(t, err)

	got := map[string]string{}
	for k, v := range fields {
		got[k] = decode(t, v.(string))
	}
	assert.Equal(t, "e1", got["eventId"])
	assert.Equal(t, "Algebra", got["assessmentName"])
	assert.Equal(t, "60", got["duration"])
	assert.Equal(t, "u1", got["assignedUsers.[0].userId"])
	assert.Equal(t, "ann@example.com", got["assignedUsers.[0].email"])
	assert.Equal(t, "bob", got["assignedUsers.[1].username"])
	_, hasEmptyEmail := got["assignedUsers.[1].email"]
	assert.False(t, hasEmptyEmail)
	_, hasEmptyType := got["type"]
	assert.False(t, hasEmptyType)
}

func TestEncodeEventFillsEnvelope(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	fields, err := EncodeEvent(domain.UserRegistered{UserID: "u1"}, now)
	require.NoError(t, err)
	assert.NotEmpty(t, decode(t, fields["eventId"].(string)))
	assert.Equal(t, "2026-02-03T04:05:06Z", decode(t, fields["timestamp"].(string)))
}

func TestReaderGroupLifecycle(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()
	r := NewReader(client, "g", "c1")

	require.NoError(t, r.EnsureGroup(ctx, "s"))
	require.NoError(t, r.EnsureGroup(ctx, "s"), "existing group must be accepted")

	pub := NewPublisher(client, "out")
	id, err := pub.PublishEvent(ctx, "s", domain.UserRegistered{UserID: "u1", Email: "a@b.c"})
	require.NoError(t, err)

	entries, err := r.ReadNew(ctx, "s", 10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, "u1", decode(t, entries[0].Values["userId"]))

	// Delivered but not acknowledged: visible as pending, not as new.
	again, err := r.ReadNew(ctx, "s", 10, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, again)

	pending, err := r.ReadPending(ctx, "s", "0", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, id, pending[0].ID)

	require.NoError(t, r.Ack(ctx, "s", id))
	pending, err = r.ReadPending(ctx, "s", "0", 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestReaderMissingGroup(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()
	r := NewReader(client, "g", "c1")

	_, err := r.ReadNew(ctx, "nostream", 10, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsNoGroup(err), err.Error())
}

func TestErrorClassifiers(t *testing.T) {
	t.Parallel()

	assert.True(t, IsBusyGroup(errors.New("BUSYGROUP Consumer Group name already exists")))
	assert.False(t, IsBusyGroup(nil))
	assert.True(t, IsNoGroup(errors.New("NOGROUP No such key 's' or consumer group 'g'")))
	assert.False(t, IsNoGroup(errors.New("ERR syntax")))
}

func TestPublishOutcome(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	pub := NewPublisher(client, "notification:notification-events")

	payload := domain.NotificationFailed{NotificationID: "n1", RetryCount: 3, WillRetry: false}
	require.NoError(t, pub.PublishOutcome(ctx, domain.EventNotificationFailed, payload))

	entries, err := mr.Stream("notification:notification-events")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	fields := map[string]string{}
	v := entries[0].Values
	for i := 0; i+1 < len(v); i += 2 {
		fields[v[i]] = v[i+1]
	}
	assert.Equal(t, domain.EventNotificationFailed, fields["type"])
	assert.NotEmpty(t, fields["eventId"])
	assert.NotEmpty(t, fields["timestamp"])

	var got domain.NotificationFailed
	require.NoError(t, json.Unmarshal([]byte(fields["payload"]), &got))
	assert.Equal(t, payload, got)
}

func TestDeadLetter(t *testing.T) {
	mr, client := newClient(t)
	pub := NewPublisher(client, "out")

	entry := Entry{ID: "1-0", Values: map[string]string{"userId": "not base64?"}}
	require.NoError(t, pub.DeadLetter(context.Background(), "dlq", "notification:user-events", entry, errors.New("bad")))

	entries, err := mr.Stream("dlq")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Values, "_source")
	assert.Contains(t, entries[0].Values, "notification:user-events")
	assert.Contains(t, entries[0].Values, "not base64?")
}
