package ingest

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/notifyd/internal/domain"
)

func b64(v string) string { return base64.StdEncoding.EncodeToString([]byte(v)) }

func encoded(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = b64(v)
	}
	return out
}

func TestDecodeUserRegistered(t *testing.T) {
	t.Parallel()

	values := encoded(map[string]string{
		"eventId":   "e1",
		"timestamp": "2026-03-01T10:00:00Z",
		"userId":    "u1",
		"username":  "ann",
		"email":     "ann@example.com",
		"firstName": "Ann",
	})
	values["init"] = "1"
	values["_source"] = "replay"

	ev, err := Decode(KindUser, values)
	require.NoError(t, err)
	u, ok := ev.(domain.UserRegistered)
	require.True(t, ok)
	assert.Equal(t, "u1", u.UserID)
	assert.Equal(t, "ann@example.com", u.Email)
	assert.Equal(t, "Ann", u.FirstName)
	assert.Equal(t, "e1", u.Meta().ID)
	assert.Equal(t, domain.EventUserRegistered, u.Meta().Type)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), u.Meta().Timestamp)
}

func TestDecodeKeepsRawValues(t *testing.T) {
	t.Parallel()

	ev, err := Decode(KindUser, map[string]string{
		"userId": "u-1",
		"email":  "raw@example.com",
	})
	require.NoError(t, err)
	u := ev.(domain.UserRegistered)
	assert.Equal(t, "u-1", u.UserID)
	assert.Equal(t, "raw@example.com", u.Email)
}

func TestDecodeRejectsMissingUser(t *testing.T) {
	t.Parallel()

	_, err := Decode(KindUser, encoded(map[string]string{"email": "a@b.c"}))
	require.ErrorIs(t, err, domain.ErrDecode)
	assert.Contains(t, err.Error(), "userId")
}

func TestDecodeSessionCompleted(t *testing.T) {
	t.Parallel()

	ev, err := Decode(KindAssessment, encoded(map[string]string{
		"userId":         "u1",
		"sessionId":      "s1",
		"assessmentName": "Go basics",
		"score":          "87.5",
		"status":         "PASSED",
	}))
	require.NoError(t, err)
	s, ok := ev.(domain.SessionCompleted)
	require.True(t, ok)
	assert.Equal(t, 87.5, s.Score)
	assert.Equal(t, "PASSED", s.Status)
	assert.Equal(t, domain.EventSessionCompleted, s.Meta().Type)
}

func TestDecodeUnparseableScore(t *testing.T) {
	t.Parallel()

	_, err := Decode(KindAssessment, encoded(map[string]string{
		"userId":    "u1",
		"sessionId": "s1",
		"score":     "ninety",
	}))
	require.ErrorIs(t, err, domain.ErrDecode)
}

func TestDecodeAssessmentPublished(t *testing.T) {
	t.Parallel()

	ev, err := Decode(KindAssessment, encoded(map[string]string{
		"assessmentId":             "a1",
		"assessmentName":           "Go basics",
		"duration":                 "60",
		"dueDate":                  "2026-04-01",
		"assignedUsers.[1].userId": "u2",
		"assignedUsers.[1].email":  "u2@example.com",
		"assignedUsers.[0].userId": "u1",
		"assignedUsers.[0].email":  "u1@example.com",
	}))
	require.NoError(t, err)
	a, ok := ev.(domain.AssessmentPublished)
	require.True(t, ok)
	assert.Equal(t, 60, a.Duration)
	require.Len(t, a.AssignedUsers, 2)
	assert.Equal(t, "u1", a.AssignedUsers[0].UserID)
	assert.Equal(t, "u2@example.com", a.AssignedUsers[1].Email)
}

func TestDecodeAssessmentExplicitType(t *testing.T) {
	t.Parallel()

	// A sessionId alone would look like session.completed.
	ev, err := Decode(KindAssessment, encoded(map[string]string{
		"type":           domain.EventAssessmentPublished,
		"sessionId":      "s1",
		"assessmentName": "Go basics",
	}))
	require.NoError(t, err)
	_, ok := ev.(domain.AssessmentPublished)
	assert.True(t, ok)
}

func TestDecodeUnknownAssessmentShape(t *testing.T) {
	t.Parallel()

	_, err := Decode(KindAssessment, encoded(map[string]string{"assessmentName": "x"}))
	require.ErrorIs(t, err, domain.ErrDecode)
}

func TestDecodeProctorList(t *testing.T) {
	t.Parallel()

	cases := map[string]map[string]string{
		"indexed": {"proctorIds.[0]": "p1", "proctorIds.[1]": "p2"},
		"json":    {"proctorIds": `["p1","p2"]`},
		"csv":     {"proctorIds": "p1, p2"},
	}
	for name, extra := range cases {
		extra := extra
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			values := map[string]string{"sessionId": "s1", "violationType": "TAB_SWITCH", "severity": "HIGH"}
			for k, v := range extra {
				values[k] = v
			}
			ev, err := Decode(KindProctoring, encoded(values))
			require.NoError(t, err)
			p := ev.(domain.ProctoringViolation)
			assert.Equal(t, []string{"p1", "p2"}, p.ProctorIDs)
			assert.Equal(t, "TAB_SWITCH", p.ViolationType)
		})
	}
}

func TestDecodeProctoringRequiresSession(t *testing.T) {
	t.Parallel()

	_, err := Decode(KindProctoring, encoded(map[string]string{"violationType": "TAB_SWITCH"}))
	require.ErrorIs(t, err, domain.ErrDecode)
}

func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, v := range []string{"2026-03-01T10:00:00Z", "1772359200", "1772359200000"} {
		got, err := parseTimestamp(v)
		require.NoError(t, err, v)
		assert.Equal(t, want, got, v)
	}
	_, err := parseTimestamp("yesterday")
	assert.Error(t, err)
}
