package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreferenceAllowsWithoutRecord(t *testing.T) {
	t.Parallel()

	var p *Preference
	for _, ch := range Channels {
		assert.True(t, p.Allows(EventUserRegistered, ch), ch)
	}
}

func TestPreferencePrecedence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		pref    Preference
		channel Channel
		want    bool
	}{
		{
			name:    "master switch off blocks overrides",
			pref:    Preference{GlobalEnabled: false, EmailEnabled: true, PerTypeOverrides: map[string]map[string]bool{EventAssessmentPublished: {"emailEnabled": true}}},
			channel: ChannelEmail,
			want:    false,
		},
		{
			name:    "override enables a globally disabled channel",
			pref:    Preference{GlobalEnabled: true, EmailEnabled: false, PerTypeOverrides: map[string]map[string]bool{EventAssessmentPublished: {"emailEnabled": true}}},
			channel: ChannelEmail,
			want:    true,
		},
		{
			name:    "override disables a globally enabled channel",
			pref:    Preference{GlobalEnabled: true, PushEnabled: true, PerTypeOverrides: map[string]map[string]bool{EventAssessmentPublished: {"pushEnabled": false}}},
			channel: ChannelPush,
			want:    false,
		},
		{
			name:    "type disabled blocks channel without its own override",
			pref:    Preference{GlobalEnabled: true, PushEnabled: true, PerTypeOverrides: map[string]map[string]bool{EventAssessmentPublished: {"enabled": false}}},
			channel: ChannelPush,
			want:    false,
		},
		{
			name:    "channel override beats type disabled",
			pref:    Preference{GlobalEnabled: true, PerTypeOverrides: map[string]map[string]bool{EventAssessmentPublished: {"enabled": false, "pushEnabled": true}}},
			channel: ChannelPush,
			want:    true,
		},
		{
			name:    "override for another type is ignored",
			pref:    Preference{GlobalEnabled: true, EmailEnabled: false, PerTypeOverrides: map[string]map[string]bool{EventUserRegistered: {"emailEnabled": true}}},
			channel: ChannelEmail,
			want:    false,
		},
		{
			name:    "falls back to channel flag",
			pref:    Preference{GlobalEnabled: true, PushEnabled: true},
			channel: ChannelPush,
			want:    true,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.pref.Allows(EventAssessmentPublished, tc.channel))
		})
	}
}

func TestTemplateName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "welcome_user_email", TemplateName(EventUserRegistered, ChannelEmail))
	assert.Equal(t, "new_assessment_assigned_push", TemplateName(EventAssessmentPublished, ChannelPush))
	assert.Equal(t, "grade_posted_push", TemplateName("grade.posted", ChannelPush))
}

func TestParseChannel(t *testing.T) {
	t.Parallel()

	ch, err := ParseChannel(" push ")
	require.NoError(t, err)
	assert.Equal(t, ChannelPush, ch)

	_, err = ParseChannel("sms")
	assert.Error(t, err)
}

func TestNotificationRetryCountIsBounded(t *testing.T) {
	t.Parallel()

	const maxAttempts = 3
	n := &Notification{Status: StatusPending}
	for i := 1; i <= 5; i++ {
		n.MarkFailed("smtp down", maxAttempts)
		assert.LessOrEqual(t, n.RetryCount, maxAttempts)
	}
	assert.Equal(t, maxAttempts, n.RetryCount)
	assert.False(t, n.Retryable(maxAttempts))
	assert.True(t, n.Terminal(maxAttempts))
}

func TestNotificationPermanentFailure(t *testing.T) {
	t.Parallel()

	n := &Notification{Status: StatusPending, RetryCount: 1}
	n.MarkPermanent("no destination", 3)
	assert.Equal(t, StatusFailed, n.Status)
	assert.Equal(t, 3, n.RetryCount)
	assert.True(t, n.Terminal(3))
}

func TestNotificationMarkSent(t *testing.T) {
	t.Parallel()

	n := &Notification{Status: StatusFailed, RetryCount: 2, ErrorMessage: "boom"}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n.MarkSent(at)
	assert.Equal(t, StatusSent, n.Status)
	assert.Equal(t, 2, n.RetryCount)
	assert.Empty(t, n.ErrorMessage)
	require.NotNil(t, n.SentAt)
	assert.Equal(t, at, *n.SentAt)
}

func TestNotificationClone(t *testing.T) {
	t.Parallel()

	n := &Notification{ID: "n1", RecipientEmail: StringPtr("a@b.c")}
	c := n.Clone()
	*c.RecipientEmail = "x@y.z"
	assert.Equal(t, "a@b.c", n.Email())
	assert.Nil(t, StringPtr("  "))
}
