package domain

import "time"

// OverrideEnabledKey disables every channel of an event type when set to false.
const OverrideEnabledKey = "enabled"

type EmailFrequency string

const (
	EmailImmediate EmailFrequency = "IMMEDIATE"
	EmailDaily     EmailFrequency = "DAILY"
	EmailWeekly    EmailFrequency = "WEEKLY"
)

// Preference holds one user's channel settings.
type Preference struct {
	UserID           string                     `json:"userId"`
	GlobalEnabled    bool                       `json:"notificationsEnabled"`
	EmailEnabled     bool                       `json:"emailEnabled"`
	PushEnabled      bool                       `json:"pushEnabled"`
	EmailFrequency   EmailFrequency             `json:"emailFrequency"`
	PerTypeOverrides map[string]map[string]bool `json:"notificationTypes,omitempty"`
	UpdatedAt        time.Time                  `json:"updatedAt"`
}

// NewPreference returns the all-enabled default for a user.
func NewPreference(userID string) *Preference {
	return &Preference{
		UserID:         userID,
		GlobalEnabled:  true,
		EmailEnabled:   true,
		PushEnabled:    true,
		EmailFrequency: EmailImmediate,
	}
}

// Allows decides whether eventType may be delivered over channel.
//
// Precedence: no record allows everything; the master switch off blocks
// everything; a per-type channel override beats the channel's global flag;
// a per-type "enabled": false blocks the remaining channels of that type.
func (p *Preference) Allows(eventType string, channel Channel) bool {
	if p == nil {
		return true
	}
	if !p.GlobalEnabled {
		return false
	}
	if overrides, ok := p.PerTypeOverrides[eventType]; ok {
		if v, ok := overrides[channel.PreferenceKey()]; ok {
			return v
		}
		if v, ok := overrides[OverrideEnabledKey]; ok && !v {
			return false
		}
	}
	switch channel {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelPush:
		return p.PushEnabled
	}
	return false
}
