package domain

import (
	"fmt"
	"strings"
	"time"
)

// Channel is a delivery medium. The set is closed.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelEmail, ChannelPush}

// ParseChannel accepts any casing of a known channel name.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToUpper(strings.TrimSpace(s))) {
	case ChannelEmail:
		return ChannelEmail, nil
	case ChannelPush:
		return ChannelPush, nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

// PreferenceKey is the key used for this channel in preference overrides.
func (c Channel) PreferenceKey() string {
	return strings.ToLower(string(c)) + "Enabled"
}

func (c Channel) String() string { return string(c) }

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Notification is one (event, channel) delivery record.
type Notification struct {
	ID             string     `json:"id"`
	RecipientID    string     `json:"recipientId"`
	RecipientEmail *string    `json:"recipientEmail,omitempty"`
	Type           string     `json:"type"`
	Channel        Channel    `json:"channel"`
	Subject        string     `json:"subject"`
	Content        string     `json:"content"`
	Status         Status     `json:"status"`
	RetryCount     int        `json:"retryCount"`
	ErrorMessage   string     `json:"errorMessage,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
	DeliveredAt    *time.Time `json:"deliveredAt,omitempty"`
	IsRead         bool       `json:"isRead"`
}

// Email returns the recipient address or "" when none is known.
func (n *Notification) Email() string {
	if n.RecipientEmail == nil {
		return ""
	}
	return strings.TrimSpace(*n.RecipientEmail)
}

// Retryable reports whether a sweep may re-dispatch the record.
func (n *Notification) Retryable(maxAttempts int) bool {
	return n.Status == StatusFailed && n.RetryCount < maxAttempts
}

// Terminal reports whether the record will never change status again.
func (n *Notification) Terminal(maxAttempts int) bool {
	return n.Status == StatusSent || (n.Status == StatusFailed && n.RetryCount >= maxAttempts)
}

// MarkSent moves the record to SENT.
func (n *Notification) MarkSent(at time.Time) {
	n.Status = StatusSent
	n.ErrorMessage = ""
	n.SentAt = &at
}

// MarkFailed records one failed attempt. RetryCount never exceeds maxAttempts.
func (n *Notification) MarkFailed(reason string, maxAttempts int) {
	if n.RetryCount < maxAttempts {
		n.RetryCount++
	}
	n.Status = StatusFailed
	n.ErrorMessage = reason
}

// MarkPermanent fails the record with no retry left.
func (n *Notification) MarkPermanent(reason string, maxAttempts int) {
	if n.RetryCount < maxAttempts {
		n.RetryCount = maxAttempts
	}
	n.Status = StatusFailed
	n.ErrorMessage = reason
}

// Clone returns a deep copy safe to hand out of a store.
func (n *Notification) Clone() *Notification {
	if n == nil {
		return nil
	}
	c := *n
	if n.RecipientEmail != nil {
		v := *n.RecipientEmail
		c.RecipientEmail = &v
	}
	if n.SentAt != nil {
		v := *n.SentAt
		c.SentAt = &v
	}
	if n.DeliveredAt != nil {
		v := *n.DeliveredAt
		c.DeliveredAt = &v
	}
	return &c
}

// StringPtr returns nil for blank strings.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
