package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/port"
)

// PushEventName is the stream event carrying notification payloads.
const PushEventName = "notification"

// EmailSink delivers EMAIL records through a Mailer. It is async: the
// dispatcher runs it off the routing goroutine.
type EmailSink struct {
	Mailer port.Mailer
}

func (s *EmailSink) Channel() domain.Channel { return domain.ChannelEmail }
func (s *EmailSink) Async() bool             { return true }

func (s *EmailSink) Send(ctx context.Context, n *domain.Notification) error {
	to := n.Email()
	if to == "" {
		return fmt.Errorf("recipient %s: %w", n.RecipientID, domain.ErrNoDestination)
	}
	return s.Mailer.Send(ctx, port.EmailMessage{To: to, Subject: n.Subject, HTML: n.Content})
}

// PushSink writes PUSH records to the recipient's live connection. A
// recipient without a live connection is not an error; the record stays
// readable through the inbox.
type PushSink struct {
	Registry port.PushSender
	Now      func() time.Time
}

func (s *PushSink) Channel() domain.Channel { return domain.ChannelPush }
func (s *PushSink) Async() bool             { return false }

func (s *PushSink) Send(ctx context.Context, n *domain.Notification) error {
	if s.Registry.SendToUser(n.RecipientID, PushEventName, PushPayload(n)) {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		at := now()
		n.DeliveredAt = &at
	}
	return nil
}

// PushPayload is the JSON body of a "notification" push event.
func PushPayload(n *domain.Notification) map[string]any {
	return map[string]any{
		"id":        n.ID,
		"type":      n.Type,
		"subject":   n.Subject,
		"content":   n.Content,
		"createdAt": n.CreatedAt,
		"isRead":    n.IsRead,
	}
}

// Table indexes senders by channel. A later sender for the same channel
// replaces an earlier one.
func Table(senders ...port.ChannelSender) map[domain.Channel]port.ChannelSender {
	t := make(map[domain.Channel]port.ChannelSender, len(senders))
	for _, s := range senders {
		if s != nil {
			t[s.Channel()] = s
		}
	}
	return t
}

var (
	_ port.ChannelSender = (*EmailSink)(nil)
	_ port.ChannelSender = (*PushSink)(nil)
)
