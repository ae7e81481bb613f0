package port

import (
	"context"

	"github.com/strogmv/notifyd/internal/domain"
)

// ChannelSender delivers a notification record over one channel.
//
// A nil error from Send means the record may be marked SENT. Async reports
// whether delivery continues in the background; async senders are invoked
// off the caller's goroutine by the dispatcher.
type ChannelSender interface {
	Channel() domain.Channel
	Async() bool
	Send(ctx context.Context, n *domain.Notification) error
}

// NotificationDispatcher hands a record to its channel sender.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, n *domain.Notification)
}

// Mailer is the transport-level email primitive.
type Mailer interface {
	Send(ctx context.Context, msg EmailMessage) error
}

type EmailMessage struct {
	To      string
	Subject string
	HTML    string
}

// PushSender is the part of the connection registry the dispatcher needs.
type PushSender interface {
	SendToUser(userID, eventName string, payload any) bool
}
