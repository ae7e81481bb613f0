package port

import (
	"context"
	"time"

	"github.com/strogmv/notifyd/internal/domain"
)

// NotificationRepository stores notification records.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, id string) (*domain.Notification, error)
	// Update applies fn to the stored record atomically and persists the
	// result. It returns the updated record. domain.ErrNotFound is returned
	// for unknown ids.
	Update(ctx context.Context, id string, fn func(n *domain.Notification) error) (*domain.Notification, error)
	// ListRetryable returns FAILED records with RetryCount < maxAttempts,
	// oldest first.
	ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*domain.Notification, error)
	ListByRecipient(ctx context.Context, q RecipientQuery) ([]*domain.Notification, error)
	MarkRead(ctx context.Context, recipientID, id string) error
}

// RecipientQuery filters a recipient's inbox.
type RecipientQuery struct {
	RecipientID string
	Channel     domain.Channel
	Since       time.Time
	UnreadOnly  bool
	Offset      int
	Limit       int
}

// PreferenceStore looks up user preferences. A nil preference with a nil
// error means the user has no record.
type PreferenceStore interface {
	Get(ctx context.Context, userID string) (*domain.Preference, error)
	Save(ctx context.Context, p *domain.Preference) error
}

// TemplateStore looks up templates by name. Unknown names return
// domain.ErrTemplateNotFound.
type TemplateStore interface {
	Get(ctx context.Context, name string) (*domain.Template, error)
	Save(ctx context.Context, t *domain.Template) error
}
