// Package memory provides in-memory implementations of the stores.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/port"
)

type NotificationRepository struct {
	mu   sync.RWMutex
	data map[string]*domain.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{
		data: make(map[string]*domain.Notification),
	}
}

func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("notification id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[n.ID]; ok {
		return fmt.Errorf("notification %s already exists", n.ID)
	}
	r.data[n.ID] = n.Clone()
	return nil
}

func (r *NotificationRepository) Get(ctx context.Context, id string) (*domain.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.data[id]
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return n.Clone(), nil
}

// Update runs fn under the store lock, so concurrent updates of one record
// are serialized. fn sees a copy; an error from fn discards its changes.
func (r *NotificationRepository) Update(ctx context.Context, id string, fn func(n *domain.Notification) error) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.data[id]
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = cur.ID
	next.Channel = cur.Channel
	r.data[id] = next
	return next.Clone(), nil
}

func (r *NotificationRepository) ListRetryable(ctx context.Context, maxAttempts, limit int) ([]*domain.Notification, error) {
	r.mu.RLock()
	var items []*domain.Notification
	for _, n := range r.data {
		if n.Retryable(maxAttempts) {
			items = append(items, n.Clone())
		}
	}
	r.mu.RUnlock()

	sortOldestFirst(items)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *NotificationRepository) ListByRecipient(ctx context.Context, q port.RecipientQuery) ([]*domain.Notification, error) {
	r.mu.RLock()
	var items []*domain.Notification
	for _, n := range r.data {
		if n.RecipientID != q.RecipientID {
			continue
		}
		if q.Channel != "" && n.Channel != q.Channel {
			continue
		}
		if !q.Since.IsZero() && !n.CreatedAt.After(q.Since) {
			continue
		}
		if q.UnreadOnly && n.IsRead {
			continue
		}
		items = append(items, n.Clone())
	}
	r.mu.RUnlock()

	sortOldestFirst(items)
	// Apply pagination
	if q.Offset >= len(items) {
		return []*domain.Notification{}, nil
	}
	end := len(items)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return items[q.Offset:end], nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.data[id]
	if !ok || n.RecipientID != recipientID {
		return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	n.IsRead = true
	return nil
}

func sortOldestFirst(items []*domain.Notification) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

var _ port.NotificationRepository = (*NotificationRepository)(nil)
