package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/port"
)

func newRecord(id, recipient string, ch domain.Channel, at time.Time) *domain.Notification {
	return &domain.Notification{
		ID:          id,
		RecipientID: recipient,
		Type:        domain.EventAssessmentPublished,
		Channel:     ch,
		Status:      domain.StatusPending,
		CreatedAt:   at,
	}
}

func TestNotificationRepositoryCreateGet(t *testing.T) {
	t.Parallel()

	repo := NewNotificationRepository()
	ctx := context.Background()
	n := newRecord("n1", "u1", domain.ChannelEmail, time.Now())
	require.NoError(t, repo.Create(ctx, n))
	require.Error(t, repo.Create(ctx, n))

	got, err := repo.Get(ctx, "n1")
	require.NoError(t, err)
	got.Status = domain.StatusSent

	again, err := repo.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, again.Status, "stored record must not alias returned copies")

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotificationRepositoryUpdate(t *testing.T) {
	t.Parallel()

	repo := NewNotificationRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRecord("n1", "u1", domain.ChannelEmail, time.Now())))

	boom := errors.New("boom")
	_, err := repo.Update(ctx, "n1", func(n *domain.Notification) error {
		n.Status = domain.StatusSent
		return boom
	})
	require.ErrorIs(t, err, boom)
	got, _ := repo.Get(ctx, "n1")
	assert.Equal(t, domain.StatusPending, got.Status)

	updated, err := repo.Update(ctx, "n1", func(n *domain.Notification) error {
		n.Channel = domain.ChannelPush
		n.MarkFailed("smtp down", 3)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelEmail, updated.Channel, "channel is immutable")
	assert.Equal(t, 1, updated.RetryCount)

	_, err = repo.Update(ctx, "missing", func(*domain.Notification) error { return nil })
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNotificationRepositoryConcurrentUpdates(t *testing.T) {
	t.Parallel()

	repo := NewNotificationRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newRecord("n1", "u1", domain.ChannelEmail, time.Now())))

	const maxAttempts = 3
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.Update(ctx, "n1", func(n *domain.Notification) error {
				n.MarkFailed("down", maxAttempts)
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := repo.Get(ctx, "n1")
	assert.Equal(t, maxAttempts, got.RetryCount)
}

func TestNotificationRepositoryListRetryable(t *testing.T) {
	t.Parallel()

	repo := NewNotificationRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, rc := range []int{0, 2, 3, 1} {
		n := newRecord(fmt.Sprintf("n%d", i), "u1", domain.ChannelEmail, base.Add(time.Duration(3-i)*time.Minute))
		n.Status = domain.StatusFailed
		n.RetryCount = rc
		require.NoError(t, repo.Create(ctx, n))
	}
	sent := newRecord("sent", "u1", domain.ChannelEmail, base)
	sent.Status = domain.StatusSent
	require.NoError(t, repo.Create(ctx, sent))

	items, err := repo.ListRetryable(ctx, 3, 10)
	require.NoError(t, err)
	var ids []string
	for _, n := range items {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"n3", "n1", "n0"}, ids)

	items, err = repo.ListRetryable(ctx, 3, 1)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "n3", items[0].ID)
}

func TestNotificationRepositoryInbox(t *testing.T) {
	t.Parallel()

	repo := NewNotificationRepository()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(ctx, newRecord("a", "u1", domain.ChannelPush, base)))
	require.NoError(t, repo.Create(ctx, newRecord("b", "u1", domain.ChannelEmail, base.Add(time.Minute))))
	require.NoError(t, repo.Create(ctx, newRecord("c", "u1", domain.ChannelPush, base.Add(2*time.Minute))))
	require.NoError(t, repo.Create(ctx, newRecord("d", "u2", domain.ChannelPush, base)))

	push, err := repo.ListByRecipient(ctx, port.RecipientQuery{RecipientID: "u1", Channel: domain.ChannelPush})
	require.NoError(t, err)
	require.Len(t, push, 2)
	assert.Equal(t, "a", push[0].ID)

	since, err := repo.ListByRecipient(ctx, port.RecipientQuery{RecipientID: "u1", Since: base})
	require.NoError(t, err)
	assert.Len(t, since, 2)

	require.NoError(t, repo.MarkRead(ctx, "u1", "a"))
	assert.ErrorIs(t, repo.MarkRead(ctx, "u2", "b"), domain.ErrNotFound)

	unread, err := repo.ListByRecipient(ctx, port.RecipientQuery{RecipientID: "u1", UnreadOnly: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "b", unread[0].ID)

	empty, err := repo.ListByRecipient(ctx, port.RecipientQuery{RecipientID: "u1", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestPreferenceStore(t *testing.T) {
	t.Parallel()

	s := NewPreferenceStore()
	ctx := context.Background()

	p, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, p)

	pref := domain.NewPreference("u1")
	pref.PerTypeOverrides = map[string]map[string]bool{domain.EventUserRegistered: {"emailEnabled": false}}
	require.NoError(t, s.Save(ctx, pref))
	pref.PerTypeOverrides[domain.EventUserRegistered]["emailEnabled"] = true

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, got.PerTypeOverrides[domain.EventUserRegistered]["emailEnabled"])
}

func TestTemplateStoreSeed(t *testing.T) {
	t.Parallel()

	s := NewTemplateStore(domain.DefaultTemplates()...)
	ctx := context.Background()

	tpl, err := s.Get(ctx, "welcome_user_email")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelEmail, tpl.Channel)

	_, err = s.Get(ctx, "welcome_user_push")
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)
}
