package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/notifyd/internal/adapter/repository/memory"
	"github.com/strogmv/notifyd/internal/config"
	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/port"
)

func TestSeedTemplatesKeepsExisting(t *testing.T) {
	ctx := context.Background()
	custom := &domain.Template{Name: "welcome_user_email", Channel: domain.ChannelEmail, Subject: "Custom", Body: "Hi"}
	store := memory.NewTemplateStore(custom)

	defaults := domain.DefaultTemplates()
	n, err := SeedTemplates(ctx, store, defaults...)
	require.NoError(t, err)
	assert.Equal(t, len(defaults)-1, n)

	got, err := store.Get(ctx, "welcome_user_email")
	require.NoError(t, err)
	assert.Equal(t, "Custom", got.Subject)

	n, err = SeedTemplates(ctx, store, defaults...)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testConfig(t *testing.T, redisAddr string) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.RedisAddr = redisAddr
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.PollInterval = 10 * time.Millisecond
	cfg.PollBlock = 0
	cfg.SMTPHost = "127.0.0.1"
	cfg.SMTPPort = 1
	return cfg
}

func TestContainerRoutesStreamEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())

	c, err := NewContainer(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.Ready(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	_, err = c.Streams.PublishEvent(ctx, cfg.StreamAssessmentEvents, domain.AssessmentPublished{
		AssessmentID:   "a1",
		AssessmentName: "Go basics",
		DueDate:        "2026-04-01",
		AssignedUsers:  []domain.AssignedUser{{UserID: "u1", Username: "ann"}},
	})
	require.NoError(t, err)

	var pushed []*domain.Notification
	require.Eventually(t, func() bool {
		pushed, err = c.RepoNotifications.ListByRecipient(ctx, port.RecipientQuery{RecipientID: "u1", Channel: domain.ChannelPush})
		return err == nil && len(pushed) == 1
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.StatusSent, pushed[0].Status, "an offline recipient still gets a SENT push record")
	assert.Equal(t, "Go basics is due 2026-04-01", pushed[0].Content)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(20 * time.Second):
		t.Fatal("container did not stop")
	}
}

func TestNewContainerFailsWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	mr.Close()

	_, err := NewContainer(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestReadyReportsOpenMailBreaker(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t, mr.Addr())
	cfg.SMTPBreakerFails = 1

	c, err := NewContainer(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	require.NoError(t, c.Ready(context.Background()))

	require.Error(t, c.Mailer.Send(context.Background(), port.EmailMessage{To: "ann@example.com", Subject: "hi"}))

	err = c.Ready(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp: circuit breaker open")
}
