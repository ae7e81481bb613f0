package smtp

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/pkg/circuitbreaker"
	"github.com/strogmv/notifyd/internal/port"
)

type fakeTransport struct {
	mu   sync.Mutex
	err  error
	sent []string
}

func (f *fakeTransport) DialAndSend(msgs ...*gomail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, m := range msgs {
		var buf bytes.Buffer
		if _, err := m.WriteTo(&buf); err != nil {
			return err
		}
		f.sent = append(f.sent, buf.String())
	}
	return nil
}

func testConfig() Config {
	return Config{From: "noreply@example.com", FromName: "Notifier", BreakerFailures: 2, BreakerReset: time.Minute}
}

func TestMailerSend(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{}
	m := newMailer(tr, testConfig(), nil)

	err := m.Send(context.Background(), port.EmailMessage{To: "ann@example.com", Subject: "Hello", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	require.Len(t, tr.sent, 1)
	assert.Contains(t, tr.sent[0], "To: ann@example.com")
	assert.Contains(t, tr.sent[0], "Subject: Hello")
	assert.Contains(t, tr.sent[0], "noreply@example.com")
	assert.Contains(t, tr.sent[0], "text/html")
}

func TestMailerRequiresRecipient(t *testing.T) {
	t.Parallel()

	m := newMailer(&fakeTransport{}, testConfig(), nil)
	err := m.Send(context.Background(), port.EmailMessage{Subject: "x"})
	assert.ErrorIs(t, err, domain.ErrNoDestination)
}

func TestMailerBreakerOpens(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{err: errors.New("connection refused")}
	m := newMailer(tr, testConfig(), nil)
	ctx := context.Background()
	msg := port.EmailMessage{To: "ann@example.com"}

	for i := 0; i < 2; i++ {
		err := m.Send(ctx, msg)
		require.ErrorIs(t, err, domain.ErrChannelSend)
	}
	assert.Equal(t, circuitbreaker.Open, m.BreakerState())

	tr.err = nil
	err := m.Send(ctx, msg)
	require.ErrorIs(t, err, domain.ErrChannelSend)
	assert.Contains(t, err.Error(), "open")
	assert.Empty(t, tr.sent)
}

func TestMailerRateLimitHonorsContext(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RatePerSecond = 0.001
	m := newMailer(&fakeTransport{}, cfg, nil)

	require.NoError(t, m.Send(context.Background(), port.EmailMessage{To: "a@example.com"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := m.Send(ctx, port.EmailMessage{To: "a@example.com"})
	assert.ErrorIs(t, err, domain.ErrChannelSend)
}
