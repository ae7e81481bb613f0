package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/strogmv/notifyd/internal/domain"
)

func TestSubject(t *testing.T) {
	t.Parallel()

	c := newClient(nil, "notifications.")
	assert.Equal(t, "notifications.sent", c.Subject(domain.EventNotificationSent))
	assert.Equal(t, "notifications.bulk_completed", c.Subject(domain.EventBulkCompleted))
	assert.False(t, c.IsConnected())
}
