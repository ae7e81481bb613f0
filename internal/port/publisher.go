package port

import (
	"context"

	"github.com/strogmv/notifyd/internal/domain"
)

// OutcomePublisher emits outbound outcome events.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, eventType string, payload any) error
}

// EventPublisher appends inbound events to a stream. Used by tooling and tests.
type EventPublisher interface {
	PublishEvent(ctx context.Context, stream string, event domain.Event) (string, error)
}
