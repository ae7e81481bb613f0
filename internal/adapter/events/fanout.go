// Package events fans outcome events out to every configured transport.
package events

import (
	"context"
	"errors"

	"github.com/strogmv/notifyd/internal/port"
)

// Fanout publishes each outcome to every publisher. A failing publisher
// does not stop the others; their errors are joined.
type Fanout []port.OutcomePublisher

func (f Fanout) PublishOutcome(ctx context.Context, eventType string, payload any) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.PublishOutcome(ctx, eventType, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ port.OutcomePublisher = Fanout(nil)
