package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/pkg/logger"
	"github.com/strogmv/notifyd/internal/port"
)

type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	BatchSize   int
}

// RetryEngine owns the record state transitions after a send and re-drives
// failed records that still have attempts left.
//
// RetryCount counts failed attempts and is capped at MaxAttempts. A FAILED
// record with RetryCount == MaxAttempts is terminal.
type RetryEngine struct {
	repo       port.NotificationRepository
	outcomes   port.OutcomePublisher
	dispatcher port.NotificationDispatcher
	cfg        RetryConfig
	log        *slog.Logger
	now        func() time.Time

	sweeping atomic.Bool
}

func NewRetryEngine(repo port.NotificationRepository, outcomes port.OutcomePublisher, cfg RetryConfig, log *slog.Logger) *RetryEngine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 100
	}
	return &RetryEngine{
		repo:     repo,
		outcomes: outcomes,
		cfg:      cfg,
		log:      log.With(slog.String("component", "retry")),
		now:      time.Now,
	}
}

// Bind sets the dispatcher used by Sweep.
func (e *RetryEngine) Bind(d port.NotificationDispatcher) {
	e.dispatcher = d
}

// RecordSent moves the record to SENT and emits notification.sent.
func (e *RetryEngine) RecordSent(ctx context.Context, id string, deliveredAt *time.Time) {
	at := e.now().UTC()
	n, err := e.repo.Update(ctx, id, func(n *domain.Notification) error {
		n.MarkSent(at)
		if deliveredAt != nil {
			v := *deliveredAt
			n.DeliveredAt = &v
		}
		return nil
	})
	if err != nil {
		logger.With(ctx, e.log).Error("record sent failed", slog.String("id", id), slog.Any("error", err))
		return
	}
	deliveryOutcomes.WithLabelValues(n.Channel.String(), string(domain.StatusSent)).Inc()
	e.publish(ctx, domain.EventNotificationSent, domain.NotificationSent{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Channel:        n.Channel.String(),
		Type:           n.Type,
		Status:         "sent",
		DeliveryTime:   at.Format(time.RFC3339Nano),
	})
}

// RecordFailure counts one failed attempt and emits notification.failed.
func (e *RetryEngine) RecordFailure(ctx context.Context, id string, cause error) {
	e.fail(ctx, id, cause, false)
}

// RecordPermanent fails the record with no attempts left.
func (e *RetryEngine) RecordPermanent(ctx context.Context, id string, cause error) {
	e.fail(ctx, id, cause, true)
}

func (e *RetryEngine) fail(ctx context.Context, id string, cause error, permanent bool) {
	limit := e.cfg.MaxAttempts
	n, err := e.repo.Update(ctx, id, func(n *domain.Notification) error {
		if permanent {
			n.MarkPermanent(cause.Error(), limit)
		} else {
			n.MarkFailed(cause.Error(), limit)
		}
		return nil
	})
	if err != nil {
		logger.With(ctx, e.log).Error("record failure failed", slog.String("id", id), slog.Any("error", err))
		return
	}

	willRetry := n.RetryCount < limit
	deliveryOutcomes.WithLabelValues(n.Channel.String(), string(domain.StatusFailed)).Inc()
	log := logger.With(ctx, e.log).With(
		slog.String("id", n.ID),
		slog.String("channel", n.Channel.String()),
		slog.Int("retry_count", n.RetryCount),
	)
	if willRetry {
		log.Info("notification failed, will retry", slog.String("error", n.ErrorMessage))
	} else {
		log.Warn("notification failed permanently", slog.String("error", n.ErrorMessage))
	}
	e.publish(ctx, domain.EventNotificationFailed, domain.NotificationFailed{
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Channel:        n.Channel.String(),
		ErrorMessage:   n.ErrorMessage,
		RetryCount:     n.RetryCount,
		WillRetry:      willRetry,
	})
}

func (e *RetryEngine) publish(ctx context.Context, eventType string, payload any) {
	if e.outcomes == nil {
		return
	}
	if err := e.outcomes.PublishOutcome(ctx, eventType, payload); err != nil {
		logger.With(ctx, e.log).Error("publish outcome failed", slog.String("type", eventType), slog.Any("error", err))
	}
}

// Sweep re-dispatches up to BatchSize retryable records, oldest first. A
// sweep already in progress makes this call a no-op.
func (e *RetryEngine) Sweep(ctx context.Context) (int, error) {
	if !e.sweeping.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer e.sweeping.Store(false)

	items, err := e.repo.ListRetryable(ctx, e.cfg.MaxAttempts, e.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	for _, n := range items {
		if ctx.Err() != nil {
			break
		}
		e.log.Info("retrying notification", slog.String("id", n.ID), slog.Int("retry_count", n.RetryCount))
		e.dispatcher.Dispatch(ctx, n)
		retryRedispatched.Inc()
	}
	retrySweeps.Inc()
	return len(items), nil
}

// Run sweeps every Delay, measured from the end of the previous sweep.
func (e *RetryEngine) Run(ctx context.Context) error {
	timer := time.NewTimer(e.cfg.Delay)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if _, err := e.Sweep(ctx); err != nil {
				e.log.Error("retry sweep failed", slog.Any("error", err))
			}
			timer.Reset(e.cfg.Delay)
		}
	}
}
