package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/pkg/logger"
	"github.com/strogmv/notifyd/internal/port"
)

// Dispatcher sends notification records through the channel table and
// records the outcome on the retry engine.
type Dispatcher struct {
	senders map[domain.Channel]port.ChannelSender
	retry   *RetryEngine
	log     *slog.Logger

	sendTimeout time.Duration
	sem         chan struct{}
	wg          sync.WaitGroup
}

type DispatcherConfig struct {
	// Workers bounds concurrent async sends.
	Workers     int
	SendTimeout time.Duration
}

func NewDispatcher(senders map[domain.Channel]port.ChannelSender, retry *RetryEngine, cfg DispatcherConfig, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = time.Minute
	}
	d := &Dispatcher{
		senders:     senders,
		retry:       retry,
		log:         log.With(slog.String("component", "dispatcher")),
		sendTimeout: cfg.SendTimeout,
		sem:         make(chan struct{}, cfg.Workers),
	}
	retry.Bind(d)
	return d
}

// Dispatch hands n to its channel sender. Async senders run on their own
// goroutine; the call returns once the send has been handed off.
func (d *Dispatcher) Dispatch(ctx context.Context, n *domain.Notification) {
	sender, ok := d.senders[n.Channel]
	if !ok {
		d.retry.RecordPermanent(ctx, n.ID, fmt.Errorf("%w: unsupported channel %q", domain.ErrPermanentDelivery, n.Channel))
		return
	}
	if n.Channel == domain.ChannelEmail && n.Email() == "" {
		d.retry.RecordPermanent(ctx, n.ID, fmt.Errorf("recipient %s has no email address: %w", n.RecipientID, domain.ErrNoDestination))
		return
	}

	work := n.Clone()
	if !sender.Async() {
		d.deliver(ctx, sender, work)
		return
	}

	// The send outlives the caller's context but keeps its values.
	actx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	asyncInFlight.Inc()
	go func() {
		defer d.wg.Done()
		defer asyncInFlight.Dec()
		d.sem <- struct{}{}
		defer func() { <-d.sem }()

		sctx, cancel := context.WithTimeout(actx, d.sendTimeout)
		defer cancel()
		d.deliver(sctx, sender, work)
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, sender port.ChannelSender, n *domain.Notification) {
	ctx, span := tracer.Start(ctx, "notification.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("notification.id", n.ID),
		attribute.String("notification.channel", n.Channel.String()),
		attribute.Int("notification.retry_count", n.RetryCount),
	)

	start := time.Now()
	err := sender.Send(ctx, n)
	deliveryDuration.WithLabelValues(n.Channel.String()).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		d.retry.RecordSent(ctx, n.ID, n.DeliveredAt)
	case errors.Is(err, domain.ErrNoDestination):
		span.SetStatus(codes.Error, "no destination")
		d.retry.RecordPermanent(ctx, n.ID, err)
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		logger.With(ctx, d.log).Warn("channel send failed",
			slog.String("id", n.ID),
			slog.String("channel", n.Channel.String()),
			slog.Any("error", err))
		d.retry.RecordFailure(ctx, n.ID, err)
	}
}

// Drain waits for in-flight async sends or until ctx is done.
func (d *Dispatcher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.NotificationDispatcher = (*Dispatcher)(nil)
