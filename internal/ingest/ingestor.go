package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/strogmv/notifyd/internal/adapter/events/redisstream"
	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/pkg/logger"
	"github.com/strogmv/notifyd/internal/pkg/tracing"
)

var tracer = tracing.Tracer("ingest")

// StreamReader is the consumer-group view of the inbound streams.
type StreamReader interface {
	EnsureGroup(ctx context.Context, stream string) error
	ReadNew(ctx context.Context, stream string, count int64, block time.Duration) ([]redisstream.Entry, error)
	ReadPending(ctx context.Context, stream, after string, count int64) ([]redisstream.Entry, error)
	Ack(ctx context.Context, stream string, ids ...string) error
}

// DeadLetterer receives entries that cannot be decoded.
type DeadLetterer interface {
	DeadLetter(ctx context.Context, stream, source string, entry redisstream.Entry, cause error) error
}

// EventHandler consumes one decoded event.
type EventHandler interface {
	Handle(ctx context.Context, ev domain.Event) error
}

// Stream binds a stream key to the event shapes it carries.
type Stream struct {
	Key  string
	Kind Kind
}

type Config struct {
	Streams      []Stream
	BatchSize    int64
	Block        time.Duration
	PollInterval time.Duration
	// DeadLetterStream receives undecodable entries when set.
	DeadLetterStream string
}

// Ingestor consumes the inbound streams through one consumer group. Every
// entry is acknowledged once handled, whatever the outcome.
type Ingestor struct {
	reader     StreamReader
	handler    EventHandler
	deadLetter DeadLetterer
	cfg        Config
	log        *slog.Logger
}

func NewIngestor(reader StreamReader, handler EventHandler, deadLetter DeadLetterer, cfg Config, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Ingestor{
		reader:     reader,
		handler:    handler,
		deadLetter: deadLetter,
		cfg:        cfg,
		log:        log.With(slog.String("component", "ingestor")),
	}
}

// EnsureGroups creates the consumer group on every stream.
func (in *Ingestor) EnsureGroups(ctx context.Context) error {
	for _, s := range in.cfg.Streams {
		if err := in.reader.EnsureGroup(ctx, s.Key); err != nil {
			return err
		}
	}
	return nil
}

// Run consumes every stream until ctx is cancelled. Entries left pending by
// an earlier run of this consumer are processed before new ones.
func (in *Ingestor) Run(ctx context.Context) error {
	if err := in.EnsureGroups(ctx); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range in.cfg.Streams {
		s := s
		g.Go(func() error {
			in.consume(ctx, s)
			return nil
		})
	}
	return g.Wait()
}

func (in *Ingestor) consume(ctx context.Context, s Stream) {
	log := in.log.With(slog.String("stream", s.Key))
	log.Info("consuming stream", slog.String("kind", s.Kind.String()))

	if err := in.drainPending(ctx, s); err != nil && ctx.Err() == nil {
		log.Error("pending drain failed", slog.Any("error", err))
	}

	for ctx.Err() == nil {
		n, err := in.Poll(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			pollErrors.WithLabelValues(s.Key).Inc()
			log.Error("stream poll failed", slog.Any("error", err))
			if redisstream.IsNoGroup(err) {
				if err := in.reader.EnsureGroup(ctx, s.Key); err != nil {
					log.Error("recreate consumer group failed", slog.Any("error", err))
				}
			}
		}
		if err != nil || n == 0 {
			if !sleep(ctx, in.cfg.PollInterval) {
				return
			}
		}
	}
	log.Info("stream consumer stopped")
}

// drainPending walks this consumer's pending list once. The cursor advances
// past every entry read, so an entry whose ack fails is not processed again
// in the same drain.
func (in *Ingestor) drainPending(ctx context.Context, s Stream) error {
	after := "0"
	for {
		entries, err := in.reader.ReadPending(ctx, s.Key, after, in.cfg.BatchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		in.log.Info("reprocessing pending entries", slog.String("stream", s.Key), slog.Int("count", len(entries)))
		for _, e := range entries {
			in.process(ctx, s, e)
		}
		after = entries[len(entries)-1].ID
	}
}

// Poll reads and processes one batch of new entries from s, returning how
// many were read.
func (in *Ingestor) Poll(ctx context.Context, s Stream) (int, error) {
	entries, err := in.reader.ReadNew(ctx, s.Key, in.cfg.BatchSize, in.cfg.Block)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.Key, err)
	}
	for _, e := range entries {
		in.process(ctx, s, e)
	}
	return len(entries), nil
}

func (in *Ingestor) process(ctx context.Context, s Stream, entry redisstream.Entry) {
	ctx, span := tracer.Start(ctx, "ingest.entry", trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination.name", s.Key),
			attribute.String("messaging.message.id", entry.ID),
		))
	defer span.End()
	log := logger.With(ctx, in.log).With(slog.String("stream", s.Key), slog.String("entry", entry.ID))

	ev, err := Decode(s.Kind, entry.Values)
	switch {
	case err != nil:
		entriesConsumed.WithLabelValues(s.Key, resultDecode).Inc()
		span.SetStatus(codes.Error, err.Error())
		log.Warn("skipping undecodable entry", slog.Any("error", err))
		in.sendToDeadLetter(ctx, s, entry, err, log)
	default:
		span.SetAttributes(attribute.String("event.type", eventType(ev)))
		if err := in.handler.Handle(ctx, ev); err != nil {
			entriesConsumed.WithLabelValues(s.Key, resultHandler).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, "handler failed")
			log.Error("event handler failed", slog.String("type", eventType(ev)), slog.Any("error", err))
		} else {
			entriesConsumed.WithLabelValues(s.Key, resultHandled).Inc()
		}
	}

	// Acked regardless of outcome; failed deliveries are owned by the retry
	// engine and poison entries must not block the group.
	if err := in.reader.Ack(context.WithoutCancel(ctx), s.Key, entry.ID); err != nil {
		log.Error("ack failed", slog.Any("error", err))
	}
}

func (in *Ingestor) sendToDeadLetter(ctx context.Context, s Stream, entry redisstream.Entry, cause error, log *slog.Logger) {
	if in.deadLetter == nil || in.cfg.DeadLetterStream == "" {
		return
	}
	if err := in.deadLetter.DeadLetter(ctx, in.cfg.DeadLetterStream, s.Key, entry, cause); err != nil {
		log.Error("dead letter failed", slog.Any("error", errors.Join(cause, err)))
	}
}

func eventType(ev domain.Event) string {
	switch ev.(type) {
	case domain.UserRegistered:
		return domain.EventUserRegistered
	case domain.SessionCompleted:
		return domain.EventSessionCompleted
	case domain.ProctoringViolation:
		return domain.EventProctoringViolation
	case domain.AssessmentPublished:
		return domain.EventAssessmentPublished
	}
	return ev.Meta().Type
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
