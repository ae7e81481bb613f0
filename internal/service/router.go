package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/pkg/logger"
	"github.com/strogmv/notifyd/internal/pkg/templaterender"
	"github.com/strogmv/notifyd/internal/pkg/tracing"
	"github.com/strogmv/notifyd/internal/port"
)

var tracer = tracing.Tracer("service")

// RouteRequest asks for one event to be delivered to one recipient.
type RouteRequest struct {
	EventType      string
	RecipientID    string
	RecipientEmail string
	Data           map[string]any
	Channels       []domain.Channel
}

// RouteResult lists the records created and why other channels were skipped.
type RouteResult struct {
	Created []*domain.Notification
	Skipped map[domain.Channel]string
	// Failed counts channels that could not be persisted.
	Failed int
}

const (
	skipPreference = "preference"
	skipTemplate   = "template"
	skipStore      = "store"
)

type templateLookup func(ctx context.Context, name string) (*domain.Template, error)

// Router turns an event into per-channel notification records and hands
// them to the dispatcher.
type Router struct {
	Preferences port.PreferenceStore
	Templates   port.TemplateStore
	Repo        port.NotificationRepository
	Dispatcher  port.NotificationDispatcher

	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

func NewRouter(prefs port.PreferenceStore, templates port.TemplateStore, repo port.NotificationRepository, dispatcher port.NotificationDispatcher, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		Preferences: prefs,
		Templates:   templates,
		Repo:        repo,
		Dispatcher:  dispatcher,
		log:         log.With(slog.String("component", "router")),
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Route resolves the eligible channels of req. Channels are processed in
// order; a problem with one channel never blocks the others. The returned
// error is reserved for failures that affect every channel.
func (r *Router) Route(ctx context.Context, req RouteRequest) (RouteResult, error) {
	return r.route(ctx, req, r.Templates.Get)
}

func (r *Router) route(ctx context.Context, req RouteRequest, lookup templateLookup) (RouteResult, error) {
	ctx, span := tracer.Start(ctx, "notification.route")
	defer span.End()
	span.SetAttributes(
		attribute.String("event.type", req.EventType),
		attribute.String("recipient.id", req.RecipientID),
	)

	res := RouteResult{Skipped: map[domain.Channel]string{}}
	log := logger.With(ctx, r.log).With(slog.String("type", req.EventType), slog.String("recipient", req.RecipientID))

	pref, err := r.Preferences.Get(ctx, req.RecipientID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "preference lookup")
		return res, fmt.Errorf("preference lookup for %s: %w", req.RecipientID, err)
	}

	for _, ch := range req.Channels {
		if !pref.Allows(req.EventType, ch) {
			r.skip(&res, ch, skipPreference)
			log.Debug("channel disabled by preference", slog.String("channel", ch.String()))
			continue
		}

		name := domain.TemplateName(req.EventType, ch)
		tpl, err := lookup(ctx, name)
		if err != nil {
			r.skip(&res, ch, skipTemplate)
			if errors.Is(err, domain.ErrTemplateNotFound) {
				log.Warn("template not found", slog.String("template", name), slog.String("channel", ch.String()))
			} else {
				log.Error("template lookup failed", slog.String("template", name), slog.Any("error", err))
			}
			continue
		}

		out := templaterender.RenderTemplate(tpl, req.Data)
		if !out.Valid() {
			log.Warn("template variables missing",
				slog.String("template", name),
				slog.Any("missing", out.Missing),
				slog.String("error", domain.ErrTemplateVariableMissing.Error()))
		}

		n := &domain.Notification{
			ID:             r.newID(),
			RecipientID:    req.RecipientID,
			RecipientEmail: domain.StringPtr(req.RecipientEmail),
			Type:           req.EventType,
			Channel:        ch,
			Subject:        out.Subject,
			Content:        out.Body,
			Status:         domain.StatusPending,
			CreatedAt:      r.now().UTC(),
		}
		if err := r.Repo.Create(ctx, n); err != nil {
			r.skip(&res, ch, skipStore)
			res.Failed++
			log.Error("persist notification failed", slog.String("channel", ch.String()), slog.Any("error", err))
			continue
		}
		notificationsRouted.WithLabelValues(req.EventType, ch.String()).Inc()
		res.Created = append(res.Created, n)

		r.Dispatcher.Dispatch(ctx, n)
	}
	return res, nil
}

func (r *Router) skip(res *RouteResult, ch domain.Channel, reason string) {
	res.Skipped[ch] = reason
	routeSkipped.WithLabelValues(ch.String(), reason).Inc()
}
