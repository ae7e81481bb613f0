package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/service"
)

// Router is the part of the notification router the handlers need.
type Router interface {
	Route(ctx context.Context, req service.RouteRequest) (service.RouteResult, error)
}

// Handlers turns decoded events into routing requests.
type Handlers struct {
	router Router
	log    *slog.Logger
	now    func() time.Time
}

func NewHandlers(router Router, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{router: router, log: log.With(slog.String("component", "handlers")), now: time.Now}
}

// Handle routes ev to its recipients. Errors of individual recipients are
// joined; one recipient failing never stops the others.
func (h *Handlers) Handle(ctx context.Context, ev domain.Event) error {
	switch e := ev.(type) {
	case domain.UserRegistered:
		return h.userRegistered(ctx, e)
	case domain.SessionCompleted:
		return h.sessionCompleted(ctx, e)
	case domain.ProctoringViolation:
		return h.proctoringViolation(ctx, e)
	case domain.AssessmentPublished:
		return h.assessmentPublished(ctx, e)
	}
	return fmt.Errorf("no handler for %T", ev)
}

var (
	emailOnly    = []domain.Channel{domain.ChannelEmail}
	pushAndEmail = []domain.Channel{domain.ChannelPush, domain.ChannelEmail}
)

func (h *Handlers) userRegistered(ctx context.Context, e domain.UserRegistered) error {
	h.log.Info("processing user.registered", slog.String("user", e.UserID))
	_, err := h.router.Route(ctx, service.RouteRequest{
		EventType:      domain.EventUserRegistered,
		RecipientID:    e.UserID,
		RecipientEmail: e.Email,
		Data: map[string]any{
			"username":  e.Username,
			"email":     e.Email,
			"firstName": e.FirstName,
			"lastName":  e.LastName,
		},
		Channels: emailOnly,
	})
	return err
}

func (h *Handlers) sessionCompleted(ctx context.Context, e domain.SessionCompleted) error {
	h.log.Info("processing session.completed", slog.String("user", e.UserID), slog.String("session", e.SessionID))
	_, err := h.router.Route(ctx, service.RouteRequest{
		EventType:      domain.EventSessionCompleted,
		RecipientID:    e.UserID,
		RecipientEmail: e.Email,
		Data: map[string]any{
			"username":       e.Username,
			"assessmentName": e.AssessmentName,
			"completionTime": e.CompletionTime,
			"score":          e.Score,
			"status":         e.Status,
		},
		Channels: emailOnly,
	})
	return err
}

// proctoringViolation alerts every proctor. Proctor email addresses are not
// part of the event, so EMAIL records for proctors fail with no destination.
func (h *Handlers) proctoringViolation(ctx context.Context, e domain.ProctoringViolation) error {
	if len(e.ProctorIDs) == 0 {
		h.log.Warn("proctoring violation without proctors", slog.String("session", e.SessionID))
		return nil
	}
	at := e.Timestamp
	if at.IsZero() {
		at = h.now()
	}
	data := map[string]any{
		"username":      e.Username,
		"sessionId":     e.SessionID,
		"violationType": e.ViolationType,
		"severity":      e.Severity,
		"timestamp":     at.UTC().Format(time.RFC3339),
	}
	var errs []error
	for _, proctorID := range e.ProctorIDs {
		_, err := h.router.Route(ctx, service.RouteRequest{
			EventType:   domain.EventProctoringViolation,
			RecipientID: proctorID,
			Data:        data,
			Channels:    pushAndEmail,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("proctor %s: %w", proctorID, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Handlers) assessmentPublished(ctx context.Context, e domain.AssessmentPublished) error {
	if len(e.AssignedUsers) == 0 {
		h.log.Warn("assessment published without assigned users", slog.String("assessment", e.AssessmentID))
		return nil
	}
	h.log.Info("processing assessment.published",
		slog.String("assessment", e.AssessmentID),
		slog.Int("users", len(e.AssignedUsers)))

	var errs []error
	for _, u := range e.AssignedUsers {
		if u.UserID == "" {
			errs = append(errs, errors.New("assigned user without id"))
			continue
		}
		_, err := h.router.Route(ctx, service.RouteRequest{
			EventType:      domain.EventAssessmentPublished,
			RecipientID:    u.UserID,
			RecipientEmail: u.Email,
			Data: map[string]any{
				"assessmentName": e.AssessmentName,
				"duration":       e.Duration,
				"dueDate":        e.DueDate,
				"username":       u.Username,
			},
			Channels: pushAndEmail,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u.UserID, err))
		}
	}
	return errors.Join(errs...)
}
