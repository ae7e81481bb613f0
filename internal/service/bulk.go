package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/port"
)

var validate = validator.New()

// BulkRequest sends one notification type to many users.
type BulkRequest struct {
	UserIDs  []string         `json:"userIds" validate:"required,min=1,dive,required"`
	Type     string           `json:"type" validate:"required"`
	Channels []domain.Channel `json:"channels" validate:"required,min=1,dive,oneof=EMAIL PUSH"`
	// CommonData is shared by every recipient; UserSpecificData entries
	// override it per user. An "email" key supplies the address.
	CommonData       map[string]any            `json:"commonData,omitempty"`
	UserSpecificData map[string]map[string]any `json:"userSpecificData,omitempty"`
}

type BulkResult struct {
	BatchID         string `json:"batchId"`
	TotalRecipients int    `json:"totalRecipients"`
	SuccessCount    int    `json:"successCount"`
	FailedCount     int    `json:"failedCount"`
}

// BulkService fans a BulkRequest out through the router, looking each
// template up once per batch.
type BulkService struct {
	router   *Router
	outcomes port.OutcomePublisher
	log      *slog.Logger
	newID    func() string
}

func NewBulkService(router *Router, outcomes port.OutcomePublisher, log *slog.Logger) *BulkService {
	if log == nil {
		log = slog.Default()
	}
	return &BulkService{
		router:   router,
		outcomes: outcomes,
		log:      log.With(slog.String("component", "bulk")),
		newID:    uuid.NewString,
	}
}

// Validate checks req without sending anything.
func (s *BulkService) Validate(req BulkRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("invalid bulk request: %w", err)
	}
	return nil
}

// NewBatchID returns an id for a batch started with SendBatch.
func (s *BulkService) NewBatchID() string { return s.newID() }

// Send validates req, delivers it and reports per-recipient counts.
func (s *BulkService) Send(ctx context.Context, req BulkRequest) (BulkResult, error) {
	if err := s.Validate(req); err != nil {
		return BulkResult{}, err
	}
	return s.SendBatch(ctx, s.newID(), req), nil
}

// SendBatch delivers an already validated request under batchID. A
// recipient counts as failed when routing errors or a record cannot be
// stored; channels skipped by preference or missing template do not count
// against it. Every batch ends with a notification.bulk_completed event.
func (s *BulkService) SendBatch(ctx context.Context, batchID string, req BulkRequest) BulkResult {
	log := s.log.With(slog.String("batch", batchID), slog.String("type", req.Type))
	log.Info("bulk send started", slog.Int("recipients", len(req.UserIDs)))

	lookup := s.cachedLookup()
	res := BulkResult{BatchID: batchID, TotalRecipients: len(req.UserIDs)}
	for _, userID := range req.UserIDs {
		data := make(map[string]any, len(req.CommonData))
		maps.Copy(data, req.CommonData)
		maps.Copy(data, req.UserSpecificData[userID])

		email, _ := data["email"].(string)
		out, err := s.router.route(ctx, RouteRequest{
			EventType:      req.Type,
			RecipientID:    userID,
			RecipientEmail: email,
			Data:           data,
			Channels:       req.Channels,
		}, lookup)
		if err != nil || out.Failed > 0 {
			res.FailedCount++
			bulkRecipients.WithLabelValues("failed").Inc()
			log.Warn("bulk recipient failed", slog.String("recipient", userID), slog.Any("error", err))
			continue
		}
		res.SuccessCount++
		bulkRecipients.WithLabelValues("success").Inc()
	}

	if s.outcomes != nil {
		err := s.outcomes.PublishOutcome(ctx, domain.EventBulkCompleted, domain.BulkCompleted{
			BatchID:         res.BatchID,
			TotalRecipients: res.TotalRecipients,
			SuccessCount:    res.SuccessCount,
			FailedCount:     res.FailedCount,
			Type:            req.Type,
		})
		if err != nil {
			log.Error("publish bulk completion failed", slog.Any("error", err))
		}
	}
	log.Info("bulk send completed", slog.Int("success", res.SuccessCount), slog.Int("failed", res.FailedCount))
	return res
}

func (s *BulkService) cachedLookup() templateLookup {
	type entry struct {
		t   *domain.Template
		err error
	}
	var mu sync.Mutex
	cache := map[string]entry{}
	return func(ctx context.Context, name string) (*domain.Template, error) {
		mu.Lock()
		defer mu.Unlock()
		if e, ok := cache[name]; ok {
			return e.t, e.err
		}
		t, err := s.router.Templates.Get(ctx, name)
		cache[name] = entry{t: t, err: err}
		return t, err
	}
}
