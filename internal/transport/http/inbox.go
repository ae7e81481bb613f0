package http

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/port"
	"github.com/strogmv/notifyd/internal/service"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// listNotifications returns the caller's inbox, oldest first.
func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := port.RecipientQuery{
		RecipientID: CurrentIdentity(r).UserID,
		UnreadOnly:  q.Get("unread") == "true",
		Limit:       defaultPageSize,
	}
	if v := q.Get("channel"); v != "" {
		ch, err := domain.ParseChannel(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		query.Channel = ch
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		query.Limit = min(n, maxPageSize)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		query.Offset = n
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		query.Since = t
	}

	items, err := h.deps.Notifications.ListByRecipient(r.Context(), query)
	if err != nil {
		h.log.Error("list notifications", slog.Any("error", err))
		writeDomainError(w, err)
		return
	}
	if items == nil {
		items = []*domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items":  items,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.deps.Notifications.MarkRead(r.Context(), CurrentIdentity(r).UserID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// bulk validates the request and sends it in the background.
func (h *Handler) bulk(w http.ResponseWriter, r *http.Request) {
	var req service.BulkRequest
	if err := decodeJSONRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.deps.Bulk.Validate(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batchID := h.deps.Bulk.NewBatchID()
	ctx := context.WithoutCancel(r.Context())
	h.background.Add(1)
	go func() {
		defer h.background.Done()
		res := h.deps.Bulk.SendBatch(ctx, batchID, req)
		h.log.Info("bulk batch finished",
			slog.String("batch", batchID),
			slog.Int("success", res.SuccessCount),
			slog.Int("failed", res.FailedCount))
	}()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"batchId":         batchID,
		"totalRecipients": len(req.UserIDs),
		"status":          "accepted",
	})
}

func timeFromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
