package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/strogmv/notifyd/internal/adapter/notifications"
	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/pkg/rbac"
	"github.com/strogmv/notifyd/internal/port"
	"github.com/strogmv/notifyd/internal/push"
)

func (h *Handler) sseConnect(w http.ResponseWriter, r *http.Request) {
	userID := CurrentIdentity(r).UserID
	conn := push.NewSSEConn(h.deps.ConnBuffer, h.deps.ConnTimeout)

	h.deps.Registry.Connect(r.Context(), userID, conn)
	defer h.deps.Registry.Release(context.WithoutCancel(r.Context()), userID, conn)
	h.replay(r, userID, conn)

	if err := conn.Serve(r.Context(), w); err != nil {
		h.log.Warn("sse stream ended", slog.String("user", userID), slog.Any("error", err))
	}
}

func (h *Handler) sseSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := chi.URLParam(r, "topic")
	userID := CurrentIdentity(r).UserID
	conn := push.NewSSEConn(h.deps.ConnBuffer, h.deps.ConnTimeout)

	h.deps.Registry.Subscribe(topic, userID, conn)
	defer h.deps.Registry.Unsubscribe(topic, conn)

	if err := conn.Serve(r.Context(), w); err != nil {
		h.log.Warn("topic stream ended", slog.String("topic", topic), slog.Any("error", err))
	}
}

func (h *Handler) wsConnect(w http.ResponseWriter, r *http.Request) {
	userID := CurrentIdentity(r).UserID
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the response.
		h.log.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	conn := push.NewWSConn(ws, h.deps.ConnBuffer, h.deps.ConnTimeout)

	h.deps.Registry.Connect(r.Context(), userID, conn)
	defer h.deps.Registry.Release(context.WithoutCancel(r.Context()), userID, conn)
	h.replay(r, userID, conn)

	if err := conn.Serve(r.Context()); err != nil {
		h.log.Warn("websocket stream ended", slog.String("user", userID), slog.Any("error", err))
	}
}

// replay queues PUSH records created after the client's Last-Event-ID.
func (h *Handler) replay(r *http.Request, userID string, conn push.Conn) {
	last := r.Header.Get("Last-Event-ID")
	if last == "" {
		last = r.URL.Query().Get("lastEventId")
	}
	if last == "" || h.deps.Notifications == nil {
		return
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(last), 10, 64)
	if err != nil || ms <= 0 {
		return
	}

	limit := h.deps.ConnBuffer - 1
	if limit < 1 {
		limit = 1
	}
	missed, err := h.deps.Notifications.ListByRecipient(r.Context(), port.RecipientQuery{
		RecipientID: userID,
		Channel:     domain.ChannelPush,
		Since:       timeFromMillis(ms),
		Limit:       limit,
	})
	if err != nil {
		h.log.Error("replay lookup failed", slog.String("user", userID), slog.Any("error", err))
		return
	}
	for _, n := range missed {
		data, err := json.Marshal(notifications.PushPayload(n))
		if err != nil {
			continue
		}
		ev := push.Event{ID: strconv.FormatInt(n.CreatedAt.UnixMilli(), 10), Name: notifications.PushEventName, Data: data}
		if err := conn.Send(ev); err != nil {
			return
		}
	}
	if len(missed) > 0 {
		h.log.Info("replayed missed notifications", slog.String("user", userID), slog.Int("count", len(missed)))
	}
}

type testSendRequest struct {
	UserID  string         `json:"userId" validate:"required"`
	Title   string         `json:"title" validate:"required"`
	Message string         `json:"message" validate:"required"`
	Type    string         `json:"type"`
	Data    map[string]any `json:"data"`
}

// testSendToUser persists a SENT PUSH record and pushes it to the user.
func (h *Handler) testSendToUser(w http.ResponseWriter, r *http.Request) {
	var req testSendRequest
	if err := decodeJSONRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Type == "" {
		req.Type = "test"
	}

	now := h.now().UTC()
	n := &domain.Notification{
		ID:          h.newID(),
		RecipientID: req.UserID,
		Type:        req.Type,
		Channel:     domain.ChannelPush,
		Subject:     req.Title,
		Content:     req.Message,
		Status:      domain.StatusSent,
		CreatedAt:   now,
		SentAt:      &now,
	}
	if err := h.deps.Notifications.Create(r.Context(), n); err != nil {
		h.log.Error("store test notification", slog.Any("error", err))
		writeDomainError(w, err)
		return
	}

	payload := notifications.PushPayload(n)
	for k, v := range req.Data {
		if _, taken := payload[k]; !taken {
			payload[k] = v
		}
	}
	sent := h.deps.Registry.SendToUser(req.UserID, notifications.PushEventName, payload)
	if sent {
		_, err := h.deps.Notifications.Update(r.Context(), n.ID, func(rec *domain.Notification) error {
			delivered := h.now().UTC()
			rec.DeliveredAt = &delivered
			return nil
		})
		if err != nil {
			h.log.Warn("record delivery time", slog.String("id", n.ID), slog.Any("error", err))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notificationId": n.ID,
		"userId":         req.UserID,
		"sentViaSse":     sent,
	})
}

type broadcastRequest struct {
	// Topic empty broadcasts to every connected user.
	Topic string         `json:"topic"`
	Event string         `json:"event" validate:"required"`
	Data  map[string]any `json:"data"`
}

func (h *Handler) broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := decodeJSONRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var sent int
	if req.Topic == "" {
		sent = h.deps.Registry.BroadcastAll(req.Event, req.Data)
	} else {
		sent = h.deps.Registry.Broadcast(req.Topic, req.Event, req.Data)
	}
	writeJSON(w, http.StatusOK, map[string]any{"topic": req.Topic, "event": req.Event, "recipients": sent})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Registry.Stats())
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !selfOr(r, userID, rbac.PermManageConns) {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	st, err := h.deps.Registry.Status(r.Context(), userID)
	if err != nil {
		h.log.Error("presence lookup failed", slog.String("user", userID), slog.Any("error", err))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":      userID,
		"isConnected": h.deps.Registry.IsConnected(userID),
		"online":      st.IsOnline,
		"lastSeenAt":  st.LastSeenAt,
	})
}

func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if !selfOr(r, userID, rbac.PermManageConns) {
		writeError(w, http.StatusForbidden, "insufficient permissions")
		return
	}
	closed := h.deps.Registry.Disconnect(r.Context(), userID)
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "disconnected": closed})
}
