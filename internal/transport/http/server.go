package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/strogmv/notifyd/internal/pkg/presence"
	"github.com/strogmv/notifyd/internal/pkg/rbac"
	"github.com/strogmv/notifyd/internal/port"
	"github.com/strogmv/notifyd/internal/push"
	"github.com/strogmv/notifyd/internal/service"
)

// Registry is the connection registry surface the handlers use.
type Registry interface {
	Connect(ctx context.Context, userID string, conn push.Conn)
	Release(ctx context.Context, userID string, conn push.Conn)
	Subscribe(topic, userID string, conn push.Conn)
	Unsubscribe(topic string, conn push.Conn)
	SendToUser(userID, eventName string, payload any) bool
	Broadcast(topic, eventName string, payload any) int
	BroadcastAll(eventName string, payload any) int
	Disconnect(ctx context.Context, userID string) bool
	IsConnected(userID string) bool
	Stats() push.Stats
	Status(ctx context.Context, userID string) (presence.Status, error)
}

// BulkSender runs bulk sends in the background.
type BulkSender interface {
	Validate(req service.BulkRequest) error
	NewBatchID() string
	SendBatch(ctx context.Context, batchID string, req service.BulkRequest) service.BulkResult
}

type Deps struct {
	Registry      Registry
	Notifications port.NotificationRepository
	Bulk          BulkSender
	Tokens        TokenVerifier
	// Ready reports dependency health for /health.
	Ready func(ctx context.Context) error
	Log   *slog.Logger

	CORSOrigins []string
	ConnBuffer  int
	ConnTimeout time.Duration
}

// Handler serves the push and inbox API.
type Handler struct {
	deps     Deps
	log      *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time
	newID    func() string

	background sync.WaitGroup
}

func NewHandler(deps Deps, newID func() string) *Handler {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		deps:  deps,
		log:   log.With(slog.String("component", "http")),
		now:   time.Now,
		newID: newID,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(deps.CORSOrigins),
		},
	}
}

// Wait blocks until background bulk sends have finished.
func (h *Handler) Wait() { h.background.Wait() }

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(AuthMiddleware(h.deps.Tokens))

		api.Route("/sse", func(sse chi.Router) {
			sse.With(RequirePermission(rbac.PermSubscribeOwn)).Get("/connect", h.sseConnect)
			sse.With(RequirePermission(rbac.PermSubscribeOwn)).Get("/subscribe/{topic}", h.sseSubscribe)
			sse.With(RequirePermission(rbac.PermSendTest)).Post("/test/send-to-user", h.testSendToUser)
			sse.With(RequirePermission(rbac.PermSendTest)).Post("/test/broadcast", h.broadcast)
			sse.With(RequirePermission(rbac.PermViewStats)).Get("/stats", h.stats)
			sse.Get("/status/{userId}", h.status)
			sse.Post("/disconnect/{userId}", h.disconnect)
		})
		api.With(RequirePermission(rbac.PermSubscribeOwn)).Get("/ws/connect", h.wsConnect)

		api.Route("/notifications", func(n chi.Router) {
			n.With(RequirePermission(rbac.PermSendBulk)).Post("/bulk", h.bulk)
			n.With(RequirePermission(rbac.PermReadOwnInbox)).Get("/", h.listNotifications)
			n.With(RequirePermission(rbac.PermReadOwnInbox)).Put("/{id}/read", h.markRead)
		})
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.deps.Ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "DOWN", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := map[string]bool{}
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}
