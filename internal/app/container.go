package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	rediscache "github.com/strogmv/notifyd/internal/adapter/cache/redis"
	"github.com/strogmv/notifyd/internal/adapter/events"
	natsevents "github.com/strogmv/notifyd/internal/adapter/events/nats"
	"github.com/strogmv/notifyd/internal/adapter/events/redisstream"
	"github.com/strogmv/notifyd/internal/adapter/mailer/smtp"
	"github.com/strogmv/notifyd/internal/adapter/notifications"
	"github.com/strogmv/notifyd/internal/adapter/repository/memory"
	"github.com/strogmv/notifyd/internal/adapter/repository/postgres"
	"github.com/strogmv/notifyd/internal/config"
	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/ingest"
	"github.com/strogmv/notifyd/internal/pkg/auth"
	"github.com/strogmv/notifyd/internal/pkg/circuitbreaker"
	"github.com/strogmv/notifyd/internal/pkg/presence"
	"github.com/strogmv/notifyd/internal/port"
	"github.com/strogmv/notifyd/internal/push"
	"github.com/strogmv/notifyd/internal/service"
	httptransport "github.com/strogmv/notifyd/internal/transport/http"
)

const shutdownTimeout = 15 * time.Second

type Container struct {
	Config *config.Config
	Log    *slog.Logger
	Redis  *redis.Client
	DB     *pgxpool.Pool
	NATS   *natsevents.Client

	RepoNotifications port.NotificationRepository
	RepoPreferences   port.PreferenceStore
	RepoTemplates     port.TemplateStore

	Streams    *redisstream.Publisher
	Outcomes   port.OutcomePublisher
	Presence   *presence.Store
	Mailer     *smtp.Mailer
	Registry   *push.Registry
	Retry      *service.RetryEngine
	Dispatcher *service.Dispatcher
	Router     *service.Router
	Bulk       *service.BulkService
	Ingestor   *ingest.Ingestor
	Signer     *auth.Signer
	HTTP       *httptransport.Handler
}

// NewContainer connects to the backing services and wires every
// component. Postgres and NATS are optional.
func NewContainer(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Container, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Container{Config: cfg, Log: log}

	c.Redis = rediscache.NewClient(rediscache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.PollBlock)
	if err := rediscache.Ping(ctx, c.Redis); err != nil {
		c.Close()
		return nil, err
	}

	if cfg.DatabaseURL != "" {
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.DB = pool
		c.RepoNotifications = postgres.NewNotificationRepository(pool)
		c.RepoPreferences = postgres.NewPreferenceStore(pool)
		c.RepoTemplates = postgres.NewTemplateStore(pool)
	} else {
		log.Warn("DATABASE_URL not set; notification records are kept in memory")
		c.RepoNotifications = memory.NewNotificationRepository()
		c.RepoPreferences = memory.NewPreferenceStore()
		c.RepoTemplates = memory.NewTemplateStore()
	}
	if n, err := SeedTemplates(ctx, c.RepoTemplates, domain.DefaultTemplates()...); err != nil {
		c.Close()
		return nil, fmt.Errorf("seed templates: %w", err)
	} else if n > 0 {
		log.Info("seeded default templates", slog.Int("count", n))
	}

	c.Streams = redisstream.NewPublisher(c.Redis, cfg.StreamNotificationEvents)
	outcomes := events.Fanout{c.Streams}
	if cfg.NATSURL != "" {
		nc, err := natsevents.NewClient(cfg.NATSURL, cfg.NATSSubjectPrefix)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.NATS = nc
		outcomes = append(outcomes, nc)
	}
	c.Outcomes = outcomes

	c.Presence = presence.NewStore(c.Redis, 2*cfg.HeartbeatInterval)
	c.Registry = push.NewRegistry(c.Presence, log)

	c.Mailer = smtp.New(smtp.Config{
		Host:            cfg.SMTPHost,
		Port:            cfg.SMTPPort,
		User:            cfg.SMTPUser,
		Pass:            cfg.SMTPPass,
		From:            cfg.SMTPFrom,
		FromName:        cfg.SMTPFromName,
		RatePerSecond:   cfg.SMTPRatePerSec,
		BreakerFailures: cfg.SMTPBreakerFails,
		BreakerReset:    cfg.SMTPBreakerReset,
	}, log)

	c.Retry = service.NewRetryEngine(c.RepoNotifications, c.Outcomes, service.RetryConfig{
		MaxAttempts: cfg.RetryMaxAttempts,
		Delay:       cfg.RetryDelay,
		BatchSize:   cfg.RetryBatchSize,
	}, log)
	c.Dispatcher = service.NewDispatcher(notifications.Table(
		&notifications.EmailSink{Mailer: c.Mailer},
		&notifications.PushSink{Registry: c.Registry, Now: time.Now},
	), c.Retry, service.DispatcherConfig{Workers: cfg.EmailWorkers}, log)
	c.Router = service.NewRouter(c.RepoPreferences, c.RepoTemplates, c.RepoNotifications, c.Dispatcher, log)
	c.Bulk = service.NewBulkService(c.Router, c.Outcomes, log)

	var deadLetters ingest.DeadLetterer
	if cfg.DeadLetterStream != "" {
		deadLetters = c.Streams
	}
	c.Ingestor = ingest.NewIngestor(
		redisstream.NewReader(c.Redis, cfg.ConsumerGroup, cfg.ConsumerName),
		ingest.NewHandlers(c.Router, log),
		deadLetters,
		ingest.Config{
			Streams: []ingest.Stream{
				{Key: cfg.StreamUserEvents, Kind: ingest.KindUser},
				{Key: cfg.StreamAssessmentEvents, Kind: ingest.KindAssessment},
				{Key: cfg.StreamProctoringEvents, Kind: ingest.KindProctoring},
			},
			BatchSize:        cfg.PollBatchSize,
			Block:            cfg.PollBlock,
			PollInterval:     cfg.PollInterval,
			DeadLetterStream: cfg.DeadLetterStream,
		},
		log,
	)

	c.Signer = auth.NewSigner(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	c.HTTP = httptransport.NewHandler(httptransport.Deps{
		Registry:      c.Registry,
		Notifications: c.RepoNotifications,
		Bulk:          c.Bulk,
		Tokens:        c.Signer,
		Ready:         c.Ready,
		Log:           log,
		CORSOrigins:   cfg.CORSOrigins,
		ConnBuffer:    cfg.ConnectionBuffer,
		ConnTimeout:   cfg.ConnectionTimeout,
	}, uuid.NewString)

	return c, nil
}

// Ready checks the backing services.
func (c *Container) Ready(ctx context.Context) error {
	var errs []error
	if err := c.Redis.Ping(ctx).Err(); err != nil {
		errs = append(errs, fmt.Errorf("redis: %w", err))
	}
	if c.DB != nil {
		if err := c.DB.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if c.NATS != nil && !c.NATS.IsConnected() {
		errs = append(errs, errors.New("nats: not connected"))
	}
	if c.Mailer != nil && c.Mailer.BreakerState() == circuitbreaker.Open {
		errs = append(errs, errors.New("smtp: circuit breaker open"))
	}
	return errors.Join(errs...)
}

// Run starts the periodic tasks and the HTTP server and blocks until ctx
// is cancelled or one of them fails. In-flight sends are drained before
// it returns.
func (c *Container) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              c.Config.HTTPAddr,
		Handler:           otelhttp.NewHandler(c.HTTP.Routes(), c.Config.ServiceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Ingestor.Run(gctx) })
	g.Go(func() error { return c.Retry.Run(gctx) })
	g.Go(func() error { return c.Registry.Run(gctx, c.Config.HeartbeatInterval) })
	g.Go(func() error {
		c.Log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	c.HTTP.Wait()
	if derr := c.Dispatcher.Drain(drainCtx); derr != nil {
		c.Log.Warn("async sends still in flight at shutdown", slog.Any("error", derr))
	}
	return err
}

// Close releases connections. It is safe on a partially built container.
func (c *Container) Close() {
	if c.NATS != nil {
		c.NATS.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}

// SeedTemplates saves each template the store does not have yet and
// returns how many were added.
func SeedTemplates(ctx context.Context, store port.TemplateStore, templates ...*domain.Template) (int, error) {
	added := 0
	for _, t := range templates {
		_, err := store.Get(ctx, t.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, domain.ErrTemplateNotFound) {
			return added, err
		}
		if err := store.Save(ctx, t); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
