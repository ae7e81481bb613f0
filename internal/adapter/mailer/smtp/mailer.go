package smtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
	"gopkg.in/gomail.v2"

	"github.com/strogmv/notifyd/internal/domain"
	"github.com/strogmv/notifyd/internal/pkg/circuitbreaker"
	"github.com/strogmv/notifyd/internal/port"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Pass     string
	From     string
	FromName string

	// RatePerSecond caps outgoing messages; zero disables the limit.
	RatePerSecond   float64
	BreakerFailures int
	BreakerReset    time.Duration
}

type transport interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer sends HTML mail over SMTP. Sends are throttled and stop for
// BreakerReset after BreakerFailures consecutive transport errors.
type Mailer struct {
	dialer   transport
	from     string
	fromName string
	limiter  *rate.Limiter
	breaker  *circuitbreaker.Breaker
	log      *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Mailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass)
	return newMailer(d, cfg, log)
}

func newMailer(d transport, cfg Config, log *slog.Logger) *Mailer {
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Inf
	burst := 1
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = max(1, int(cfg.RatePerSecond))
	}
	m := &Mailer{
		dialer:   d,
		from:     cfg.From,
		fromName: cfg.FromName,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  circuitbreaker.New(cfg.BreakerFailures, cfg.BreakerReset),
		log:      log.With(slog.String("component", "smtp")),
	}
	m.breaker.OnStateChange = func(from, to circuitbreaker.State) {
		m.log.Warn("smtp breaker state changed", slog.String("from", from.String()), slog.String("to", to.String()))
	}
	return m
}

func (m *Mailer) Send(ctx context.Context, msg port.EmailMessage) error {
	if msg.To == "" {
		return domain.ErrNoDestination
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit: %v", domain.ErrChannelSend, err)
	}

	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", m.from, m.fromName)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/html", msg.HTML)

	err := m.breaker.Do(func() error { return m.dialer.DialAndSend(gm) }, nil)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return fmt.Errorf("%w: %v", domain.ErrChannelSend, err)
	}
	if err != nil {
		return fmt.Errorf("%w: smtp: %v", domain.ErrChannelSend, err)
	}
	return nil
}

// BreakerState reports the SMTP breaker; Container.Ready treats Open as unhealthy.
func (m *Mailer) BreakerState() circuitbreaker.State {
	return m.breaker.State()
}

var _ port.Mailer = (*Mailer)(nil)
