package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	natspkg "github.com/nats-io/nats.go"

	"github.com/strogmv/notifyd/internal/domain"
)

// Client mirrors outcome events onto NATS subjects "<prefix>.<type>".
type Client struct {
	nc     *natspkg.Conn
	prefix string
	now    func() time.Time
}

func NewClient(url, prefix string) (*Client, error) {
	nc, err := natspkg.Connect(url, natspkg.Name("notifyd"), natspkg.MaxReconnects(-1))
	if err != nil {
		return nil, err
	}
	return newClient(nc, prefix), nil
}

func newClient(nc *natspkg.Conn, prefix string) *Client {
	return &Client{nc: nc, prefix: strings.TrimSuffix(prefix, "."), now: time.Now}
}

func (c *Client) Close() {
	c.nc.Close()
}

func (c *Client) IsConnected() bool {
	return c.nc != nil && c.nc.Status() == natspkg.CONNECTED
}

// Subject returns the subject an outcome type is published on.
func (c *Client) Subject(eventType string) string {
	return c.prefix + "." + strings.TrimPrefix(eventType, "notification.")
}

// PublishOutcome publishes the envelope-wrapped payload as JSON.
func (c *Client) PublishOutcome(ctx context.Context, eventType string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(domain.Outcome{
		Envelope: domain.Envelope{ID: uuid.NewString(), Timestamp: c.now().UTC(), Type: eventType},
		Payload:  payload,
	})
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	return c.nc.Publish(c.Subject(eventType), data)
}
