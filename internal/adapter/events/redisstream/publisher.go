package redisstream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/strogmv/notifyd/internal/domain"
)

// Publisher appends events to Redis streams.
type Publisher struct {
	client        *redis.Client
	outcomeStream string
	now           func() time.Time
}

func NewPublisher(client *redis.Client, outcomeStream string) *Publisher {
	return &Publisher{client: client, outcomeStream: outcomeStream, now: time.Now}
}

// PublishEvent appends an inbound event in the encoded flat form.
func (p *Publisher) PublishEvent(ctx context.Context, stream string, event domain.Event) (string, error) {
	values, err := EncodeEvent(event, p.now())
	if err != nil {
		return "", err
	}
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// PublishOutcome appends an outcome event with fields eventId, timestamp,
// type and a JSON payload.
func (p *Publisher) PublishOutcome(ctx context.Context, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.outcomeStream,
		Values: map[string]any{
			"eventId":   uuid.NewString(),
			"timestamp": p.now().UTC().Format(time.RFC3339Nano),
			"type":      eventType,
			"payload":   string(body),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.outcomeStream, err)
	}
	return nil
}

// DeadLetter copies an undecodable entry to stream, tagging it with its
// origin. Tag keys start with "_" so a reader of the dead-letter stream
// ignores them when decoding.
func (p *Publisher) DeadLetter(ctx context.Context, stream, source string, entry Entry, cause error) error {
	values := make(map[string]any, len(entry.Values)+4)
	for k, v := range entry.Values {
		values[k] = v
	}
	values["_source"] = source
	values["_entryId"] = entry.ID
	values["_error"] = cause.Error()
	values["_failedAt"] = p.now().UTC().Format(time.RFC3339Nano)
	return p.client.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: values}).Err()
}
