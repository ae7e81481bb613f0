package redisstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is one stream record with its raw field values.
type Entry struct {
	ID     string
	Values map[string]string
}

// Reader reads a stream through a consumer group.
type Reader struct {
	client   *redis.Client
	group    string
	consumer string
}

func NewReader(client *redis.Client, group, consumer string) *Reader {
	return &Reader{client: client, group: group, consumer: consumer}
}

// EnsureGroup creates the group at the start of the stream, creating the
// stream if needed. An existing group is not an error.
func (r *Reader) EnsureGroup(ctx context.Context, stream string) error {
	err := r.client.XGroupCreateMkStream(ctx, stream, r.group, "0").Err()
	if err != nil && !IsBusyGroup(err) {
		return fmt.Errorf("create group %s on %s: %w", r.group, stream, err)
	}
	return nil
}

// ReadNew returns up to count entries never delivered to the group,
// waiting at most block for one to arrive.
func (r *Reader) ReadNew(ctx context.Context, stream string, count int64, block time.Duration) ([]Entry, error) {
	if block <= 0 {
		block = -1
	}
	return r.read(ctx, stream, ">", count, block)
}

// ReadPending returns entries delivered to this consumer but never
// acknowledged, starting after id "0".
func (r *Reader) ReadPending(ctx context.Context, stream, after string, count int64) ([]Entry, error) {
	if after == "" {
		after = "0"
	}
	return r.read(ctx, stream, after, count, -1)
}

func (r *Reader) read(ctx context.Context, stream, id string, count int64, block time.Duration) ([]Entry, error) {
	res, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{stream, id},
		Count:    count,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, s := range res {
		for _, m := range s.Messages {
			out = append(out, Entry{ID: m.ID, Values: stringValues(m.Values)})
		}
	}
	return out, nil
}

// Ack acknowledges entries for the group.
func (r *Reader) Ack(ctx context.Context, stream string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.client.XAck(ctx, stream, r.group, ids...).Err()
}

// IsBusyGroup reports the "group already exists" reply.
func IsBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// IsNoGroup reports a read against a missing stream or group.
func IsNoGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOGROUP")
}

func stringValues(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		switch x := v.(type) {
		case string:
			out[k] = x
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}
