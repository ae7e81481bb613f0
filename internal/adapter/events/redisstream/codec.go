package redisstream

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/strogmv/notifyd/internal/domain"
)

// EncodeEvent flattens an event into stream fields the way upstream
// publishers do: nested objects become "a.b", list items become "a.[i]" or
// "a.[i].field", and every value is base64 encoded. Missing envelope ids
// and timestamps are filled in.
func EncodeEvent(e domain.Event, now time.Time) (map[string]any, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("flatten event: %w", err)
	}

	meta := e.Meta()
	if meta.ID == "" {
		doc["eventId"] = uuid.NewString()
	}
	if meta.Timestamp.IsZero() {
		doc["timestamp"] = now.UTC().Format(time.RFC3339Nano)
	}

	flat := map[string]string{}
	flatten("", doc, flat)

	out := make(map[string]any, len(flat))
	for k, v := range flat {
		out[k] = base64.StdEncoding.EncodeToString([]byte(v))
	}
	return out, nil
}

func flatten(prefix string, v any, out map[string]string) {
	switch x := v.(type) {
	case nil:
		return
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			flatten(join(prefix, k), x[k], out)
		}
	case []any:
		for i, item := range x {
			flatten(join(prefix, "["+strconv.Itoa(i)+"]"), item, out)
		}
	case string:
		if x != "" {
			out[prefix] = x
		}
	default:
		out[prefix] = fmt.Sprint(x)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
