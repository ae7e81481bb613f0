package ingest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/strogmv/notifyd/internal/domain"
)

// Kind identifies which event shapes a stream carries.
type Kind int

const (
	KindUser Kind = iota
	KindAssessment
	KindProctoring
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindAssessment:
		return "assessment"
	case KindProctoring:
		return "proctoring"
	}
	return "unknown"
}

// Decode maps the raw field values of one stream entry to its event.
// Every error wraps domain.ErrDecode.
func Decode(kind Kind, values map[string]string) (domain.Event, error) {
	f := clean(values)

	var (
		ev  domain.Event
		err error
	)
	switch kind {
	case KindUser:
		ev, err = decodeUserRegistered(f)
	case KindProctoring:
		ev, err = decodeProctoringViolation(f)
	case KindAssessment:
		switch assessmentType(f) {
		case domain.EventSessionCompleted:
			ev, err = decodeSessionCompleted(f)
		case domain.EventAssessmentPublished:
			ev, err = decodeAssessmentPublished(f)
		default:
			err = fmt.Errorf("unrecognized assessment event (keys %v)", f.keys())
		}
	default:
		err = fmt.Errorf("unknown stream kind %d", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return ev, nil
}

// assessmentType resolves which of the two assessment events an entry is:
// an explicit type field wins, otherwise the key shape decides.
func assessmentType(f fields) string {
	switch t := f["type"]; t {
	case domain.EventSessionCompleted, domain.EventAssessmentPublished:
		return t
	}
	hasAssigned := f.hasPrefix("assignedUsers")
	if _, ok := f["sessionId"]; ok && !hasAssigned {
		return domain.EventSessionCompleted
	}
	if hasAssigned {
		return domain.EventAssessmentPublished
	}
	return ""
}

type fields map[string]string

// clean drops bookkeeping keys and decodes base64 values. Values that are
// not base64 of valid UTF-8 text are kept as they are.
func clean(values map[string]string) fields {
	out := make(fields, len(values))
	for k, v := range values {
		if k == "init" || strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = decodeValue(v)
	}
	return out
}

func decodeValue(v string) string {
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil || !utf8.Valid(b) {
		return v
	}
	return string(b)
}

func (f fields) keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f fields) hasPrefix(p string) bool {
	for k := range f {
		if k == p || strings.HasPrefix(k, p+".") {
			return true
		}
	}
	return false
}

func (f fields) required(key string) (string, error) {
	v := strings.TrimSpace(f[key])
	if v == "" {
		return "", fmt.Errorf("field %q is required", key)
	}
	return v, nil
}

func (f fields) float(key string) (float64, error) {
	v := strings.TrimSpace(f[key])
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("field %q: %q is not a number", key, v)
	}
	return n, nil
}

func (f fields) integer(key string) (int, error) {
	n, err := f.float(key)
	if err != nil {
		return 0, err
	}
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("field %q: %v is not an integer", key, n)
	}
	return int(n), nil
}

func (f fields) envelope(eventType string) (domain.Envelope, error) {
	env := domain.Envelope{ID: f["eventId"], Type: eventType}
	if env.ID == "" {
		env.ID = f["id"]
	}
	ts, err := parseTimestamp(f["timestamp"])
	if err != nil {
		return env, err
	}
	env.Timestamp = ts
	return env, nil
}

// parseTimestamp accepts RFC 3339 text or epoch seconds (fractional
// allowed); values above 1e12 are taken as epoch milliseconds.
func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("field \"timestamp\": %q is not a time", v)
	}
	if n > 1e12 {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// indexed collects "name.[i]" and "name.[i].field" keys by index.
func (f fields) indexed(name string) (map[int]map[string]string, error) {
	out := map[int]map[string]string{}
	prefix := name + ".["
	for k, v := range f {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := k[len(prefix):]
		end := strings.Index(rest, "]")
		if end < 0 {
			return nil, fmt.Errorf("malformed key %q", k)
		}
		idx, err := strconv.Atoi(rest[:end])
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("malformed index in %q", k)
		}
		field := strings.TrimPrefix(rest[end+1:], ".")
		if out[idx] == nil {
			out[idx] = map[string]string{}
		}
		out[idx][field] = v
	}
	return out, nil
}

func sortedIndexes(m map[int]map[string]string) []int {
	idx := make([]int, 0, len(m))
	for i := range m {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// stringList reads a list of scalars from "name.[i]" keys, a JSON array
// or a comma-separated value.
func (f fields) stringList(name string) ([]string, error) {
	items, err := f.indexed(name)
	if err != nil {
		return nil, err
	}
	var out []string
	if len(items) > 0 {
		for _, i := range sortedIndexes(items) {
			if v := strings.TrimSpace(items[i][""]); v != "" {
				out = append(out, v)
			}
		}
		return out, nil
	}

	raw := strings.TrimSpace(f[name])
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var list []any
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("field %q: %v", name, err)
		}
		for _, v := range list {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" && v != nil {
				out = append(out, s)
			}
		}
		return out, nil
	}
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func decodeUserRegistered(f fields) (domain.Event, error) {
	env, err := f.envelope(domain.EventUserRegistered)
	if err != nil {
		return nil, err
	}
	userID, err := f.required("userId")
	if err != nil {
		return nil, err
	}
	return domain.UserRegistered{
		Envelope:  env,
		UserID:    userID,
		Username:  f["username"],
		Email:     f["email"],
		FirstName: f["firstName"],
		LastName:  f["lastName"],
	}, nil
}

func decodeSessionCompleted(f fields) (domain.Event, error) {
	env, err := f.envelope(domain.EventSessionCompleted)
	if err != nil {
		return nil, err
	}
	userID, err := f.required("userId")
	if err != nil {
		return nil, err
	}
	score, err := f.float("score")
	if err != nil {
		return nil, err
	}
	return domain.SessionCompleted{
		Envelope:       env,
		UserID:         userID,
		Username:       f["username"],
		Email:          f["email"],
		SessionID:      f["sessionId"],
		AssessmentName: f["assessmentName"],
		CompletionTime: f["completionTime"],
		Score:          score,
		Status:         f["status"],
	}, nil
}

func decodeProctoringViolation(f fields) (domain.Event, error) {
	env, err := f.envelope(domain.EventProctoringViolation)
	if err != nil {
		return nil, err
	}
	sessionID, err := f.required("sessionId")
	if err != nil {
		return nil, err
	}
	proctors, err := f.stringList("proctorIds")
	if err != nil {
		return nil, err
	}
	return domain.ProctoringViolation{
		Envelope:      env,
		UserID:        f["userId"],
		Username:      f["username"],
		SessionID:     sessionID,
		ViolationType: f["violationType"],
		Severity:      f["severity"],
		ProctorIDs:    proctors,
	}, nil
}

func decodeAssessmentPublished(f fields) (domain.Event, error) {
	env, err := f.envelope(domain.EventAssessmentPublished)
	if err != nil {
		return nil, err
	}
	duration, err := f.integer("duration")
	if err != nil {
		return nil, err
	}
	items, err := f.indexed("assignedUsers")
	if err != nil {
		return nil, err
	}
	ev := domain.AssessmentPublished{
		Envelope:       env,
		AssessmentID:   f["assessmentId"],
		AssessmentName: f["assessmentName"],
		Duration:       duration,
		DueDate:        f["dueDate"],
	}
	for _, i := range sortedIndexes(items) {
		u := items[i]
		ev.AssignedUsers = append(ev.AssignedUsers, domain.AssignedUser{
			UserID:   u["userId"],
			Username: u["username"],
			Email:    u["email"],
		})
	}
	return ev, nil
}
