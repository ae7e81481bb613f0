package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/strogmv/notifyd/internal/pkg/presence"
)

// Event names written by the registry.
const (
	EventConnect      = "connect"
	EventSubscribed   = "subscribed"
	EventHeartbeat    = "heartbeat"
	EventNotification = "notification"
)

// Presence records online status shared between instances.
type Presence interface {
	Set(ctx context.Context, userID string, online bool, at time.Time) (presence.Status, error)
	Get(ctx context.Context, userID string) (presence.Status, error)
}

// Registry tracks live push connections: at most one per user, plus any
// number of topic subscriptions. State is local to the process.
type Registry struct {
	users  sync.Map // userID -> Conn
	topics sync.Map // topic -> *topicSet

	presence Presence
	log      *slog.Logger
	now      func() time.Time
}

// topicSet is removed from the topic map once its last subscriber leaves.
// mu orders that removal against Subscribe; a dead set accepts no more
// subscribers.
type topicSet struct {
	mu    sync.Mutex
	dead  bool
	conns sync.Map // conn id -> Conn
}

func (s *topicSet) len() int {
	n := 0
	s.conns.Range(func(_, _ any) bool { n++; return true })
	return n
}

func NewRegistry(p Presence, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{presence: p, log: log.With(slog.String("component", "push")), now: time.Now}
}

// NewEvent builds a frame. Ids are millisecond timestamps so a client can
// resume with Last-Event-ID.
func (r *Registry) NewEvent(name string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: strconv.FormatInt(r.now().UnixMilli(), 10), Name: name, Data: data}, nil
}

// Connect registers conn as userID's connection. An existing connection
// for the user is completed first.
func (r *Registry) Connect(ctx context.Context, userID string, conn Conn) {
	if prev, loaded := r.users.Swap(userID, conn); loaded {
		prev.(Conn).Close()
		connectionsClosed.WithLabelValues(reasonReplaced).Inc()
		r.log.Info("replaced push connection", slog.String("user", userID))
	} else {
		liveConnections.WithLabelValues(kindUser).Inc()
	}

	now := r.now()
	r.send(conn, EventConnect, map[string]any{
		"message":   "Connected to notification stream",
		"userId":    userID,
		"timestamp": now.UTC().Format(time.RFC3339),
	})
	r.markPresence(ctx, userID, true)
	r.log.Info("push connection opened", slog.String("user", userID), slog.String("conn", conn.ID()))
}

// Release removes conn once its transport has finished. It is a no-op
// when conn was already replaced or removed.
func (r *Registry) Release(ctx context.Context, userID string, conn Conn) {
	if !r.users.CompareAndDelete(userID, conn) {
		return
	}
	conn.Close()
	liveConnections.WithLabelValues(kindUser).Dec()
	connectionsClosed.WithLabelValues(reasonCompleted).Inc()
	r.markPresence(ctx, userID, false)
	r.log.Info("push connection closed", slog.String("user", userID))
}

// Subscribe adds conn to the subscribers of topic.
func (r *Registry) Subscribe(topic, userID string, conn Conn) {
	for {
		v, _ := r.topics.LoadOrStore(topic, &topicSet{})
		set := v.(*topicSet)
		id := conn.ID()
		set.mu.Lock()
		if set.dead {
			set.mu.Unlock()
			continue
		}
		set.conns.Store(id, conn)
		set.mu.Unlock()
		break
	}
	liveConnections.WithLabelValues(kindTopic).Inc()

	r.send(conn, EventSubscribed, map[string]any{
		"message": "Subscribed to " + topic,
		"topic":   topic,
		"userId":  userID,
	})
	r.log.Info("topic subscription", slog.String("topic", topic), slog.String("user", userID))
}

// Unsubscribe removes conn from topic.
func (r *Registry) Unsubscribe(topic string, conn Conn) {
	v, ok := r.topics.Load(topic)
	if !ok {
		return
	}
	r.dropFromTopic(topic, v.(*topicSet), conn, reasonCompleted)
}

// SendToUser writes one event to userID's connection. A failed write
// removes the connection.
func (r *Registry) SendToUser(userID, eventName string, payload any) bool {
	v, ok := r.users.Load(userID)
	if !ok {
		return false
	}
	conn := v.(Conn)
	ev, err := r.NewEvent(eventName, payload)
	if err != nil {
		r.log.Error("encode push event", slog.String("user", userID), slog.Any("error", err))
		return false
	}
	if err := conn.Send(ev); err != nil {
		r.log.Warn("push send failed", slog.String("user", userID), slog.Any("error", err))
		r.dropUser(userID, conn, reasonWriteFailed)
		return false
	}
	eventsSent.WithLabelValues(eventName).Inc()
	return true
}

// Broadcast writes one event to every subscriber of topic and returns the
// number reached. Subscribers that fail are pruned after the pass.
func (r *Registry) Broadcast(topic, eventName string, payload any) int {
	v, ok := r.topics.Load(topic)
	if !ok {
		return 0
	}
	set := v.(*topicSet)
	ev, err := r.NewEvent(eventName, payload)
	if err != nil {
		r.log.Error("encode broadcast event", slog.String("topic", topic), slog.Any("error", err))
		return 0
	}

	var failed []Conn
	sent := 0
	set.conns.Range(func(_, c any) bool {
		conn := c.(Conn)
		if err := conn.Send(ev); err != nil {
			failed = append(failed, conn)
		} else {
			sent++
		}
		return true
	})
	for _, conn := range failed {
		r.dropFromTopic(topic, set, conn, reasonWriteFailed)
	}
	if len(failed) > 0 {
		r.log.Warn("pruned topic subscribers", slog.String("topic", topic), slog.Int("count", len(failed)))
	}
	eventsSent.WithLabelValues(eventName).Add(float64(sent))
	return sent
}

// BroadcastAll writes one event to every user connection.
func (r *Registry) BroadcastAll(eventName string, payload any) int {
	sent := 0
	for _, userID := range r.ActiveUsers() {
		if r.SendToUser(userID, eventName, payload) {
			sent++
		}
	}
	return sent
}

// HeartbeatSweep writes a keep-alive to every connection, pruning those
// that fail, and refreshes presence of the users still connected.
func (r *Registry) HeartbeatSweep(ctx context.Context) {
	now := r.now()
	ev, err := r.NewEvent(EventHeartbeat, map[string]any{"timestamp": now.UTC().Format(time.RFC3339)})
	if err != nil {
		return
	}

	r.users.Range(func(k, c any) bool {
		userID, conn := k.(string), c.(Conn)
		if err := conn.Send(ev); err != nil {
			r.dropUser(userID, conn, reasonHeartbeat)
			return true
		}
		r.markPresence(ctx, userID, true)
		return true
	})
	r.topics.Range(func(k, v any) bool {
		topic, set := k.(string), v.(*topicSet)
		set.conns.Range(func(_, c any) bool {
			if conn := c.(Conn); conn.Send(ev) != nil {
				r.dropFromTopic(topic, set, conn, reasonHeartbeat)
			}
			return true
		})
		return true
	})
	heartbeatSweeps.Inc()
}

// Disconnect completes userID's connection. Unknown users are ignored.
func (r *Registry) Disconnect(ctx context.Context, userID string) bool {
	v, ok := r.users.LoadAndDelete(userID)
	if !ok {
		return false
	}
	v.(Conn).Close()
	liveConnections.WithLabelValues(kindUser).Dec()
	connectionsClosed.WithLabelValues(reasonDisconnected).Inc()
	r.markPresence(ctx, userID, false)
	r.log.Info("push connection disconnected", slog.String("user", userID))
	return true
}

func (r *Registry) IsConnected(userID string) bool {
	_, ok := r.users.Load(userID)
	return ok
}

// ActiveUsers lists users with a connection on this instance, sorted.
func (r *Registry) ActiveUsers() []string {
	var out []string
	r.users.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}

func (r *Registry) TopicSubscribers(topic string) int {
	v, ok := r.topics.Load(topic)
	if !ok {
		return 0
	}
	return v.(*topicSet).len()
}

// Stats is a snapshot of the registry.
type Stats struct {
	ActiveConnections int                 `json:"activeConnections"`
	ActiveUsers       []string            `json:"activeUsers"`
	Connections       map[string]ConnInfo `json:"connections"`
	Topics            map[string]int      `json:"topicSubscriptions"`
}

// ConnInfo describes one user connection.
type ConnInfo struct {
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

func (r *Registry) Stats() Stats {
	st := Stats{Connections: map[string]ConnInfo{}, Topics: map[string]int{}}
	r.users.Range(func(k, v any) bool {
		c := v.(Conn)
		st.Connections[k.(string)] = ConnInfo{ConnectedAt: c.CreatedAt().UTC(), LastActivity: c.LastActivity().UTC()}
		return true
	})
	st.ActiveUsers = make([]string, 0, len(st.Connections))
	for u := range st.Connections {
		st.ActiveUsers = append(st.ActiveUsers, u)
	}
	sort.Strings(st.ActiveUsers)
	st.ActiveConnections = len(st.ActiveUsers)
	r.topics.Range(func(k, v any) bool {
		st.Topics[k.(string)] = v.(*topicSet).len()
		return true
	})
	return st
}

// Status reports whether userID is online here or, through presence, on
// another instance.
func (r *Registry) Status(ctx context.Context, userID string) (presence.Status, error) {
	if r.IsConnected(userID) {
		return presence.Status{IsOnline: true, LastSeenAt: r.now().UTC().Format(time.RFC3339)}, nil
	}
	if r.presence == nil {
		return presence.Status{}, nil
	}
	return r.presence.Get(ctx, userID)
}

// Run sweeps heartbeats every interval and completes every connection
// when ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			r.HeartbeatSweep(ctx)
		}
	}
}

// Close completes and forgets every connection.
func (r *Registry) Close(ctx context.Context) {
	r.users.Range(func(k, c any) bool {
		r.dropUser(k.(string), c.(Conn), reasonShutdown)
		r.markPresence(ctx, k.(string), false)
		return true
	})
	r.topics.Range(func(k, v any) bool {
		set := v.(*topicSet)
		set.conns.Range(func(_, c any) bool {
			r.dropFromTopic(k.(string), set, c.(Conn), reasonShutdown)
			return true
		})
		return true
	})
}

func (r *Registry) send(conn Conn, name string, payload any) {
	ev, err := r.NewEvent(name, payload)
	if err == nil {
		err = conn.Send(ev)
	}
	if err != nil {
		r.log.Warn("push acknowledgment failed", slog.String("event", name), slog.Any("error", err))
	}
}

func (r *Registry) dropUser(userID string, conn Conn, reason string) {
	if !r.users.CompareAndDelete(userID, conn) {
		return
	}
	conn.Close()
	liveConnections.WithLabelValues(kindUser).Dec()
	connectionsClosed.WithLabelValues(reason).Inc()
	if reason != reasonShutdown {
		r.markPresence(context.Background(), userID, false)
	}
}

func (r *Registry) dropFromTopic(topic string, set *topicSet, conn Conn, reason string) {
	if _, loaded := set.conns.LoadAndDelete(conn.ID()); !loaded {
		return
	}
	conn.Close()
	liveConnections.WithLabelValues(kindTopic).Dec()
	connectionsClosed.WithLabelValues(reason).Inc()
	set.mu.Lock()
	defer set.mu.Unlock()
	if !set.dead && set.len() == 0 {
		set.dead = true
		r.topics.CompareAndDelete(topic, set)
	}
}

func (r *Registry) markPresence(ctx context.Context, userID string, online bool) {
	if r.presence == nil {
		return
	}
	if _, err := r.presence.Set(ctx, userID, online, r.now()); err != nil {
		r.log.Warn("presence update failed", slog.String("user", userID), slog.Any("error", err))
	}
}
