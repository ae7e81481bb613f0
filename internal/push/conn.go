package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrConnClosed is returned by Send on a completed connection.
	ErrConnClosed = errors.New("push connection closed")
	// ErrBackpressure is returned by Send when the outbound queue is full.
	ErrBackpressure = errors.New("push connection queue full")
	// ErrConnectionWrite wraps a failed write to the client.
	ErrConnectionWrite = errors.New("push connection write failed")
)

// Event is one frame written to a client.
type Event struct {
	ID   string
	Name string
	Data json.RawMessage
}

// Conn is a live push connection. Send never blocks.
type Conn interface {
	ID() string
	Send(ev Event) error
	// Close completes the connection. It is idempotent.
	Close()
	Done() <-chan struct{}
	CreatedAt() time.Time
	// LastActivity is the time of the last accepted Send.
	LastActivity() time.Time
}

// outbox is the queue shared by both transports.
type outbox struct {
	id           string
	createdAt    time.Time
	lastActivity atomic.Int64 // unix nanos
	queue        chan Event
	done         chan struct{}
	once         sync.Once
}

func (o *outbox) init(buffer int) {
	if buffer <= 0 {
		buffer = 32
	}
	o.id = uuid.NewString()
	o.createdAt = time.Now()
	o.lastActivity.Store(o.createdAt.UnixNano())
	o.queue = make(chan Event, buffer)
	o.done = make(chan struct{})
}

func (o *outbox) ID() string            { return o.id }
func (o *outbox) Done() <-chan struct{} { return o.done }
func (o *outbox) Close()                { o.once.Do(func() { close(o.done) }) }
func (o *outbox) CreatedAt() time.Time  { return o.createdAt }

func (o *outbox) LastActivity() time.Time {
	return time.Unix(0, o.lastActivity.Load())
}

func (o *outbox) touch() { o.lastActivity.Store(time.Now().UnixNano()) }

func (o *outbox) Send(ev Event) error {
	select {
	case <-o.done:
		return ErrConnClosed
	default:
	}
	select {
	case o.queue <- ev:
		o.touch()
		return nil
	case <-o.done:
		return ErrConnClosed
	default:
		return ErrBackpressure
	}
}

// SSEConn streams events as text/event-stream frames.
type SSEConn struct {
	outbox
	timeout   time.Duration
	writeWait time.Duration
}

// NewSSEConn returns a connection with the given queue size. The
// connection is completed once timeout elapses.
func NewSSEConn(buffer int, timeout time.Duration) *SSEConn {
	c := &SSEConn{timeout: timeout, writeWait: sseWriteWait}
	c.init(buffer)
	return c
}

// Serve writes queued events to w until the connection completes, ctx is
// cancelled or a write fails. Each frame must be written within writeWait
// when w supports write deadlines. The connection is closed on return.
func (c *SSEConn) Serve(ctx context.Context, w http.ResponseWriter) error {
	defer c.Close()

	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("%w: streaming unsupported", ErrConnectionWrite)
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	rc := http.NewResponseController(w)
	c.extendDeadline(rc)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	expire := lifetime(c.timeout)
	defer expire.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-expire.C:
			return nil
		case ev := <-c.queue:
			c.extendDeadline(rc)
			if err := writeSSE(w, ev); err != nil {
				return fmt.Errorf("%w: %v", ErrConnectionWrite, err)
			}
			flusher.Flush()
		}
	}
}

// extendDeadline bounds the next write. Writers without deadline support
// are left as they are.
func (c *SSEConn) extendDeadline(rc *http.ResponseController) {
	_ = rc.SetWriteDeadline(time.Now().Add(c.writeWait))
}

func writeSSE(w http.ResponseWriter, ev Event) error {
	_, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Name, ev.Data)
	return err
}

// WSConn carries events as JSON text frames over a websocket.
type WSConn struct {
	outbox
	ws      *websocket.Conn
	timeout time.Duration
}

type wsFrame struct {
	ID    string          `json:"id"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

const (
	sseWriteWait = 10 * time.Second
	wsWriteWait  = 10 * time.Second
	wsReadLimit  = 4096
)

func NewWSConn(ws *websocket.Conn, buffer int, timeout time.Duration) *WSConn {
	c := &WSConn{ws: ws, timeout: timeout}
	c.init(buffer)
	return c
}

// Serve pumps queued events to the socket. Inbound messages are discarded;
// a read error (including a client close) completes the connection.
func (c *WSConn) Serve(ctx context.Context) error {
	defer func() {
		c.Close()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(wsReadLimit)
	go func() {
		for {
			if _, _, err := c.ws.ReadMessage(); err != nil {
				c.Close()
				return
			}
		}
	}()

	expire := lifetime(c.timeout)
	defer expire.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-expire.C:
			return nil
		case ev := <-c.queue:
			_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.ws.WriteJSON(wsFrame{ID: ev.ID, Event: ev.Name, Data: ev.Data}); err != nil {
				return fmt.Errorf("%w: %v", ErrConnectionWrite, err)
			}
			if ev.Name == EventHeartbeat {
				if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return fmt.Errorf("%w: %v", ErrConnectionWrite, err)
				}
			}
		}
	}
}

func lifetime(d time.Duration) *time.Timer {
	if d <= 0 {
		d = 24 * time.Hour
	}
	return time.NewTimer(d)
}
