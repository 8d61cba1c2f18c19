package hub

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrSendBufferFull is returned when a client is not draining its queue.
var ErrSendBufferFull = errors.New("send buffer full")

// ErrTransportClosed is returned by Send after Close.
var ErrTransportClosed = errors.New("transport closed")

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

// wsTransport adapts a gorilla connection to Transport. Writes of data
// frames happen only on the write pump goroutine.
type wsTransport struct {
	conn *websocket.Conn
	send chan []byte

	once   sync.Once
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	t := &wsTransport{
		conn: conn,
		send: make(chan []byte, sendQueueSize),
		done: make(chan struct{}),
	}
	go t.writePump()
	return t
}

func (t *wsTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	select {
	case t.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (t *wsTransport) Close() error {
	t.once.Do(func() {
		t.mu.Lock()
		t.closed = true
		close(t.done)
		t.mu.Unlock()
	})
	return nil
}

func (t *wsTransport) writePump() {
	defer t.conn.Close()
	for {
		select {
		case data := <-t.send:
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = t.Close()
				return
			}
		case <-t.done:
			// Flush whatever is already queued before the close frame.
			for {
				select {
				case data := <-t.send:
					_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if t.conn.WriteMessage(websocket.TextMessage, data) != nil {
						return
					}
				default:
					_ = t.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}

// Handler upgrades HTTP requests and serves them as hub connections.
type Handler struct {
	registry *Registry
	upgrader websocket.Upgrader
}

// NewHandler returns an http.Handler for the websocket endpoint. When
// allowedOrigins is empty every origin is accepted.
func NewHandler(registry *Registry, allowedOrigins []string) *Handler {
	h := &Handler{registry: registry}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, o := range allowedOrigins {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.registry.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	t := newWSTransport(conn)
	c, err := h.registry.Connect(r.Context(), requestToken(r), t)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthenticated"), time.Now().Add(writeWait))
		return
	}
	defer h.registry.Disconnect(c.ID)

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		h.registry.MarkAlive(c.ID)
		return nil
	})

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.registry.logger.Debug("Websocket read failed", "conn_id", c.ID, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			// Binary frames are not part of the protocol.
			continue
		}
		h.registry.HandleMessage(c.ID, data)
	}
}

// requestToken reads the token from the query string or a bearer header.
func requestToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
