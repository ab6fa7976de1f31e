package notify

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"communityboard/internal/domain"
	"communityboard/internal/pkg/metrics"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
	sendBuffer = 16
)

const (
	EventStatus    = "status"
	EventSuspended = "suspended"
	EventReleased  = "released"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is pushed to every open socket of the affected user.
type Event struct {
	Type    string     `json:"type"`
	Allowed bool       `json:"allowed"`
	Until   *time.Time `json:"until,omitempty"`
}

type connection struct {
	subject string
	conn    *websocket.Conn
	send    chan []byte
}

// Hub tracks open sockets per user. A user may have several tabs open.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*connection]struct{}
	logger      *logrus.Logger
	metrics     *metrics.Metrics
}

func NewHub(logger *logrus.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		connections: make(map[string]map[*connection]struct{}),
		logger:      logger,
		metrics:     m,
	}
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.connections[c.subject]
	if !ok {
		set = make(map[*connection]struct{})
		h.connections[c.subject] = set
	}
	set[c] = struct{}{}
	h.metrics.NotificationClients(1)
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.connections[c.subject]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.connections, c.subject)
	}
	h.metrics.NotificationClients(-1)
}

// Suspended implements penalty.Notifier.
func (h *Hub) Suspended(p domain.Principal, until time.Time) {
	h.SendToUser(p.ExternalID, &Event{Type: EventSuspended, Allowed: false, Until: &until})
}

// Released implements penalty.Notifier.
func (h *Hub) Released(p domain.Principal) {
	h.SendToUser(p.ExternalID, &Event{Type: EventReleased, Allowed: true})
}

// SendToUser reports whether at least one socket accepted the event. Slow
// clients with a full buffer are skipped.
func (h *Hub) SendToUser(subject string, event *Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := false
	for c := range h.connections[subject] {
		select {
		case c.send <- data:
			delivered = true
		default:
			h.logger.WithField("user", subject).Warn("notification dropped, client too slow")
		}
	}
	return delivered
}

// ServeWS registers conn, queues the initial status event and blocks until
// the client goes away.
func (h *Hub) ServeWS(conn *websocket.Conn, subject string, initial *Event) {
	c := &connection{
		subject: subject,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}
	h.register(c)

	if initial != nil {
		if data, err := json.Marshal(initial); err == nil {
			c.send <- data
		}
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump only drains control frames; clients have nothing to say.
func (h *Hub) readPump(c *connection) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithField("user", c.subject).WithError(err).Debug("websocket closed")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) connectedCount(subject string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[subject])
}
