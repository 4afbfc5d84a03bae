package debugserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/payperplay/hosting/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is one group/node state transition pushed to /ws/events
// subscribers, for operational visibility.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Group     string    `json:"group"`
	Hostname  string    `json:"hostname,omitempty"`
	State     string    `json:"state,omitempty"`
}

// Hub fans Event values out to every connected websocket client through a
// register/unregister/broadcast channel loop.
type Hub struct {
	clients    map[*websocket.Conn]*sync.Mutex
	clientsMu  sync.RWMutex
	broadcast  chan Event
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	shutdown   chan struct{}
	log        *logging.Logger
}

func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]*sync.Mutex),
		broadcast:  make(chan Event, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		shutdown:   make(chan struct{}),
		log:        log,
	}
}

// Publish enqueues an event for every connected client. Non-blocking: a
// full buffer drops the event rather than stall the caller (the scaler's
// own tick loop is the caller, and must never wait on an operator's
// websocket client).
func (h *Hub) Publish(e Event) {
	select {
	case h.broadcast <- e:
	default:
		h.logger().Warn("debugserver: event hub buffer full, dropping event", map[string]any{"type": e.Type})
	}
}

func (h *Hub) logger() *logging.Logger {
	if h.log != nil {
		return h.log
	}
	return logging.Default()
}

// Run drives the hub's register/unregister/broadcast loop until Stop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.clientsMu.Lock()
			h.clients[conn] = &sync.Mutex{}
			h.clientsMu.Unlock()
		case conn := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.clientsMu.Unlock()
		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for conn, writeMu := range h.clients {
				go h.send(conn, writeMu, event)
			}
			h.clientsMu.RUnlock()
		case <-h.shutdown:
			return
		}
	}
}

func (h *Hub) send(conn *websocket.Conn, writeMu *sync.Mutex, event Event) {
	writeMu.Lock()
	defer writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(event); err != nil {
		h.unregister <- conn
	}
}

func (h *Hub) Stop() { close(h.shutdown) }

// HandleWebsocket upgrades GET /ws/events and registers the connection.
func (h *Hub) HandleWebsocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger().Warn("debugserver: websocket upgrade failed", map[string]any{"err": err.Error()})
		return
	}
	h.register <- conn
	go h.readLoop(conn)
}

func (h *Hub) readLoop(conn *websocket.Conn) {
	defer func() { h.unregister <- conn }()
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
