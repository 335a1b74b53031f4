package couchwatch

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	gorilla "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/json420/couch.go/pkg/models"
)

const (
	// CloseMessageCode is sent to clients when the hub shuts down
	CloseMessageCode = gorilla.CloseNormalClosure
	// MaxMessageSize bounds a document sent by a client
	MaxMessageSize = 1 << 20

	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Committer is the part of couch.Session the hub writes through.
type Committer interface {
	Mark(doc models.Document)
	Commit()
}

type client struct {
	conn *gorilla.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub relays documents between a session and WebSocket clients.
type Hub struct {
	upgrader gorilla.Upgrader
	logger   zerolog.Logger

	committerLock sync.RWMutex
	committer     Committer

	clientsLock sync.Mutex
	clients     map[*client]struct{}
	closed      bool
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		logger:  log,
		clients: make(map[*client]struct{}),
	}
}

// Attach sets where client documents are committed. Until then they are
// dropped.
func (h *Hub) Attach(c Committer) {
	h.committerLock.Lock()
	defer h.committerLock.Unlock()
	h.committer = c
}

// Clients is the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	return len(h.clients)
}

// Broadcast pushes doc to every client. A client that cannot keep up is
// disconnected.
func (h *Hub) Broadcast(doc models.Document) {
	msg, err := json.Marshal(doc)
	if err != nil {
		h.logger.Error().Err(err).Str("doc_id", doc.ID()).Msg("cannot encode document")
		return
	}

	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn().Str("remote", c.conn.RemoteAddr().String()).Msg("client too slow, disconnecting")
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(MaxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.clientsLock.Lock()
	if h.closed {
		h.clientsLock.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.clientsLock.Unlock()
	h.logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("client connected")

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) remove(c *client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if !gorilla.IsCloseError(err, gorilla.CloseNormalClosure, gorilla.CloseGoingAway) {
				h.logger.Debug().Err(err).Msg("client read failed")
			}
			return
		}

		var doc models.Document
		if err := json.Unmarshal(msg, &doc); err != nil || doc == nil {
			h.logger.Warn().Err(err).Msg("client sent a message that is not a JSON object")
			continue
		}

		h.committerLock.RLock()
		committer := h.committer
		h.committerLock.RUnlock()
		if committer == nil {
			continue
		}
		committer.Mark(doc)
		committer.Commit()
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(gorilla.TextMessage, msg); err != nil {
			h.logger.Debug().Err(err).Msg("client write failed")
			h.remove(c)
			// drain until remove closes send
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteControl(gorilla.CloseMessage,
		gorilla.FormatCloseMessage(CloseMessageCode, ""),
		time.Now().Add(writeTimeout))
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}
