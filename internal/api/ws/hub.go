package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wlockwood/lits/internal/models"
	"github.com/wlockwood/lits/internal/observability"
	"github.com/wlockwood/lits/pkg/dto"
)

const EventMatch = "match"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one connected WebSocket subscriber.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	personID uuid.UUID // uuid.Nil receives everything
}

type message struct {
	data    []byte
	persons map[uuid.UUID]bool
}

func (c *Client) wants(m message) bool {
	return c.personID == uuid.Nil || m.persons[c.personID]
}

// Hub fans match events out to connected clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub event loop. It returns when ctx is cancelled, after
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
				observability.WSConnections.Dec()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "person_id", client.personID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				observability.WSConnections.Dec()
			}
			h.mu.Unlock()
			slog.Debug("ws client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.wants(msg) {
					continue
				}
				select {
				case client.send <- msg.data:
				default:
					// slow client
					delete(h.clients, client)
					close(client.send)
					observability.WSConnections.Dec()
				}
			}
			h.mu.Unlock()
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastMatch sends a persisted match event to interested clients.
func (h *Hub) BroadcastMatch(ev models.MatchEvent) {
	out := dto.WSEvent{
		Type:    EventMatch,
		ImageID: ev.ImageID,
		Data: dto.MatchResponse{
			Path:      ev.Path,
			Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
			Matches:   make([]dto.MatchedPerson, 0, len(ev.Matches)),
		},
	}
	persons := make(map[uuid.UUID]bool, len(ev.Matches))
	for _, m := range ev.Matches {
		persons[m.PersonID] = true
		out.Data.Matches = append(out.Data.Matches, dto.MatchedPerson{
			PersonID:   m.PersonID,
			PersonName: m.PersonName,
			EncodingID: m.EncodingID,
			Distance:   m.Distance,
		})
	}

	data, err := json.Marshal(out)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- message{data: data, persons: persons}:
	case <-h.done:
	}
}

// HandleWS upgrades the request. ?person_id= limits the stream to matches
// of one person.
func (h *Hub) HandleWS(c *gin.Context) {
	var personID uuid.UUID
	if v := c.Query("person_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid person_id"})
			return
		}
		personID = id
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan []byte, 64),
		personID: personID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		// Incoming messages are ignored; reading detects disconnects.
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
