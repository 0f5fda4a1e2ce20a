// Package events pushes job activity out of the process: progress to
// websocket clients and state transitions to NATS.
package events

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/logger"
	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ProgressSource is the queue's progress subscription API.
type ProgressSource interface {
	SubscribeToProgress(jobID string, fn func(models.Progress))
	Unsubscribe(jobID string)
}

// Message is the frame written to websocket clients.
type Message struct {
	Type string          `json:"type"`
	Data models.Progress `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans a job's progress out to every websocket client watching it. The
// hub holds the queue's single progress subscription while at least one
// client is connected.
type Hub struct {
	src ProgressSource
	log *zerolog.Logger

	mu      sync.Mutex
	clients map[string]map[*client]struct{}
}

func NewHub(src ProgressSource) *Hub {
	return &Hub{
		src:     src,
		log:     logger.WithComponent("ws"),
		clients: make(map[string]map[*client]struct{}),
	}
}

// ServeJob upgrades the request and streams progress for jobID until the
// client disconnects.
func (h *Hub) ServeJob(w http.ResponseWriter, r *http.Request, jobID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("job_id", jobID).Msg("websocket upgrade failed")
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(jobID, c)

	go h.writePump(c)
	h.readPump(jobID, c)
}

// ClientCount reports how many clients watch jobID.
func (h *Hub) ClientCount(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[jobID])
}

// The queue never holds its lock while invoking progress callbacks, so
// calling into it with h.mu held cannot deadlock against broadcast.
func (h *Hub) register(jobID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[jobID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[jobID] = set
		h.src.SubscribeToProgress(jobID, func(p models.Progress) { h.broadcast(jobID, p) })
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(jobID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[jobID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, jobID)
		h.src.Unsubscribe(jobID)
	}
}

func (h *Hub) broadcast(jobID string, p models.Progress) {
	data, err := json.Marshal(Message{Type: "progress", Data: p})
	if err != nil {
		h.log.Error().Err(err).Msg("marshal progress")
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[jobID] {
		select {
		case c.send <- data:
		default:
			h.log.Warn().Str("job_id", jobID).Msg("slow websocket client; dropping progress frame")
		}
	}
}

func (h *Hub) readPump(jobID string, c *client) {
	defer func() {
		h.unregister(jobID, c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
