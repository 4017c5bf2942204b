// Package ws fans out live NOC events to WebSocket clients, with a bounded
// per-topic replay buffer so reconnecting clients can catch up.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/btree"
	"go.uber.org/zap"

	"github.com/astranetix/bms/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	sendBufferSize = 256
)

// Message wraps a WebSocket payload with sequencing for replay.
type Message struct {
	Topic string          `json:"topic"`
	Seq   uint64          `json:"seq"`
	Data  json.RawMessage `json:"data"`
}

// replayBuffer holds the newest size messages of one topic ordered by seq.
type replayBuffer struct {
	items btree.Map[uint64, Message]
	size  int
}

func (r *replayBuffer) add(msg Message) {
	r.items.Set(msg.Seq, msg)
	for r.items.Len() > r.size {
		r.items.PopMin()
	}
}

// since returns messages with Seq > seq in order.
func (r *replayBuffer) since(seq uint64) []Message {
	var out []Message
	r.items.Ascend(seq+1, func(_ uint64, m Message) bool {
		out = append(out, m)
		return true
	})
	return out
}

// Client is one WebSocket connection subscribed to a single topic.
type Client struct {
	id    string
	topic string
	conn  *websocket.Conn
	send  chan Message
	hub   *Hub
	once  sync.Once
}

// Hub tracks clients per topic and the replay buffers.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	buffers    map[string]*replayBuffer
	replaySize int
	nextSeq    uint64

	upgrader websocket.Upgrader
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub creates a Hub keeping replaySize messages per topic.
func NewHub(replaySize int, logger *zap.Logger) *Hub {
	if replaySize <= 0 {
		replaySize = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		buffers:    make(map[string]*replayBuffer),
		replaySize: replaySize,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Broadcast stores data in the topic's replay buffer and pushes it to every
// subscribed client. data must be a JSON document. Slow clients drop the
// message rather than block.
func (h *Hub) Broadcast(topic string, data []byte) uint64 {
	h.mu.Lock()
	h.nextSeq++
	msg := Message{Topic: topic, Seq: h.nextSeq, Data: data}
	buf, ok := h.buffers[topic]
	if !ok {
		buf = &replayBuffer{size: h.replaySize}
		h.buffers[topic] = buf
	}
	buf.add(msg)
	for c := range h.clients[topic] {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Dropping message for slow client",
				zap.String("client_id", c.id),
				zap.String("topic", topic))
		}
	}
	h.mu.Unlock()
	return msg.Seq
}

// Replay returns buffered messages for topic after since.
func (h *Hub) Replay(topic string, since uint64) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if buf, ok := h.buffers[topic]; ok {
		return buf.since(since)
	}
	return nil
}

// ClientCount returns the number of connected clients on topic.
func (h *Hub) ClientCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// ServeWS upgrades the request and subscribes the connection to topic. When
// since is non-zero the buffered messages after it are sent first.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, clientID, topic string, since uint64) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &Client{
		id:    clientID,
		topic: topic,
		conn:  conn,
		send:  make(chan Message, sendBufferSize),
		hub:   h,
	}

	// replay and registration happen under one lock so no message is lost
	// or duplicated between them
	h.mu.Lock()
	if since > 0 {
		if buf, ok := h.buffers[topic]; ok {
			for _, m := range buf.since(since) {
				select {
				case c.send <- m:
				default:
				}
			}
		}
	}
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][c] = struct{}{}
	h.mu.Unlock()
	metrics.WebsocketClients.Inc()

	h.logger.Debug("Client registered", zap.String("client_id", clientID), zap.String("topic", topic))

	h.wg.Add(2)
	go c.writePump()
	go c.readPump()
	return nil
}

func (h *Hub) unregister(c *Client) {
	c.once.Do(func() {
		h.mu.Lock()
		if set, ok := h.clients[c.topic]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.clients, c.topic)
			}
		}
		close(c.send)
		h.mu.Unlock()
		metrics.WebsocketClients.Dec()
		h.logger.Debug("Client unregistered", zap.String("client_id", c.id))
	})
}

// readPump only watches for close and pong frames; clients never send data.
func (c *Client) readPump() {
	defer c.hub.wg.Done()
	defer func() {
		c.hub.unregister(c)
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

func (c *Client) writePump() {
	defer c.hub.wg.Done()
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
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.hub.ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(writeWait))
			return
		}
	}
}

// Shutdown closes every connection and waits for the pumps to exit.
func (h *Hub) Shutdown() error {
	h.logger.Info("Shutting down WebSocket hub")
	h.cancel()

	h.mu.RLock()
	for _, set := range h.clients {
		for c := range set {
			_ = c.conn.Close()
		}
	}
	h.mu.RUnlock()

	h.wg.Wait()
	h.logger.Info("WebSocket hub shutdown complete")
	return nil
}
