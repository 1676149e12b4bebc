package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/synchronizer"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 256
)

// Frame types.
const (
	FrameReplay = "replay" // cached state, sent once right after connecting
	FrameEvent  = "event"  // one live synchronizer event
	FrameError  = "error"  // a refused inbound message
)

// Frame is one outbound websocket message.
type Frame struct {
	Type   string               `json:"type"`
	Events []synchronizer.Event `json:"events,omitempty"`
	Event  *synchronizer.Event  `json:"event,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// InputMessage is one inbound websocket message. Type "input" injects
// Value into the connector; "clear" drops a previous injection.
type InputMessage struct {
	Type      string          `json:"type"`
	Block     ir.BlockID      `json:"block"`
	Connector string          `json:"connector"`
	Kind      string          `json:"kind,omitempty"`
	Value     json.RawMessage `json:"value,omitempty"`
}

// Hub tracks websocket observers. Each client is a synchronizer observer
// whose deliveries are queued and written by its own goroutine, so a slow
// client never blocks the tick loop; a client whose queue fills is
// dropped.
type Hub struct {
	upgrader   websocket.Upgrader
	machine    Machine
	sync       Sync
	metrics    Metrics
	logger     *slog.Logger
	inputRate  rate.Limit
	inputBurst int

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func newHub(cfg Config, logger *slog.Logger) *Hub {
	h := &Hub{
		machine:    cfg.Machine,
		sync:       cfg.Sync,
		metrics:    cfg.Metrics,
		logger:     logger,
		inputRate:  cfg.InputRate,
		inputBurst: cfg.InputBurst,
		clients:    make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024}
	if len(cfg.AllowedOrigins) > 0 {
		origins := cfg.AllowedOrigins
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin) {
				return true
			}
			logger.Warn("websocket origin rejected", "origin", origin)
			return false
		}
	}
	return h
}

// Len returns the number of connected observers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every observer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.ObserversChanged(len(h.clients))
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		h.metrics.ObserversChanged(len(h.clients))
	}
}

func (h *Hub) handleObserve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		limiter: rate.NewLimiter(h.inputRate, h.inputBurst),
		logger:  h.logger.With("remote", r.RemoteAddr),
	}
	if !h.add(c) {
		conn.Close()
		return
	}

	// Hold the client lock across Subscribe so live deliveries queue behind
	// the replay frame.
	c.mu.Lock()
	replay, cancel := h.sync.Subscribe(c)
	c.cancel = cancel
	c.enqueueLocked(Frame{Type: FrameReplay, Events: replay})
	c.mu.Unlock()

	c.logger.Info("observer connected", "replay", len(replay))
	go c.writePump()
	c.readPump()
}

type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	limiter *rate.Limiter
	logger  *slog.Logger

	mu     sync.Mutex
	cancel func()
	closed bool
}

// Deliver implements synchronizer.Observer. It is called from the tick
// loop and never blocks on the network.
func (c *client) Deliver(ev synchronizer.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueueLocked(Frame{Type: FrameEvent, Event: &ev})
}

func (c *client) enqueueLocked(f Frame) {
	if c.closed {
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		c.logger.Error("encode frame", "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("observer too slow, disconnecting")
		go c.close()
	}
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cancel := c.cancel
	close(c.done)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.conn.Close()
	c.hub.remove(c)
	c.logger.Info("observer disconnected")
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			c.hub.metrics.MessageSent()
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer c.close()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("observer read failed", "error", err)
			}
			return
		}
		if err := c.handleMessage(data); err != nil {
			c.mu.Lock()
			c.enqueueLocked(Frame{Type: FrameError, Error: err.Error()})
			c.mu.Unlock()
		}
	}
}

func (c *client) handleMessage(data []byte) error {
	if !c.limiter.Allow() {
		c.hub.metrics.InputDropped("rate_limit")
		return errors.New("input rate limit exceeded")
	}
	var msg InputMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.hub.metrics.InputDropped("invalid")
		return fmt.Errorf("invalid message: %w", err)
	}

	var err error
	switch msg.Type {
	case "input":
		var v ir.Value
		if v, err = decodeInput(msg.Kind, msg.Value); err != nil {
			c.hub.metrics.InputDropped("invalid")
			return err
		}
		err = c.hub.machine.Inject(msg.Block, msg.Connector, v)
	case "clear":
		err = c.hub.machine.ClearInjection(msg.Block, msg.Connector)
	default:
		c.hub.metrics.InputDropped("invalid")
		return fmt.Errorf("unknown message type %q", msg.Type)
	}
	if err != nil {
		c.hub.metrics.InputDropped("rejected")
	}
	return err
}
