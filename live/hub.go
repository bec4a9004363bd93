package live

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gridironlabs/gridfeed/types"
	"github.com/gridironlabs/gridfeed/utils"
)

const (
	defaultPingInterval = 30 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultWriteWait    = 10 * time.Second
	defaultSendBuffer   = 64
	defaultLivePath     = "/live"
)

// Hub fans out fetch results to WebSocket subscribers. Clients subscribe to
// data-type channels via the ?channels= query parameter; no parameter means
// every channel. A client whose send buffer fills up is dropped rather than
// allowed to stall the broadcast loop.
type Hub struct {
	logger types.Logger
	config *types.LiveConfig

	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener

	clients  map[*client]struct{}
	mu       sync.RWMutex
	sequence uint64
	state    int32

	pingInterval time.Duration
	pongWait     time.Duration
	writeWait    time.Duration
	sendBuffer   int
}

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	channels map[string]struct{}
}

func (c *client) subscribed(channel string) bool {
	if len(c.channels) == 0 {
		return true
	}
	_, ok := c.channels[channel]
	return ok
}

func NewHub(logger types.Logger, config *types.LiveConfig) *Hub {
	hub := &Hub{
		logger:       logger,
		config:       config,
		clients:      make(map[*client]struct{}),
		pingInterval: config.PingInterval,
		pongWait:     config.PongWait,
		writeWait:    config.WriteWait,
		sendBuffer:   config.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	if hub.pingInterval <= 0 {
		hub.pingInterval = defaultPingInterval
	}
	if hub.pongWait <= 0 {
		hub.pongWait = defaultPongWait
	}
	if hub.writeWait <= 0 {
		hub.writeWait = defaultWriteWait
	}
	if hub.sendBuffer <= 0 {
		hub.sendBuffer = defaultSendBuffer
	}

	return hub
}

func (h *Hub) Start() error {
	if !atomic.CompareAndSwapInt32(&h.state, 0, 1) {
		return types.ErrServerAlreadyRunning
	}

	path := h.config.Path
	if path == "" {
		path = defaultLivePath
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, h.handleUpgrade)

	addr := fmt.Sprintf("%s:%d", h.config.Host, h.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		atomic.StoreInt32(&h.state, 0)
		return types.WrapError(types.ErrServerStartFailed, err.Error())
	}

	h.listener = listener
	h.server = &http.Server{Handler: mux}

	go func() {
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			h.logger.Error("live hub serve failed", zap.Error(err))
		}
	}()

	h.logger.Info("live hub started",
		zap.String("address", listener.Addr().String()),
		zap.String("path", path))
	return nil
}

func (h *Hub) Stop() error {
	if !atomic.CompareAndSwapInt32(&h.state, 1, 0) {
		return types.ErrServerNotRunning
	}

	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	err := h.server.Close()
	h.logger.Info("live hub stopped")
	return err
}

func (h *Hub) IsRunning() bool {
	return atomic.LoadInt32(&h.state) == 1
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Addr returns the bound listener address, useful when Port is 0.
func (h *Hub) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

func (h *Hub) Publish(channel string, eventType string, data interface{}) error {
	if !h.IsRunning() {
		return types.ErrHubNotRunning
	}
	if channel == "" {
		return types.ErrHubChannelInvalid
	}

	event := types.LiveEvent{
		Channel:   channel,
		Type:      eventType,
		Data:      data,
		Sequence:  atomic.AddUint64(&h.sequence, 1),
		Timestamp: time.Now().UTC(),
	}

	payload, err := utils.Marshal(event)
	if err != nil {
		return types.WrapError(types.ErrHubPublishFailed, err.Error())
	}

	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		if !c.subscribed(channel) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow live subscriber",
			zap.String("remote", c.conn.RemoteAddr().String()))
		h.unregister(c)
	}

	return nil
}

func (h *Hub) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn:     conn,
		send:     make(chan []byte, h.sendBuffer),
		channels: parseChannels(r.URL.Query().Get("channels")),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("live subscriber connected",
		zap.String("remote", conn.RemoteAddr().String()),
		zap.Int("channels", len(c.channels)))

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()

	_ = c.conn.Close()
}

func parseChannels(raw string) map[string]struct{} {
	channels := make(map[string]struct{})
	for _, channel := range strings.Split(raw, ",") {
		channel = strings.TrimSpace(channel)
		if channel != "" {
			channels[channel] = struct{}{}
		}
	}
	return channels
}
