package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"akistel-relay/pkg/logger"
	"akistel-relay/pkg/metrics"
	"akistel-relay/pkg/response"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second

	sendBufferSize = 256
)

// Directory tracks cross-instance device presence; best-effort only
type Directory interface {
	SetDeviceOnline(ctx context.Context, deviceID uuid.UUID) error
	SetDeviceOffline(ctx context.Context, deviceID uuid.UUID) error
	RefreshDevice(ctx context.Context, deviceID uuid.UUID) error
}

// PresenceHub manages one live WebSocket per device. A new connection for a
// device replaces the old one (last connect wins).
type PresenceHub struct {
	mu        sync.RWMutex
	clients   map[uuid.UUID]*Client
	directory Directory
	metrics   *metrics.Metrics
}

// Client represents one device's presence socket
type Client struct {
	hub      *PresenceHub
	conn     *websocket.Conn
	send     chan []byte
	deviceID uuid.UUID
}

// connectedFrame is the first frame written on every new socket
type connectedFrame struct {
	Type      string    `json:"type"`
	DeviceID  uuid.UUID `json:"device_id"`
	Timestamp int64     `json:"timestamp"`
}

type pongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in dev, restrict in production
	},
}

// NewPresenceHub creates a new presence hub. Directory and metrics are
// optional.
func NewPresenceHub(directory Directory, m *metrics.Metrics) *PresenceHub {
	return &PresenceHub{
		clients:   make(map[uuid.UUID]*Client),
		directory: directory,
		metrics:   m,
	}
}

// register installs the client as the device's live socket. The displaced
// client's send channel is closed here; whoever removes an entry from the map
// owns closing that client's channel. The close happens under the write lock
// so it cannot interleave with a send, which holds the read lock.
func (h *PresenceHub) register(client *Client) {
	h.mu.Lock()
	old, existed := h.clients[client.deviceID]
	h.clients[client.deviceID] = client
	if existed {
		close(old.send)
	}
	h.mu.Unlock()

	if existed {
		logger.Debug("Replaced presence socket",
			zap.String("device_id", client.deviceID.String()))
	}

	if h.metrics != nil {
		h.metrics.WebSocketConnected()
	}
	if h.directory != nil {
		if err := h.directory.SetDeviceOnline(context.Background(), client.deviceID); err != nil {
			logger.Warn("Failed to mark device online",
				zap.String("device_id", client.deviceID.String()),
				zap.Error(err))
		}
	}
}

// unregister removes the client only if it is still the device's current
// socket. A client displaced by a newer connection must not tear down its
// replacement's map entry.
func (h *PresenceHub) unregister(client *Client) {
	h.mu.Lock()
	current, ok := h.clients[client.deviceID]
	stillCurrent := ok && current == client
	if stillCurrent {
		delete(h.clients, client.deviceID)
		close(client.send)
	}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.WebSocketDisconnected()
	}
	if stillCurrent && h.directory != nil {
		if err := h.directory.SetDeviceOffline(context.Background(), client.deviceID); err != nil {
			logger.Warn("Failed to mark device offline",
				zap.String("device_id", client.deviceID.String()),
				zap.Error(err))
		}
	}
}

// Push delivers a payload to the device's live socket. Best-effort: returns
// false when the device has no socket here or its send buffer is full.
func (h *PresenceHub) Push(deviceID uuid.UUID, payload interface{}) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal presence push payload",
			zap.String("device_id", deviceID.String()),
			zap.Error(err))
		return false
	}

	// The read lock is held across the send so the map entry cannot be
	// replaced, and its channel closed, mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[deviceID]
	if !ok {
		return false
	}

	select {
	case client.send <- data:
		if h.metrics != nil {
			h.metrics.RecordWebSocketMessage("new_message", "outbound")
		}
		return true
	default:
		// Slow consumer; drop the hint rather than block the send path
		return false
	}
}

// enqueue queues a frame on the client's channel if it is still the device's
// current socket. Same locking discipline as Push.
func (h *PresenceHub) enqueue(client *Client, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.clients[client.deviceID] != client {
		return false
	}

	select {
	case client.send <- data:
		return true
	default:
		return false
	}
}

// IsConnected reports whether the device has a live socket on this instance
func (h *PresenceHub) IsConnected(deviceID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[deviceID]
	return ok
}

// Count returns the number of live sockets
func (h *PresenceHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request to a presence socket for the authenticated
// device. The path device id must match the token's device id.
// GET /v1/ws/:device_id
func (h *PresenceHub) ServeWS(c *gin.Context) {
	deviceID, err := uuid.Parse(c.Param("device_id"))
	if err != nil {
		response.ValidationError(c, "Invalid device ID")
		return
	}

	authedID := c.MustGet("device_id").(uuid.UUID)
	if deviceID != authedID {
		response.Error(c, http.StatusForbidden, "FORBIDDEN", "Cannot open a presence socket for another device")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.String("device_id", deviceID.String()),
			zap.Error(err))
		return
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		deviceID: deviceID,
	}

	h.register(client)

	frame, _ := json.Marshal(&connectedFrame{
		Type:      "connected",
		DeviceID:  deviceID,
		Timestamp: time.Now().UnixMilli(),
	})
	h.enqueue(client, frame)

	go client.writePump()
	go client.readPump()
}

// readPump reads frames from the socket. The only inbound frame the relay
// understands is the application-level ping; everything else is ignored.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("Presence socket closed unexpectedly",
					zap.String("device_id", c.deviceID.String()),
					zap.Error(err))
			}
			break
		}

		var frame struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &frame); err != nil {
			continue
		}

		if frame.Type == "ping" {
			if c.hub.metrics != nil {
				c.hub.metrics.RecordWebSocketMessage("ping", "inbound")
			}
			pong, _ := json.Marshal(&pongFrame{
				Type:      "pong",
				Timestamp: time.Now().UnixMilli(),
			})
			c.hub.enqueue(c, pong)
		}
	}
}

// writePump writes queued frames and keeps the transport alive with periodic
// pings. Exits when the send channel is closed or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			if c.hub.directory != nil {
				if err := c.hub.directory.RefreshDevice(context.Background(), c.deviceID); err != nil {
					logger.Debug("Failed to refresh presence TTL",
						zap.String("device_id", c.deviceID.String()),
						zap.Error(err))
				}
			}
		}
	}
}
