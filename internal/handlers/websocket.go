package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"skoropad/internal/config"
	"skoropad/internal/messaging"
	"skoropad/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// createUpgrader creates a WebSocket upgrader with proper origin checking
func createUpgrader(allowedOrigins []string, cfg *config.WebSocketConfig, logger utils.Logger) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Same-origin requests (no Origin header)
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			logger.Warn("WebSocket origin not allowed", "origin", origin, "allowed", allowedOrigins)
			return false
		},
	}
}

// WSMessage represents a WebSocket frame exchanged with the client
type WSMessage struct {
	Type string      `json:"type"` // message, conversations, unread, send_failed, heartbeat
	Data interface{} `json:"data"`
}

// eventClient streams one session's events to one connection
type eventClient struct {
	conn      *websocket.Conn
	userID    string
	send      chan []byte
	done      chan struct{}
	cfg       *config.WebSocketConfig
	logger    utils.Logger
	closeOnce sync.Once
}

// close safely closes the WebSocket connection exactly once
func (c *eventClient) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

// enqueue drops the frame when the client is too slow
func (c *eventClient) enqueue(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal websocket frame", "error", err.Error(), "userID", c.userID)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("Client send buffer full", "userID", c.userID, "type", msg.Type)
	}
}

// forward copies session events into the send buffer until the session or connection ends
func (c *eventClient) forward(ctx context.Context, events <-chan messaging.Event) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.enqueue(WSMessage{Type: string(ev.Type), Data: ev})
		}
	}
}

// readPump only handles control frames and heartbeats; state changes go through the REST API
func (c *eventClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error", "error", err.Error(), "userID", c.userID)
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.logger.Warn("Failed to unmarshal message", "error", err.Error(), "userID", c.userID)
			continue
		}
		switch msg.Type {
		case "heartbeat":
			c.enqueue(WSMessage{
				Type: "heartbeat",
				Data: map[string]interface{}{"timestamp": time.Now().Unix()},
			})
		default:
			c.logger.Warn("Unknown message type", "type", msg.Type, "userID", c.userID)
		}
	}
}

// writePump pumps frames from the send buffer to the connection
func (c *eventClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			// Session closed the stream
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WebSocketHandler 会话事件推送
type WebSocketHandler struct {
	sessions SessionProvider
	config   *config.Config
	logger   utils.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(sessions SessionProvider, cfg *config.Config) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		config:   cfg,
		logger:   utils.GetLogger(),
	}
}

// HandleWebSocket 升级连接并推送当前用户的会话事件
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	// User is already authenticated by AuthMiddleware
	userID, ok := getUserIDOrFail(c)
	if !ok {
		return
	}
	session, err := h.sessions.Session(userID)
	if err != nil {
		handleInternalError(c, ErrSessionUnavailable, err, h.logger, "userID", userID)
		return
	}

	upgrader := createUpgrader(h.config.CORS.AllowOrigins, &h.config.WebSocket, h.logger)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade to WebSocket", "error", err.Error(), "userID", userID)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, unwatch, err := session.Watch(ctx)
	if err != nil {
		cancel()
		h.logger.Error("Failed to watch session", "error", err.Error(), "userID", userID)
		conn.Close()
		return
	}

	client := &eventClient{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, h.config.WebSocket.SendBufferSize),
		done:   make(chan struct{}),
		cfg:    &h.config.WebSocket,
		logger: h.logger,
	}
	h.logger.Info("Client connected", "userID", userID, "watchers", session.Watching())

	// 连接建立后先推送一次当前状态
	client.enqueue(WSMessage{Type: string(messaging.EventConversations), Data: messaging.Event{
		Type:          messaging.EventConversations,
		Conversations: session.Conversations(),
		UnreadTotal:   session.UnreadTotal(),
	}})

	go client.forward(ctx, events)
	go client.writePump()

	// Read pump blocks until the connection closes
	client.readPump()

	cancel()
	unwatch()
	h.logger.Info("Client disconnected", "userID", userID)
}
