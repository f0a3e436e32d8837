package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"skoropad/internal/config"
	"skoropad/internal/messaging"
	"skoropad/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newWebSocketServer(t *testing.T, allowedOrigins []string) (*httptest.Server, *messaging.Manager) {
	t.Helper()
	manager := messaging.NewManager(newStubStore(), nil, messaging.Options{
		RemoteTimeout:    time.Second,
		MaxContentLength: 50,
		Logger:           utils.NewNopLogger(),
	}, 0)
	t.Cleanup(manager.Close)

	cfg := &config.Config{
		CORS: config.CORSConfig{AllowOrigins: allowedOrigins},
		WebSocket: config.WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			SendBufferSize:  16,
			PingInterval:    time.Minute,
			PongWait:        2 * time.Minute,
			WriteWait:       5 * time.Second,
			MaxMessageSize:  4096,
		},
	}
	h := NewWebSocketHandler(manager, cfg)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if userID := c.GetHeader("X-Test-User"); userID != "" {
			c.Set(utils.ContextUserID, userID)
		}
		c.Next()
	}, h.HandleWebSocket)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, manager
}

func dialWebSocket(t *testing.T, srv *httptest.Server, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return websocket.DefaultDialer.Dial(url, header)
}

// readFrame 读取下一帧，超时即失败
func readFrame(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame WSMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("decode frame %q: %v", raw, err)
	}
	return frame
}

func TestWebSocketPushesSentMessage(t *testing.T) {
	srv, manager := newWebSocketServer(t, []string{"*"})

	conn, _, err := dialWebSocket(t, srv, http.Header{"X-Test-User": {"u1"}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// 首帧是当前会话列表，此时订阅已经建立
	if frame := readFrame(t, conn); frame.Type != string(messaging.EventConversations) {
		t.Fatalf("first frame type = %q, expected conversations", frame.Type)
	}

	session, err := manager.Session("u1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	sent, err := session.Send(context.Background(), messaging.Key{ListingID: "L1", CounterpartID: "u2"}, "Is it available?")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	for {
		frame := readFrame(t, conn)
		if frame.Type != string(messaging.EventMessage) {
			continue
		}
		data, err := json.Marshal(frame.Data)
		if err != nil {
			t.Fatalf("encode data: %v", err)
		}
		var ev messaging.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.Message == nil || ev.Message.ID != sent.ID {
			t.Fatalf("event message = %+v, expected %s", ev.Message, sent.ID)
		}
		if ev.Message.Content != "Is it available?" {
			t.Errorf("Content = %q", ev.Message.Content)
		}
		if ev.Key == nil || *ev.Key != (messaging.Key{ListingID: "L1", CounterpartID: "u2"}) {
			t.Errorf("Key = %+v, expected L1/u2", ev.Key)
		}
		return
	}
}

func TestWebSocketHeartbeat(t *testing.T) {
	srv, _ := newWebSocketServer(t, []string{"*"})

	conn, _, err := dialWebSocket(t, srv, http.Header{"X-Test-User": {"u1"}})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	readFrame(t, conn)

	if err := conn.WriteJSON(WSMessage{Type: "heartbeat"}); err != nil {
		t.Fatalf("write heartbeat: %v", err)
	}
	if frame := readFrame(t, conn); frame.Type != "heartbeat" {
		t.Errorf("frame type = %q, expected heartbeat", frame.Type)
	}
}

func TestWebSocketRejectsHandshake(t *testing.T) {
	tests := []struct {
		name   string
		header http.Header
		status int
	}{
		{"未认证", http.Header{}, http.StatusUnauthorized},
		{"来源不允许", http.Header{"X-Test-User": {"u1"}, "Origin": {"http://evil.example"}}, http.StatusForbidden},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			srv, _ := newWebSocketServer(t, []string{"http://app.example"})
			conn, resp, err := dialWebSocket(t, srv, test.header)
			if err == nil {
				conn.Close()
				t.Fatal("expected handshake to fail")
			}
			if resp == nil || resp.StatusCode != test.status {
				t.Fatalf("resp = %v, expected status %d", resp, test.status)
			}
		})
	}
}
