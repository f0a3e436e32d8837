package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"skoropad/internal/messaging"
	"skoropad/internal/models"
	"skoropad/internal/utils"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubStore 内存存储，只实现处理器测试需要的行为
type stubStore struct {
	mu        sync.Mutex
	messages  []models.Message
	listings  map[string]*models.Listing
	insertErr error
}

func newStubStore() *stubStore {
	return &stubStore{listings: map[string]*models.Listing{
		"L1":   {ID: "L1", OwnerID: "u2", Title: "Bike", Price: 120, Status: models.ListingStatusActive},
		"MINE": {ID: "MINE", OwnerID: "u1", Title: "Sofa", Status: models.ListingStatusActive},
	}}
}

func involves(m models.Message, userID string, key messaging.Key) bool {
	return m.ListingID == key.ListingID &&
		((m.SenderID == userID && m.ReceiverID == key.CounterpartID) ||
			(m.SenderID == key.CounterpartID && m.ReceiverID == userID))
}

func (s *stubStore) ListUserMessages(ctx context.Context, userID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.SenderID == userID || m.ReceiverID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubStore) ListThread(ctx context.Context, userID string, key messaging.Key) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if involves(m, userID, key) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *stubStore) InsertMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	msg := models.Message{
		ID:         fmt.Sprintf("m%d", len(s.messages)+1),
		ListingID:  in.ListingID,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Content:    in.Content,
		CreatedAt:  time.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *stubStore) MarkRead(ctx context.Context, listingID, senderID, receiverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		m := &s.messages[i]
		if m.ListingID == listingID && m.SenderID == senderID && m.ReceiverID == receiverID {
			m.IsRead = true
		}
	}
	return nil
}

func (s *stubStore) DeleteConversation(ctx context.Context, userID string, key messaging.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.messages[:0]
	for _, m := range s.messages {
		if !involves(m, userID, key) {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

func (s *stubStore) CountUnread(ctx context.Context, userID string) (int, error) {
	return 0, nil
}

func (s *stubStore) GetListing(ctx context.Context, listingID string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listings[listingID], nil
}

func (s *stubStore) UserExists(ctx context.Context, userID string) (bool, error) {
	return userID == "u1" || userID == "u2", nil
}

type envelope struct {
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"error_code"`
	Data      json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T, store messaging.Store) *gin.Engine {
	t.Helper()
	manager := messaging.NewManager(store, nil, messaging.Options{
		RemoteTimeout:    time.Second,
		MaxContentLength: 50,
		Logger:           utils.NewNopLogger(),
	}, 0)
	t.Cleanup(manager.Close)

	h := NewMessageHandler(manager)
	r := gin.New()
	api := r.Group("/api/messages", func(c *gin.Context) {
		if userID := c.GetHeader("X-Test-User"); userID != "" {
			c.Set(utils.ContextUserID, userID)
		}
		c.Next()
	})
	api.GET("/conversations", h.GetConversations)
	api.GET("/conversations/:listingId/:userId", h.OpenConversation)
	api.POST("/conversations/:listingId/:userId", h.SendMessage)
	api.DELETE("/conversations/:listingId/:userId", h.DeleteConversation)
	api.POST("/close", h.CloseConversation)
	api.GET("/unread", h.GetUnreadCount)
	api.GET("/can-message/:listingId", h.CanMessage)
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path, user, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return w.Code, env
}

func TestSendAndListConversations(t *testing.T) {
	r := setupRouter(t, newStubStore())

	code, env := doRequest(t, r, http.MethodPost, "/api/messages/conversations/L1/u2", "u1", `{"content":"Is it available?"}`)
	if code != http.StatusCreated {
		t.Fatalf("send status = %d (%s), expected 201", code, env.Message)
	}
	var sent models.SendMessageResponse
	if err := json.Unmarshal(env.Data, &sent); err != nil {
		t.Fatalf("decode send: %v", err)
	}
	if sent.Message.ID == "" || sent.Message.Content != "Is it available?" {
		t.Errorf("sent = %+v", sent.Message)
	}

	code, env = doRequest(t, r, http.MethodGet, "/api/messages/conversations", "u2", "")
	if code != http.StatusOK {
		t.Fatalf("list status = %d, expected 200", code)
	}
	var list models.ConversationsListResponse
	if err := json.Unmarshal(env.Data, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Conversations) != 1 || list.TotalUnread != 1 {
		t.Fatalf("list = %+v, expected one conversation with one unread", list)
	}
	if list.Conversations[0].CounterpartID != "u1" {
		t.Errorf("CounterpartID = %q, expected u1", list.Conversations[0].CounterpartID)
	}

	code, env = doRequest(t, r, http.MethodGet, "/api/messages/conversations/L1/u1", "u2", "")
	if code != http.StatusOK {
		t.Fatalf("open status = %d, expected 200", code)
	}
	var thread models.ThreadResponse
	if err := json.Unmarshal(env.Data, &thread); err != nil {
		t.Fatalf("decode thread: %v", err)
	}
	if thread.Total != 1 || thread.Messages[0].IsSelf || thread.Messages[0].Pending {
		t.Errorf("thread = %+v", thread)
	}
}

func TestSendFailureReturnsDraft(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"普通内容", "Still for sale?"},
		{"首尾空白与控制字符", "  Still\u0007 for sale?\n"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store := newStubStore()
			store.insertErr = errors.New("connection refused")
			r := setupRouter(t, store)

			body, err := json.Marshal(models.SendMessageRequest{Content: test.content})
			if err != nil {
				t.Fatalf("encode body: %v", err)
			}
			code, env := doRequest(t, r, http.MethodPost, "/api/messages/conversations/L1/u2", "u1", string(body))
			if code != http.StatusBadGateway {
				t.Fatalf("status = %d, expected 502", code)
			}
			if env.ErrorCode != utils.ErrCodeRemoteError {
				t.Errorf("error_code = %q, expected %q", env.ErrorCode, utils.ErrCodeRemoteError)
			}
			if strings.Contains(env.Message, "connection refused") {
				t.Errorf("message leaks internal error: %q", env.Message)
			}
			var failed models.SendFailedResponse
			if err := json.Unmarshal(env.Data, &failed); err != nil {
				t.Fatalf("decode draft: %v", err)
			}
			if failed.Draft != test.content {
				t.Errorf("Draft = %q, expected %q", failed.Draft, test.content)
			}
		})
	}
}

func TestMessageHandlerErrors(t *testing.T) {
	r := setupRouter(t, newStubStore())

	tests := []struct {
		name      string
		method    string
		path      string
		user      string
		body      string
		status    int
		errorCode string
	}{
		{"未认证", http.MethodGet, "/api/messages/conversations", "", "", http.StatusUnauthorized, ""},
		{"发给自己", http.MethodPost, "/api/messages/conversations/L1/u1", "u1", `{"content":"hi"}`, http.StatusBadRequest, utils.ErrCodeValidationFailed},
		{"缺少内容", http.MethodPost, "/api/messages/conversations/L1/u2", "u1", `{}`, http.StatusBadRequest, utils.ErrCodeValidationFailed},
		{"内容过长", http.MethodPost, "/api/messages/conversations/L1/u2", "u1", `{"content":"` + strings.Repeat("x", 51) + `"}`, http.StatusBadRequest, utils.ErrCodeValidationFailed},
		{"广告不存在", http.MethodPost, "/api/messages/conversations/L404/u2", "u1", `{"content":"hi"}`, http.StatusNotFound, utils.ErrCodeRecordNotFound},
		{"非法参数", http.MethodGet, "/api/messages/conversations/L1/bad%20id", "u1", "", http.StatusBadRequest, utils.ErrCodeInvalidInput},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			code, env := doRequest(t, r, test.method, test.path, test.user, test.body)
			if code != test.status {
				t.Errorf("status = %d (%s), expected %d", code, env.Message, test.status)
			}
			if test.errorCode != "" && env.ErrorCode != test.errorCode {
				t.Errorf("error_code = %q, expected %q", env.ErrorCode, test.errorCode)
			}
		})
	}
}

func TestCanMessageHandler(t *testing.T) {
	r := setupRouter(t, newStubStore())

	tests := []struct {
		listing string
		status  int
		can     bool
	}{
		{"L1", http.StatusOK, true},
		{"MINE", http.StatusOK, false},
		{"L404", http.StatusNotFound, false},
	}

	for _, test := range tests {
		code, env := doRequest(t, r, http.MethodGet, "/api/messages/can-message/"+test.listing, "u1", "")
		if code != test.status {
			t.Errorf("%s: status = %d, expected %d", test.listing, code, test.status)
			continue
		}
		if code != http.StatusOK {
			continue
		}
		var resp models.CanMessageResponse
		if err := json.Unmarshal(env.Data, &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.CanMessage != test.can {
			t.Errorf("%s: can_message = %v, expected %v", test.listing, resp.CanMessage, test.can)
		}
		if !test.can && resp.Reason == "" {
			t.Errorf("%s: expected a reason", test.listing)
		}
	}
}

func TestDeleteAndCloseConversation(t *testing.T) {
	store := newStubStore()
	r := setupRouter(t, store)

	if code, _ := doRequest(t, r, http.MethodPost, "/api/messages/conversations/L1/u2", "u1", `{"content":"hi"}`); code != http.StatusCreated {
		t.Fatalf("send status = %d", code)
	}
	if code, _ := doRequest(t, r, http.MethodDelete, "/api/messages/conversations/L1/u2", "u1", ""); code != http.StatusOK {
		t.Fatalf("delete status = %d", code)
	}
	code, env := doRequest(t, r, http.MethodGet, "/api/messages/unread", "u2", "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"total_unread":0`) {
		t.Errorf("unread = %d %s, expected 0", code, env.Data)
	}

	code, env = doRequest(t, r, http.MethodPost, "/api/messages/close", "u1", "")
	if code != http.StatusOK || !strings.Contains(string(env.Data), `"idle"`) {
		t.Errorf("close = %d %s, expected idle", code, env.Data)
	}
}

func TestHealthHandler(t *testing.T) {
	ok := NewHealthHandler(map[string]HealthCheckFunc{
		"database": func(context.Context) error { return nil },
	}, func() int { return 2 })
	down := NewHealthHandler(map[string]HealthCheckFunc{
		"database": func(context.Context) error { return errors.New("dial tcp: refused") },
	}, nil)

	r := gin.New()
	r.GET("/health", ok.Check)
	r.GET("/ready", down.Ready)
	r.GET("/live", down.Live)

	tests := []struct {
		path   string
		status int
	}{
		{"/health", http.StatusOK},
		{"/ready", http.StatusServiceUnavailable},
		{"/live", http.StatusOK},
	}
	for _, test := range tests {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, test.path, nil))
		if w.Code != test.status {
			t.Errorf("%s: status = %d, expected %d", test.path, w.Code, test.status)
		}
	}
}
