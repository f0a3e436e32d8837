package messaging

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"skoropad/internal/models"
	"skoropad/internal/utils"
)

type markReadCall struct {
	ListingID  string
	SenderID   string
	ReceiverID string
}

// memStore 内存实现，测试使用
type memStore struct {
	mu        sync.Mutex
	messages  []models.Message
	listings  map[string]*models.Listing
	users     map[string]models.UserSnapshot
	nextID    int
	clock     time.Time
	insertErr error
	threadErr error

	// insertGate 非空时 InsertMessage 等待其关闭
	insertGate    chan struct{}
	insertStarted chan struct{}
	// threadGates 按会话阻塞 ListThread
	threadGates   map[Key]chan struct{}
	threadStarted chan Key

	inserts   int
	markReads []markReadCall
	deletes   []Key
}

func newMemStore() *memStore {
	return &memStore{
		listings:    make(map[string]*models.Listing),
		users:       make(map[string]models.UserSnapshot),
		clock:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		threadGates: make(map[Key]chan struct{}),
	}
}

func (s *memStore) addUser(id, nickname string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = models.UserSnapshot{Nickname: nickname, Role: models.RoleUser}
}

func (s *memStore) addListing(id, ownerID, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[id] = &models.Listing{ID: id, OwnerID: ownerID, Title: "Listing " + id, Price: 100, Status: status}
}

// seed 直接写入一条消息，不经过会话
func (s *memStore) seed(listingID, senderID, receiverID, content string, isRead bool) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := s.buildLocked(models.NewMessage{ListingID: listingID, SenderID: senderID, ReceiverID: receiverID, Content: content})
	msg.IsRead = isRead
	s.messages = append(s.messages, msg)
	return msg
}

func (s *memStore) buildLocked(in models.NewMessage) models.Message {
	s.nextID++
	s.clock = s.clock.Add(time.Second)
	msg := models.Message{
		ID:         fmt.Sprintf("m%d", s.nextID),
		ListingID:  in.ListingID,
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Content:    in.Content,
		CreatedAt:  s.clock,
	}
	if u, ok := s.users[in.SenderID]; ok {
		u := u
		msg.Sender = &u
	}
	if u, ok := s.users[in.ReceiverID]; ok {
		u := u
		msg.Receiver = &u
	}
	if l, ok := s.listings[in.ListingID]; ok {
		msg.Listing = &models.ListingSnapshot{Title: l.Title, Price: l.Price}
	}
	return msg
}

func (s *memStore) ListUserMessages(ctx context.Context, userID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Message
	for _, m := range s.messages {
		if m.SenderID == userID || m.ReceiverID == userID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) ListThread(ctx context.Context, userID string, key Key) ([]models.Message, error) {
	s.mu.Lock()
	gate := s.threadGates[key]
	started := s.threadStarted
	s.mu.Unlock()

	if started != nil {
		started <- key
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.threadErr != nil {
		return nil, s.threadErr
	}
	var out []models.Message
	for _, m := range s.messages {
		if m.ListingID != key.ListingID {
			continue
		}
		if (m.SenderID == userID && m.ReceiverID == key.CounterpartID) ||
			(m.SenderID == key.CounterpartID && m.ReceiverID == userID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) InsertMessage(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	s.mu.Lock()
	gate, started := s.insertGate, s.insertStarted
	s.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	msg := s.buildLocked(in)
	s.messages = append(s.messages, msg)
	return &msg, nil
}

func (s *memStore) MarkRead(ctx context.Context, listingID, senderID, receiverID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markReads = append(s.markReads, markReadCall{listingID, senderID, receiverID})
	for i := range s.messages {
		m := &s.messages[i]
		if m.ListingID == listingID && m.SenderID == senderID && m.ReceiverID == receiverID {
			m.IsRead = true
		}
	}
	return nil
}

func (s *memStore) DeleteConversation(ctx context.Context, userID string, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, key)
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ListingID == key.ListingID &&
			((m.SenderID == userID && m.ReceiverID == key.CounterpartID) ||
				(m.SenderID == key.CounterpartID && m.ReceiverID == userID)) {
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return nil
}

func (s *memStore) CountUnread(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.ReceiverID == userID && !m.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetListing(ctx context.Context, listingID string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[listingID]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (s *memStore) UserExists(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[userID]
	return ok, nil
}

func (s *memStore) counts() (inserts, markReads int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts, len(s.markReads)
}

func (s *memStore) isRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m.IsRead
		}
	}
	return false
}

var errStoreDown = errors.New("connection refused")

func testOptions() Options {
	return Options{
		RemoteTimeout:    time.Second,
		MaxContentLength: 100,
		Logger:           utils.NewNopLogger(),
	}
}

// waitFor 轮询直到条件成立
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
