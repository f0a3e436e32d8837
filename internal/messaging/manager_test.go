package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"skoropad/internal/models"
)

// chanFeed 按用户分发消息的最小实现
type chanFeed struct {
	mu   sync.Mutex
	subs map[string]chan models.Message
}

func (f *chanFeed) Subscribe(userID string) (<-chan models.Message, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[string]chan models.Message)
	}
	ch := make(chan models.Message, 8)
	f.subs[userID] = ch
	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, userID)
	}
}

func (f *chanFeed) publish(msg models.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range []string{msg.SenderID, msg.ReceiverID} {
		if ch, ok := f.subs[id]; ok {
			ch <- msg
		}
	}
}

func (f *chanFeed) subscribed(userID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[userID]
	return ok
}

func TestManagerReusesSessions(t *testing.T) {
	feed := &chanFeed{}
	m := NewManager(newMemStore(), feed, testOptions(), 0)
	defer m.Close()

	a, err := m.Session("u1")
	if err != nil {
		t.Fatalf("Session: %v", err)
	}
	b, _ := m.Session("u1")
	if a != b {
		t.Error("expected the same session for the same user")
	}
	if _, err := m.Session("u2"); err != nil {
		t.Fatalf("Session(u2): %v", err)
	}
	if m.Count() != 2 {
		t.Errorf("Count = %d, expected 2", m.Count())
	}
	if !feed.subscribed("u1") || !feed.subscribed("u2") {
		t.Error("expected both sessions subscribed to the feed")
	}
}

func TestManagerDeliversToBothParties(t *testing.T) {
	store := newMemStore()
	store.addUser("u1", "Buyer")
	store.addUser("u2", "Seller")
	store.addListing("L1", "u2", models.ListingStatusActive)
	feed := &chanFeed{}
	m := NewManager(store, feed, testOptions(), 0)
	defer m.Close()

	buyer, _ := m.Session("u1")
	seller, _ := m.Session("u2")
	ctx := context.Background()

	msg, err := buyer.Send(ctx, keyL1, "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	feed.publish(*msg)

	waitFor(t, "seller unread", func() bool { return seller.UnreadTotal() == 1 })
	thread, err := seller.OpenConversation(ctx, Key{ListingID: "L1", CounterpartID: "u1"})
	if err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	if len(thread) != 1 || thread[0].EntryID() != msg.ID {
		t.Errorf("seller thread = %v, expected [%s]", thread, msg.ID)
	}
	if seller.UnreadTotal() != 0 {
		t.Errorf("seller unread = %d, expected 0", seller.UnreadTotal())
	}
}

func TestManagerSweepsIdleSessions(t *testing.T) {
	feed := &chanFeed{}
	m := NewManager(newMemStore(), feed, testOptions(), 0)
	defer m.Close()
	m.idleTTL = 10 * time.Millisecond

	idle, _ := m.Session("u1")
	watched, _ := m.Session("u2")
	_, cancel, err := watched.Watch(context.Background())
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}
	defer cancel()

	time.Sleep(30 * time.Millisecond)
	m.sweep()

	if m.Count() != 1 {
		t.Errorf("Count = %d, expected 1", m.Count())
	}
	if feed.subscribed("u1") {
		t.Error("expected idle session unsubscribed")
	}
	if _, err := idle.ListConversations(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("err = %v, expected ErrSessionClosed", err)
	}
}

func TestManagerClose(t *testing.T) {
	m := NewManager(newMemStore(), nil, testOptions(), time.Minute)
	if _, err := m.Session("u1"); err != nil {
		t.Fatalf("Session: %v", err)
	}
	m.Close()
	m.Close()
	if _, err := m.Session("u1"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("err = %v, expected ErrSessionClosed", err)
	}
}
