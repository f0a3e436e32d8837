package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"skoropad/internal/config"
	"skoropad/internal/messaging"
	"skoropad/internal/models"
)

// flakyStore 计数调用并返回预设错误
type flakyStore struct {
	messaging.Store
	err   error
	calls int
}

func (f *flakyStore) CountUnread(ctx context.Context, userID string) (int, error) {
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func (f *flakyStore) GetListing(ctx context.Context, listingID string) (*models.Listing, error) {
	f.calls++
	return nil, f.err
}

func TestBreakerStoreOpensAfterFailures(t *testing.T) {
	inner := &flakyStore{err: errors.New("connection refused")}
	store := NewBreakerStore(inner, config.BreakerConfig{
		MaxRequests:      1,
		Timeout:          time.Minute,
		FailureThreshold: 3,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.CountUnread(ctx, "u1"); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if store.State() != gobreaker.StateOpen {
		t.Fatalf("state = %s, expected open", store.State())
	}

	_, err := store.CountUnread(ctx, "u1")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, expected ErrOpenState", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner calls = %d, expected 3", inner.calls)
	}
}

func TestBreakerStorePassesResults(t *testing.T) {
	inner := &flakyStore{}
	store := NewBreakerStore(inner, config.BreakerConfig{})

	n, err := store.CountUnread(context.Background(), "u1")
	if err != nil || n != 3 {
		t.Errorf("CountUnread = (%d, %v), expected (3, nil)", n, err)
	}
	listing, err := store.GetListing(context.Background(), "L1")
	if err != nil || listing != nil {
		t.Errorf("GetListing = (%v, %v), expected (nil, nil)", listing, err)
	}
}

func TestBreakerStoreIgnoresCancellation(t *testing.T) {
	inner := &flakyStore{err: context.Canceled}
	store := NewBreakerStore(inner, config.BreakerConfig{FailureThreshold: 1})

	for i := 0; i < 3; i++ {
		_, _ = store.CountUnread(context.Background(), "u1")
	}
	if store.State() != gobreaker.StateClosed {
		t.Errorf("state = %s, expected closed", store.State())
	}
}
