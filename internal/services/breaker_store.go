package services

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"

	"skoropad/internal/config"
	"skoropad/internal/messaging"
	"skoropad/internal/models"
	"skoropad/internal/utils"
)

// BreakerStore 为 messaging.Store 加上熔断，数据库持续失败时快速返回错误
type BreakerStore struct {
	next messaging.Store
	cb   *gobreaker.CircuitBreaker
}

var _ messaging.Store = (*BreakerStore)(nil)

// NewBreakerStore 包装存储
func NewBreakerStore(next messaging.Store, cfg config.BreakerConfig) *BreakerStore {
	logger := utils.GetLogger()
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	st := gobreaker.Settings{
		Name:        "message-store",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// 调用方取消不算存储故障
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("熔断器状态变化", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

// State 熔断器当前状态
func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func guarded[T any](b *BreakerStore, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

func (b *BreakerStore) ListUserMessages(ctx context.Context, userID string) ([]models.Message, error) {
	return guarded(b, func() ([]models.Message, error) { return b.next.ListUserMessages(ctx, userID) })
}

func (b *BreakerStore) ListThread(ctx context.Context, userID string, key messaging.Key) ([]models.Message, error) {
	return guarded(b, func() ([]models.Message, error) { return b.next.ListThread(ctx, userID, key) })
}

func (b *BreakerStore) InsertMessage(ctx context.Context, msg models.NewMessage) (*models.Message, error) {
	return guarded(b, func() (*models.Message, error) { return b.next.InsertMessage(ctx, msg) })
}

func (b *BreakerStore) MarkRead(ctx context.Context, listingID, senderID, receiverID string) error {
	_, err := guarded(b, func() (struct{}, error) {
		return struct{}{}, b.next.MarkRead(ctx, listingID, senderID, receiverID)
	})
	return err
}

func (b *BreakerStore) DeleteConversation(ctx context.Context, userID string, key messaging.Key) error {
	_, err := guarded(b, func() (struct{}, error) {
		return struct{}{}, b.next.DeleteConversation(ctx, userID, key)
	})
	return err
}

func (b *BreakerStore) CountUnread(ctx context.Context, userID string) (int, error) {
	return guarded(b, func() (int, error) { return b.next.CountUnread(ctx, userID) })
}

func (b *BreakerStore) GetListing(ctx context.Context, listingID string) (*models.Listing, error) {
	return guarded(b, func() (*models.Listing, error) { return b.next.GetListing(ctx, listingID) })
}

func (b *BreakerStore) UserExists(ctx context.Context, userID string) (bool, error) {
	return guarded(b, func() (bool, error) { return b.next.UserExists(ctx, userID) })
}
