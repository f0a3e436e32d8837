package messaging

import (
	"context"

	"skoropad/internal/models"
)

// Key 会话键：(广告, 对方用户)
type Key struct {
	ListingID     string `json:"listing_id"`
	CounterpartID string `json:"counterpart_id"`
}

// IsZero 是否为空键
func (k Key) IsZero() bool {
	return k.ListingID == "" && k.CounterpartID == ""
}

// Valid 两个字段都不为空
func (k Key) Valid() bool {
	return k.ListingID != "" && k.CounterpartID != ""
}

func (k Key) String() string {
	return k.ListingID + "/" + k.CounterpartID
}

// KeyOf 计算消息相对于 userID 的会话键
func KeyOf(msg models.Message, userID string) Key {
	counterpart := msg.SenderID
	if msg.SenderID == userID {
		counterpart = msg.ReceiverID
	}
	return Key{ListingID: msg.ListingID, CounterpartID: counterpart}
}

// Store 消息存储
//
// 返回的消息需带上发送者、接收者和广告快照。
type Store interface {
	// ListUserMessages 用户参与的全部消息，按 created_at 倒序
	ListUserMessages(ctx context.Context, userID string) ([]models.Message, error)
	// ListThread 用户与对方在某广告下的消息，按 created_at 正序
	ListThread(ctx context.Context, userID string, key Key) ([]models.Message, error)
	InsertMessage(ctx context.Context, msg models.NewMessage) (*models.Message, error)
	// MarkRead 按 (广告, 发送者, 接收者, 未读) 条件更新，不按id列表
	MarkRead(ctx context.Context, listingID, senderID, receiverID string) error
	// DeleteConversation 删除双方在该广告下的全部消息
	DeleteConversation(ctx context.Context, userID string, key Key) error
	CountUnread(ctx context.Context, userID string) (int, error)
	GetListing(ctx context.Context, listingID string) (*models.Listing, error)
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Subscriber 实时消息订阅
type Subscriber interface {
	Subscribe(userID string) (<-chan models.Message, func())
}
