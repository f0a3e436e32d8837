package models

import "time"

// UserSnapshot 消息关联的用户快照（联表查询得到）
type UserSnapshot struct {
	Nickname  string `json:"nickname"`
	Role      string `json:"role"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// ListingSnapshot 消息关联的广告快照
type ListingSnapshot struct {
	Title  string   `json:"title"`
	Price  float64  `json:"price"`
	Images []string `json:"images"`
}

// Message 私信消息，始终挂在某个广告下
type Message struct {
	ID         string    `json:"id" db:"id"`
	ListingID  string    `json:"listing_id" db:"advertisement_id"`
	SenderID   string    `json:"sender_id" db:"sender_id"`
	ReceiverID string    `json:"receiver_id" db:"receiver_id"`
	Content    string    `json:"content" db:"content"`
	IsRead     bool      `json:"is_read" db:"is_read"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`

	Sender   *UserSnapshot    `json:"sender,omitempty"`
	Receiver *UserSnapshot    `json:"receiver,omitempty"`
	Listing  *ListingSnapshot `json:"listing,omitempty"`
}

// NewMessage 待写入的消息，id 和 created_at 由存储层分配
type NewMessage struct {
	ListingID  string
	SenderID   string
	ReceiverID string
	Content    string
}

// Conversation 会话摘要（由消息聚合得到，不落库）
type Conversation struct {
	ListingID           string    `json:"listing_id"`
	CounterpartID       string    `json:"counterpart_id"`
	CounterpartNickname string    `json:"counterpart_nickname"`
	CounterpartRole     string    `json:"counterpart_role"`
	CounterpartAvatar   string    `json:"counterpart_avatar,omitempty"`
	ListingTitle        string    `json:"listing_title"`
	ListingPrice        float64   `json:"listing_price"`
	ListingImage        string    `json:"listing_image,omitempty"`
	LastMessage         string    `json:"last_message"`
	LastMessageTime     time.Time `json:"last_message_time"`
	UnreadCount         int       `json:"unread_count"`
	IsSender            bool      `json:"is_sender"`
}

// ========== 请求/响应 DTO ==========

// SendMessageRequest 发送私信请求
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// ThreadMessageResponse 会话中的一条消息（含未确认的临时消息）
type ThreadMessageResponse struct {
	Message
	Pending bool `json:"pending"`
	IsSelf  bool `json:"is_self"`
}

// ThreadResponse 会话消息列表响应
type ThreadResponse struct {
	ListingID     string                  `json:"listing_id"`
	CounterpartID string                  `json:"counterpart_id"`
	Messages      []ThreadMessageResponse `json:"messages"`
	Total         int                     `json:"total"`
}

// ConversationsListResponse 会话列表响应
type ConversationsListResponse struct {
	Conversations []Conversation `json:"conversations"`
	TotalUnread   int            `json:"total_unread"`
}

// SendMessageResponse 发送私信响应
type SendMessageResponse struct {
	Message Message `json:"message"`
}

// SendFailedResponse 发送失败时返回草稿，客户端据此恢复输入框
type SendFailedResponse struct {
	Draft string `json:"draft"`
}

// CanMessageResponse 能否就该广告发起私信
type CanMessageResponse struct {
	CanMessage bool   `json:"can_message"`
	Reason     string `json:"reason,omitempty"`
}
