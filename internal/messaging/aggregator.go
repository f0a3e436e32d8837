package messaging

import (
	"sort"

	"skoropad/internal/models"
)

const (
	unknownName = "Unknown"
	defaultRole = models.RoleUser
)

// BuildConversations 把用户参与的消息折叠为会话摘要
//
// 输入顺序任意；输出按最后一条消息时间倒序，每个 Key 只出现一次。
// 同样的消息集合无论顺序如何都得到相同的结果。
func BuildConversations(messages []models.Message, currentUserID string) []models.Conversation {
	sorted := make([]models.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.SenderID == msg.ReceiverID {
			continue
		}
		if msg.SenderID != currentUserID && msg.ReceiverID != currentUserID {
			continue
		}
		sorted = append(sorted, msg)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	index := make(map[Key]int)
	conversations := make([]models.Conversation, 0)
	for _, msg := range sorted {
		key := KeyOf(msg, currentUserID)
		i, ok := index[key]
		if !ok {
			conversations = append(conversations, summarize(msg, currentUserID))
			i = len(conversations) - 1
			index[key] = i
		}
		if msg.ReceiverID == currentUserID && !msg.IsRead {
			conversations[i].UnreadCount++
		}
	}
	return conversations
}

// summarize 用最新一条消息生成摘要，快照缺失时使用占位值
func summarize(msg models.Message, currentUserID string) models.Conversation {
	isSender := msg.SenderID == currentUserID
	counterpart := msg.Sender
	if isSender {
		counterpart = msg.Receiver
	}

	conv := models.Conversation{
		ListingID:           msg.ListingID,
		CounterpartID:       KeyOf(msg, currentUserID).CounterpartID,
		CounterpartNickname: unknownName,
		CounterpartRole:     defaultRole,
		ListingTitle:        unknownName,
		LastMessage:         msg.Content,
		LastMessageTime:     msg.CreatedAt,
		IsSender:            isSender,
	}
	if counterpart != nil {
		if counterpart.Nickname != "" {
			conv.CounterpartNickname = counterpart.Nickname
		}
		if counterpart.Role != "" {
			conv.CounterpartRole = counterpart.Role
		}
		conv.CounterpartAvatar = counterpart.AvatarURL
	}
	if msg.Listing != nil {
		if msg.Listing.Title != "" {
			conv.ListingTitle = msg.Listing.Title
		}
		conv.ListingPrice = msg.Listing.Price
		if len(msg.Listing.Images) > 0 {
			conv.ListingImage = msg.Listing.Images[0]
		}
	}
	return conv
}

// ConversationKey 摘要对应的会话键
func ConversationKey(c models.Conversation) Key {
	return Key{ListingID: c.ListingID, CounterpartID: c.CounterpartID}
}

// UnreadTotal 所有会话未读数之和
func UnreadTotal(conversations []models.Conversation) int {
	total := 0
	for _, c := range conversations {
		total += c.UnreadCount
	}
	return total
}
