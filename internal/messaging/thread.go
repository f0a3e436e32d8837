package messaging

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"skoropad/internal/models"
)

// TempIDPrefix 临时消息ID前缀，服务端ID不会以此开头
const TempIDPrefix = "temp-"

// PendingSend 等待服务端确认的乐观消息
type PendingSend struct {
	TempID     string
	Key        Key
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
}

func newPendingSend(key Key, senderID, content string) PendingSend {
	return PendingSend{
		TempID:     TempIDPrefix + uuid.NewString(),
		Key:        key,
		SenderID:   senderID,
		ReceiverID: key.CounterpartID,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
}

// ThreadEntry 会话中的一条记录：Confirmed 或 Pending
type ThreadEntry interface {
	EntryID() string
	// AsMessage 以消息形式展示，Pending 的 IsRead 恒为 false
	AsMessage() models.Message
	threadEntry()
}

// Confirmed 已由存储确认的消息
type Confirmed struct {
	Message models.Message
}

func (c Confirmed) EntryID() string           { return c.Message.ID }
func (c Confirmed) AsMessage() models.Message { return c.Message }
func (Confirmed) threadEntry()                {}

// Pending 发送中的消息
type Pending struct {
	Send PendingSend
}

func (p Pending) EntryID() string { return p.Send.TempID }

func (p Pending) AsMessage() models.Message {
	return models.Message{
		ID:         p.Send.TempID,
		ListingID:  p.Send.Key.ListingID,
		SenderID:   p.Send.SenderID,
		ReceiverID: p.Send.ReceiverID,
		Content:    p.Send.Content,
		CreatedAt:  p.Send.CreatedAt,
	}
}

func (Pending) threadEntry() {}

// IsTempID 是否为客户端临时ID
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

func confirmedEntries(messages []models.Message) []ThreadEntry {
	entries := make([]ThreadEntry, 0, len(messages))
	for _, msg := range messages {
		entries = append(entries, Confirmed{Message: msg})
	}
	return entries
}

func indexOfEntry(entries []ThreadEntry, id string) int {
	for i, e := range entries {
		if e.EntryID() == id {
			return i
		}
	}
	return -1
}

func removeEntry(entries []ThreadEntry, id string) []ThreadEntry {
	i := indexOfEntry(entries, id)
	if i < 0 {
		return entries
	}
	return append(entries[:i:i], entries[i+1:]...)
}

// appendConfirmed 追加消息，已存在同ID时不变
func appendConfirmed(entries []ThreadEntry, msg models.Message) []ThreadEntry {
	if indexOfEntry(entries, msg.ID) >= 0 {
		return entries
	}
	return append(entries, Confirmed{Message: msg})
}

// resolveSend 应用发送结果：msg 为 nil 时移除 Pending；
// 否则原位替换，实时推送已先到时直接丢弃 Pending
func resolveSend(entries []ThreadEntry, tempID string, msg *models.Message) []ThreadEntry {
	if tempID == "" {
		return entries
	}
	i := indexOfEntry(entries, tempID)
	if i < 0 {
		return entries
	}
	if msg == nil || indexOfEntry(entries, msg.ID) >= 0 {
		return removeEntry(entries, tempID)
	}
	out := cloneThread(entries)
	out[i] = Confirmed{Message: *msg}
	return out
}
