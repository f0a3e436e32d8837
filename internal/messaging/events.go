package messaging

import (
	"context"

	"skoropad/internal/models"
)

// EventType 会话事件类型
type EventType string

const (
	EventMessage       EventType = "message"
	EventConversations EventType = "conversations"
	EventUnread        EventType = "unread"
	EventSendFailed    EventType = "send_failed"
)

// Event 推送给客户端的会话事件
type Event struct {
	Type          EventType             `json:"type"`
	Key           *Key                  `json:"key,omitempty"`
	Message       *models.Message       `json:"message,omitempty"`
	Conversations []models.Conversation `json:"conversations,omitempty"`
	UnreadTotal   int                   `json:"unread_total"`
	Draft         string                `json:"draft,omitempty"`
	Error         string                `json:"error,omitempty"`
}

// Watch 订阅会话事件，返回的取消函数可重复调用
//
// 订阅者处理过慢时事件会被丢弃，客户端应以 ListConversations 为准。
func (s *Session) Watch(ctx context.Context) (<-chan Event, func(), error) {
	s.touch()
	ch := make(chan Event, s.opts.EventBuffer)
	var id int
	if err := s.exec(ctx, func() {
		id = s.nextWatcher
		s.nextWatcher++
		s.watchers[id] = ch
		s.watching.Add(1)
	}); err != nil {
		return nil, nil, err
	}

	cancel := func() {
		s.post(func() {
			if w, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(w)
				s.watching.Add(-1)
			}
		})
	}
	return ch, cancel, nil
}

// emit 非阻塞地分发事件
func (s *Session) emit(ev Event) {
	if ev.Type != EventConversations && ev.Type != EventUnread {
		ev.UnreadTotal = s.unread
	}
	for id, ch := range s.watchers {
		select {
		case ch <- ev:
		default:
			s.logger.Warn("会话事件缓冲已满，丢弃事件", "userID", s.userID, "watcher", id, "type", string(ev.Type))
		}
	}
}

func (s *Session) closeWatchers() {
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
		s.watching.Add(-1)
	}
}
