// Package realtime 把新写入的私信推送给在线的会话控制器
package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"skoropad/internal/models"
	"skoropad/internal/utils"
)

// Feed 新消息写入后的通知出口
type Feed interface {
	Publish(ctx context.Context, msg models.Message) error
}

type subscription struct {
	id     uint64
	userID string
	ch     chan models.Message
}

// Broker 进程内按用户分发消息
//
// 一条消息同时投递给发送者和接收者的全部订阅。订阅缓冲已满时丢弃并记录日志，
// 会话控制器依赖未读数轮询补偿。
type Broker struct {
	mu      sync.RWMutex
	subs    map[string]map[uint64]*subscription
	nextID  uint64
	buffer  int
	dropped atomic.Uint64
	logger  utils.Logger
}

// NewBroker 创建分发器，buffer 为每个订阅的缓冲大小
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		subs:   make(map[string]map[uint64]*subscription),
		buffer: buffer,
		logger: utils.GetLogger(),
	}
}

// Subscribe 订阅某用户相关的新消息，返回的取消函数可重复调用
func (b *Broker) Subscribe(userID string) (<-chan models.Message, func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{
		id:     b.nextID,
		userID: userID,
		ch:     make(chan models.Message, b.buffer),
	}
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[uint64]*subscription)
	}
	b.subs[userID][sub.id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() { b.unsubscribe(sub) })
	}
}

func (b *Broker) unsubscribe(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[sub.userID]; ok {
		delete(set, sub.id)
		if len(set) == 0 {
			delete(b.subs, sub.userID)
		}
	}
	close(sub.ch)
}

// Publish 直接在本进程分发
func (b *Broker) Publish(_ context.Context, msg models.Message) error {
	b.Dispatch(msg)
	return nil
}

// Dispatch 把消息投递给双方的订阅
func (b *Broker) Dispatch(msg models.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	targets := []string{msg.SenderID}
	if msg.ReceiverID != msg.SenderID {
		targets = append(targets, msg.ReceiverID)
	}
	for _, userID := range targets {
		for _, sub := range b.subs[userID] {
			select {
			case sub.ch <- msg:
			default:
				b.dropped.Add(1)
				b.logger.Warn("实时消息缓冲已满，丢弃", "userID", userID, "messageID", msg.ID)
			}
		}
	}
}

// Subscribers 当前订阅数
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, set := range b.subs {
		n += len(set)
	}
	return n
}

// Dropped 因缓冲已满丢弃的投递次数
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}
