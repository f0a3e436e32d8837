package messaging

import (
	"sync"
	"time"

	"skoropad/internal/utils"
)

// Manager 按用户管理会话控制器
type Manager struct {
	store   Store
	feed    Subscriber
	opts    Options
	idleTTL time.Duration
	logger  utils.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewManager 创建管理器；idleTTL > 0 时定期回收空闲会话
func NewManager(store Store, feed Subscriber, opts Options, idleTTL time.Duration) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		store:    store,
		feed:     feed,
		opts:     opts,
		idleTTL:  idleTTL,
		logger:   opts.Logger,
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
	}
	if idleTTL > 0 {
		m.wg.Add(1)
		go m.sweepLoop()
	}
	return m
}

// Session 获取或创建用户的会话控制器
func (m *Manager) Session(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrSessionClosed
	}
	if s, ok := m.sessions[userID]; ok {
		s.touch()
		return s, nil
	}

	s := m.newSession(userID)
	m.sessions[userID] = s
	m.logger.Info("创建私信会话", "userID", userID, "sessions", len(m.sessions))
	return s, nil
}

func (m *Manager) newSession(userID string) *Session {
	if m.feed == nil {
		return NewSession(userID, m.store, nil, nil, m.opts)
	}
	ch, cancel := m.feed.Subscribe(userID)
	return NewSession(userID, m.store, ch, cancel, m.opts)
}

// Count 当前会话数
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	interval := m.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep 回收空闲且无人订阅的会话
func (m *Manager) sweep() {
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if s.Watching() == 0 && s.IdleFor() > m.idleTTL {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	remaining := len(m.sessions)
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		m.logger.Info("回收空闲私信会话", "closed", len(idle), "remaining", remaining)
	}
}

// Close 关闭全部会话
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.done)
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	m.wg.Wait()
	for _, s := range sessions {
		s.Close()
	}
}
