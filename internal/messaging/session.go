package messaging

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"skoropad/internal/models"
	"skoropad/internal/utils"
)

// State 会话控制器状态
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateSending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	default:
		return "unknown"
	}
}

// Options 会话控制器参数
type Options struct {
	RemoteTimeout    time.Duration
	PollInterval     time.Duration
	MaxContentLength int
	EventBuffer      int
	Logger           utils.Logger
}

func (o Options) withDefaults() Options {
	if o.RemoteTimeout <= 0 {
		o.RemoteTimeout = 15 * time.Second
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 64
	}
	if o.Logger == nil {
		o.Logger = utils.GetLogger()
	}
	return o
}

// Session 单个用户的私信会话控制器
//
// 所有状态只在 loop goroutine 中修改：用户操作以闭包形式投递到 ops，
// 实时推送从 inbound 读取。远程调用在 loop 之外执行，结果再投递回 loop。
type Session struct {
	userID string
	store  Store
	opts   Options
	logger utils.Logger

	ops         chan func()
	inbound     <-chan models.Message
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup

	lastUsed atomic.Int64
	watching atomic.Int32

	// loop 独占
	state          State
	active         Key
	thread         []ThreadEntry
	loadGen        uint64
	loading        bool
	lateArrivals   []models.Message
	prevActive     Key
	prevThread     []ThreadEntry
	conversations  []models.Conversation
	unread         int
	listGen        uint64
	appliedListGen uint64
	refreshing     bool
	refreshQueued  bool
	sending        map[Key]bool
	drafts         map[Key]string
	lastEvent      time.Time
	watchers       map[int]chan Event
	nextWatcher    int
}

// NewSession 创建会话控制器并启动 loop
//
// inbound 可以为 nil（不接收实时推送）；unsubscribe 在 Close 时调用。
func NewSession(userID string, store Store, inbound <-chan models.Message, unsubscribe func(), opts Options) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		userID:      userID,
		store:       store,
		opts:        opts,
		logger:      opts.Logger,
		ops:         make(chan func()),
		inbound:     inbound,
		unsubscribe: unsubscribe,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		state:       StateIdle,
		sending:     make(map[Key]bool),
		drafts:      make(map[Key]string),
		watchers:    make(map[int]chan Event),
		lastEvent:   time.Now(),
	}
	s.touch()
	s.wg.Add(1)
	go s.loop()
	return s
}

// UserID 会话所属用户
func (s *Session) UserID() string { return s.userID }

func (s *Session) loop() {
	defer s.wg.Done()

	var tick <-chan time.Time
	if s.opts.PollInterval > 0 {
		ticker := time.NewTicker(s.opts.PollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.done:
			s.closeWatchers()
			return
		case op := <-s.ops:
			op()
		case msg, ok := <-s.inbound:
			if !ok {
				s.inbound = nil
				continue
			}
			s.handleInsert(msg)
		case <-tick:
			s.pollUnread()
		}
	}
}

// Close 停止 loop，取消进行中的远程调用
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.cancel()
		close(s.done)
	})
	s.wg.Wait()
}

// exec 在 loop 中同步执行 fn
func (s *Session) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	op := func() {
		fn()
		close(finished)
	}
	select {
	case s.ops <- op:
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return wrapRemote("session", ctx.Err())
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// post 从后台 goroutine 异步投递到 loop
func (s *Session) post(fn func()) {
	select {
	case s.ops <- fn:
	case <-s.done:
	}
}

// goRemote 在 loop 之外执行远程调用
func (s *Session) goRemote(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.RemoteTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Session) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.RemoteTimeout)
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// IdleFor 距最近一次操作的时长
func (s *Session) IdleFor() time.Duration {
	return time.Since(time.Unix(0, s.lastUsed.Load()))
}

// Watching 当前事件订阅数
func (s *Session) Watching() int {
	return int(s.watching.Load())
}

// ========== 用户操作 ==========

// ListConversations 重新拉取并聚合会话列表
func (s *Session) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	s.touch()
	var gen uint64
	if err := s.exec(ctx, func() {
		s.listGen++
		gen = s.listGen
	}); err != nil {
		return nil, err
	}

	rctx, cancel := s.remoteCtx(ctx)
	rows, err := s.store.ListUserMessages(rctx, s.userID)
	cancel()
	if err != nil {
		s.logger.Error("获取会话列表失败", "userID", s.userID, "error", err.Error())
		return nil, wrapRemote("list_conversations", err)
	}
	conversations := BuildConversations(rows, s.userID)

	var out []models.Conversation
	if err := s.exec(context.Background(), func() {
		s.applyConversations(conversations, gen)
		out = cloneConversations(s.conversations)
	}); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenConversation 打开会话：拉取消息并把对方发来的未读消息标记为已读
func (s *Session) OpenConversation(ctx context.Context, key Key) ([]ThreadEntry, error) {
	s.touch()
	if !key.Valid() {
		return nil, ErrInvalidKey
	}
	if key.CounterpartID == s.userID {
		return nil, ErrSelfMessage
	}

	var gen uint64
	if err := s.exec(ctx, func() {
		// 连续打开时保留最早的已加载视图，失败时恢复到它
		if !s.loading {
			s.prevActive, s.prevThread = s.active, s.thread
		}
		s.loadGen++
		gen = s.loadGen
		s.loading = true
		s.active = key
		s.thread = nil
		s.lateArrivals = nil
		s.settle()
	}); err != nil {
		return nil, err
	}

	rctx, cancel := s.remoteCtx(ctx)
	rows, fetchErr := s.store.ListThread(rctx, s.userID, key)
	cancel()

	var (
		out      []ThreadEntry
		applyErr error
	)
	if err := s.exec(context.Background(), func() {
		if s.loadGen != gen {
			applyErr = ErrConversationSwitched
			return
		}
		if fetchErr != nil {
			s.active, s.thread = s.prevActive, s.dropSettledPending(s.prevThread)
			s.finishLoad()
			applyErr = wrapRemote("open_conversation", fetchErr)
			return
		}

		thread := confirmedEntries(rows)
		for _, msg := range s.lateArrivals {
			if indexOfEntry(thread, msg.ID) < 0 {
				thread = append(thread, Confirmed{Message: msg})
			}
		}
		// 重新打开同一会话时，仍在发送的 Pending 留在末尾
		if s.prevActive == key {
			for _, e := range s.dropSettledPending(s.prevThread) {
				if p, ok := e.(Pending); ok {
					thread = append(thread, p)
				}
			}
		}
		s.thread = thread
		s.finishLoad()
		s.markRead(key)
		out = cloneThread(s.thread)
	}); err != nil {
		return nil, err
	}
	if applyErr != nil {
		s.logger.Warn("打开会话失败", "userID", s.userID, "conversation", key.String(), "error", applyErr.Error())
		return nil, applyErr
	}
	return out, nil
}

// CloseConversation 关闭当前会话，回到 Idle
func (s *Session) CloseConversation(ctx context.Context) error {
	s.touch()
	return s.exec(ctx, func() {
		s.loadGen++
		s.active = Key{}
		s.thread = nil
		s.finishLoad()
	})
}

// Send 发送消息
//
// 当前打开的会话会先追加一条 Pending，成功后原位替换为服务端消息；
// 失败时移除 Pending 并把原始内容存为草稿。
func (s *Session) Send(ctx context.Context, key Key, content string) (*models.Message, error) {
	s.touch()
	trimmed, err := s.validateSend(key, content)
	if err != nil {
		return nil, err
	}

	var (
		tempID   string
		startErr error
	)
	if err := s.exec(ctx, func() {
		if s.sending[key] {
			startErr = ErrSendInProgress
			return
		}
		s.sending[key] = true
		delete(s.drafts, key)
		if key == s.active && !s.loading {
			pending := newPendingSend(key, s.userID, trimmed)
			tempID = pending.TempID
			s.thread = append(s.thread, Pending{Send: pending})
		}
		s.settle()
	}); err != nil {
		return nil, err
	}
	if startErr != nil {
		return nil, startErr
	}

	msg, sendErr := s.deliver(ctx, key, trimmed)

	if err := s.exec(context.Background(), func() {
		delete(s.sending, key)
		var confirmed *models.Message
		if sendErr == nil {
			confirmed = msg
		}
		// 打开其他会话期间完成的发送同样要写进待恢复的视图
		s.thread = resolveSend(s.thread, tempID, confirmed)
		if s.loading && key == s.prevActive {
			s.prevThread = resolveSend(s.prevThread, tempID, confirmed)
		}

		if sendErr != nil {
			s.drafts[key] = content
			s.settle()
			s.emit(Event{Type: EventSendFailed, Key: &key, Draft: content, Error: sendErr.Error()})
			return
		}

		switch {
		case s.threadOpen() && key == s.active:
			s.thread = appendConfirmed(s.thread, *msg)
		case s.loading && key == s.active:
			s.lateArrivals = append(s.lateArrivals, *msg)
		case s.loading && key == s.prevActive:
			s.prevThread = appendConfirmed(s.prevThread, *msg)
		}
		s.touchConversation(*msg)
		s.settle()
		s.emit(Event{Type: EventMessage, Key: &key, Message: msg})
	}); err != nil {
		return nil, err
	}

	if sendErr != nil {
		s.logger.Warn("发送消息失败", "userID", s.userID, "conversation", key.String(), "error", sendErr.Error())
		return nil, sendErr
	}
	s.logger.Info("发送消息成功", "messageID", msg.ID, "senderID", s.userID, "receiverID", key.CounterpartID)
	return msg, nil
}

// validateSend 本地校验，不访问存储
func (s *Session) validateSend(key Key, content string) (string, error) {
	if !key.Valid() {
		return "", ErrInvalidKey
	}
	if key.CounterpartID == s.userID {
		return "", ErrSelfMessage
	}
	cleaned, ok := utils.ValidateMessageContent(content, s.opts.MaxContentLength)
	if cleaned == "" {
		return "", ErrEmptyContent
	}
	if !ok {
		return "", ErrContentTooLong
	}
	return cleaned, nil
}

// deliver 远程阶段：校验广告与对方用户，然后写入
func (s *Session) deliver(ctx context.Context, key Key, content string) (*models.Message, error) {
	rctx, cancel := s.remoteCtx(ctx)
	defer cancel()

	listing, err := s.store.GetListing(rctx, key.ListingID)
	if err != nil {
		return nil, wrapRemote("get_listing", err)
	}
	if err := checkListing(listing, key, s.userID); err != nil {
		return nil, err
	}

	exists, err := s.store.UserExists(rctx, key.CounterpartID)
	if err != nil {
		return nil, wrapRemote("get_user", err)
	}
	if !exists {
		return nil, &NotFoundError{Resource: "user", ID: key.CounterpartID}
	}

	msg, err := s.store.InsertMessage(rctx, models.NewMessage{
		ListingID:  key.ListingID,
		SenderID:   s.userID,
		ReceiverID: key.CounterpartID,
		Content:    content,
	})
	if err != nil {
		return nil, wrapRemote("send_message", err)
	}
	if msg == nil {
		return nil, &RemoteError{Op: "send_message", Err: errEmptyResponse}
	}
	return msg, nil
}

// checkListing 广告必须在售；非发布者只能联系发布者
func checkListing(listing *models.Listing, key Key, userID string) error {
	if listing == nil {
		return &NotFoundError{Resource: "listing", ID: key.ListingID}
	}
	if !listing.IsActive() {
		return ErrListingInactive
	}
	if listing.OwnerID != userID && key.CounterpartID != listing.OwnerID {
		return ErrNotListingOwner
	}
	return nil
}

// CanMessage 能否就该广告联系发布者；返回 nil 表示可以
func (s *Session) CanMessage(ctx context.Context, listingID string) error {
	s.touch()
	if listingID == "" {
		return ErrInvalidKey
	}
	rctx, cancel := s.remoteCtx(ctx)
	defer cancel()

	listing, err := s.store.GetListing(rctx, listingID)
	if err != nil {
		return wrapRemote("get_listing", err)
	}
	if listing == nil {
		return &NotFoundError{Resource: "listing", ID: listingID}
	}
	if listing.OwnerID == s.userID {
		return ErrOwnListing
	}
	if !listing.IsActive() {
		return ErrListingInactive
	}
	return nil
}

// DeleteConversation 删除会话（双方消息）
func (s *Session) DeleteConversation(ctx context.Context, key Key) error {
	s.touch()
	if !key.Valid() {
		return ErrInvalidKey
	}

	rctx, cancel := s.remoteCtx(ctx)
	err := s.store.DeleteConversation(rctx, s.userID, key)
	cancel()
	if err != nil {
		s.logger.Error("删除会话失败", "userID", s.userID, "conversation", key.String(), "error", err.Error())
		return wrapRemote("delete_conversation", err)
	}

	return s.exec(context.Background(), func() {
		kept := s.conversations[:0:0]
		for _, c := range s.conversations {
			if ConversationKey(c) != key {
				kept = append(kept, c)
			}
		}
		s.conversations = kept
		s.unread = UnreadTotal(s.conversations)
		delete(s.drafts, key)
		if s.active == key {
			s.loadGen++
			s.active = Key{}
			s.thread = nil
			s.finishLoad()
		} else if s.loading && s.prevActive == key {
			s.prevActive, s.prevThread = Key{}, nil
		}
		s.emit(Event{Type: EventConversations, Conversations: cloneConversations(s.conversations), UnreadTotal: s.unread})
	})
}

// ========== 只读访问 ==========

// State 当前状态
func (s *Session) State() State {
	var st State
	_ = s.exec(context.Background(), func() { st = s.state })
	return st
}

// ActiveKey 当前打开的会话
func (s *Session) ActiveKey() Key {
	var k Key
	_ = s.exec(context.Background(), func() { k = s.active })
	return k
}

// Thread 当前会话消息（含 Pending）
func (s *Session) Thread() []ThreadEntry {
	var out []ThreadEntry
	_ = s.exec(context.Background(), func() { out = cloneThread(s.thread) })
	return out
}

// Conversations 最近一次聚合的会话列表
func (s *Session) Conversations() []models.Conversation {
	var out []models.Conversation
	_ = s.exec(context.Background(), func() { out = cloneConversations(s.conversations) })
	return out
}

// UnreadTotal 未读总数
func (s *Session) UnreadTotal() int {
	var n int
	_ = s.exec(context.Background(), func() { n = s.unread })
	return n
}

// Draft 发送失败后保留的输入内容
func (s *Session) Draft(key Key) string {
	var d string
	_ = s.exec(context.Background(), func() { d = s.drafts[key] })
	return d
}

// ========== loop 内部 ==========

// settle 根据加载标记、当前会话与发送标记推导状态
func (s *Session) settle() {
	switch {
	case s.loading:
		s.state = StateLoading
	case !s.active.Valid():
		s.state = StateIdle
	case s.sending[s.active]:
		s.state = StateSending
	default:
		s.state = StateReady
	}
}

func (s *Session) threadOpen() bool {
	return !s.loading && s.active.Valid()
}

// finishLoad 结束加载并丢弃待恢复的视图
func (s *Session) finishLoad() {
	s.loading = false
	s.lateArrivals = nil
	s.prevActive, s.prevThread = Key{}, nil
	s.settle()
}

// dropSettledPending 去掉已不在发送中的 Pending
func (s *Session) dropSettledPending(entries []ThreadEntry) []ThreadEntry {
	out := make([]ThreadEntry, 0, len(entries))
	for _, e := range entries {
		if p, ok := e.(Pending); ok && !s.sending[p.Send.Key] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// handleInsert 合并实时推送的新消息
func (s *Session) handleInsert(msg models.Message) {
	if msg.SenderID != s.userID && msg.ReceiverID != s.userID {
		return
	}
	s.lastEvent = time.Now()
	key := KeyOf(msg, s.userID)

	if key == s.active {
		own := msg.SenderID == s.userID
		switch {
		case s.loading:
			s.lateArrivals = append(s.lateArrivals, msg)
		case s.threadOpen() && indexOfEntry(s.thread, msg.ID) < 0 && !(own && s.sending[key]):
			s.thread = append(s.thread, Confirmed{Message: msg})
			s.emit(Event{Type: EventMessage, Key: &key, Message: &msg})
		}
		if msg.ReceiverID == s.userID && s.threadOpen() {
			s.markRead(key)
		}
	} else {
		if s.loading && key == s.prevActive && !(msg.SenderID == s.userID && s.sending[key]) {
			s.prevThread = appendConfirmed(s.prevThread, msg)
		}
		if msg.ReceiverID == s.userID {
			s.emit(Event{Type: EventMessage, Key: &key, Message: &msg})
		}
	}

	s.refreshAsync()
}

// markRead 本地清零未读并异步通知存储
func (s *Session) markRead(key Key) {
	for i := range s.conversations {
		if ConversationKey(s.conversations[i]) == key {
			s.conversations[i].UnreadCount = 0
		}
	}
	s.unread = UnreadTotal(s.conversations)
	s.emit(Event{Type: EventUnread, UnreadTotal: s.unread})

	userID := s.userID
	s.goRemote(func(ctx context.Context) {
		if err := s.store.MarkRead(ctx, key.ListingID, key.CounterpartID, userID); err != nil {
			s.logger.Warn("标记已读失败", "userID", userID, "conversation", key.String(), "error", err.Error())
		}
	})
}

// touchConversation 发送成功后只更新对应摘要，不重新拉取
func (s *Session) touchConversation(msg models.Message) {
	key := KeyOf(msg, s.userID)
	for i := range s.conversations {
		if ConversationKey(s.conversations[i]) == key {
			s.conversations[i].LastMessage = msg.Content
			s.conversations[i].LastMessageTime = msg.CreatedAt
			s.conversations[i].IsSender = msg.SenderID == s.userID
			return
		}
	}
	fresh := BuildConversations([]models.Message{msg}, s.userID)
	s.conversations = append(fresh, s.conversations...)
}

// refreshAsync 后台重新聚合会话列表，进行中时合并为一次
func (s *Session) refreshAsync() {
	if s.refreshing {
		s.refreshQueued = true
		return
	}
	s.refreshing = true
	s.listGen++
	gen := s.listGen
	userID := s.userID

	s.goRemote(func(ctx context.Context) {
		rows, err := s.store.ListUserMessages(ctx, userID)
		s.post(func() {
			s.refreshing = false
			if err != nil {
				s.logger.Warn("刷新会话列表失败", "userID", userID, "error", err.Error())
			} else {
				s.applyConversations(BuildConversations(rows, userID), gen)
			}
			if s.refreshQueued {
				s.refreshQueued = false
				s.refreshAsync()
			}
		})
	})
}

// applyConversations 用重新聚合的结果替换会话列表，旧结果丢弃
func (s *Session) applyConversations(conversations []models.Conversation, gen uint64) {
	if gen < s.appliedListGen {
		return
	}
	s.appliedListGen = gen
	if s.active.Valid() && s.state != StateIdle {
		for i := range conversations {
			if ConversationKey(conversations[i]) == s.active {
				conversations[i].UnreadCount = 0
			}
		}
	}
	s.conversations = conversations
	s.unread = UnreadTotal(conversations)
	s.emit(Event{Type: EventConversations, Conversations: cloneConversations(conversations), UnreadTotal: s.unread})
}

// pollUnread 没有收到实时推送时定期校正未读数
func (s *Session) pollUnread() {
	if time.Since(s.lastEvent) < s.opts.PollInterval {
		return
	}
	userID := s.userID
	s.goRemote(func(ctx context.Context) {
		count, err := s.store.CountUnread(ctx, userID)
		if err != nil {
			s.logger.Warn("轮询未读数失败", "userID", userID, "error", err.Error())
			return
		}
		s.post(func() {
			if count == s.unread {
				return
			}
			s.logger.Debug("未读数与本地不一致，重新聚合", "userID", userID, "remote", count, "local", s.unread)
			s.unread = count
			s.emit(Event{Type: EventUnread, UnreadTotal: count})
			s.refreshAsync()
		})
	})
}

func cloneThread(entries []ThreadEntry) []ThreadEntry {
	out := make([]ThreadEntry, len(entries))
	copy(out, entries)
	return out
}

func cloneConversations(conversations []models.Conversation) []models.Conversation {
	out := make([]models.Conversation, len(conversations))
	copy(out, conversations)
	return out
}
