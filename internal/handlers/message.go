package handlers

import (
	"net/http"

	"skoropad/internal/messaging"
	"skoropad/internal/models"
	"skoropad/internal/utils"

	"github.com/gin-gonic/gin"
)

// SessionProvider 按用户获取会话控制器
type SessionProvider interface {
	Session(userID string) (*messaging.Session, error)
}

// MessageHandler 私信处理器
type MessageHandler struct {
	sessions SessionProvider
	logger   utils.Logger
}

// NewMessageHandler 创建私信处理器
func NewMessageHandler(sessions SessionProvider) *MessageHandler {
	return &MessageHandler{
		sessions: sessions,
		logger:   utils.GetLogger(),
	}
}

// sessionOrFail 获取当前用户的会话控制器
func (h *MessageHandler) sessionOrFail(c *gin.Context) (*messaging.Session, string, bool) {
	userID, ok := getUserIDOrFail(c)
	if !ok {
		return nil, "", false
	}
	session, err := h.sessions.Session(userID)
	if err != nil {
		handleInternalError(c, ErrSessionUnavailable, err, h.logger, "userID", userID)
		return nil, "", false
	}
	return session, userID, true
}

// GetConversations 获取会话列表
func (h *MessageHandler) GetConversations(c *gin.Context) {
	session, userID, ok := h.sessionOrFail(c)
	if !ok {
		return
	}

	conversations, err := session.ListConversations(c.Request.Context())
	if err != nil {
		respondError(c, err, ErrListConversationsFailed, h.logger, nil, "userID", userID)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "获取成功", models.ConversationsListResponse{
		Conversations: conversations,
		TotalUnread:   messaging.UnreadTotal(conversations),
	})
}

// OpenConversation 打开会话并返回消息，对方发来的未读消息标记为已读
func (h *MessageHandler) OpenConversation(c *gin.Context) {
	session, userID, ok := h.sessionOrFail(c)
	if !ok {
		return
	}
	key, ok := conversationKeyOrFail(c)
	if !ok {
		return
	}

	entries, err := session.OpenConversation(c.Request.Context(), key)
	if err != nil {
		respondError(c, err, ErrOpenConversationFailed, h.logger, nil, "userID", userID, "conversation", key.String())
		return
	}

	messages := toThreadMessages(entries, userID)
	utils.SuccessResponse(c, http.StatusOK, "获取成功", models.ThreadResponse{
		ListingID:     key.ListingID,
		CounterpartID: key.CounterpartID,
		Messages:      messages,
		Total:         len(messages),
	})
}

// SendMessage 发送私信，失败时返回草稿供客户端恢复输入
func (h *MessageHandler) SendMessage(c *gin.Context) {
	session, userID, ok := h.sessionOrFail(c)
	if !ok {
		return
	}
	key, ok := conversationKeyOrFail(c)
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if !bindJSONOrFail(c, &req, h.logger, "SendMessage") {
		return
	}

	// 草稿保留原文，清理由会话校验完成
	msg, err := session.Send(c.Request.Context(), key, req.Content)
	if err != nil {
		draft := session.Draft(key)
		if draft == "" {
			draft = req.Content
		}
		respondError(c, err, ErrSendMessageFailed, h.logger, models.SendFailedResponse{Draft: draft},
			"userID", userID, "conversation", key.String())
		return
	}

	utils.SuccessResponse(c, http.StatusCreated, "发送成功", models.SendMessageResponse{Message: *msg})
}

// DeleteConversation 删除会话
func (h *MessageHandler) DeleteConversation(c *gin.Context) {
	session, userID, ok := h.sessionOrFail(c)
	if !ok {
		return
	}
	key, ok := conversationKeyOrFail(c)
	if !ok {
		return
	}

	if err := session.DeleteConversation(c.Request.Context(), key); err != nil {
		respondError(c, err, ErrDeleteFailed, h.logger, nil, "userID", userID, "conversation", key.String())
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "删除成功", nil)
}

// CloseConversation 关闭当前打开的会话
func (h *MessageHandler) CloseConversation(c *gin.Context) {
	session, userID, ok := h.sessionOrFail(c)
	if !ok {
		return
	}

	if err := session.CloseConversation(c.Request.Context()); err != nil {
		respondError(c, err, ErrSessionUnavailable, h.logger, nil, "userID", userID)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "已关闭", gin.H{"state": session.State().String()})
}

// GetUnreadCount 获取未读消息总数
func (h *MessageHandler) GetUnreadCount(c *gin.Context) {
	session, userID, ok := h.sessionOrFail(c)
	if !ok {
		return
	}

	conversations, err := session.ListConversations(c.Request.Context())
	if err != nil {
		respondError(c, err, ErrListConversationsFailed, h.logger, nil, "userID", userID)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "获取成功", gin.H{
		"total_unread": messaging.UnreadTotal(conversations),
	})
}

// CanMessage 能否就该广告联系发布者
func (h *MessageHandler) CanMessage(c *gin.Context) {
	session, userID, ok := h.sessionOrFail(c)
	if !ok {
		return
	}
	listingID := c.Param("listingId")
	if !utils.ValidateIdentifier(listingID) {
		invalidParamResponse(c, "无效的广告ID")
		return
	}

	err := session.CanMessage(c.Request.Context(), listingID)
	switch {
	case err == nil:
		utils.SuccessResponse(c, http.StatusOK, "获取成功", models.CanMessageResponse{CanMessage: true})
	case messaging.IsValidation(err):
		utils.SuccessResponse(c, http.StatusOK, "获取成功", models.CanMessageResponse{
			CanMessage: false,
			Reason:     err.Error(),
		})
	default:
		respondError(c, err, ErrCheckListingFailed, h.logger, nil, "userID", userID, "listingID", listingID)
	}
}
