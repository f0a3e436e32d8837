package handlers

import (
	"net/http"

	"skoropad/internal/messaging"
	"skoropad/internal/models"
	"skoropad/internal/utils"

	"github.com/gin-gonic/gin"
)

// getUserIDOrFail 获取用户ID，失败时自动返回错误响应
func getUserIDOrFail(c *gin.Context) (string, bool) {
	userID, err := utils.GetUserIDFromContext(c)
	if err != nil {
		utils.UnauthorizedResponse(c, err.Error())
		return "", false
	}
	return userID, true
}

// bindJSONOrFail 绑定JSON请求体，失败时自动返回错误响应
func bindJSONOrFail(c *gin.Context, req interface{}, logger utils.Logger, funcName string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if logger != nil && funcName != "" {
			logger.Warn(funcName+"请求参数错误", "error", err.Error())
		}
		utils.ErrorWithCodeResponse(c, utils.NewAppError(utils.ErrValidationFailed,
			"请求参数错误: "+err.Error(), http.StatusBadRequest), nil)
		return false
	}
	return true
}

// conversationKeyOrFail 从路径参数读取会话键
func conversationKeyOrFail(c *gin.Context) (messaging.Key, bool) {
	key := messaging.Key{
		ListingID:     c.Param("listingId"),
		CounterpartID: c.Param("userId"),
	}
	if !utils.ValidateIdentifier(key.ListingID) || !utils.ValidateIdentifier(key.CounterpartID) {
		invalidParamResponse(c, "无效的会话参数")
		return messaging.Key{}, false
	}
	return key, true
}

// invalidParamResponse 路径参数不合法
func invalidParamResponse(c *gin.Context, message string) {
	utils.ErrorWithCodeResponse(c, utils.NewAppError(utils.ErrInvalidParameter, message, http.StatusBadRequest), nil)
}

// toThreadMessages 把会话记录转换为响应结构
func toThreadMessages(entries []messaging.ThreadEntry, userID string) []models.ThreadMessageResponse {
	out := make([]models.ThreadMessageResponse, 0, len(entries))
	for _, entry := range entries {
		msg := entry.AsMessage()
		_, pending := entry.(messaging.Pending)
		out = append(out, models.ThreadMessageResponse{
			Message: msg,
			Pending: pending,
			IsSelf:  msg.SenderID == userID,
		})
	}
	return out
}
