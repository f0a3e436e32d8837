package handlers

import (
	"errors"
	"net/http"

	"skoropad/internal/messaging"
	"skoropad/internal/utils"

	"github.com/gin-gonic/gin"
)

// UserFriendlyError 用户友好的错误类型
//
// 内部错误细节只写日志，客户端只看到 userMessage。
type UserFriendlyError struct {
	userMessage string
	statusCode  int
}

// 预定义的用户友好错误消息
var (
	ErrListConversationsFailed = UserFriendlyError{"获取会话列表失败，请稍后重试", http.StatusBadGateway}
	ErrOpenConversationFailed  = UserFriendlyError{"获取消息失败，请稍后重试", http.StatusBadGateway}
	ErrSendMessageFailed       = UserFriendlyError{"发送消息失败，请稍后重试", http.StatusBadGateway}
	ErrDeleteFailed            = UserFriendlyError{"删除会话失败，请稍后重试", http.StatusBadGateway}
	ErrCheckListingFailed      = UserFriendlyError{"无法获取广告信息，请稍后重试", http.StatusBadGateway}
	ErrSessionUnavailable      = UserFriendlyError{"私信服务暂不可用", http.StatusServiceUnavailable}
)

// handleInternalError 处理内部错误，记录详细信息到日志，返回用户友好消息
func handleInternalError(c *gin.Context, friendlyError UserFriendlyError, actualErr error, logger utils.Logger, logFields ...interface{}) {
	fields := []interface{}{
		"error", actualErr.Error(),
		"endpoint", c.Request.URL.Path,
		"method", c.Request.Method,
		"requestID", utils.GetRequestID(c),
	}
	fields = append(fields, logFields...)
	logger.Error(friendlyError.userMessage+" - 内部错误", fields...)

	utils.ErrorWithCodeResponse(c, utils.NewAppError(actualErr, friendlyError.userMessage, friendlyError.statusCode).
		WithContext("error_code", utils.GetErrorCode(actualErr)), nil)
}

// respondError 校验与不存在错误原样返回给用户，其余按内部错误处理
//
// data 随错误一起返回（例如发送失败时的草稿）。
func respondError(c *gin.Context, err error, friendly UserFriendlyError, logger utils.Logger, data interface{}, logFields ...interface{}) {
	switch {
	case messaging.IsValidation(err), messaging.IsNotFound(err):
		utils.ErrorWithCodeResponse(c, err, data)
	case errors.Is(err, utils.ErrServiceUnavailable):
		handleInternalError(c, ErrSessionUnavailable, err, logger, logFields...)
	default:
		if data != nil {
			logFields = append(logFields, "error", err.Error())
			logger.Warn(friendly.userMessage, logFields...)
			utils.ErrorWithCodeResponse(c,
				utils.NewAppError(err, friendly.userMessage, utils.GetHTTPStatusCode(err)).
					WithContext("error_code", utils.GetErrorCode(err)), data)
			return
		}
		handleInternalError(c, friendly, err, logger, logFields...)
	}
}
