package utils

import (
	"net/http"

	"skoropad/internal/models"

	"github.com/gin-gonic/gin"
)

// ErrorBody 带错误码的错误响应
type ErrorBody struct {
	Code      int         `json:"code"`
	Message   string      `json:"message"`
	ErrorCode string      `json:"error_code,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// SuccessResponse 成功响应
func SuccessResponse(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, models.CommonResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse 错误响应
func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, models.CommonResponse{
		Code:    code,
		Message: message,
	})
}

// ErrorWithCodeResponse 按错误类型输出状态码与错误码，data 可附带草稿等恢复信息
func ErrorWithCodeResponse(c *gin.Context, err error, data interface{}) {
	status := GetHTTPStatusCode(err)
	c.JSON(status, ErrorBody{
		Code:      status,
		Message:   err.Error(),
		ErrorCode: GetErrorCode(err),
		RequestID: GetRequestID(c),
		Data:      data,
	})
}

// UnauthorizedResponse 401错误响应
func UnauthorizedResponse(c *gin.Context, message string) {
	ErrorResponse(c, http.StatusUnauthorized, message)
}
