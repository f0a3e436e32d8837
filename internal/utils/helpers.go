// Package utils 提供通用工具函数
package utils

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// 上下文键
const (
	ContextUserID    = "userID"
	ContextUserRole  = "userRole"
	ContextRequestID = "requestID"
)

// SanitizeAuthHeader 清理授权头用于日志记录
func SanitizeAuthHeader(header string) string {
	if header == "" {
		return ""
	}
	if len(header) > 20 {
		return header[:7] + "..." + header[len(header)-4:]
	}
	return "Bearer ***"
}

// SanitizeHeaders 脱敏请求头
func SanitizeHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		value := strings.Join(v, ",")
		switch strings.ToLower(k) {
		case "authorization":
			value = SanitizeAuthHeader(value)
		case "cookie", "set-cookie":
			value = "***"
		}
		out[k] = value
	}
	return out
}

// GetUserIDFromContext 从 gin 上下文读取认证中间件写入的用户ID
func GetUserIDFromContext(c *gin.Context) (string, error) {
	value, exists := c.Get(ContextUserID)
	if !exists {
		return "", ErrUserNotAuthenticated
	}
	userID, ok := value.(string)
	if !ok || userID == "" {
		return "", ErrInvalidUserID
	}
	return userID, nil
}

// GetRequestID 当前请求ID
func GetRequestID(c *gin.Context) string {
	return c.GetString(ContextRequestID)
}
