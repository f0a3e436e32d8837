package middleware

import (
	"net/url"
	"time"

	"skoropad/internal/utils"

	"github.com/gin-gonic/gin"
)

// slowRequestThreshold 超过该耗时记为慢请求
const slowRequestThreshold = 500 * time.Millisecond

// LoggerMiddleware 访问日志中间件
//
// 私信内容属于用户隐私，不记录请求体与响应体。
func LoggerMiddleware() gin.HandlerFunc {
	logger := utils.GetLogger()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		logger.Debug("HTTP请求详情",
			"method", c.Request.Method,
			"path", path,
			"headers", utils.SanitizeHeaders(c.Request.Header),
			"contentLength", c.Request.ContentLength,
			"ip", c.ClientIP(),
			"userAgent", c.Request.UserAgent())

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		fields := map[string]interface{}{
			"status":       status,
			"method":       c.Request.Method,
			"path":         path,
			"query":        redactQuery(raw),
			"ip":           c.ClientIP(),
			"latencyMs":    latency.Milliseconds(),
			"responseSize": c.Writer.Size(),
		}

		// 添加用户信息（如果已认证）
		if userID, exists := c.Get(utils.ContextUserID); exists {
			fields["user_id"] = userID
		}
		if requestID, exists := c.Get(utils.ContextRequestID); exists {
			fields["request_id"] = requestID
		}
		if len(c.Errors) > 0 {
			fields["errors"] = c.Errors.String()
		}

		// 根据状态码选择日志级别
		switch {
		case status >= 500:
			logger.Error("HTTP请求完成", fields)
		case status >= 400:
			logger.Warn("HTTP请求完成", fields)
		case latency > slowRequestThreshold:
			logger.Warn("慢请求检测", fields)
		default:
			logger.Info("HTTP请求完成", fields)
		}
	}
}

// redactQuery 隐藏查询参数中的 token
func redactQuery(raw string) string {
	if raw == "" {
		return raw
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	if values.Has("access_token") {
		values.Set("access_token", "redacted")
	}
	return values.Encode()
}
