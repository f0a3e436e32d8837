package utils

import (
	"errors"
	"net/http"
)

// 定义常用错误
var (
	// 认证相关错误
	ErrUserNotAuthenticated = errors.New("用户未认证")
	ErrInvalidUserID        = errors.New("无效的用户ID")
	ErrInvalidToken         = errors.New("无效的token")
	ErrTokenExpired         = errors.New("token已过期")

	// 请求相关错误
	ErrInvalidParameter = errors.New("无效的参数")
	ErrValidationFailed = errors.New("参数验证失败")
	ErrResourceNotFound = errors.New("资源不存在")

	// 系统相关错误
	ErrServiceUnavailable = errors.New("服务不可用")
	ErrRateLimitExceeded  = errors.New("请求频率过高")
	ErrDatabaseConnection = errors.New("数据库连接失败")
	ErrDatabaseQuery      = errors.New("数据库查询失败")
)

// 标准错误码（用于API响应）
const (
	ErrCodeAuthRequired       = "AUTH_REQUIRED"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeRecordNotFound     = "RECORD_NOT_FOUND"
	ErrCodeDatabaseError      = "DATABASE_ERROR"
	ErrCodeRemoteError        = "REMOTE_ERROR"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// statusCoder 携带 HTTP 状态码的领域错误
type statusCoder interface {
	HTTPStatus() int
}

// errorCoder 携带 API 错误码的领域错误
type errorCoder interface {
	ErrorCode() string
}

// AppError 应用错误
type AppError struct {
	Err     error
	Message string
	Code    int
	Context map[string]interface{}
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "未知错误"
}

// Unwrap 支持errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建应用错误
func NewAppError(err error, message string, code int) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
		Context: make(map[string]interface{}),
	}
}

// WithContext 添加上下文信息
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	e.Context[key] = value
	return e
}

// GetHTTPStatusCode 返回错误对应的HTTP状态码
func GetHTTPStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}

	switch {
	case errors.Is(err, ErrUserNotAuthenticated) || errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrInvalidUserID):
		return http.StatusUnauthorized
	case errors.Is(err, ErrResourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidParameter) || errors.Is(err, ErrValidationFailed):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrDatabaseConnection):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetErrorCode 返回API响应的错误码字符串
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if errCode, ok := appErr.Context["error_code"].(string); ok {
			return errCode
		}
	}

	var ec errorCoder
	if errors.As(err, &ec) {
		return ec.ErrorCode()
	}

	switch {
	case errors.Is(err, ErrUserNotAuthenticated) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrInvalidUserID):
		return ErrCodeAuthRequired
	case errors.Is(err, ErrTokenExpired):
		return ErrCodeTokenExpired
	case errors.Is(err, ErrResourceNotFound):
		return ErrCodeRecordNotFound
	case errors.Is(err, ErrValidationFailed):
		return ErrCodeValidationFailed
	case errors.Is(err, ErrInvalidParameter):
		return ErrCodeInvalidInput
	case errors.Is(err, ErrRateLimitExceeded):
		return ErrCodeRateLimitExceeded
	case errors.Is(err, ErrDatabaseQuery) || errors.Is(err, ErrDatabaseConnection):
		return ErrCodeDatabaseError
	case errors.Is(err, ErrServiceUnavailable):
		return ErrCodeServiceUnavailable
	default:
		return ErrCodeInternalError
	}
}
