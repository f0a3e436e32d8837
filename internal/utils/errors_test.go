package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

type codedError struct{}

func (codedError) Error() string     { return "coded" }
func (codedError) HTTPStatus() int   { return http.StatusBadGateway }
func (codedError) ErrorCode() string { return ErrCodeRemoteError }

func TestGetHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, http.StatusOK},
		{"未认证", ErrUserNotAuthenticated, http.StatusUnauthorized},
		{"包装后的参数错误", fmt.Errorf("bind: %w", ErrInvalidParameter), http.StatusBadRequest},
		{"限流", ErrRateLimitExceeded, http.StatusTooManyRequests},
		{"token过期", ErrTokenExpired, http.StatusUnauthorized},
		{"数据库连接", fmt.Errorf("ping: %w", ErrDatabaseConnection), http.StatusServiceUnavailable},
		{"服务不可用", fmt.Errorf("closed: %w", ErrServiceUnavailable), http.StatusServiceUnavailable},
		{"领域错误", fmt.Errorf("send: %w", codedError{}), http.StatusBadGateway},
		{"AppError", NewAppError(errors.New("x"), "冲突", http.StatusConflict), http.StatusConflict},
		{"未知错误", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := GetHTTPStatusCode(test.err); got != test.expected {
				t.Errorf("GetHTTPStatusCode() = %d, expected %d", got, test.expected)
			}
		})
	}
}

func TestGetErrorCode(t *testing.T) {
	if got := GetErrorCode(codedError{}); got != ErrCodeRemoteError {
		t.Errorf("GetErrorCode() = %q, expected %q", got, ErrCodeRemoteError)
	}
	appErr := NewAppError(nil, "x", http.StatusBadRequest).WithContext("error_code", "CUSTOM")
	if got := GetErrorCode(appErr); got != "CUSTOM" {
		t.Errorf("GetErrorCode() = %q, expected CUSTOM", got)
	}
	if got := GetErrorCode(errors.New("boom")); got != ErrCodeInternalError {
		t.Errorf("GetErrorCode() = %q, expected %q", got, ErrCodeInternalError)
	}
}

func TestGetErrorCodeForSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"token过期", ErrTokenExpired, ErrCodeTokenExpired},
		{"无效token", fmt.Errorf("%w: signature", ErrInvalidToken), ErrCodeAuthRequired},
		{"参数错误", NewAppError(ErrInvalidParameter, "无效的广告ID", http.StatusBadRequest), ErrCodeInvalidInput},
		{"校验失败", NewAppError(ErrValidationFailed, "请求参数错误", http.StatusBadRequest), ErrCodeValidationFailed},
		{"数据库查询", fmt.Errorf("count: %w", ErrDatabaseQuery), ErrCodeDatabaseError},
		{"服务不可用", ErrServiceUnavailable, ErrCodeServiceUnavailable},
		{"资源不存在", ErrResourceNotFound, ErrCodeRecordNotFound},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := GetErrorCode(test.err); got != test.expected {
				t.Errorf("GetErrorCode() = %q, expected %q", got, test.expected)
			}
		})
	}
}
