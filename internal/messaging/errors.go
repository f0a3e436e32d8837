package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"skoropad/internal/utils"
)

// ValidationError 本地校验或前置条件失败，不会自动重试
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// HTTPStatus 对应的HTTP状态码
func (e *ValidationError) HTTPStatus() int { return http.StatusBadRequest }

// ErrorCode 对应的API错误码
func (e *ValidationError) ErrorCode() string { return utils.ErrCodeValidationFailed }

// RemoteError 存储不可达、拒绝写入或返回了异常数据
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	if e.Err == nil {
		return e.Op + ": 远程调用失败"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// HTTPStatus 对应的HTTP状态码
func (e *RemoteError) HTTPStatus() int { return http.StatusBadGateway }

// ErrorCode 对应的API错误码
func (e *RemoteError) ErrorCode() string { return utils.ErrCodeRemoteError }

// NotFoundError 引用的广告或用户已不存在
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s 不存在", e.Resource, e.ID)
}

// HTTPStatus 对应的HTTP状态码
func (e *NotFoundError) HTTPStatus() int { return http.StatusNotFound }

// ErrorCode 对应的API错误码
func (e *NotFoundError) ErrorCode() string { return utils.ErrCodeRecordNotFound }

// Is 使 errors.Is(err, utils.ErrResourceNotFound) 成立
func (e *NotFoundError) Is(target error) bool { return target == utils.ErrResourceNotFound }

var (
	ErrEmptyContent         = &ValidationError{Reason: "消息内容不能为空"}
	ErrContentTooLong       = &ValidationError{Reason: "消息内容过长"}
	ErrInvalidKey           = &ValidationError{Reason: "无效的会话参数"}
	ErrSelfMessage          = &ValidationError{Reason: "不能给自己发送消息"}
	ErrListingInactive      = &ValidationError{Reason: "广告已下架，无法发送消息"}
	ErrOwnListing           = &ValidationError{Reason: "不能就自己的广告发起私信"}
	ErrNotListingOwner      = &ValidationError{Reason: "只能联系广告发布者"}
	ErrSendInProgress       = &ValidationError{Reason: "上一条消息仍在发送中"}
	ErrNoActiveConversation = &ValidationError{Reason: "当前没有打开的会话"}
	ErrConversationSwitched = &ValidationError{Reason: "会话已切换"}

	// ErrSessionClosed 会话控制器已关闭
	ErrSessionClosed = fmt.Errorf("会话已关闭: %w", utils.ErrServiceUnavailable)
)

// wrapRemote 把存储层错误归类，已归类的错误原样返回
func wrapRemote(op string, err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	var nf *NotFoundError
	var re *RemoteError
	if errors.As(err, &ve) || errors.As(err, &nf) || errors.As(err, &re) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RemoteError{Op: op, Err: fmt.Errorf("请求超时: %w", err)}
	}
	return &RemoteError{Op: op, Err: err}
}

// IsValidation 判断是否为校验错误
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRemote 判断是否为远程错误
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

// IsNotFound 判断是否为资源不存在
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

var errEmptyResponse = errors.New("存储未返回消息")
