// Package errors 提供统一的错误定义
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型（对外稳定的机器可读标识）
type ErrorCode string

// 预定义错误码
const (
	CodeInvalidParam       ErrorCode = "InvalidParam"
	CodeUnauthorized       ErrorCode = "Unauthorized"
	CodeTenantAccessDenied ErrorCode = "TenantAccessDenied"
	CodeLabContextRequired ErrorCode = "LabContextRequired"
	CodeInsufficientRole   ErrorCode = "InsufficientRole"
	CodeRateLimitExceeded  ErrorCode = "RateLimitExceeded"
	CodeInternalError      ErrorCode = "InternalError"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"error"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithError 返回附带底层错误的副本，预定义错误本身不会被修改
func (e *AppError) WithError(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// WithMessage 返回替换消息后的副本
func (e *AppError) WithMessage(msg string) *AppError {
	cp := *e
	cp.Message = msg
	return &cp
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeInvalidParam:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTenantAccessDenied, CodeLabContextRequired, CodeInsufficientRole:
		return http.StatusForbidden
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// 预定义错误
var (
	ErrInvalidParam  = New(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized  = New(CodeUnauthorized, "unauthorized")
	ErrInternalError = New(CodeInternalError, "internal server error")

	// 响应消息刻意不区分“租户不存在”“租户已删除”“不是成员”
	ErrTenantAccessDenied = New(CodeTenantAccessDenied, "access to the requested lab is denied")
	ErrLabContextRequired = New(CodeLabContextRequired, "this operation requires a lab context")
	ErrInsufficientRole   = New(CodeInsufficientRole, "insufficient role for this operation")
	ErrRateLimitExceeded  = New(CodeRateLimitExceeded, "too many requests, please retry later")
)

// AsAppError 将错误转换为 AppError，未知错误统一映射为内部错误
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternalError.WithError(err)
}
