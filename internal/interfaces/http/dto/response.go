// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "lab-data-api/pkg/errors"
)

// Response 统一成功响应结构
type Response[T any] struct {
	Data    T         `json:"data"`
	Meta    *PageMeta `json:"meta,omitempty"`
	TraceID string    `json:"trace_id,omitempty"`
}

// PageMeta 分页元数据
type PageMeta struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Count    int `json:"count"`
}

// ErrorResponse 错误响应结构
//
// error 为稳定的机器可读错误码，message 为可读说明。
type ErrorResponse struct {
	Error      apperrors.ErrorCode `json:"error"`
	Message    string              `json:"message"`
	RetryAfter *int                `json:"retryAfter,omitempty"`
	TraceID    string              `json:"trace_id,omitempty"`
}

// Success 返回成功响应
func Success[T any](c *gin.Context, data T) {
	c.JSON(http.StatusOK, Response[T]{
		Data:    data,
		TraceID: c.GetString("trace_id"),
	})
}

// SuccessWithPage 返回带分页的成功响应
func SuccessWithPage[T any](c *gin.Context, data T, meta *PageMeta) {
	c.JSON(http.StatusOK, Response[T]{
		Data:    data,
		Meta:    meta,
		TraceID: c.GetString("trace_id"),
	})
}

// Created 返回创建成功响应 (201)
func Created[T any](c *gin.Context, data T) {
	c.JSON(http.StatusCreated, Response[T]{
		Data:    data,
		TraceID: c.GetString("trace_id"),
	})
}

// Accepted 返回接受处理响应 (202)
func Accepted(c *gin.Context) {
	c.Status(http.StatusAccepted)
}

// Error 写入错误响应并终止后续处理
func Error(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, ErrorResponse{
		Error:   err.Code,
		Message: err.Message,
		TraceID: c.GetString("trace_id"),
	})
}

// RateLimited 写入 429 响应，retryAfter 单位为秒
func RateLimited(c *gin.Context, retryAfter int) {
	err := apperrors.ErrRateLimitExceeded
	c.AbortWithStatusJSON(err.HTTPStatus, ErrorResponse{
		Error:      err.Code,
		Message:    err.Message,
		RetryAfter: &retryAfter,
		TraceID:    c.GetString("trace_id"),
	})
}

// BadRequest 返回 400 错误
func BadRequest(c *gin.Context, message string) {
	Error(c, apperrors.ErrInvalidParam.WithMessage(message))
}

// InternalError 返回 500 错误
func InternalError(c *gin.Context) {
	Error(c, apperrors.ErrInternalError)
}

// NewPageMeta 创建分页元数据
func NewPageMeta(page, pageSize, count int) *PageMeta {
	return &PageMeta{
		Page:     page,
		PageSize: pageSize,
		Count:    count,
	}
}
