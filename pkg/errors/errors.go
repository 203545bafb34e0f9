package errors

import (
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/haierkeys/onyx-note-sync/internal/middleware"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
)

// AppError 统一应用错误结构体
// 包含错误码、消息、详情、追踪ID和时间戳
type AppError struct {
	// Code 错误码
	Code int `json:"code"`
	// Status 固定为 false，与成功响应结构对齐
	Status bool `json:"status"`
	// Message 错误消息
	Message string `json:"message"`
	// Details joined with "," so the envelope matches app.Res
	// Details 以逗号拼接，与 app.Res 结构一致
	Details string `json:"details,omitempty"`
	// TraceID 请求追踪ID
	TraceID string `json:"traceId,omitempty"`
	// Cause 原始错误（不序列化到JSON）
	Cause error `json:"-"`
	// Timestamp 错误发生时间
	Timestamp time.Time `json:"timestamp"`

	httpStatus int
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap 支持 errors.Is / errors.As 沿错误链查找
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError 从 Code 对象创建 AppError
func NewAppError(c *code.Code, cause error) *AppError {
	return &AppError{
		Code:       c.Code(),
		Message:    c.Msg(),
		Details:    strings.Join(c.Details(), ","),
		Cause:      cause,
		Timestamp:  time.Now().UTC(),
		httpStatus: c.StatusCode(),
	}
}

// WithTraceID 设置 TraceID 并返回自身（链式调用）
func (e *AppError) WithTraceID(traceID string) *AppError {
	e.TraceID = traceID
	return e
}

// HTTPStatus returns the transport status, 200 unless the code maps to an HTTP error
// HTTPStatus 返回 HTTP 状态码
func (e *AppError) HTTPStatus() int {
	if e.httpStatus == 0 {
		return 200
	}
	return e.httpStatus
}

// ErrorResponse converts err into an AppError envelope carrying the request trace id
// ErrorResponse 将错误转换为带 TraceID 的 AppError 并返回 JSON
func ErrorResponse(c *gin.Context, err error) {
	traceID := middleware.GetTraceIDFromGin(c)

	var appErr *AppError
	if errors.As(err, &appErr) {
		appErr.TraceID = traceID
		c.Set("status_code", appErr.HTTPStatus())
		c.JSON(appErr.HTTPStatus(), appErr)
		return
	}

	var codeErr *code.Code
	if !errors.As(err, &codeErr) {
		codeErr = code.ErrorServerInternal
	}
	resp := NewAppError(codeErr, err).WithTraceID(traceID)
	c.Set("status_code", resp.HTTPStatus())
	c.JSON(resp.HTTPStatus(), resp)
}

// GetAppError 从错误链中获取 AppError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}
