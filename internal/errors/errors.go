// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
)

// ErrorType 定义错误类型
type ErrorType string

const (
	// 通用错误类型
	ErrorTypeValidation   ErrorType = "validation_error"
	ErrorTypeUnauthorized ErrorType = "unauthorized"

	// 笔记流程错误类型
	ErrorTypeAccessBlocked         ErrorType = "access_blocked"
	ErrorTypeTranscriptUnavailable ErrorType = "transcript_unavailable"
	ErrorTypeSummarization         ErrorType = "summarization_failed"
)

// AppError 应用程序错误结构
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Code    string // 用户友好的错误代码
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap 实现错误链接
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError 创建新的 AppError
func NewAppError(errType ErrorType, message string, originalError error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     originalError,
		Code:    generateErrorCode(errType),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeValidation, message, originalError)
}

// NewUnauthorizedError 创建未授权错误
func NewUnauthorizedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeUnauthorized, message, originalError)
}

// NewAccessBlockedError 字幕服务拒绝自动访问
func NewAccessBlockedError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeAccessBlocked, message, originalError)
}

// NewTranscriptUnavailableError 其他字幕获取失败
func NewTranscriptUnavailableError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeTranscriptUnavailable, message, originalError)
}

// NewSummarizationError 生成式文本调用失败
func NewSummarizationError(message string, originalError error) *AppError {
	return NewAppError(ErrorTypeSummarization, message, originalError)
}

// TypeOf 返回错误链中第一个 AppError 的类型
func TypeOf(err error) (ErrorType, bool) {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError.Type, true
	}
	return "", false
}

func isType(err error, errType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errType
}

// IsValidationError 检查是否为验证错误
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsUnauthorizedError 检查是否为未授权错误
func IsUnauthorizedError(err error) bool {
	return isType(err, ErrorTypeUnauthorized)
}

// IsAccessBlockedError 检查是否为访问被阻止错误
func IsAccessBlockedError(err error) bool {
	return isType(err, ErrorTypeAccessBlocked)
}

// IsTranscriptUnavailableError 检查是否为字幕不可用错误
func IsTranscriptUnavailableError(err error) bool {
	return isType(err, ErrorTypeTranscriptUnavailable)
}

// IsSummarizationError 检查是否为摘要生成错误
func IsSummarizationError(err error) bool {
	return isType(err, ErrorTypeSummarization)
}

// generateErrorCode 根据错误类型生成错误代码
func generateErrorCode(errType ErrorType) string {
	switch errType {
	case ErrorTypeValidation:
		return "VALIDATION_ERROR"
	case ErrorTypeUnauthorized:
		return "UNAUTHORIZED"
	case ErrorTypeAccessBlocked:
		return "TRANSCRIPT_ACCESS_BLOCKED"
	case ErrorTypeTranscriptUnavailable:
		return "TRANSCRIPT_UNAVAILABLE"
	case ErrorTypeSummarization:
		return "SUMMARIZATION_FAILED"
	default:
		return "UNKNOWN_ERROR"
	}
}

// WrapError 包装现有错误
func WrapError(err error, message string, errType ErrorType) error {
	if err == nil {
		return nil
	}

	var appError *AppError
	if errors.As(err, &appError) {
		// 如果已经是 AppError，只更新消息，保留原始原因
		return &AppError{
			Type:    appError.Type,
			Message: fmt.Sprintf("%s: %s", message, appError.Message),
			Err:     appError.Err,
			Code:    appError.Code,
		}
	}

	// 否则创建新的 AppError
	return NewAppError(errType, message, err)
}
