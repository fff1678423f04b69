// internal/api/error_codes.go
package api

import (
	"net/http"

	apperrors "github.com/Corphon/YouTubeNotes/internal/errors"
)

// API错误代码常量
const (
	// 通用错误
	ErrorBadRequest    = "BAD_REQUEST"
	ErrorValidation    = "VALIDATION_ERROR"
	ErrorNotFound      = "NOT_FOUND"
	ErrorInternalError = "INTERNAL_ERROR"
	ErrorRateLimited   = "RATE_LIMIT_EXCEEDED"

	// LLM服务相关错误
	ErrorAPIKeyMissing = "API_KEY_MISSING"

	// 字幕相关错误
	ErrorTranscriptBlocked     = "TRANSCRIPT_ACCESS_BLOCKED"
	ErrorTranscriptUnavailable = "TRANSCRIPT_UNAVAILABLE"
	ErrorSummarizationFailed   = "SUMMARIZATION_FAILED"
)

// statusForError 流程外的错误才映射为非200状态码
func statusForError(err error) (int, string) {
	errType, ok := apperrors.TypeOf(err)
	if !ok {
		return http.StatusInternalServerError, ErrorInternalError
	}

	switch errType {
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest, ErrorValidation
	case apperrors.ErrorTypeUnauthorized:
		return http.StatusServiceUnavailable, ErrorAPIKeyMissing
	case apperrors.ErrorTypeAccessBlocked:
		return http.StatusOK, ErrorTranscriptBlocked
	case apperrors.ErrorTypeTranscriptUnavailable:
		return http.StatusOK, ErrorTranscriptUnavailable
	case apperrors.ErrorTypeSummarization:
		return http.StatusOK, ErrorSummarizationFailed
	default:
		return http.StatusInternalServerError, ErrorInternalError
	}
}
