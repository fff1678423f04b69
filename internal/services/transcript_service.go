// internal/services/transcript_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/Corphon/YouTubeNotes/internal/errors"
	"github.com/Corphon/YouTubeNotes/internal/utils"
	"github.com/Corphon/YouTubeNotes/internal/youtube"
)

// 用户可见的字幕错误提示
const (
	accessBlockedMessage = "YouTube is blocking transcript access for this video. Try another video or provide transcript manually."
	transcriptErrorFmt   = "An error occurred: %s"
)

// TranscriptService 获取视频字幕并拼接成纯文本
type TranscriptService struct {
	source  youtube.TranscriptSource
	logger  *utils.Logger
	metrics *utils.NotesMetrics
}

// NewTranscriptService 创建字幕服务
func NewTranscriptService(source youtube.TranscriptSource, logger *utils.Logger, metrics *utils.NotesMetrics) *TranscriptService {
	return &TranscriptService{
		source:  source,
		logger:  logger,
		metrics: metrics,
	}
}

// Fetch 获取字幕文本，片段之间以单个空格连接
// 失败时返回空字符串和 access_blocked 或 transcript_unavailable 类型的 AppError，不重试
func (s *TranscriptService) Fetch(ctx context.Context, videoID string) (string, error) {
	start := time.Now()

	fragments, err := s.source.Fragments(ctx, videoID)
	if err != nil {
		return "", s.fail(videoID, err, time.Since(start))
	}

	transcript := JoinFragments(fragments)
	if transcript == "" {
		return "", s.fail(videoID, youtube.ErrNoCaptions, time.Since(start))
	}

	s.metrics.RecordTranscriptFetch("ok", time.Since(start))
	s.logger.Info("字幕获取成功", map[string]interface{}{
		"video_id":  videoID,
		"fragments": len(fragments),
		"chars":     len(transcript),
	})
	return transcript, nil
}

// fail 记录日志与指标，并把底层错误归类
func (s *TranscriptService) fail(videoID string, err error, elapsed time.Duration) error {
	if errors.Is(err, youtube.ErrRequestBlocked) {
		s.metrics.RecordTranscriptFetch("blocked", elapsed)
		s.logger.Warn("YouTube 阻止了字幕访问", map[string]interface{}{
			"video_id": videoID,
			"error":    err.Error(),
		})
		return apperrors.NewAccessBlockedError(accessBlockedMessage, err)
	}

	s.metrics.RecordTranscriptFetch("failed", elapsed)
	s.logger.Error("字幕获取失败", map[string]interface{}{
		"video_id": videoID,
		"error":    err.Error(),
	})
	return apperrors.NewTranscriptUnavailableError(fmt.Sprintf(transcriptErrorFmt, err.Error()), err)
}

// JoinFragments 以单个空格连接片段文本
func JoinFragments(fragments []youtube.Fragment) string {
	texts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		texts = append(texts, f.Text)
	}
	return strings.Join(texts, " ")
}
