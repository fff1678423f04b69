// internal/services/notes_service.go
package services

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/Corphon/YouTubeNotes/internal/errors"
	"github.com/Corphon/YouTubeNotes/internal/models"
	"github.com/Corphon/YouTubeNotes/internal/utils"
	"github.com/Corphon/YouTubeNotes/internal/youtube"
)

var (
	ErrEmptyURL        = errors.New("video url is required")
	ErrEmptyTranscript = errors.New("transcript text is required")
)

// NotesEvents 流程进度回调，全部可选
// OnChunk 非空时使用流式摘要
type NotesEvents struct {
	OnState  func(state models.NotesState)
	OnNotice func(notice models.Notice)
	OnChunk  func(text string)
}

// NotesService 串联字幕获取与摘要生成
type NotesService struct {
	transcripts *TranscriptService
	summaries   *SummaryService
	logger      *utils.Logger
	metrics     *utils.NotesMetrics
}

// NewNotesService 创建笔记服务
func NewNotesService(transcripts *TranscriptService, summaries *SummaryService, logger *utils.Logger, metrics *utils.NotesMetrics) *NotesService {
	return &NotesService{
		transcripts: transcripts,
		summaries:   summaries,
		logger:      logger,
		metrics:     metrics,
	}
}

// Run 处理一次 "Get Detailed Notes" 点击
// 字幕获取失败时停在 AwaitingManualInput，等待手动粘贴
// 返回的 error 只表示输入无效，流程中的失败都转换为 Notice
func (s *NotesService) Run(ctx context.Context, rawURL string, events *NotesEvents) (*models.NotesResult, error) {
	if strings.TrimSpace(rawURL) == "" {
		return nil, apperrors.NewValidationError("Please enter a YouTube video URL.", ErrEmptyURL)
	}

	done := s.metrics.TrackInFlight()
	defer done()

	video := youtube.NewVideoReference(rawURL)
	flow, result := s.begin(&video, events)

	s.advance(flow, models.StateFetching)
	transcript, err := s.transcripts.Fetch(ctx, video.VideoID)
	if err != nil {
		s.advance(flow, models.StateAwaitingManualInput)
		return s.finish(flow, result, err, events), nil
	}

	result.Source = models.SourceFetched
	s.summarize(ctx, flow, result, transcript, events)
	return result, nil
}

// SubmitManual 使用手动粘贴的字幕生成笔记，处理方式与获取到的字幕相同
func (s *NotesService) SubmitManual(ctx context.Context, rawURL, transcript string, events *NotesEvents) (*models.NotesResult, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, apperrors.NewValidationError("Please paste the transcript text.", ErrEmptyTranscript)
	}

	done := s.metrics.TrackInFlight()
	defer done()
	s.metrics.RecordManualSubmission()

	var video *models.VideoReference
	if strings.TrimSpace(rawURL) != "" {
		ref := youtube.NewVideoReference(rawURL)
		video = &ref
	}

	flow, result := s.begin(video, events)
	s.advance(flow, models.StateAwaitingManualInput)

	result.Source = models.SourceManual
	s.summarize(ctx, flow, result, transcript, events)
	return result, nil
}

func (s *NotesService) begin(video *models.VideoReference, events *NotesEvents) (*Flow, *models.NotesResult) {
	var observer StateObserver
	if events != nil && events.OnState != nil {
		observer = events.OnState
	}
	return NewFlow(observer), &models.NotesResult{Video: video, State: models.StateIdle}
}

// summarize Summarizing -> Displaying，失败同样进入 Displaying 并附带错误提示
func (s *NotesService) summarize(ctx context.Context, flow *Flow, result *models.NotesResult, transcript string, events *NotesEvents) {
	s.advance(flow, models.StateSummarizing)

	var (
		summary string
		err     error
	)
	if events != nil && events.OnChunk != nil {
		summary, err = s.summaries.SummarizeStream(ctx, transcript, events.OnChunk)
	} else {
		summary, err = s.summaries.Summarize(ctx, transcript)
	}

	s.advance(flow, models.StateDisplaying)
	if err != nil {
		s.finish(flow, result, err, events)
		return
	}

	result.Heading = NotesHeading
	result.Summary = summary
	s.finish(flow, result, nil, events)
}

func (s *NotesService) finish(flow *Flow, result *models.NotesResult, err error, events *NotesEvents) *models.NotesResult {
	result.State = flow.State()
	result.Transitions = flow.Transitions()
	if err != nil {
		notice := NoticeFromError(err)
		result.Notice = &notice
		if events != nil && events.OnNotice != nil {
			events.OnNotice(notice)
		}
	}
	return result
}

// advance 迁移表由本服务驱动，非法迁移属于编程错误
func (s *NotesService) advance(flow *Flow, to models.NotesState) {
	if err := flow.Transition(to); err != nil {
		s.logger.Error("状态迁移失败", map[string]interface{}{
			"from":  flow.State(),
			"to":    to,
			"error": err.Error(),
		})
	}
}

// NoticeFromError 把流程错误统一转换为用户可见提示
// access_blocked 为警告，其余为错误
func NoticeFromError(err error) models.Notice {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return models.Notice{
			Level:   models.NoticeError,
			Code:    "UNKNOWN_ERROR",
			Message: err.Error(),
		}
	}

	level := models.NoticeError
	if appErr.Type == apperrors.ErrorTypeAccessBlocked {
		level = models.NoticeWarning
	}
	return models.Notice{
		Level:   level,
		Code:    appErr.Code,
		Message: appErr.Message,
	}
}
