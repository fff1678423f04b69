// internal/services/summary_service.go
package services

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/Corphon/YouTubeNotes/internal/errors"
	"github.com/Corphon/YouTubeNotes/internal/utils"
)

// NotesPrompt 固定的摘要指令，直接拼接在字幕文本之前
const NotesPrompt = `You are a YouTube video summarizer. You will be taking the transcript text
and summarizing the entire video and providing the important summary in points
within 250 words. Please provide the summary of the text given here:  `

// NotesHeading 摘要展示区域的标题
const NotesHeading = "Detailed Notes"

const summarizationErrorPrefix = "Failed to generate notes: "

var (
	errStreamIncomplete = errors.New("stream ended without a final response")
	errEmptySummary     = errors.New("model returned an empty response")
)

// SummaryService 把字幕交给生成式文本服务生成要点摘要
// 不截断、不分块，也不处理模型输出
type SummaryService struct {
	llm     *LLMService
	logger  *utils.Logger
	metrics *utils.NotesMetrics
}

// NewSummaryService 创建摘要服务
func NewSummaryService(llmService *LLMService, logger *utils.Logger, metrics *utils.NotesMetrics) *SummaryService {
	return &SummaryService{
		llm:     llmService,
		logger:  logger,
		metrics: metrics,
	}
}

// BuildPrompt 固定指令 + 字幕文本
func BuildPrompt(transcript string) string {
	return NotesPrompt + transcript
}

// Summarize 生成摘要并原样返回模型输出
func (s *SummaryService) Summarize(ctx context.Context, transcript string) (string, error) {
	start := time.Now()

	resp, err := s.llm.CreateCompletion(ctx, BuildPrompt(transcript))
	if err != nil {
		return "", s.fail(err, time.Since(start))
	}
	if resp.Text == "" {
		return "", s.fail(errEmptySummary, time.Since(start))
	}

	s.metrics.RecordSummary(s.llm.ProviderName(), resp.ModelName, resp.TokensUsed, time.Since(start), false)
	return resp.Text, nil
}

// SummarizeStream 流式生成摘要，每个增量片段回调 onChunk，返回完整文本
func (s *SummaryService) SummarizeStream(ctx context.Context, transcript string, onChunk func(string)) (string, error) {
	start := time.Now()

	ch, err := s.llm.CreateStreamingCompletion(ctx, BuildPrompt(transcript))
	if err != nil {
		return "", s.fail(err, time.Since(start))
	}

	streamed := false
	for resp := range ch {
		if !resp.Done {
			streamed = streamed || resp.Text != ""
			if onChunk != nil {
				onChunk(resp.Text)
			}
			continue
		}
		if resp.Err != nil {
			return "", s.fail(resp.Err, time.Since(start))
		}
		// 没有任何输出的流按失败处理，否则页面会显示空白结果
		if resp.Text == "" && !streamed {
			return "", s.fail(errEmptySummary, time.Since(start))
		}
		s.metrics.RecordSummary(s.llm.ProviderName(), resp.ModelName, 0, time.Since(start), false)
		return resp.Text, nil
	}

	// 通道在没有结束消息的情况下关闭，说明请求被取消
	if err := ctx.Err(); err != nil {
		return "", s.fail(err, time.Since(start))
	}
	return "", s.fail(errStreamIncomplete, time.Since(start))
}

// fail 统一包装为 summarization_failed 错误
func (s *SummaryService) fail(err error, elapsed time.Duration) error {
	s.metrics.RecordSummary(s.llm.ProviderName(), s.llm.Model(), 0, elapsed, true)
	s.logger.Error("摘要生成失败", map[string]interface{}{
		"provider": s.llm.ProviderName(),
		"error":    err.Error(),
	})
	return apperrors.NewSummarizationError(summarizationErrorPrefix+err.Error(), err)
}
