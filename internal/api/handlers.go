// internal/api/handlers.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/YouTubeNotes/internal/models"
	"github.com/Corphon/YouTubeNotes/internal/services"
	"github.com/Corphon/YouTubeNotes/internal/utils"
	"github.com/Corphon/YouTubeNotes/internal/youtube"
)

const pageTitle = "YouTube Transcript to Detailed Notes Converter"

// Handler 处理API请求
type Handler struct {
	Notes     *services.NotesService // 笔记流程
	LLM       *services.LLMService   // LLM服务
	Metrics   *utils.NotesMetrics    // 指标
	Logger    *utils.Logger          // 日志
	Response  *ResponseHelper        // 响应助手
	limiter   *RateLimiter           // WebSocket 按消息限流
	startedAt time.Time
}

// NewHandler 创建处理器
func NewHandler(notes *services.NotesService, llmService *services.LLMService, metrics *utils.NotesMetrics, logger *utils.Logger) *Handler {
	return &Handler{
		Notes:     notes,
		LLM:       llmService,
		Metrics:   metrics,
		Logger:    logger,
		Response:  NewResponseHelper(),
		startedAt: time.Now(),
	}
}

// NotesRequest 获取笔记请求
type NotesRequest struct {
	URL string `json:"url" form:"url" binding:"required"`
}

// ManualNotesRequest 手动字幕请求，URL 仅用于展示缩略图
type ManualNotesRequest struct {
	URL        string `json:"url" form:"url"`
	Transcript string `json:"transcript" form:"transcript" binding:"required"`
}

// NotesForm 页面表单，transcript 非空时走手动流程
type NotesForm struct {
	URL        string `form:"url"`
	Transcript string `form:"transcript"`
}

// VideoQuery 缩略图预览请求
type VideoQuery struct {
	URL string `form:"url" binding:"required"`
}

// PageData 页面模板数据
type PageData struct {
	Title      string
	URL        string
	Video      *models.VideoReference
	Result     *models.NotesResult
	Notice     *models.Notice
	ShowManual bool
	Transcript string
}

// allowNotes 未配置限流器时不限制
func (h *Handler) allowNotes(clientIP string) bool {
	return h.limiter == nil || h.limiter.Allow(clientIP)
}

// ===============================
// 页面
// ===============================

// IndexPage 返回主页面，带 url 参数时显示缩略图
func (h *Handler) IndexPage(c *gin.Context) {
	data := PageData{Title: pageTitle}
	if raw := strings.TrimSpace(c.Query("url")); raw != "" {
		video := youtube.NewVideoReference(raw)
		data.URL = raw
		data.Video = &video
	}
	c.HTML(http.StatusOK, "index.html", data)
}

// SubmitNotes 处理 "Get Detailed Notes" 表单提交
func (h *Handler) SubmitNotes(c *gin.Context) {
	var form NotesForm
	if err := c.ShouldBind(&form); err != nil {
		c.HTML(http.StatusBadRequest, "index.html", PageData{
			Title:  pageTitle,
			Notice: &models.Notice{Level: models.NoticeError, Code: ErrorBadRequest, Message: "Invalid form submission."},
		})
		return
	}

	var (
		result *models.NotesResult
		err    error
	)
	if strings.TrimSpace(form.Transcript) != "" {
		result, err = h.Notes.SubmitManual(c.Request.Context(), form.URL, form.Transcript, nil)
	} else {
		result, err = h.Notes.Run(c.Request.Context(), form.URL, nil)
	}

	data := PageData{Title: pageTitle, URL: form.URL}
	if err != nil {
		notice := services.NoticeFromError(err)
		data.Notice = &notice
		data.ShowManual = strings.TrimSpace(form.Transcript) != ""
		data.Transcript = form.Transcript
		c.HTML(http.StatusBadRequest, "index.html", data)
		return
	}

	data.Video = result.Video
	data.Result = result
	data.Notice = result.Notice
	// 隐藏的输入框同样会随表单提交，只在等待手动输入时回填
	data.ShowManual = result.NeedsManualInput()
	if data.ShowManual {
		data.Transcript = form.Transcript
	}
	c.HTML(http.StatusOK, "index.html", data)
}

// ===============================
// JSON API
// ===============================

// GetVideo 解析链接并返回缩略图信息
func (h *Handler) GetVideo(c *gin.Context) {
	var query VideoQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.Response.BindError(c, err)
		return
	}
	h.Response.Success(c, youtube.NewVideoReference(query.URL))
}

// CreateNotes 获取字幕并生成笔记
// 字幕或摘要失败时仍返回200，提示信息在结果的 notice 中
func (h *Handler) CreateNotes(c *gin.Context) {
	var req NotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BindError(c, err)
		return
	}

	result, err := h.Notes.Run(c.Request.Context(), req.URL, nil)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, result)
}

// CreateManualNotes 使用手动粘贴的字幕生成笔记
func (h *Handler) CreateManualNotes(c *gin.Context) {
	var req ManualNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BindError(c, err)
		return
	}

	result, err := h.Notes.SubmitManual(c.Request.Context(), req.URL, req.Transcript, nil)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, result)
}

// GetLLMStatus 获取LLM服务状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	h.Response.Success(c, h.LLM.Status())
}

// GetMetrics 返回指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, h.Metrics.Collector().GetMetrics())
}

// Health 存活检查
func (h *Handler) Health(c *gin.Context) {
	status := "ok"
	if !h.LLM.IsReady() {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         status,
		"llm_ready":      h.LLM.IsReady(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}
