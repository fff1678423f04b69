package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/YouTubeNotes/internal/config"
	"github.com/Corphon/YouTubeNotes/internal/llm"
	"github.com/Corphon/YouTubeNotes/internal/models"
	"github.com/Corphon/YouTubeNotes/internal/services"
	"github.com/Corphon/YouTubeNotes/internal/utils"
	"github.com/Corphon/YouTubeNotes/internal/youtube"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSource struct {
	text     []string
	err      error
	videoIDs []string
}

func (s *stubSource) Fragments(ctx context.Context, videoID string) ([]youtube.Fragment, error) {
	s.videoIDs = append(s.videoIDs, videoID)
	if s.err != nil {
		return nil, s.err
	}
	fragments := make([]youtube.Fragment, 0, len(s.text))
	for _, t := range s.text {
		fragments = append(fragments, youtube.Fragment{Text: t})
	}
	return fragments, nil
}

// stubProvider 返回固定文本，reply 为空时回显提示词
type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Initialize(map[string]string) error { return nil }
func (p *stubProvider) GetName() string                     { return "stub" }
func (p *stubProvider) GetSupportedModels() []string        { return []string{"stub-1"} }

func (p *stubProvider) output(req llm.CompletionRequest) string {
	if p.reply != "" {
		return p.reply
	}
	return req.Prompt
}

func (p *stubProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.CompletionResponse{Text: p.output(req), ModelName: req.Model}, nil
}

func (p *stubProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	full := p.output(req)
	ch := make(chan llm.StreamResponse, len(full)+1)
	for _, line := range strings.SplitAfter(full, "\n") {
		ch <- llm.StreamResponse{Text: line}
	}
	ch <- llm.StreamResponse{Text: full, Done: true}
	close(ch)
	return ch, nil
}

func newTestRouter(t *testing.T, source *stubSource, provider llm.Provider, ratePerMinute int) (*gin.Engine, *utils.NotesMetrics) {
	t.Helper()

	logger := utils.NewNopLogger()
	metrics := utils.NewNotesMetrics(utils.NewMetricsCollector(), logger)
	llmService := services.NewLLMServiceWithProvider(provider, "stub-1")
	notes := services.NewNotesService(
		services.NewTranscriptService(source, logger, metrics),
		services.NewSummaryService(llmService, logger, metrics),
		logger,
		metrics,
	)

	router, err := SetupRouter(RouterDeps{
		Config:  &config.Config{RateLimitPerMinute: ratePerMinute},
		Notes:   notes,
		LLM:     llmService,
		Metrics: metrics,
		Logger:  logger,
	})
	require.NoError(t, err)
	return router, metrics
}

type notesEnvelope struct {
	Success bool               `json:"success"`
	Data    models.NotesResult `json:"data"`
	Error   *APIError          `json:"error"`
}

func postJSON(router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeNotes(t *testing.T, w *httptest.ResponseRecorder) notesEnvelope {
	t.Helper()
	var env notesEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestSubmitNotesFormEndToEnd(t *testing.T) {
	source := &stubSource{text: []string{"one", "two", "three"}}
	router, _ := newTestRouter(t, source, &stubProvider{reply: "- point one\n- point two"}, 0)

	form := url.Values{"url": {"https://youtube.com/watch?v=ABC123&t=10"}}
	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, []string{"ABC123"}, source.videoIDs)
	assert.Contains(t, body, "Detailed Notes")
	assert.Contains(t, body, `<div id="summary" class="summary">- point one
- point two</div>`)
	assert.Contains(t, body, "https://img.youtube.com/vi/ABC123/0.jpg")
	assert.Contains(t, body, `id="manual" class="manual hidden"`)
}

func TestSubmitNotesFormFetchFailureShowsManualArea(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{err: errors.New("boom")}, &stubProvider{}, 0)

	form := url.Values{"url": {"https://youtube.com/watch?v=ABC123"}}
	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "An error occurred: boom")
	assert.Contains(t, body, `id="manual" class="manual"`)
	assert.Contains(t, body, "notice-error")
}

func TestSubmitNotesFormManualTranscript(t *testing.T) {
	source := &stubSource{}
	router, _ := newTestRouter(t, source, &stubProvider{reply: "- manual notes"}, 0)

	form := url.Values{"url": {"https://youtube.com/watch?v=ABC123"}, "transcript": {"pasted text"}}
	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, source.videoIDs)
	assert.Contains(t, w.Body.String(), "- manual notes")
}

func TestSubmitNotesFormDropsTranscriptAfterSuccess(t *testing.T) {
	source := &stubSource{text: []string{"fresh"}}
	router, _ := newTestRouter(t, source, &stubProvider{reply: "- manual notes"}, 0)

	form := url.Values{"url": {"https://youtube.com/watch?v=OLD"}, "transcript": {"stale manual text"}}
	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `id="manual" class="manual hidden"`)
	assert.NotContains(t, body, "stale manual text")
	assert.Contains(t, body, `rows="10"></textarea>`)

	// 下一次提交只带链接，重新从获取字幕开始
	form = url.Values{"url": {"https://youtube.com/watch?v=NEW"}, "transcript": {""}}
	req = httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"NEW"}, source.videoIDs)
}

func TestSubmitNotesFormEmptyURL(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubProvider{}, 0)

	req := httptest.NewRequest(http.MethodPost, "/notes", strings.NewReader("url="))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Please enter a YouTube video URL.")
}

func TestIndexPage(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubProvider{}, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?url=https%3A%2F%2Fwww.youtube.com%2Fwatch%3Fv%3DXYZ", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Get Detailed Notes")
	assert.Contains(t, body, "https://img.youtube.com/vi/XYZ/0.jpg")
}

func TestStaticFilesServed(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubProvider{}, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/static/app.js", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateNotesJSON(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{text: []string{"hello"}}, &stubProvider{}, 0)

	w := postJSON(router, "/api/notes", NotesRequest{URL: "https://youtube.com/watch?v=ABC123"})
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeNotes(t, w)
	assert.True(t, env.Success)
	assert.Equal(t, services.NotesPrompt+"hello", env.Data.Summary)
	assert.Equal(t, services.NotesHeading, env.Data.Heading)
	assert.Equal(t, models.StateDisplaying, env.Data.State)
	assert.Equal(t, models.SourceFetched, env.Data.Source)
	require.NotNil(t, env.Data.Video)
	assert.Equal(t, "ABC123", env.Data.Video.VideoID)
}

func TestManualFallbackJSON(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{err: errors.New("network down")}, &stubProvider{}, 0)

	w := postJSON(router, "/api/notes", NotesRequest{URL: "https://youtube.com/watch?v=ABC123"})
	require.Equal(t, http.StatusOK, w.Code)

	first := decodeNotes(t, w)
	assert.Equal(t, models.StateAwaitingManualInput, first.Data.State)
	assert.Empty(t, first.Data.Summary)
	require.NotNil(t, first.Data.Notice)
	assert.Equal(t, ErrorTranscriptUnavailable, first.Data.Notice.Code)
	assert.Equal(t, "An error occurred: network down", first.Data.Notice.Message)

	w = postJSON(router, "/api/notes/manual", ManualNotesRequest{
		URL:        "https://youtube.com/watch?v=ABC123",
		Transcript: "manual transcript",
	})
	require.Equal(t, http.StatusOK, w.Code)

	second := decodeNotes(t, w)
	assert.Equal(t, services.NotesPrompt+"manual transcript", second.Data.Summary)
	assert.Equal(t, models.SourceManual, second.Data.Source)
	assert.Nil(t, second.Data.Notice)
}

func TestCreateNotesBlockedIsWarning(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{err: youtube.ErrRequestBlocked}, &stubProvider{}, 0)

	w := postJSON(router, "/api/notes", NotesRequest{URL: "https://youtube.com/watch?v=ABC123"})
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeNotes(t, w)
	require.NotNil(t, env.Data.Notice)
	assert.Equal(t, models.NoticeWarning, env.Data.Notice.Level)
	assert.Equal(t, ErrorTranscriptBlocked, env.Data.Notice.Code)
	assert.Equal(t, "YouTube is blocking transcript access for this video. Try another video or provide transcript manually.", env.Data.Notice.Message)
}

func TestCreateNotesSummarizationFailure(t *testing.T) {
	router, metrics := newTestRouter(t, &stubSource{text: []string{"x"}}, &stubProvider{err: errors.New("quota exceeded")}, 0)

	w := postJSON(router, "/api/notes", NotesRequest{URL: "https://youtube.com/watch?v=ABC123"})
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeNotes(t, w)
	assert.Equal(t, models.StateDisplaying, env.Data.State)
	require.NotNil(t, env.Data.Notice)
	assert.Equal(t, ErrorSummarizationFailed, env.Data.Notice.Code)
	assert.Equal(t, "Failed to generate notes: quota exceeded", env.Data.Notice.Message)
	assert.Equal(t, int64(1), metrics.Collector().GetCounterValue("llm_requests_failed"))
}

func TestCreateNotesValidation(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubProvider{}, 0)

	w := postJSON(router, "/api/notes", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	env := decodeNotes(t, w)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorValidation, env.Error.Code)
	assert.Contains(t, env.Error.Details, "url: required")
}

func TestCreateNotesMalformedJSON(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubProvider{}, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/notes", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrorBadRequest, decodeNotes(t, w).Error.Code)
}

func TestCreateManualNotesBlankTranscript(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubProvider{}, 0)

	w := postJSON(router, "/api/notes/manual", ManualNotesRequest{Transcript: "   "})
	require.Equal(t, http.StatusBadRequest, w.Code)

	env := decodeNotes(t, w)
	assert.Equal(t, ErrorValidation, env.Error.Code)
	assert.Equal(t, "Please paste the transcript text.", env.Error.Message)
}

func TestGetVideo(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubProvider{}, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/video?url="+url.QueryEscape("https://youtube.com/watch?v=ABC123&t=10"), nil))
	require.Equal(t, http.StatusOK, w.Code)

	var env struct {
		Data models.VideoReference `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "ABC123", env.Data.VideoID)
	assert.Equal(t, "https://img.youtube.com/vi/ABC123/0.jpg", env.Data.ThumbnailURL)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/video", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRateLimit(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{text: []string{"x"}}, &stubProvider{}, 2)

	for i := 0; i < 2; i++ {
		w := postJSON(router, "/api/notes", NotesRequest{URL: "https://youtube.com/watch?v=ABC123"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := postJSON(router, "/api/notes", NotesRequest{URL: "https://youtube.com/watch?v=ABC123"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, ErrorRateLimited, decodeNotes(t, w).Error.Code)

	// 页面和状态接口不受限流影响
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiterReplenishes(t *testing.T) {
	now := time.Unix(1700000000, 0)
	rl := NewRateLimiter(1)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("5.6.7.8"))

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("1.2.3.4"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(0)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("k"))
	}
}

func TestNotFoundRoute(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubProvider{}, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	var env APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorNotFound, env.Error.Code)
}

func TestAppErrorPlainErrorIsInternal(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	NewResponseHelper().AppError(c, errors.New("disk full"))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var env APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrorInternalError, env.Error.Code)
	assert.Equal(t, "disk full", env.Error.Details)
}

func TestRequestID(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubProvider{}, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/llm/status", nil))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/api/llm/status", nil)
	req.Header.Set(requestIDHeader, "req-42")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))

	var env APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "req-42", env.RequestID)
}

func TestLLMStatusHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{text: []string{"x"}}, &stubProvider{}, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/llm/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var status struct {
		Data services.LLMStatus `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.True(t, status.Data.Ready)
	assert.Equal(t, "stub", status.Data.Provider)
	assert.Equal(t, "stub-1", status.Data.Model)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	postJSON(router, "/api/notes", NotesRequest{URL: "https://youtube.com/watch?v=ABC123"})

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "transcript_fetch_ok")
	assert.Contains(t, w.Body.String(), "api_requests_total")
}

func TestCORSPreflight(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubProvider{}, 0)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/notes", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func dialNotes(t *testing.T, router http.Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/notes"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil 读取消息直到出现指定类型
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) []wsMessage {
	t.Helper()
	var messages []wsMessage
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		messages = append(messages, msg)
		if msg.Type == msgType {
			return messages
		}
	}
}

func TestNotesWebSocketStreams(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{text: []string{"a", "b"}}, &stubProvider{reply: "- one\n- two"}, 0)
	conn := dialNotes(t, router)

	require.NoError(t, conn.WriteJSON(wsRequest{URL: "https://youtube.com/watch?v=ABC123"}))
	messages := readUntil(t, conn, wsTypeResult)

	var states []models.NotesState
	var streamed strings.Builder
	for _, msg := range messages {
		switch msg.Type {
		case wsTypeState:
			states = append(states, msg.State)
		case wsTypeChunk:
			streamed.WriteString(msg.Text)
		}
	}

	assert.Equal(t, []models.NotesState{
		models.StateFetching, models.StateSummarizing, models.StateDisplaying,
	}, states)
	assert.Equal(t, "- one\n- two", streamed.String())

	final := messages[len(messages)-1]
	require.NotNil(t, final.Result)
	assert.Equal(t, "- one\n- two", final.Result.Summary)
}

func TestNotesWebSocketManualFallback(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{err: youtube.ErrRequestBlocked}, &stubProvider{}, 0)
	conn := dialNotes(t, router)

	require.NoError(t, conn.WriteJSON(wsRequest{URL: "https://youtube.com/watch?v=ABC123"}))
	messages := readUntil(t, conn, wsTypeResult)

	var notice *models.Notice
	for _, msg := range messages {
		if msg.Type == wsTypeNotice {
			notice = msg.Notice
		}
	}
	require.NotNil(t, notice)
	assert.Equal(t, models.NoticeWarning, notice.Level)
	assert.True(t, messages[len(messages)-1].Result.NeedsManualInput())

	// 同一连接上提交手动字幕
	require.NoError(t, conn.WriteJSON(wsRequest{URL: "https://youtube.com/watch?v=ABC123", Transcript: "manual transcript"}))
	messages = readUntil(t, conn, wsTypeResult)
	assert.Equal(t, services.NotesPrompt+"manual transcript", messages[len(messages)-1].Result.Summary)
}

func TestNotesWebSocketValidationError(t *testing.T) {
	router, _ := newTestRouter(t, &stubSource{}, &stubProvider{}, 0)
	conn := dialNotes(t, router)

	require.NoError(t, conn.WriteJSON(wsRequest{URL: " "}))
	messages := readUntil(t, conn, wsTypeError)

	last := messages[len(messages)-1]
	require.NotNil(t, last.Error)
	assert.Equal(t, ErrorValidation, last.Error.Code)
}

func TestNotesWebSocketRateLimitedPerMessage(t *testing.T) {
	source := &stubSource{text: []string{"x"}}
	router, _ := newTestRouter(t, source, &stubProvider{reply: "- one"}, 1)
	conn := dialNotes(t, router)

	require.NoError(t, conn.WriteJSON(wsRequest{URL: "https://youtube.com/watch?v=ABC123"}))
	messages := readUntil(t, conn, wsTypeResult)
	assert.Equal(t, "- one", messages[len(messages)-1].Result.Summary)

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(wsRequest{URL: "https://youtube.com/watch?v=ABC123"}))
		messages = readUntil(t, conn, wsTypeError)
		require.Len(t, messages, 1)
		assert.Equal(t, ErrorRateLimited, messages[0].Error.Code)
	}
	assert.Equal(t, []string{"ABC123"}, source.videoIDs)
}

// hangingProvider 流式调用一直等到上下文取消
type hangingProvider struct {
	stubProvider
	started   chan struct{}
	cancelled chan struct{}
}

func (p *hangingProvider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	close(p.started)
	ch := make(chan llm.StreamResponse)
	go func() {
		defer close(ch)
		<-ctx.Done()
		close(p.cancelled)
	}()
	return ch, nil
}

func TestNotesWebSocketDisconnectCancelsSummary(t *testing.T) {
	provider := &hangingProvider{started: make(chan struct{}), cancelled: make(chan struct{})}
	router, _ := newTestRouter(t, &stubSource{text: []string{"x"}}, provider, 0)
	conn := dialNotes(t, router)

	require.NoError(t, conn.WriteJSON(wsRequest{URL: "https://youtube.com/watch?v=ABC123"}))
	select {
	case <-provider.started:
	case <-time.After(5 * time.Second):
		t.Fatal("summary never started")
	}

	conn.Close()
	select {
	case <-provider.cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("summary still running after the client disconnected")
	}
}
