// internal/llm/providers/google/google.go
package google

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Corphon/YouTubeNotes/internal/llm"
)

const (
	providerName   = "google gemini"
	defaultModel   = "gemini-2.5-flash"
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1"
)

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			models: []string{
				"gemini-2.5-pro",
				"gemini-2.5-flash",
				"gemini-2.0-flash",
			},
			baseURL: defaultBaseURL,
		}
	})
}

// ErrMissingAPIKey 未提供API密钥
var ErrMissingAPIKey = errors.New("google_api密钥未提供")

// APIError Gemini 返回的非200响应
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("google gemini API错误(%d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("google gemini API错误(%d): %s", e.StatusCode, e.Message)
}

type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
	models       []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := strings.TrimSpace(config["api_key"])
	if apiKey == "" {
		return ErrMissingAPIKey
	}

	p.apiKey = apiKey
	p.client = &http.Client{}

	if model := config["default_model"]; model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = defaultModel
	}

	if baseURL := config["base_url"]; baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}

	return nil
}

func (p *Provider) GetName() string {
	return providerName
}

func (p *Provider) GetSupportedModels() []string {
	return p.models
}

// --- Gemini 请求/响应结构 ---

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            float32  `json:"topP,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// text 拼接第一个候选结果的所有文本片段
func (r *generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// blocked 提示词被安全策略拦截时返回错误
func (r *generateResponse) blocked() error {
	if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
		return fmt.Errorf("google gemini拒绝了请求: %s", r.PromptFeedback.BlockReason)
	}
	return nil
}

// streamError 流中返回的 {"error":{...}} 事件
func (r *generateResponse) streamError() error {
	if r.Error == nil {
		return nil
	}
	return &APIError{StatusCode: r.Error.Code, Status: r.Error.Status, Message: r.Error.Message}
}

var errNoCandidates = errors.New("google gemini未返回任何结果")

func (p *Provider) buildRequest(req llm.CompletionRequest) generateRequest {
	body := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: req.Prompt}}}},
	}

	if req.SystemPrompt != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}

	if req.Temperature > 0 || req.TopP > 0 || req.MaxTokens > 0 || len(req.StopWords) > 0 {
		cfg := &generationConfig{
			TopP:            req.TopP,
			MaxOutputTokens: req.MaxTokens,
			StopSequences:   req.StopWords,
		}
		if req.Temperature > 0 {
			t := req.Temperature
			cfg.Temperature = &t
		}
		body.GenerationConfig = cfg
	}
	return body
}

func (p *Provider) modelFor(req llm.CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return p.defaultModel
}

// post 发送请求，密钥放在请求头中，避免出现在错误信息里的URL上
func (p *Provider) post(ctx context.Context, endpoint string, body generateRequest) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google gemini请求失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, decodeAPIError(httpResp)
	}
	return httpResp, nil
}

// decodeAPIError 解析 {"error":{"code","message","status"}} 格式的错误
func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var errorResp struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     errorResp.Error.Status,
			Message:    errorResp.Error.Message,
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := p.modelFor(req)
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)

	httpResp, err := p.post(ctx, endpoint, p.buildRequest(req))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var response generateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("解析google gemini响应失败: %w", err)
	}

	if len(response.Candidates) == 0 {
		if err := response.blocked(); err != nil {
			return nil, err
		}
		return nil, errNoCandidates
	}

	return &llm.CompletionResponse{
		Text:         response.text(),
		FinishReason: response.Candidates[0].FinishReason,
		TokensUsed:   response.UsageMetadata.TotalTokenCount,
		PromptTokens: response.UsageMetadata.PromptTokenCount,
		OutputTokens: response.UsageMetadata.CandidatesTokenCount,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}

// StreamCompletion 实现流式响应（SSE）
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	model := p.modelFor(req)
	endpoint := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", p.baseURL, model)

	httpResp, err := p.post(ctx, endpoint, p.buildRequest(req))
	if err != nil {
		return nil, err
	}

	respChan := make(chan llm.StreamResponse)

	go func() {
		defer httpResp.Body.Close()
		defer close(respChan)

		send := func(resp llm.StreamResponse) bool {
			select {
			case respChan <- resp:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var (
			full          strings.Builder
			finishReason  string
			sawCandidates bool
			streamErr     error
		)
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}

			var chunk generateResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				streamErr = fmt.Errorf("解析google gemini流失败: %w", err)
				break
			}
			if err := chunk.streamError(); err != nil {
				streamErr = err
				break
			}
			if err := chunk.blocked(); err != nil {
				streamErr = err
				break
			}
			if len(chunk.Candidates) == 0 {
				continue
			}
			sawCandidates = true

			if text := chunk.text(); text != "" {
				full.WriteString(text)
				if !send(llm.StreamResponse{Text: text, ModelName: model}) {
					return
				}
			}
			if reason := chunk.Candidates[0].FinishReason; reason != "" {
				finishReason = reason
			}
		}

		if streamErr == nil {
			if err := scanner.Err(); err != nil {
				streamErr = fmt.Errorf("读取google gemini流失败: %w", err)
			} else if !sawCandidates {
				streamErr = errNoCandidates
			}
		}

		final := llm.StreamResponse{
			Text:         full.String(),
			FinishReason: finishReason,
			ModelName:    model,
			Done:         true,
			Err:          streamErr,
		}
		send(final)
	}()

	return respChan, nil
}
