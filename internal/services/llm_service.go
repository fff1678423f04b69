// internal/services/llm_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Corphon/YouTubeNotes/internal/config"
	apperrors "github.com/Corphon/YouTubeNotes/internal/errors"
	"github.com/Corphon/YouTubeNotes/internal/llm"
)

// ErrLLMNotReady 提供者尚未就绪
var ErrLLMNotReady = errors.New("llm service not ready")

// ErrAPIKeyMissing 未配置生成式文本服务的密钥
var ErrAPIKeyMissing = errors.New("GOOGLE_API_KEY is not configured")

// LLMStatus 对外展示的LLM状态
type LLMStatus struct {
	Provider   string   `json:"provider"`
	Model      string   `json:"model"`
	Ready      bool     `json:"ready"`
	ReadyState string   `json:"ready_state"`
	Models     []string `json:"models,omitempty"`
	Available  []string `json:"available_providers"`
}

// LLMService 提供统一的大语言模型调用接口
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	model         string
	isReady       bool
	readyState    string
	notReadyErr   error
}

// NewLLMService 根据配置创建LLM服务
// 缺少密钥或初始化失败时返回未就绪的服务，调用时才报错
func NewLLMService(cfg *config.Config) *LLMService {
	service := &LLMService{
		providerName: cfg.LLMProvider,
		model:        cfg.LLMModel,
		readyState:   "Uninitialized",
	}

	if !cfg.HasAPIKey() {
		service.readyState = "API key not configured"
		service.notReadyErr = apperrors.NewUnauthorizedError("authentication error", ErrAPIKeyMissing)
		return service
	}

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMSettings())
	if err != nil {
		service.readyState = fmt.Sprintf("Initialization failed: %v", err)
		service.notReadyErr = fmt.Errorf("%w: %v", ErrLLMNotReady, err)
		return service
	}

	service.provider = provider
	service.isReady = true
	service.readyState = "Ready"
	return service
}

// NewLLMServiceWithProvider 使用已初始化的提供者创建服务
func NewLLMServiceWithProvider(provider llm.Provider, model string) *LLMService {
	return &LLMService{
		provider:     provider,
		providerName: provider.GetName(),
		model:        model,
		isReady:      true,
		readyState:   "Ready",
	}
}

// IsReady 服务是否可用
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.isReady
}

// Status 返回当前状态
func (s *LLMService) Status() LLMStatus {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	status := LLMStatus{
		Provider:   s.providerName,
		Model:      s.model,
		Ready:      s.isReady,
		ReadyState: s.readyState,
		Available:  llm.ListProviders(),
	}
	if s.provider != nil {
		status.Models = s.provider.GetSupportedModels()
	}
	return status
}

// ProviderName 当前提供者名称
func (s *LLMService) ProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	if s.provider != nil {
		return s.provider.GetName()
	}
	return s.providerName
}

// Model 当前模型
func (s *LLMService) Model() string {
	return s.model
}

func (s *LLMService) readyProvider() (llm.Provider, error) {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()

	if !s.isReady || s.provider == nil {
		if s.notReadyErr != nil {
			return nil, s.notReadyErr
		}
		return nil, ErrLLMNotReady
	}
	return s.provider, nil
}

// CreateCompletion 发送一次文本生成请求
func (s *LLMService) CreateCompletion(ctx context.Context, prompt string) (*llm.CompletionResponse, error) {
	provider, err := s.readyProvider()
	if err != nil {
		return nil, err
	}
	return provider.CompleteText(ctx, llm.CompletionRequest{Prompt: prompt, Model: s.model})
}

// CreateStreamingCompletion 发送一次流式文本生成请求
func (s *LLMService) CreateStreamingCompletion(ctx context.Context, prompt string) (<-chan llm.StreamResponse, error) {
	provider, err := s.readyProvider()
	if err != nil {
		return nil, err
	}
	return provider.StreamCompletion(ctx, llm.CompletionRequest{Prompt: prompt, Model: s.model})
}
