// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultPort           = "8080"
	defaultLLMProvider    = "google"
	defaultLLMModel       = "gemini-2.5-flash"
	defaultYouTubeBaseURL = "https://www.youtube.com"
	defaultLogDir         = "logs"
	defaultLogLevel       = "info"
	defaultRatePerMinute  = 30
)

// Config 存储应用配置，进程启动时构建一次，之后只读并通过构造函数注入
type Config struct {
	Port string

	// LLM相关配置
	GoogleAPIKey string
	LLMProvider  string
	LLMModel     string
	LLMBaseURL   string

	// 字幕获取配置
	TranscriptLanguages []string
	YouTubeBaseURL      string

	// 日志与运行模式
	LogDir    string
	LogLevel  string
	DebugMode bool

	// 每个客户端IP每分钟允许的请求数，0表示不限流
	RateLimitPerMinute int
}

// Load 从.env文件（可选）和环境变量加载配置
func Load(envFiles ...string) (*Config, error) {
	// .env 不存在时直接使用进程环境变量
	_ = godotenv.Load(envFiles...)

	rate, err := getEnvInt("RATE_LIMIT_PER_MINUTE", defaultRatePerMinute)
	if err != nil {
		return nil, err
	}
	if rate < 0 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_MINUTE 不能为负数: %d", rate)
	}

	cfg := &Config{
		Port:                getEnv("PORT", defaultPort),
		GoogleAPIKey:        strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")),
		LLMProvider:         strings.ToLower(getEnv("LLM_PROVIDER", defaultLLMProvider)),
		LLMModel:            getEnv("LLM_MODEL", defaultLLMModel),
		LLMBaseURL:          getEnv("LLM_BASE_URL", ""),
		TranscriptLanguages: getEnvList("TRANSCRIPT_LANGUAGES", []string{"en"}),
		YouTubeBaseURL:      strings.TrimRight(getEnv("YOUTUBE_BASE_URL", defaultYouTubeBaseURL), "/"),
		LogDir:              getEnv("LOG_DIR", defaultLogDir),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DebugMode:           getEnvBool("DEBUG_MODE", false),
		RateLimitPerMinute:  rate,
	}

	return cfg, nil
}

// HasAPIKey 报告是否配置了生成式文本服务的密钥
func (c *Config) HasAPIKey() bool {
	return c.GoogleAPIKey != ""
}

// LLMSettings 返回提供者初始化所需的配置映射
func (c *Config) LLMSettings() map[string]string {
	settings := map[string]string{
		"api_key":       c.GoogleAPIKey,
		"default_model": c.LLMModel,
	}
	if c.LLMBaseURL != "" {
		settings["base_url"] = c.LLMBaseURL
	}
	return settings
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvBool 获取布尔类型环境变量
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return defaultValue
	}

	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt 获取整数类型环境变量
func getEnvInt(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("环境变量 %s 不是有效整数: %w", key, err)
	}
	return n, nil
}

// getEnvList 获取逗号分隔的列表
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}

	var items []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
