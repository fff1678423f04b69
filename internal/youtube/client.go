// internal/youtube/client.go
package youtube

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// 字幕获取的错误分类
var (
	// ErrRequestBlocked YouTube 拒绝自动化访问（限流、人机验证等）
	ErrRequestBlocked = errors.New("youtube is blocking requests from this client")
	// ErrVideoUnavailable 视频不存在或不可播放
	ErrVideoUnavailable = errors.New("video unavailable")
	// ErrNoCaptions 视频没有可用的字幕轨道
	ErrNoCaptions = errors.New("no captions available for this video")
)

// Fragment 一条带时间信息的字幕片段
type Fragment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// TranscriptSource 外部字幕服务
type TranscriptSource interface {
	Fragments(ctx context.Context, videoID string) ([]Fragment, error)
}

const (
	defaultBaseURL   = "https://www.youtube.com"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

	// 观看页面中播放器响应JSON的起始标记
	playerResponseMarker = "ytInitialPlayerResponse = "

	maxWatchPageBytes = 6 * 1024 * 1024
	maxTimedTextBytes = 2 * 1024 * 1024
)

// Client 通过观看页面抓取字幕的 TranscriptSource 实现
type Client struct {
	baseURL    string
	languages  []string
	httpClient *http.Client
}

// Option 自定义客户端
type Option func(*Client)

// WithHTTPClient 替换默认的 HTTP 客户端
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL 替换 YouTube 根地址（测试使用）
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithLanguages 设置字幕语言优先级
func WithLanguages(languages []string) Option {
	return func(c *Client) {
		if len(languages) > 0 {
			c.languages = languages
		}
	}
}

// NewClient 创建字幕客户端
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		languages:  []string{"en"},
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --- 播放器响应结构 ---

type playerResponse struct {
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" 为自动生成
}

// --- timedtext XML 结构 ---

type timedText struct {
	Lines []timedTextLine `xml:"text"`
}

type timedTextLine struct {
	Start    float64 `xml:"start,attr"`
	Duration float64 `xml:"dur,attr"`
	Text     string  `xml:",chardata"`
}
