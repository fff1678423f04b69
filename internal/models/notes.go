// internal/models/notes.go
package models

// VideoReference 表示从用户输入中解析出的视频引用
type VideoReference struct {
	URL          string `json:"url"`           // 用户粘贴的原始输入
	VideoID      string `json:"video_id"`      // 视频标识（未校验）
	ThumbnailURL string `json:"thumbnail_url"` // 缩略图地址
}

// NotesState 笔记流程的状态
type NotesState string

const (
	StateIdle                NotesState = "idle"
	StateFetching            NotesState = "fetching"
	StateSummarizing         NotesState = "summarizing"
	StateAwaitingManualInput NotesState = "awaiting_manual_input"
	StateDisplaying          NotesState = "displaying"
)

// NoticeLevel 用户可见提示的级别
type NoticeLevel string

const (
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice 展示给用户的提示信息
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
}

// TranscriptSource 字幕来源
type TranscriptSource string

const (
	SourceFetched TranscriptSource = "fetched"
	SourceManual  TranscriptSource = "manual"
)

// NotesResult 一次按钮点击的完整结果
type NotesResult struct {
	Video       *VideoReference  `json:"video,omitempty"`
	State       NotesState       `json:"state"`
	Transitions []NotesState     `json:"transitions"`
	Source      TranscriptSource `json:"source,omitempty"`
	Heading     string           `json:"heading,omitempty"`
	Summary     string           `json:"summary,omitempty"`
	Notice      *Notice          `json:"notice,omitempty"`
}

// NeedsManualInput 报告界面是否应显示手动粘贴区域
func (r *NotesResult) NeedsManualInput() bool {
	return r.State == StateAwaitingManualInput
}

// HasSummary 报告是否生成了笔记
func (r *NotesResult) HasSummary() bool {
	return r.Summary != ""
}
