// internal/youtube/video.go
package youtube

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Corphon/YouTubeNotes/internal/models"
)

const thumbnailURLPattern = "https://img.youtube.com/vi/%s/0.jpg"

// ExtractVideoID 从URL中提取视频标识
//
// 优先使用 v 查询参数；解析失败时退回到旧的字符串切分规则：
// 取最后一个 "v=" 之后的部分，再截断到第一个 "&"。
// 输入中完全没有 "v=" 时原样返回整个输入。
func ExtractVideoID(raw string) string {
	if u, err := url.Parse(strings.TrimSpace(raw)); err == nil {
		if id := u.Query().Get("v"); id != "" {
			return id
		}
	}

	idx := strings.LastIndex(raw, "v=")
	if idx < 0 {
		return raw
	}
	tail := raw[idx+len("v="):]
	if amp := strings.Index(tail, "&"); amp >= 0 {
		tail = tail[:amp]
	}
	return tail
}

// ThumbnailURL 按约定格式构造缩略图地址，不校验标识是否存在
func ThumbnailURL(videoID string) string {
	return fmt.Sprintf(thumbnailURLPattern, url.PathEscape(videoID))
}

// NewVideoReference 解析用户输入并生成缩略图引用
func NewVideoReference(raw string) models.VideoReference {
	id := ExtractVideoID(raw)
	return models.VideoReference{
		URL:          raw,
		VideoID:      id,
		ThumbnailURL: ThumbnailURL(id),
	}
}
