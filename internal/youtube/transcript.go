// internal/youtube/transcript.go
package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Fragments 获取视频的字幕片段
// 流程：观看页面 → ytInitialPlayerResponse → 选择字幕轨道 → timedtext XML
func (c *Client) Fragments(ctx context.Context, videoID string) ([]Fragment, error) {
	body, err := c.fetchWatchPage(ctx, videoID)
	if err != nil {
		return nil, err
	}

	player, err := parsePlayerResponse(body)
	if err != nil {
		return nil, err
	}

	if err := checkPlayability(player); err != nil {
		return nil, err
	}

	if player.Captions == nil || len(player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks) == 0 {
		return nil, ErrNoCaptions
	}

	track := pickTrack(player.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks, c.languages)
	return c.fetchTimedText(ctx, track.BaseURL)
}

// fetchWatchPage 下载观看页面HTML
func (c *Client) fetchWatchPage(ctx context.Context, videoID string) ([]byte, error) {
	watchURL := c.baseURL + "/watch?v=" + url.QueryEscape(videoID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, watchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}
	defer resp.Body.Close()

	if isBlockedResponse(resp) {
		return nil, ErrRequestBlocked
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("watch page: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWatchPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read watch page: %w", err)
	}
	if bytes.Contains(body, []byte(`class="g-recaptcha"`)) {
		return nil, ErrRequestBlocked
	}
	return body, nil
}

// isBlockedResponse 限流状态码或被重定向到 google.com/sorry
func isBlockedResponse(resp *http.Response) bool {
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.Request != nil && resp.Request.URL != nil {
		return strings.HasPrefix(resp.Request.URL.Path, "/sorry")
	}
	return false
}

// parsePlayerResponse 从页面中截取并解析播放器响应JSON
func parsePlayerResponse(body []byte) (*playerResponse, error) {
	idx := bytes.Index(body, []byte(playerResponseMarker))
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}

	raw := extractJSON(body[idx+len(playerResponseMarker):])
	if raw == nil {
		return nil, errors.New("malformed ytInitialPlayerResponse")
	}

	var player playerResponse
	if err := json.Unmarshal(raw, &player); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return &player, nil
}

// extractJSON 返回 data 开头的完整JSON对象，字符串内的括号不计数
func extractJSON(data []byte) []byte {
	if len(data) == 0 || data[0] != '{' {
		return nil
	}

	depth := 0
	inString := false
	escaped := false
	for i, b := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return data[:i+1]
			}
		}
	}
	return nil
}

// checkPlayability 将播放状态映射为字幕错误
func checkPlayability(player *playerResponse) error {
	status := player.PlayabilityStatus
	if status == nil {
		return nil
	}

	switch status.Status {
	case "OK", "":
		return nil
	case "LOGIN_REQUIRED":
		if strings.Contains(strings.ToLower(status.Reason), "bot") {
			return ErrRequestBlocked
		}
	}

	if status.Reason != "" {
		return fmt.Errorf("%w: %s", ErrVideoUnavailable, status.Reason)
	}
	return fmt.Errorf("%w: status %s", ErrVideoUnavailable, status.Status)
}

// pickTrack 选择字幕轨道：首选语言的人工字幕 → 首选语言的自动字幕 → 任意英文 → 第一条
func pickTrack(tracks []captionTrack, languages []string) captionTrack {
	for _, lang := range languages {
		for _, t := range tracks {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t
			}
		}
	}
	for _, lang := range languages {
		for _, t := range tracks {
			if t.LanguageCode == lang {
				return t
			}
		}
	}
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t
		}
	}
	return tracks[0]
}

// fetchTimedText 下载并解析 timedtext XML
func (c *Client) fetchTimedText(ctx context.Context, baseURL string) ([]Fragment, error) {
	if strings.HasPrefix(baseURL, "/") {
		baseURL = c.baseURL + baseURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	defer resp.Body.Close()

	if isBlockedResponse(resp) {
		return nil, ErrRequestBlocked
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch timedtext: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTimedTextBytes))
	if err != nil {
		return nil, fmt.Errorf("read timedtext: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrNoCaptions
	}

	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	fragments := make([]Fragment, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		text := strings.Join(strings.Fields(html.UnescapeString(line.Text)), " ")
		if text == "" {
			continue
		}
		fragments = append(fragments, Fragment{
			Text:     text,
			Start:    line.Start,
			Duration: line.Duration,
		})
	}
	return fragments, nil
}
