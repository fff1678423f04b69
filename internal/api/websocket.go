// internal/api/websocket.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Corphon/YouTubeNotes/internal/models"
	"github.com/Corphon/YouTubeNotes/internal/services"
	"github.com/Corphon/YouTubeNotes/internal/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocket 消息类型
const (
	wsTypeState  = "state"
	wsTypeNotice = "notice"
	wsTypeChunk  = "chunk"
	wsTypeResult = "result"
	wsTypeError  = "error"
)

// wsRequest 客户端请求，transcript 非空时走手动流程
type wsRequest struct {
	URL        string `json:"url"`
	Transcript string `json:"transcript,omitempty"`
}

// wsMessage 服务端推送
type wsMessage struct {
	Type   string              `json:"type"`
	State  models.NotesState   `json:"state,omitempty"`
	Text   string              `json:"text,omitempty"`
	Notice *models.Notice      `json:"notice,omitempty"`
	Result *models.NotesResult `json:"result,omitempty"`
	Error  *APIError           `json:"error,omitempty"`
}

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient 表示一个 WebSocket 客户端连接
// 所有写操作都经过 writePump，send 通道不关闭，以 done 通知退出
type WebSocketClient struct {
	conn   WebSocketConnection
	send   chan []byte
	done   chan struct{}
	closed int32 // 原子操作标志，0=开启，1=关闭
	logger *utils.Logger
}

func newWebSocketClient(conn WebSocketConnection, logger *utils.Logger) *WebSocketClient {
	return &WebSocketClient{
		conn:   conn,
		send:   make(chan []byte, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Close 安全关闭客户端连接
func (client *WebSocketClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		close(client.done)
		client.conn.Close()
	}
}

// IsClosed 检查连接是否已关闭
func (client *WebSocketClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// SendMessage 按顺序投递消息，连接关闭后直接丢弃
func (client *WebSocketClient) SendMessage(message wsMessage) {
	if client.IsClosed() {
		return
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		client.logger.Error("WebSocket 消息序列化失败", map[string]interface{}{"error": err.Error()})
		return
	}

	select {
	case client.send <- msgBytes:
	case <-client.done:
	}
}

// writePump 负责写入和心跳
func (client *WebSocketClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				client.logger.Warn("WebSocket 写入失败", map[string]interface{}{"error": err.Error()})
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.done:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			client.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// readLoop 逐条读取请求交给 handle，读取失败时关闭连接
func (client *WebSocketClient) readLoop(handle func(req wsRequest)) {
	defer client.Close()

	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for !client.IsClosed() {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))

		_, messageBytes, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				client.logger.Warn("WebSocket 读取错误", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(messageBytes, &req); err != nil {
			client.SendMessage(wsMessage{
				Type:  wsTypeError,
				Error: &APIError{Code: ErrorBadRequest, Message: "无效的消息格式"},
			})
			continue
		}

		handle(req)
	}
}

// NotesWebSocket 处理 /ws/notes 连接，推送状态、提示、摘要片段和最终结果
// 每条请求单独计入限流，同一连接上的请求依次处理
func (h *Handler) NotesWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("WebSocket 升级失败", map[string]interface{}{"error": err.Error()})
		return
	}

	client := newWebSocketClient(conn, h.Logger)
	defer client.Close()

	collector := h.Metrics.Collector()
	collector.IncGauge("ws_connections")
	defer collector.DecGauge("ws_connections")

	// 连接被接管后请求上下文不会随对端断开而取消，这里跟随 client.done
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go func() {
		select {
		case <-client.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	go client.writePump()

	requests := make(chan wsRequest)
	go func() {
		defer close(requests)
		client.readLoop(func(req wsRequest) {
			select {
			case requests <- req:
			case <-client.done:
			}
		})
	}()

	clientIP := c.ClientIP()
	for req := range requests {
		if !h.allowNotes(clientIP) {
			client.SendMessage(wsMessage{
				Type:  wsTypeError,
				Error: &APIError{Code: ErrorRateLimited, Message: "Rate limit exceeded"},
			})
			continue
		}
		h.streamNotes(ctx, client, req)
	}
}

func (h *Handler) streamNotes(ctx context.Context, client *WebSocketClient, req wsRequest) {
	events := &services.NotesEvents{
		OnState: func(state models.NotesState) {
			client.SendMessage(wsMessage{Type: wsTypeState, State: state})
		},
		OnNotice: func(notice models.Notice) {
			client.SendMessage(wsMessage{Type: wsTypeNotice, Notice: &notice})
		},
		OnChunk: func(text string) {
			client.SendMessage(wsMessage{Type: wsTypeChunk, Text: text})
		},
	}

	var (
		result *models.NotesResult
		err    error
	)
	if strings.TrimSpace(req.Transcript) != "" {
		result, err = h.Notes.SubmitManual(ctx, req.URL, req.Transcript, events)
	} else {
		result, err = h.Notes.Run(ctx, req.URL, events)
	}

	if err != nil {
		_, code := statusForError(err)
		notice := services.NoticeFromError(err)
		client.SendMessage(wsMessage{
			Type:  wsTypeError,
			Error: &APIError{Code: code, Message: notice.Message},
		})
		return
	}
	client.SendMessage(wsMessage{Type: wsTypeResult, Result: result})
}
