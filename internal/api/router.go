// internal/api/router.go
package api

import (
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/YouTubeNotes/internal/config"
	"github.com/Corphon/YouTubeNotes/internal/services"
	"github.com/Corphon/YouTubeNotes/internal/utils"
	"github.com/Corphon/YouTubeNotes/web"
)

// RouterDeps 路由所需的依赖，由 main 显式构造后传入
type RouterDeps struct {
	Config  *config.Config
	Notes   *services.NotesService
	LLM     *services.LLMService
	Metrics *utils.NotesMetrics
	Logger  *utils.Logger
}

// SetupRouter 配置HTTP路由
func SetupRouter(deps RouterDeps) (*gin.Engine, error) {
	if deps.Config == nil || deps.Notes == nil || deps.LLM == nil || deps.Metrics == nil || deps.Logger == nil {
		return nil, fmt.Errorf("路由依赖未完整初始化")
	}

	handler := NewHandler(deps.Notes, deps.LLM, deps.Metrics, deps.Logger)
	limiter := NewRateLimiter(deps.Config.RateLimitPerMinute)
	handler.limiter = limiter

	// 创建路由
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(deps.Logger, deps.Metrics))

	// 启用CORS
	r.Use(corsMiddleware())

	// HTML模板与静态文件均内嵌在二进制中
	tmpl, err := template.New("").ParseFS(web.Files, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("加载页面模板失败: %w", err)
	}
	r.SetHTMLTemplate(tmpl)

	staticFS, err := fs.Sub(web.Files, "static")
	if err != nil {
		return nil, fmt.Errorf("加载静态文件失败: %w", err)
	}
	r.StaticFS("/static", http.FS(staticFS))

	// ===============================
	// 页面路由
	// ===============================
	r.GET("/", handler.IndexPage)
	r.POST("/notes", limiter.Middleware(handler.Response), handler.SubmitNotes)
	r.GET("/health", handler.Health)

	// WebSocket 支持，限流在每条消息上进行
	r.GET("/ws/notes", handler.NotesWebSocket)

	// ===============================
	// API路由组
	// ===============================
	api := r.Group("/api")
	{
		api.GET("/video", handler.GetVideo)

		notesGroup := api.Group("/notes")
		notesGroup.Use(limiter.Middleware(handler.Response))
		{
			notesGroup.POST("", handler.CreateNotes)
			notesGroup.POST("/manual", handler.CreateManualNotes)
		}

		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
		}

		api.GET("/metrics", handler.GetMetrics)
	}

	r.NoRoute(func(c *gin.Context) {
		handler.Response.NotFound(c, "接口不存在")
	})

	return r, nil
}
