// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/YouTubeNotes/internal/api"
	"github.com/Corphon/YouTubeNotes/internal/config"
	_ "github.com/Corphon/YouTubeNotes/internal/llm/providers/google"
	"github.com/Corphon/YouTubeNotes/internal/services"
	"github.com/Corphon/YouTubeNotes/internal/utils"
	"github.com/Corphon/YouTubeNotes/internal/youtube"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 2. 初始化日志
	logger := utils.NewLogger(cfg.LogLevel, cfg.DebugMode)
	if err := logger.InitFile(filepath.Join(cfg.LogDir, "server.log")); err != nil {
		logger.Warnf("无法写入日志文件，仅输出到控制台: %v", err)
	}
	defer logger.Close()

	logger.Info("启动 YouTubeNotes 服务器", map[string]interface{}{
		"port":     cfg.Port,
		"provider": cfg.LLMProvider,
		"model":    cfg.LLMModel,
	})

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 3. 按依赖顺序构造服务
	metrics := utils.NewNotesMetrics(utils.NewMetricsCollector(), logger)

	llmService := services.NewLLMService(cfg)
	if !llmService.IsReady() {
		logger.Warn("LLM服务未就绪，生成笔记时将返回错误", map[string]interface{}{
			"ready_state": llmService.Status().ReadyState,
		})
	}

	transcriptClient := youtube.NewClient(
		youtube.WithBaseURL(cfg.YouTubeBaseURL),
		youtube.WithLanguages(cfg.TranscriptLanguages),
	)

	notes := services.NewNotesService(
		services.NewTranscriptService(transcriptClient, logger, metrics),
		services.NewSummaryService(llmService, logger, metrics),
		logger,
		metrics,
	)

	// 4. 设置路由
	router, err := api.SetupRouter(api.RouterDeps{
		Config:  cfg,
		Notes:   notes,
		LLM:     llmService,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		logger.Errorf("设置路由失败: %v", err)
		os.Exit(1)
	}

	// 5. 启动服务器
	logger.Infof("访问地址: http://localhost:%s", cfg.Port)
	runServer(router, cfg.Port, logger)
}

// runServer 启动服务器并在收到中断信号后优雅关闭
func runServer(router *gin.Engine, port string, logger *utils.Logger) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	// 在新的 goroutine 中启动服务器
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("启动服务器失败: %v", err)
			os.Exit(1)
		}
	}()

	// 等待中断信号以进行优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器...", nil)

	// 给定超时时间关闭服务器
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("服务器强制关闭: %v", err)
		return
	}

	logger.Info("服务器优雅关闭完成", nil)
}
