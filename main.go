package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ThomasJButler/ModelViz-sub002/internal/config"
	"github.com/ThomasJButler/ModelViz-sub002/internal/handlers"
	"github.com/ThomasJButler/ModelViz-sub002/internal/metrics"
	"github.com/ThomasJButler/ModelViz-sub002/internal/middleware"
	"github.com/ThomasJButler/ModelViz-sub002/internal/storage"
	"github.com/ThomasJButler/ModelViz-sub002/internal/utils"
)

func main() {
	// .env 文件可选，不存在时静默跳过
	_ = godotenv.Load()

	envCfg := config.LoadEnvConfig()

	// 日志：配置了 LOG_FILE 时走轮转文件
	if envCfg.LogFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   envCfg.LogFile,
			MaxSize:    20, // MB
			MaxBackups: 5,
			MaxAge:     14, // 天
			Compress:   true,
		})
	}

	settingsMgr, err := config.NewSettingsManager(envCfg.SettingsFile)
	if err != nil {
		log.Fatalf("[Main] 初始化设置管理器失败: %v", err)
	}
	defer settingsMgr.Close()

	// 窗口存储后端：默认文件目录，METRICS_EPHEMERAL=true 时不落盘
	var backend storage.Backend
	if envCfg.Ephemeral {
		backend = storage.NewNoopBackend()
		log.Printf("[Main] 窗口存储使用 no-op 后端（不落盘）")
	} else {
		backend, err = storage.NewFileBackend(envCfg.DataDir, envCfg.WindowQuota)
		if err != nil {
			log.Fatalf("[Main] 初始化窗口存储后端失败: %v", err)
		}
	}

	windowStore := metrics.NewWindowStore(backend)
	historicalStore := metrics.NewSQLiteStore(envCfg.DBPath)
	defer historicalStore.Close()

	coordinator := metrics.NewCoordinator(windowStore, historicalStore, settingsMgr.GetSettings().RetentionDays)

	// 设置变更（API 更新或文件热重载）同步到协调器
	settingsMgr.OnChange(func(s config.Settings) {
		coordinator.SetRetentionDays(s.RetentionDays)
	})

	// 门面是进程内唯一实例，以句柄传给所有处理器
	service := metrics.NewService(coordinator)
	defer service.Close()

	router := setupRouter(service, settingsMgr, envCfg)

	srv := &http.Server{
		Addr:    ":" + envCfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("[Main] 指标服务已启动: http://localhost:%s", envCfg.Port)
		if envCfg.AccessKey != "" {
			log.Printf("[Main] 管理 API 鉴权已启用 (key: %s)", utils.MaskAPIKey(envCfg.AccessKey))
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[Main] HTTP 服务异常退出: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("[Main] 收到退出信号，开始优雅关闭")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[Main] 警告: HTTP 服务关闭超时: %v", err)
	}

	log.Printf("[Main] 已退出")
}

// setupRouter 构建路由
func setupRouter(service *metrics.Service, settingsMgr *config.SettingsManager, envCfg *config.EnvConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.AccessKeyMiddleware(envCfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/metrics", handlers.RecordMetric(service))
		api.GET("/metrics/recent", handlers.GetRecentMetrics(service))
		api.GET("/metrics/aggregated", handlers.GetAggregatedMetrics(service))
		api.GET("/metrics/export", handlers.ExportMetrics(service))
		api.GET("/metrics/provider/:provider", handlers.GetProviderMetrics(service))
		api.GET("/metrics/count", handlers.GetMetricsCount(service))
		api.GET("/metrics/events", handlers.MetricsEvents(service))
		api.POST("/metrics/cleanup", handlers.CleanupMetrics(service))
		api.DELETE("/metrics", handlers.ClearMetrics(service))
		api.GET("/settings", handlers.GetSettings(settingsMgr))
		api.PUT("/settings", handlers.UpdateSettings(settingsMgr))
	}

	return router
}
