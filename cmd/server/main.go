package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/tesdash/internal/api/middleware"
	"github.com/langchou/tesdash/internal/api/proxy"
	"github.com/langchou/tesdash/internal/api/tesla"
	"github.com/langchou/tesdash/internal/config"
	"github.com/langchou/tesdash/internal/wake"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	logger.Info("Starting tesdash proxy", zap.String("port", cfg.ServerPort))

	// 客户端密钥只在代理中使用
	teslaClient := tesla.NewClient(
		cfg.TeslaAuthHost,
		cfg.TeslaAPIHost,
		cfg.TeslaClientID,
		cfg.TeslaClientSecret,
	)
	if !teslaClient.HasCredentials() {
		logger.Warn("TESLA_CLIENT_ID or TESLA_CLIENT_SECRET is not set, token endpoints will fail")
	}

	policy := wake.Policy{
		MaxAttempts: cfg.WakeMaxAttempts,
		Delay:       cfg.WakePollDelay,
	}
	handler := proxy.NewHandler(logger, teslaClient, policy)

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	// 等待进行中的唤醒轮询结束
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), policy.Ceiling()+5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}
