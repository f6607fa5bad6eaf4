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

	"github.com/langchou/tesdash/internal/api/handlers"
	"github.com/langchou/tesdash/internal/api/middleware"
	"github.com/langchou/tesdash/internal/auth"
	"github.com/langchou/tesdash/internal/backend"
	"github.com/langchou/tesdash/internal/config"
	"github.com/langchou/tesdash/internal/credentials"
	"github.com/langchou/tesdash/internal/pkce"
	"github.com/langchou/tesdash/internal/repository"
	"github.com/langchou/tesdash/internal/service"
	"github.com/langchou/tesdash/internal/store"
	"github.com/langchou/tesdash/pkg/ws"
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

	logger.Info("Starting tesdash",
		zap.String("port", cfg.DashboardPort),
		zap.String("backend", cfg.BackendURL),
		zap.String("store", cfg.StoreDriver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 凭据与偏好存储
	kv, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}
	defer kv.Close()

	vault := credentials.NewVault(kv)
	preferences := credentials.NewPreferenceStore(kv)

	pending := store.NewTransient[*pkce.Session](cfg.PKCETTL)
	defer pending.Close()

	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, cfg.WakeTimeout)
	completion := auth.NewChannelCompletion()

	authManager := auth.NewManager(logger, client, vault, pending, completion, auth.Options{
		AuthorizeURL:    cfg.AuthorizeURL,
		Audience:        cfg.Audience,
		Scopes:          cfg.Scopes,
		RedirectURI:     cfg.RedirectURI,
		LoginTimeout:    cfg.PKCETTL,
		KeepOnTransient: cfg.KeepOnTransient,
	})
	authManager.SetOpener(auth.OpenerFunc(func(_ context.Context, authorizeURL string) error {
		logger.Info("Open this URL to connect your vehicle", zap.String("url", authorizeURL))
		return nil
	}))

	// WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run()
	defer wsHub.Close()

	syncService := service.NewSyncService(logger, authManager, client, cfg.SyncInterval)
	commandService := service.NewCommandService(logger, authManager, client, syncService)

	handler := handlers.NewHandler(
		logger,
		authManager,
		completion,
		syncService,
		commandService,
		preferences,
		wsHub,
		cfg.NativeDistance,
	)
	syncService.SetBroadcaster(handler)
	wsHub.SetInitDataProvider(handler.InitData)

	// 会话事件驱动同步与推送
	authManager.Subscribe(func(ev auth.Event) {
		switch ev.Kind {
		case auth.EventLogout:
			syncService.Reset()
		case auth.EventLogin:
			syncService.Trigger(ctx)
		case auth.EventNotice:
			wsHub.BroadcastNotice(ev.Notice)
		case auth.EventState:
			st, err := authManager.Status(ctx)
			if err != nil {
				logger.Warn("Failed to read session", zap.Error(err))
				return
			}
			wsHub.BroadcastSession(st)
		}
	})

	// 恢复上次的会话
	if err := authManager.Restore(ctx); err != nil {
		logger.Warn("Failed to restore session", zap.Error(err))
	}
	syncService.Trigger(ctx)
	syncService.Start(ctx)

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
		Addr:    ":" + cfg.DashboardPort,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Dashboard started", zap.String("addr", server.Addr))

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down dashboard...")

	// 停止定时同步并取消进行中的唤醒
	syncService.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Dashboard exited")
}

// openStore 根据 STORE_DRIVER 打开持久化存储
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		logger.Warn("Using in-memory store, credentials will not survive a restart")
		return store.NewMemoryStore(), nil

	case "postgres":
		db, err := repository.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		logger.Info("Database migrated successfully")
		return repository.NewKVStore(db, cfg.StoreNamespace), nil

	case "redis":
		return store.NewRedisStore(ctx, cfg.RedisURL, cfg.StoreNamespace, logger)

	default:
		return store.NewFileStore(cfg.StoreFile)
	}
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
