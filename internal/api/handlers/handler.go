// Package handlers 本地仪表盘 API：会话、快照、命令、偏好与 WebSocket 推送
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/tesdash/internal/auth"
	"github.com/langchou/tesdash/internal/credentials"
	"github.com/langchou/tesdash/internal/service"
	"github.com/langchou/tesdash/pkg/ws"
)

// Handler HTTP 处理器
type Handler struct {
	logger         *zap.Logger
	auth           *auth.Manager
	completion     *auth.ChannelCompletion
	syncService    *service.SyncService
	commandService *service.CommandService
	preferences    *credentials.PreferenceStore
	wsHub          *ws.Hub
	nativeDistance string
	upgrader       websocket.Upgrader
}

// NewHandler 创建处理器
// completion 为 nil 时 /callback 同步完成令牌交换
func NewHandler(
	logger *zap.Logger,
	authManager *auth.Manager,
	completion *auth.ChannelCompletion,
	syncService *service.SyncService,
	commandService *service.CommandService,
	preferences *credentials.PreferenceStore,
	wsHub *ws.Hub,
	nativeDistance string,
) *Handler {
	return &Handler{
		logger:         logger,
		auth:           authManager,
		completion:     completion,
		syncService:    syncService,
		commandService: commandService,
		preferences:    preferences,
		wsHub:          wsHub,
		nativeDistance: nativeDistance,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 本地服务，允许所有来源
			},
		},
	}
}

// GetStatus 会话概况
// GET /api/status
func (h *Handler) GetStatus(c *gin.Context) {
	st, err := h.auth.Status(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": st,
		"demo": h.syncService.Snapshot().IsDemo(),
	})
}

// Login 发起登录，返回授权地址
// POST /api/login
func (h *Handler) Login(c *gin.Context) {
	authorizeURL, err := h.auth.BeginLogin(c.Request.Context())
	if err != nil {
		if errors.Is(err, auth.ErrConfigUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Backend configuration unavailable"})
			return
		}
		h.logger.Error("Failed to begin login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to begin login"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authorize_url": authorizeURL})
}

// Callback OAuth 重定向目标
// GET /callback?code=...&state=...
func (h *Handler) Callback(c *gin.Context) {
	cb := auth.CallbackFromQuery(c.Request.URL.Query())

	if h.completion != nil {
		if !h.completion.Deliver(cb) {
			h.logger.Warn("Callback received with no login in progress")
			c.Data(http.StatusConflict, "text/html; charset=utf-8", []byte(callbackPage("No login in progress. Start a new login from the dashboard.")))
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(callbackPage("Login received. You can close this window.")))
		return
	}

	if err := h.auth.HandleCallback(c.Request.Context(), cb); err != nil {
		h.logger.Warn("Login callback failed", zap.Error(err))
		c.Data(http.StatusBadRequest, "text/html; charset=utf-8", []byte(callbackPage("Login failed. Please try again.")))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(callbackPage("Connected. You can close this window.")))
}

func callbackPage(message string) string {
	return "<!doctype html><html><head><meta charset=\"utf-8\"><title>tesdash</title></head><body><p>" +
		message + "</p></body></html>"
}

// Logout 登出
// POST /api/logout
func (h *Handler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context()); err != nil {
		h.logger.Error("Failed to clear credentials", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": h.auth.State()})
}

// HandleWebSocket WebSocket 处理
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}

	client := ws.NewClient(h.wsHub, conn)
	go client.WritePump()
	go client.ReadPump()
	client.Register()
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"ws_clients": h.wsHub.ClientCount(),
	})
}
