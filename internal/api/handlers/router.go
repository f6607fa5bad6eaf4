package handlers

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// 会话
		api.GET("/status", h.GetStatus)
		api.POST("/login", h.Login)
		api.POST("/logout", h.Logout)

		// 车辆
		api.GET("/snapshot", h.GetSnapshot)
		api.POST("/refresh", h.Refresh)
		api.POST("/commands/:name", h.SendCommand)

		// 偏好
		api.GET("/preferences", h.GetPreferences)
		api.PUT("/preferences", h.UpdatePreferences)
	}

	// OAuth 重定向
	r.GET("/callback", h.Callback)

	// WebSocket
	r.GET("/ws", h.HandleWebSocket)

	// 健康检查
	r.GET("/health", h.HealthCheck)
}
