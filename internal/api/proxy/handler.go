// Package proxy 实现无状态后端代理：令牌交换/刷新与 Fleet API 转发
package proxy

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/tesdash/internal/api/tesla"
	"github.com/langchou/tesdash/internal/wake"
)

// Handler 代理 HTTP 处理器
type Handler struct {
	logger *zap.Logger
	tesla  *tesla.Client
	policy wake.Policy
}

// NewHandler 创建处理器
func NewHandler(logger *zap.Logger, teslaClient *tesla.Client, policy wake.Policy) *Handler {
	return &Handler{
		logger: logger,
		tesla:  teslaClient,
		policy: policy,
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/config", h.GetConfig)

		// 认证
		api.POST("/auth/token", h.ExchangeToken)
		api.POST("/auth/refresh", h.RefreshToken)

		// 车辆
		vehicles := api.Group("/vehicles", requireBearer())
		{
			vehicles.GET("", h.ListVehicles)
			vehicles.GET("/:id/vehicle_data", h.GetVehicleData)
			vehicles.POST("/:id/wake_up", h.WakeUp)
			vehicles.POST("/:id/command", h.Command)
			vehicles.GET("/:id/nearby_charging_sites", h.NearbyChargingSites)
		}
	}

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// GetConfig 返回公共 OAuth client id
func (h *Handler) GetConfig(c *gin.Context) {
	if h.tesla.ClientID() == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Client ID not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientId": h.tesla.ClientID()})
}

// ExchangeToken 授权码换取令牌
// POST /api/auth/token
func (h *Handler) ExchangeToken(c *gin.Context) {
	var req struct {
		Code         string `json:"code"`
		CodeVerifier string `json:"code_verifier"`
		RedirectURI  string `json:"redirect_uri"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !h.tesla.HasCredentials() {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Server credentials not configured",
			"hint":  "Set TESLA_CLIENT_ID and TESLA_CLIENT_SECRET",
		})
		return
	}

	resp, err := h.tesla.ExchangeCode(c.Request.Context(), req.Code, req.CodeVerifier, req.RedirectURI)
	if err != nil {
		h.logger.Error("Token exchange failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token exchange failed"})
		return
	}

	relay(c, resp)
}

// RefreshToken 刷新令牌
// POST /api/auth/refresh
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !h.tesla.HasCredentials() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server credentials not configured"})
		return
	}

	resp, err := h.tesla.RefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.logger.Error("Token refresh failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token refresh failed"})
		return
	}

	relay(c, resp)
}

// ListVehicles 获取车辆列表
func (h *Handler) ListVehicles(c *gin.Context) {
	resp, err := h.tesla.ListVehicles(c.Request.Context(), bearerToken(c))
	if err != nil {
		h.logger.Error("Failed to fetch vehicles", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch vehicles"})
		return
	}
	relay(c, resp)
}

// GetVehicleData 获取车辆完整数据
func (h *Handler) GetVehicleData(c *gin.Context) {
	resp, err := h.tesla.GetVehicleData(c.Request.Context(), bearerToken(c), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to fetch vehicle data", zap.Error(err), zap.String("vehicle_id", c.Param("id")))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch vehicle data"})
		return
	}
	relay(c, resp)
}

// Command 通用命令转发
// Body: { command: 'door_lock' | 'door_unlock' | 'auto_conditioning_start' | ..., 其余字段为命令参数 }
func (h *Handler) Command(c *gin.Context) {
	var body map[string]interface{}
	if err := c.ShouldBindJSON(&body); err != nil {
		body = map[string]interface{}{}
	}

	command, _ := body["command"].(string)
	if command == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command is required"})
		return
	}
	delete(body, "command")

	resp, err := h.tesla.Command(c.Request.Context(), bearerToken(c), c.Param("id"), command, body)
	if err != nil {
		h.logger.Error("Command failed", zap.Error(err),
			zap.String("vehicle_id", c.Param("id")),
			zap.String("command", command))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Command failed"})
		return
	}

	h.logger.Info("Command relayed",
		zap.String("vehicle_id", c.Param("id")),
		zap.String("command", command),
		zap.Int("status", resp.StatusCode))
	relay(c, resp)
}

// NearbyChargingSites 附近充电站
func (h *Handler) NearbyChargingSites(c *gin.Context) {
	resp, err := h.tesla.NearbyChargingSites(c.Request.Context(), bearerToken(c), c.Param("id"))
	if err != nil {
		h.logger.Error("Failed to fetch charging sites", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch charging sites"})
		return
	}
	relay(c, resp)
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// relay 原样转发上游状态码与响应体
func relay(c *gin.Context, resp *tesla.Response) {
	body := resp.Body
	if len(body) == 0 || !json.Valid(body) {
		body, _ = json.Marshal(gin.H{"error": strings.TrimSpace(string(resp.Body))})
	}
	c.Data(resp.StatusCode, "application/json; charset=utf-8", body)
}

// bearerToken 从请求头提取 access token
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
