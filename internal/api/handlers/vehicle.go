package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/tesdash/internal/auth"
	"github.com/langchou/tesdash/internal/credentials"
	"github.com/langchou/tesdash/internal/format"
	"github.com/langchou/tesdash/internal/models"
	"github.com/langchou/tesdash/internal/service"
)

// GetSnapshot 当前快照与展示字符串
// GET /api/snapshot
func (h *Handler) GetSnapshot(c *gin.Context) {
	prefs := h.loadPreferences(c.Request.Context())
	c.JSON(http.StatusOK, h.snapshotPayload(h.syncService.Snapshot(), prefs))
}

// BroadcastSnapshot 推送带展示字符串的快照
func (h *Handler) BroadcastSnapshot(snapshot interface{}) {
	snap, ok := snapshot.(models.Snapshot)
	if !ok {
		h.wsHub.BroadcastSnapshot(snapshot)
		return
	}
	h.wsHub.BroadcastSnapshot(h.snapshotPayload(snap, h.loadPreferences(context.Background())))
}

// InitData 新 WebSocket 连接收到的首条消息
func (h *Handler) InitData() interface{} {
	ctx := context.Background()
	payload := h.snapshotPayload(h.syncService.Snapshot(), h.loadPreferences(ctx))
	if st, err := h.auth.Status(ctx); err == nil {
		payload["session"] = st
	}
	return payload
}

func (h *Handler) loadPreferences(ctx context.Context) credentials.Preferences {
	prefs, err := h.preferences.Load(ctx)
	if err != nil {
		h.logger.Warn("Failed to load preferences", zap.Error(err))
		return credentials.DefaultPreferences()
	}
	return prefs
}

func (h *Handler) snapshotPayload(snap models.Snapshot, prefs credentials.Preferences) gin.H {
	return gin.H{
		"data":    snap,
		"display": format.Render(snap, prefs, h.nativeDistance),
		"demo":    snap.IsDemo(),
	}
}

// Refresh 用户手动唤醒并刷新
// POST /api/refresh
func (h *Handler) Refresh(c *gin.Context) {
	err := h.syncService.Sync(c.Request.Context())
	switch {
	case err == nil:
	case errors.Is(err, service.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": "Connect a vehicle first"})
		return
	case errors.Is(err, auth.ErrRefreshRejected), errors.Is(err, auth.ErrNoRefreshToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired, please connect again"})
		return
	default:
		h.logger.Warn("Manual refresh failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, h.snapshotPayload(h.syncService.Snapshot(), h.loadPreferences(c.Request.Context())))
}

// SendCommand 发送车辆命令
// POST /api/commands/:name
// Body: 命令参数，可为空
func (h *Handler) SendCommand(c *gin.Context) {
	params := map[string]interface{}{}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid params"})
			return
		}
	}

	res := h.commandService.Send(c.Request.Context(), c.Param("name"), params)
	switch {
	case res.OK:
		c.JSON(http.StatusOK, res)
	case res.Reason == service.ErrNotConnected.Error():
		c.JSON(http.StatusConflict, res)
	default:
		c.JSON(http.StatusBadGateway, res)
	}
}

// preferencesRequest 偏好更新，未提供的字段保持不变
type preferencesRequest struct {
	TemperatureUnit *string               `json:"temperature_unit"`
	DistanceUnit    *string               `json:"distance_unit"`
	TimeFormat      *string               `json:"time_format"`
	Language        *string               `json:"language"`
	Location        *credentials.Location `json:"location"`
	ClearLocation   bool                  `json:"clear_location"`
	ChargerNetworks []string              `json:"charger_networks"`
}

// GetPreferences 读取偏好
// GET /api/preferences
func (h *Handler) GetPreferences(c *gin.Context) {
	prefs, err := h.preferences.Load(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load preferences", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": prefs})
}

// UpdatePreferences 修改偏好并立即保存
// PUT /api/preferences
func (h *Handler) UpdatePreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	current, err := h.preferences.Load(ctx)
	if err != nil {
		h.logger.Error("Failed to load preferences", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load preferences"})
		return
	}

	next := current
	if req.TemperatureUnit != nil {
		next.TemperatureUnit = *req.TemperatureUnit
	}
	if req.DistanceUnit != nil {
		next.DistanceUnit = *req.DistanceUnit
	}
	if req.TimeFormat != nil {
		next.TimeFormat = *req.TimeFormat
	}
	if req.Language != nil {
		next.Language = *req.Language
	}
	if req.Location != nil {
		next.Location = req.Location
	}
	if req.ClearLocation {
		next.Location = nil
	}
	if req.ChargerNetworks != nil {
		next.ChargerNetworks = req.ChargerNetworks
	}

	if err := next.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.preferences.Save(ctx, next); err != nil {
		h.logger.Error("Failed to save preferences", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save preferences"})
		return
	}

	// 单位变化后推送新的展示字符串
	h.syncService.Republish()
	c.JSON(http.StatusOK, gin.H{"data": next})
}
