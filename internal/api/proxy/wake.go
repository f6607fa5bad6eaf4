package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/tesdash/internal/api/tesla"
	"github.com/langchou/tesdash/internal/wake"
)

// WakeUp 唤醒车辆并轮询直到在线或超过重试次数
// POST /api/vehicles/:id/wake_up
// 返回 {online: bool}，online=false 表示超时但车辆可能仍可访问
func (h *Handler) WakeUp(c *gin.Context) {
	ctx := c.Request.Context()
	token := bearerToken(c)
	id := c.Param("id")

	resp, err := h.tesla.WakeUp(ctx, token, id)
	if err != nil {
		h.logger.Error("Wake up failed", zap.Error(err), zap.String("vehicle_id", id))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Wake up failed"})
		return
	}
	if !resp.OK() {
		h.logger.Warn("Wake up rejected", zap.String("vehicle_id", id), zap.Int("status", resp.StatusCode))
		relay(c, resp)
		return
	}

	// 唤醒命令本身可能已经返回 online
	if wakeResponseState(resp.Body) == "online" {
		c.JSON(http.StatusOK, gin.H{"online": true, "state": "online", "attempts": 0})
		return
	}

	var lastState string
	res := wake.Poll(ctx, h.policy, func(ctx context.Context) (bool, error) {
		state, err := h.tesla.VehicleState(ctx, token, id)
		switch {
		case err == nil:
			lastState = state
			return state == "online", nil
		case errors.Is(err, tesla.ErrUnauthorized):
			return false, err
		default:
			// 408/429/5xx 视为尚未上线，继续轮询
			h.logger.Debug("Vehicle state probe failed", zap.Error(err), zap.String("vehicle_id", id))
			return false, nil
		}
	})

	h.logger.Info("Wake up finished",
		zap.String("vehicle_id", id),
		zap.String("outcome", string(res.Outcome)),
		zap.Int("attempts", res.Attempts),
		zap.String("state", lastState))

	switch res.Outcome {
	case wake.OutcomeOnline:
		c.JSON(http.StatusOK, gin.H{"online": true, "state": "online", "attempts": res.Attempts})
	case wake.OutcomeTimedOut:
		c.JSON(http.StatusOK, gin.H{"online": false, "state": lastState, "attempts": res.Attempts})
	default:
		if errors.Is(res.Err, tesla.ErrUnauthorized) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.JSON(http.StatusGatewayTimeout, gin.H{"online": false, "error": "Wake up interrupted"})
	}
}

// wakeResponseState 解析唤醒命令返回的车辆状态
func wakeResponseState(body []byte) string {
	var payload struct {
		Response struct {
			State string `json:"state"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Response.State
}
