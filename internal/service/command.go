package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/langchou/tesdash/internal/backend"
)

// 车辆命令
const (
	CmdDoorLock               = "door_lock"
	CmdDoorUnlock             = "door_unlock"
	CmdClimateStart           = "auto_conditioning_start"
	CmdClimateStop            = "auto_conditioning_stop"
	CmdSetTemps               = "set_temps"
	CmdSetChargeLimit         = "set_charge_limit"
	CmdHonkHorn               = "honk_horn"
	CmdFlashLights            = "flash_lights"
	CmdScheduleSoftwareUpdate = "schedule_software_update"
)

const genericFailure = "command failed"

// Result 命令结果
type Result struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

// OK 成功结果
func OK() Result {
	return Result{OK: true}
}

// Fail 失败结果
func Fail(reason string) Result {
	if reason == "" {
		reason = genericFailure
	}
	return Result{Reason: reason}
}

// CommandBackend 命令接口
type CommandBackend interface {
	Command(ctx context.Context, token, vehicleID, command string, params map[string]interface{}) (*backend.CommandResponse, error)
}

// Refresher 命令成功后刷新快照
type Refresher interface {
	Refresh(ctx context.Context) error
}

// CommandService 向当前车辆发送命令
type CommandService struct {
	logger    *zap.Logger
	session   Session
	backend   CommandBackend
	refresher Refresher
}

// NewCommandService 创建命令服务
func NewCommandService(logger *zap.Logger, session Session, b CommandBackend, refresher Refresher) *CommandService {
	return &CommandService{
		logger:    logger,
		session:   session,
		backend:   b,
		refresher: refresher,
	}
}

// Send 发送命令，未连接时不发起任何请求
// 所有失败都以 Result 返回
func (s *CommandService) Send(ctx context.Context, command string, params map[string]interface{}) Result {
	creds, err := s.session.Credentials(ctx)
	if err != nil {
		return Fail(err.Error())
	}
	if !creds.IsLoggedIn() || !creds.HasVehicle() {
		return Fail(ErrNotConnected.Error())
	}

	token, err := s.session.AccessToken(ctx)
	if err != nil {
		return Fail(err.Error())
	}

	resp, err := s.backend.Command(ctx, token, creds.VehicleID, command, params)
	if err != nil {
		s.logger.Warn("Command request failed", zap.String("command", command), zap.Error(err))
		return Fail(err.Error())
	}

	res := InterpretCommand(resp.StatusCode, resp.Body)
	s.logger.Info("Command sent",
		zap.String("command", command),
		zap.String("vehicle_id", creds.VehicleID),
		zap.Int("status", resp.StatusCode),
		zap.Bool("ok", res.OK),
		zap.String("reason", res.Reason))

	if res.OK && s.refresher != nil {
		if err := s.refresher.Refresh(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
			s.logger.Warn("Refresh after command failed", zap.String("command", command), zap.Error(err))
		}
	}
	return res
}

// InterpretCommand 把命令响应统一转换成 Result
// response.result 为 true 即成功；2xx 且没有明确的 result:false 或 error 也视为成功
func InterpretCommand(status int, body []byte) Result {
	var payload struct {
		Response *struct {
			Result *bool  `json:"result"`
			Reason string `json:"reason"`
		} `json:"response"`
		Error            interface{} `json:"error"`
		ErrorDescription string      `json:"error_description"`
	}
	_ = json.Unmarshal(body, &payload)

	var result *bool
	var reason string
	if payload.Response != nil {
		result = payload.Response.Result
		reason = payload.Response.Reason
	}

	if result != nil && *result {
		return OK()
	}

	explicitFailure := (result != nil && !*result) || payload.Error != nil
	if status >= 200 && status < 300 && !explicitFailure {
		return OK()
	}

	if reason == "" {
		reason = payload.ErrorDescription
	}
	if reason == "" {
		if s, ok := payload.Error.(string); ok {
			reason = s
		}
	}
	return Fail(reason)
}

// Lock 锁车
func (s *CommandService) Lock(ctx context.Context) Result {
	return s.Send(ctx, CmdDoorLock, nil)
}

// Unlock 解锁
func (s *CommandService) Unlock(ctx context.Context) Result {
	return s.Send(ctx, CmdDoorUnlock, nil)
}

// StartClimate 打开空调
func (s *CommandService) StartClimate(ctx context.Context) Result {
	return s.Send(ctx, CmdClimateStart, nil)
}

// StopClimate 关闭空调
func (s *CommandService) StopClimate(ctx context.Context) Result {
	return s.Send(ctx, CmdClimateStop, nil)
}

// SetTemps 设置主副驾温度（摄氏度）
func (s *CommandService) SetTemps(ctx context.Context, driver, passenger float64) Result {
	return s.Send(ctx, CmdSetTemps, map[string]interface{}{
		"driver_temp":    driver,
		"passenger_temp": passenger,
	})
}

// SetChargeLimit 设置充电上限
func (s *CommandService) SetChargeLimit(ctx context.Context, percent int) Result {
	if percent < 50 || percent > 100 {
		return Fail("charge limit must be between 50 and 100")
	}
	return s.Send(ctx, CmdSetChargeLimit, map[string]interface{}{"percent": percent})
}

// HonkHorn 鸣笛
func (s *CommandService) HonkHorn(ctx context.Context) Result {
	return s.Send(ctx, CmdHonkHorn, nil)
}

// FlashLights 闪灯
func (s *CommandService) FlashLights(ctx context.Context) Result {
	return s.Send(ctx, CmdFlashLights, nil)
}

// ScheduleSoftwareUpdate 安排软件更新，offsetSec 为 0 表示立即安装
func (s *CommandService) ScheduleSoftwareUpdate(ctx context.Context, offsetSec int) Result {
	return s.Send(ctx, CmdScheduleSoftwareUpdate, map[string]interface{}{"offset_sec": offsetSec})
}

// PreconditionBattery 导航去充电前预热电池，通过开启空调实现
func (s *CommandService) PreconditionBattery(ctx context.Context) Result {
	return s.Send(ctx, CmdClimateStart, nil)
}
