package format

import (
	"github.com/langchou/tesdash/internal/credentials"
	"github.com/langchou/tesdash/internal/models"
)

// View 快照的展示字符串
type View struct {
	Battery     string `json:"battery"`
	Range       string `json:"range"`
	ChargeLimit string `json:"charge_limit"`
	InsideTemp  string `json:"inside_temp"`
	OutsideTemp string `json:"outside_temp"`
	DriverTemp  string `json:"driver_temp"`
	Odometer    string `json:"odometer"`
	Speed       string `json:"speed"`
	TireFL      string `json:"tire_fl"`
	TireFR      string `json:"tire_fr"`
	TireRL      string `json:"tire_rl"`
	TireRR      string `json:"tire_rr"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// Render 按用户偏好生成展示字符串，native 为上游距离单位
func Render(s models.Snapshot, prefs credentials.Preferences, native string) View {
	v := View{
		Battery:     Percent(s.BatteryLevel),
		Range:       Distance(s.BatteryRange, native, prefs.DistanceUnit),
		ChargeLimit: Percent(s.ChargeLimitSoc),
		InsideTemp:  Temperature(s.InsideTemp, prefs.TemperatureUnit),
		OutsideTemp: Temperature(s.OutsideTemp, prefs.TemperatureUnit),
		DriverTemp:  Temperature(s.DriverTempSetting, prefs.TemperatureUnit),
		Odometer:    Distance(s.Odometer, native, prefs.DistanceUnit),
		Speed:       Speed(s.Speed, native, prefs.DistanceUnit),
		TireFL:      Pressure(s.TpmsPressureFL),
		TireFR:      Pressure(s.TpmsPressureFR),
		TireRL:      Pressure(s.TpmsPressureRL),
		TireRR:      Pressure(s.TpmsPressureRR),
	}
	if !s.UpdatedAt.IsZero() {
		v.UpdatedAt = Clock(s.UpdatedAt.Local(), prefs.TimeFormat)
	}
	return v
}
