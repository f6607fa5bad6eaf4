package models

import "time"

// 快照来源
const (
	SourceDemo = "demo"
	SourceLive = "live"
)

// Snapshot 车辆遥测的扁平化快照，整份替换，不做字段级合并
// 读数类字段为 nil 表示“未知”，活动类字段缺失时为 0
// 温度为摄氏度，距离为上游原生单位
type Snapshot struct {
	// 充电
	BatteryLevel      *int     `json:"battery_level"`
	BatteryRange      *float64 `json:"battery_range"`
	ChargingState     string   `json:"charging_state"`
	ChargeLimitSoc    *int     `json:"charge_limit_soc"`
	ChargeRate        float64  `json:"charge_rate"`
	TimeToFullCharge  float64  `json:"time_to_full_charge"`
	ChargeEnergyAdded float64  `json:"charge_energy_added"`
	ChargerPower      float64  `json:"charger_power"`
	ChargerVoltage    float64  `json:"charger_voltage"`

	// 空调
	InsideTemp           *float64 `json:"inside_temp"`
	OutsideTemp          *float64 `json:"outside_temp"`
	IsClimateOn          bool     `json:"is_climate_on"`
	IsAutoConditioningOn bool     `json:"is_auto_conditioning_on"`
	IsPreconditioning    bool     `json:"is_preconditioning"`
	DriverTempSetting    *float64 `json:"driver_temp_setting"`
	FanStatus            int      `json:"fan_status"`

	// 驾驶
	Speed      int      `json:"speed"`
	ShiftState string   `json:"shift_state"`
	Power      int      `json:"power"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Heading    int      `json:"heading"`

	// 车身
	Odometer        *float64       `json:"odometer"`
	Locked          bool           `json:"locked"`
	SentryMode      bool           `json:"sentry_mode"`
	SoftwareVersion string         `json:"software_version"`
	SoftwareUpdate  SoftwareUpdate `json:"software_update"`
	TpmsPressureFL  *float64       `json:"tpms_pressure_fl"`
	TpmsPressureFR  *float64       `json:"tpms_pressure_fr"`
	TpmsPressureRL  *float64       `json:"tpms_pressure_rl"`
	TpmsPressureRR  *float64       `json:"tpms_pressure_rr"`
	DriverFront     int            `json:"df"`
	DriverRear      int            `json:"dr"`
	PassengerFront  int            `json:"pf"`
	PassengerRear   int            `json:"pr"`

	CarType     string `json:"car_type"`
	VehicleName string `json:"vehicle_name"`

	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SoftwareUpdate 待安装的软件更新，无更新时各字段为空
type SoftwareUpdate struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Progress int    `json:"progress"`
}

// IsDemo 是否为演示数据
func (s Snapshot) IsDemo() bool {
	return s.Source != SourceLive
}

// HasLocation 是否有坐标
func (s Snapshot) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// DemoSnapshot 未连接车辆时展示的固定数据
func DemoSnapshot() Snapshot {
	pressure := 2.9
	return Snapshot{
		BatteryLevel:      intPtr(78),
		BatteryRange:      floatPtr(245.2),
		ChargingState:     "Disconnected",
		ChargeLimitSoc:    intPtr(90),
		InsideTemp:        floatPtr(20.3),
		OutsideTemp:       floatPtr(12.8),
		DriverTempSetting: floatPtr(21),
		ShiftState:        "P",
		Odometer:          floatPtr(15234.7),
		Locked:            true,
		SentryMode:        true,
		SoftwareVersion:   "Demo",
		TpmsPressureFL:    floatPtr(pressure),
		TpmsPressureFR:    floatPtr(pressure),
		TpmsPressureRL:    floatPtr(pressure),
		TpmsPressureRR:    floatPtr(pressure),
		CarType:           "model3",
		VehicleName:       "Model 3 Highland",
		Source:            SourceDemo,
	}
}

func intPtr(v int) *int {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}
