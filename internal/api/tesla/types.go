package tesla

import "strconv"

// Vehicle 车辆基础信息
type Vehicle struct {
	ID          int64  `json:"id"`
	IDS         string `json:"id_s"`
	VehicleID   int64  `json:"vehicle_id"`
	VIN         string `json:"vin"`
	DisplayName string `json:"display_name"`
	State       string `json:"state"` // online, asleep, offline
	InService   bool   `json:"in_service"`
}

// Identifier 返回用于 API 路径的车辆 ID，优先使用字符串形式
func (v Vehicle) Identifier() string {
	if v.IDS != "" {
		return v.IDS
	}
	return strconv.FormatInt(v.ID, 10)
}

// VehicleData 车辆完整数据
// 所有子对象都可能缺失（车辆休眠、端点未返回）
type VehicleData struct {
	ID            int64          `json:"id"`
	IDS           string         `json:"id_s"`
	VIN           string         `json:"vin"`
	DisplayName   string         `json:"display_name"`
	State         string         `json:"state"`
	ChargeState   *ChargeState   `json:"charge_state,omitempty"`
	ClimateState  *ClimateState  `json:"climate_state,omitempty"`
	DriveState    *DriveState    `json:"drive_state,omitempty"`
	VehicleState  *VehicleState  `json:"vehicle_state,omitempty"`
	VehicleConfig *VehicleConfig `json:"vehicle_config,omitempty"`
}

// ChargeState 充电状态
// 读数类字段使用指针，区分“未上报”和“0”
type ChargeState struct {
	BatteryLevel      *int     `json:"battery_level,omitempty"`
	BatteryRange      *float64 `json:"battery_range,omitempty"` // 英里
	ChargeLimitSoc    *int     `json:"charge_limit_soc,omitempty"`
	ChargingState     string   `json:"charging_state"` // Disconnected, Stopped, Charging, Complete
	ChargerPower      float64  `json:"charger_power"`  // kW
	ChargerVoltage    float64  `json:"charger_voltage"`
	ChargeEnergyAdded float64  `json:"charge_energy_added"` // kWh
	ChargeRate        float64  `json:"charge_rate"`         // 英里/小时
	TimeToFullCharge  float64  `json:"time_to_full_charge"` // 小时
	Timestamp         int64    `json:"timestamp"`
}

// ClimateState 空调状态
type ClimateState struct {
	InsideTemp           *float64 `json:"inside_temp,omitempty"`  // 摄氏度
	OutsideTemp          *float64 `json:"outside_temp,omitempty"` // 摄氏度
	DriverTempSetting    *float64 `json:"driver_temp_setting,omitempty"`
	IsAutoConditioningOn bool     `json:"is_auto_conditioning_on"`
	IsClimateOn          bool     `json:"is_climate_on"`
	IsPreconditioning    bool     `json:"is_preconditioning"`
	FanStatus            int      `json:"fan_status"`
	Timestamp            int64    `json:"timestamp"`
}

// DriveState 驾驶状态
type DriveState struct {
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Heading    int      `json:"heading"`
	Speed      *int     `json:"speed,omitempty"`       // 英里/小时, nil 表示停止
	Power      int      `json:"power"`                 // kW
	ShiftState *string  `json:"shift_state,omitempty"` // D, R, P, N
	Timestamp  int64    `json:"timestamp"`
}

// VehicleState 车辆状态
type VehicleState struct {
	CarVersion     string          `json:"car_version"`
	Odometer       *float64        `json:"odometer,omitempty"` // 英里
	Locked         bool            `json:"locked"`
	SentryMode     bool            `json:"sentry_mode"`
	SoftwareUpdate *SoftwareUpdate `json:"software_update,omitempty"`
	TpmsPressureFL *float64        `json:"tpms_pressure_fl,omitempty"` // bar
	TpmsPressureFR *float64        `json:"tpms_pressure_fr,omitempty"`
	TpmsPressureRL *float64        `json:"tpms_pressure_rl,omitempty"`
	TpmsPressureRR *float64        `json:"tpms_pressure_rr,omitempty"`
	DriverFront    int             `json:"df"`
	DriverRear     int             `json:"dr"`
	PassengerFront int             `json:"pf"`
	PassengerRear  int             `json:"pr"`
	VehicleName    string          `json:"vehicle_name"`
	Timestamp      int64           `json:"timestamp"`
}

// SoftwareUpdate 软件更新信息
type SoftwareUpdate struct {
	DownloadPerc        int    `json:"download_perc"`
	ExpectedDurationSec int    `json:"expected_duration_sec"`
	InstallPerc         int    `json:"install_perc"`
	Status              string `json:"status"`
	Version             string `json:"version"`
}

// VehicleConfig 车辆配置
type VehicleConfig struct {
	CarType       string `json:"car_type"`
	ExteriorColor string `json:"exterior_color"`
	TrimBadging   string `json:"trim_badging"`
	WheelType     string `json:"wheel_type"`
	Timestamp     int64  `json:"timestamp"`
}

// MilesToKm 英里转公里
func MilesToKm(miles float64) float64 {
	return miles * 1.60934
}

// KmToMiles 公里转英里
func KmToMiles(km float64) float64 {
	return km / 1.60934
}
