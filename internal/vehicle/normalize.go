// Package vehicle 将 Fleet API 的嵌套 vehicle_data 转成扁平快照
package vehicle

import (
	"github.com/langchou/tesdash/internal/api/tesla"
	"github.com/langchou/tesdash/internal/credentials"
	"github.com/langchou/tesdash/internal/models"
)

// 缺省值
const (
	DefaultChargingState = "Unknown"
	DefaultShiftState    = "P"
	UnknownFirmware      = "--"
)

// Normalize 提取快照，data 为 nil 或子对象缺失时返回带默认值的快照
func Normalize(data *tesla.VehicleData, cachedName string) models.Snapshot {
	if data == nil {
		data = &tesla.VehicleData{}
	}

	cs := data.ChargeState
	if cs == nil {
		cs = &tesla.ChargeState{}
	}
	cl := data.ClimateState
	if cl == nil {
		cl = &tesla.ClimateState{}
	}
	ds := data.DriveState
	if ds == nil {
		ds = &tesla.DriveState{}
	}
	vs := data.VehicleState
	if vs == nil {
		vs = &tesla.VehicleState{}
	}
	vc := data.VehicleConfig
	if vc == nil {
		vc = &tesla.VehicleConfig{}
	}

	s := models.Snapshot{
		BatteryLevel:      cloneInt(cs.BatteryLevel),
		BatteryRange:      cloneFloat(cs.BatteryRange),
		ChargingState:     orDefault(cs.ChargingState, DefaultChargingState),
		ChargeLimitSoc:    cloneInt(cs.ChargeLimitSoc),
		ChargeRate:        cs.ChargeRate,
		TimeToFullCharge:  cs.TimeToFullCharge,
		ChargeEnergyAdded: cs.ChargeEnergyAdded,
		ChargerPower:      cs.ChargerPower,
		ChargerVoltage:    cs.ChargerVoltage,

		InsideTemp:           cloneFloat(cl.InsideTemp),
		OutsideTemp:          cloneFloat(cl.OutsideTemp),
		IsClimateOn:          cl.IsClimateOn,
		IsAutoConditioningOn: cl.IsAutoConditioningOn,
		IsPreconditioning:    cl.IsPreconditioning,
		DriverTempSetting:    cloneFloat(cl.DriverTempSetting),
		FanStatus:            cl.FanStatus,

		ShiftState: DefaultShiftState,
		Power:      ds.Power,
		Latitude:   cloneFloat(ds.Latitude),
		Longitude:  cloneFloat(ds.Longitude),
		Heading:    ds.Heading,

		Odometer:        cloneFloat(vs.Odometer),
		Locked:          vs.Locked,
		SentryMode:      vs.SentryMode,
		SoftwareVersion: firmware(vs),
		SoftwareUpdate:  pendingUpdate(vs.SoftwareUpdate),
		TpmsPressureFL:  cloneFloat(vs.TpmsPressureFL),
		TpmsPressureFR:  cloneFloat(vs.TpmsPressureFR),
		TpmsPressureRL:  cloneFloat(vs.TpmsPressureRL),
		TpmsPressureRR:  cloneFloat(vs.TpmsPressureRR),
		DriverFront:     vs.DriverFront,
		DriverRear:      vs.DriverRear,
		PassengerFront:  vs.PassengerFront,
		PassengerRear:   vs.PassengerRear,

		CarType:     vc.CarType,
		VehicleName: vehicleName(data.DisplayName, cachedName),
		Source:      models.SourceLive,
	}

	if ds.Speed != nil {
		s.Speed = *ds.Speed
	}
	if ds.ShiftState != nil && *ds.ShiftState != "" {
		s.ShiftState = *ds.ShiftState
	}

	return s
}

// firmware car_version → software_update.status → "--"
func firmware(vs *tesla.VehicleState) string {
	if vs.CarVersion != "" {
		return vs.CarVersion
	}
	if vs.SoftwareUpdate != nil && vs.SoftwareUpdate.Status != "" {
		return vs.SoftwareUpdate.Status
	}
	return UnknownFirmware
}

// pendingUpdate 安装中取安装进度，否则取下载进度
func pendingUpdate(su *tesla.SoftwareUpdate) models.SoftwareUpdate {
	if su == nil {
		return models.SoftwareUpdate{}
	}
	progress := su.DownloadPerc
	if su.Status == "installing" {
		progress = su.InstallPerc
	}
	return models.SoftwareUpdate{
		Status:   su.Status,
		Version:  su.Version,
		Progress: progress,
	}
}

func vehicleName(displayName, cached string) string {
	if displayName != "" {
		return displayName
	}
	if cached != "" {
		return cached
	}
	return credentials.DefaultVehicleName
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// 快照不与上游数据共享指针
func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
