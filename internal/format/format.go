// Package format 把快照中的原生单位换算成展示字符串，不修改快照本身
package format

import (
	"fmt"
	"math"
	"time"

	"github.com/langchou/tesdash/internal/api/tesla"
	"github.com/langchou/tesdash/internal/credentials"
)

// Placeholder 读数未知时的占位符
const Placeholder = "--"

// Temperature 摄氏度转展示字符串，整数显示
func Temperature(celsius *float64, unit string) string {
	if celsius == nil {
		return Placeholder
	}
	if unit == credentials.Fahrenheit {
		return fmt.Sprintf("%d°F", int(math.Round(*celsius*9/5+32)))
	}
	return fmt.Sprintf("%d°C", int(math.Round(*celsius)))
}

// DistanceValue 把 native 单位的距离换算成 display 单位
func DistanceValue(value float64, native, display string) float64 {
	switch {
	case native == display:
		return value
	case native == credentials.Miles && display == credentials.Km:
		return tesla.MilesToKm(value)
	case native == credentials.Km && display == credentials.Miles:
		return tesla.KmToMiles(value)
	default:
		return value
	}
}

// Distance 距离展示字符串，保留一位小数
func Distance(value *float64, native, display string) string {
	if value == nil {
		return Placeholder
	}
	v := DistanceValue(*value, native, display)
	if display == credentials.Miles {
		return fmt.Sprintf("%.1f mi", v)
	}
	return fmt.Sprintf("%.1f km", v)
}

// Speed 速度展示字符串，native 单位为每小时英里或公里
func Speed(value int, native, display string) string {
	v := int(math.Round(DistanceValue(float64(value), native, display)))
	if display == credentials.Miles {
		return fmt.Sprintf("%d mph", v)
	}
	return fmt.Sprintf("%d km/h", v)
}

// Clock 12h 或 24h 时间
func Clock(t time.Time, format string) string {
	if format == credentials.Clock12h {
		return t.Format("3:04 PM")
	}
	return t.Format("15:04")
}

// Percent 百分比，未知时为占位符
func Percent(v *int) string {
	if v == nil {
		return Placeholder
	}
	return fmt.Sprintf("%d%%", *v)
}

// Pressure 胎压（bar）
func Pressure(bar *float64) string {
	if bar == nil {
		return Placeholder
	}
	return fmt.Sprintf("%.1f bar", *bar)
}
