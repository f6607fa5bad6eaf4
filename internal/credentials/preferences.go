package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/langchou/tesdash/internal/store"
)

// 偏好键名
const (
	KeyTemperatureUnit = "temp_unit"
	KeyDistanceUnit    = "dist_unit"
	KeyTimeFormat      = "time_format"
	KeyLanguage        = "ui_lang"
	KeyLocation        = "user_location"
	KeyChargerPrefs    = "charger_prefs"
)

// 单位与格式
const (
	Celsius    = "celsius"
	Fahrenheit = "fahrenheit"
	Km         = "km"
	Miles      = "miles"
	Clock24h   = "24h"
	Clock12h   = "12h"
)

// Location 最近一次的地理位置
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Preferences 用户偏好，与登录状态无关
type Preferences struct {
	TemperatureUnit string    `json:"temperature_unit"`
	DistanceUnit    string    `json:"distance_unit"`
	TimeFormat      string    `json:"time_format"`
	Language        string    `json:"language"`
	Location        *Location `json:"location"`
	ChargerNetworks []string  `json:"charger_networks"`
}

// DefaultPreferences 默认偏好
func DefaultPreferences() Preferences {
	return Preferences{
		TemperatureUnit: Celsius,
		DistanceUnit:    Km,
		TimeFormat:      Clock24h,
		Language:        "en",
		ChargerNetworks: []string{"supercharger", "fastned", "other"},
	}
}

// Validate 检查枚举值
func (p Preferences) Validate() error {
	if p.TemperatureUnit != Celsius && p.TemperatureUnit != Fahrenheit {
		return fmt.Errorf("invalid temperature unit %q", p.TemperatureUnit)
	}
	if p.DistanceUnit != Km && p.DistanceUnit != Miles {
		return fmt.Errorf("invalid distance unit %q", p.DistanceUnit)
	}
	if p.TimeFormat != Clock24h && p.TimeFormat != Clock12h {
		return fmt.Errorf("invalid time format %q", p.TimeFormat)
	}
	if strings.TrimSpace(p.Language) == "" {
		return fmt.Errorf("language is required")
	}
	if l := p.Location; l != nil {
		if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
			return fmt.Errorf("invalid location %v,%v", l.Latitude, l.Longitude)
		}
	}
	return nil
}

// PreferenceStore 偏好读写，每次修改立即持久化
type PreferenceStore struct {
	store store.Store
}

// NewPreferenceStore 创建偏好存储
func NewPreferenceStore(s store.Store) *PreferenceStore {
	return &PreferenceStore{store: s}
}

// Load 读取偏好，缺失或无法解析的字段取默认值
func (p *PreferenceStore) Load(ctx context.Context) (Preferences, error) {
	prefs := DefaultPreferences()

	strs := map[string]*string{
		KeyTemperatureUnit: &prefs.TemperatureUnit,
		KeyDistanceUnit:    &prefs.DistanceUnit,
		KeyTimeFormat:      &prefs.TimeFormat,
		KeyLanguage:        &prefs.Language,
	}
	for key, dst := range strs {
		v, ok, err := p.store.Get(ctx, key)
		if err != nil {
			return Preferences{}, fmt.Errorf("read %s: %w", key, err)
		}
		if ok && v != "" {
			*dst = v
		}
	}

	if v, ok, err := p.store.Get(ctx, KeyLocation); err != nil {
		return Preferences{}, fmt.Errorf("read %s: %w", KeyLocation, err)
	} else if ok && v != "" {
		var loc Location
		if json.Unmarshal([]byte(v), &loc) == nil {
			prefs.Location = &loc
		}
	}

	if v, ok, err := p.store.Get(ctx, KeyChargerPrefs); err != nil {
		return Preferences{}, fmt.Errorf("read %s: %w", KeyChargerPrefs, err)
	} else if ok && v != "" {
		var networks []string
		if json.Unmarshal([]byte(v), &networks) == nil {
			prefs.ChargerNetworks = networks
		}
	}

	// 存储中的非法值回退为默认
	defaults := DefaultPreferences()
	if prefs.TemperatureUnit != Celsius && prefs.TemperatureUnit != Fahrenheit {
		prefs.TemperatureUnit = defaults.TemperatureUnit
	}
	if prefs.DistanceUnit != Km && prefs.DistanceUnit != Miles {
		prefs.DistanceUnit = defaults.DistanceUnit
	}
	if prefs.TimeFormat != Clock24h && prefs.TimeFormat != Clock12h {
		prefs.TimeFormat = defaults.TimeFormat
	}

	return prefs, nil
}

// Save 校验并整体写入
func (p *PreferenceStore) Save(ctx context.Context, prefs Preferences) error {
	if err := prefs.Validate(); err != nil {
		return err
	}

	networks, err := json.Marshal(prefs.ChargerNetworks)
	if err != nil {
		return fmt.Errorf("encode charger prefs: %w", err)
	}

	values := map[string]string{
		KeyTemperatureUnit: prefs.TemperatureUnit,
		KeyDistanceUnit:    prefs.DistanceUnit,
		KeyTimeFormat:      prefs.TimeFormat,
		KeyLanguage:        prefs.Language,
		KeyChargerPrefs:    string(networks),
	}

	if prefs.Location != nil {
		loc, err := json.Marshal(prefs.Location)
		if err != nil {
			return fmt.Errorf("encode location: %w", err)
		}
		values[KeyLocation] = string(loc)
	} else if err := p.store.Delete(ctx, KeyLocation); err != nil {
		return fmt.Errorf("clear location: %w", err)
	}

	if err := p.store.Set(ctx, values); err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

// Update 读取、修改并立即保存
func (p *PreferenceStore) Update(ctx context.Context, mutate func(*Preferences)) (Preferences, error) {
	prefs, err := p.Load(ctx)
	if err != nil {
		return Preferences{}, err
	}
	mutate(&prefs)
	if err := p.Save(ctx, prefs); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}
