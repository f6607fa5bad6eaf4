// Package credentials 封装令牌、车辆信息与用户偏好的持久化读写
// 其他包不直接访问底层 store 的键
package credentials

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/langchou/tesdash/internal/store"
)

// 持久化键名
const (
	KeyAccessToken  = "tesla_access_token"
	KeyRefreshToken = "tesla_refresh_token"
	KeyTokenExpiry  = "tesla_token_expiry"
	KeyVehicleID    = "tesla_vehicle_id"
	KeyVehicleName  = "tesla_vehicle_name"
)

// ExpiryMargin 距离过期不足该时长即视为已过期，避免请求途中令牌失效
const ExpiryMargin = 60 * time.Second

// DefaultVehicleName 未缓存车辆名称时的显示名
const DefaultVehicleName = "My Tesla"

// sessionKeys 会话相关的键，一起读取、一起删除
var sessionKeys = []string{KeyAccessToken, KeyRefreshToken, KeyTokenExpiry, KeyVehicleID, KeyVehicleName}

// TokenResponse 令牌端点响应
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// Credentials 某一时刻的会话凭据快照
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time // 零值表示未设置
	VehicleID    string
	VehicleName  string
}

// IsLoggedIn 是否持有 access token
// 只有 refresh token 没有 access token 视为未登录
func (c Credentials) IsLoggedIn() bool {
	return c.AccessToken != ""
}

// IsExpired now >= expiry - 60s；未设置过期时间时返回 false
func (c Credentials) IsExpired(now time.Time) bool {
	if c.Expiry.IsZero() {
		return false
	}
	return !now.Before(c.Expiry.Add(-ExpiryMargin))
}

// HasVehicle 是否已缓存车辆 ID
func (c Credentials) HasVehicle() bool {
	return c.VehicleID != ""
}

// DisplayName 车辆显示名，未缓存时返回默认值
func (c Credentials) DisplayName() string {
	if c.VehicleName != "" {
		return c.VehicleName
	}
	return DefaultVehicleName
}

// Vault 会话凭据的唯一读写入口
type Vault struct {
	store store.Store
}

// NewVault 创建 Vault
func NewVault(s store.Store) *Vault {
	return &Vault{store: s}
}

// Load 读取完整凭据
// 五个键一次读出，不会看到写了一半的令牌
func (v *Vault) Load(ctx context.Context) (Credentials, error) {
	values, err := v.store.GetMany(ctx, sessionKeys...)
	if err != nil {
		return Credentials{}, fmt.Errorf("read credentials: %w", err)
	}

	c := Credentials{
		AccessToken:  values[KeyAccessToken],
		RefreshToken: values[KeyRefreshToken],
		VehicleID:    values[KeyVehicleID],
		VehicleName:  values[KeyVehicleName],
	}
	if ms, perr := strconv.ParseInt(values[KeyTokenExpiry], 10, 64); perr == nil && ms > 0 {
		c.Expiry = time.UnixMilli(ms)
	}

	return c, nil
}

// SaveTokens 一次写入 access/refresh token 与过期时间
// 过期时间 = 签发时间 + expires_in
func (v *Vault) SaveTokens(ctx context.Context, tok TokenResponse, issuedAt time.Time) error {
	expiry := issuedAt.Add(time.Duration(tok.ExpiresIn) * time.Second)

	values := map[string]string{
		KeyAccessToken: tok.AccessToken,
		KeyTokenExpiry: strconv.FormatInt(expiry.UnixMilli(), 10),
	}
	// 上游未返回新的 refresh token 时保留旧值
	if tok.RefreshToken != "" {
		values[KeyRefreshToken] = tok.RefreshToken
	}

	if err := v.store.Set(ctx, values); err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}

// SaveVehicle 固定当前车辆
func (v *Vault) SaveVehicle(ctx context.Context, id, name string) error {
	if err := v.store.Set(ctx, map[string]string{KeyVehicleID: id, KeyVehicleName: name}); err != nil {
		return fmt.Errorf("save vehicle: %w", err)
	}
	return nil
}

// Clear 删除全部会话数据（不影响用户偏好）
func (v *Vault) Clear(ctx context.Context) error {
	if err := v.store.Delete(ctx, sessionKeys...); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}
