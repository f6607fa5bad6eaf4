package tesla

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// 代理请求车辆数据时携带的端点列表
const vehicleDataEndpoints = "charge_state;climate_state;drive_state;vehicle_state;vehicle_config"

// 错误定义
var (
	ErrVehicleUnavailable = errors.New("vehicle unavailable")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrRateLimited        = errors.New("rate limited")
	ErrNoCredentials      = errors.New("server credentials not configured")
)

// Response 上游原始响应，代理直接转发状态码和响应体
type Response struct {
	StatusCode int
	Body       []byte
}

// OK 是否为 2xx
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client Tesla Fleet API 客户端
// 不保存任何用户令牌，每次调用由调用方传入 access token
type Client struct {
	httpClient   *http.Client
	authHost     string
	apiHost      string
	clientID     string
	clientSecret string
}

// NewClient 创建新的 Tesla API 客户端
func NewClient(authHost, apiHost, clientID, clientSecret string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		authHost:     strings.TrimRight(authHost, "/"),
		apiHost:      strings.TrimRight(apiHost, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// ClientID 公共 OAuth client id
func (c *Client) ClientID() string {
	return c.clientID
}

// HasCredentials client id 与 secret 是否都已配置
func (c *Client) HasCredentials() bool {
	return c.clientID != "" && c.clientSecret != ""
}

// ExchangeCode 用授权码和 PKCE verifier 换取令牌
func (c *Client) ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (*Response, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", code)
	data.Set("code_verifier", verifier)
	data.Set("redirect_uri", redirectURI)
	return c.tokenRequest(ctx, data)
}

// RefreshToken 用刷新令牌换取新的令牌对
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*Response, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)
	return c.tokenRequest(ctx, data)
}

func (c *Client) tokenRequest(ctx context.Context, data url.Values) (*Response, error) {
	if !c.HasCredentials() {
		return nil, ErrNoCredentials
	}

	data.Set("client_id", c.clientID)
	data.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authHost+"/oauth2/v3/token", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req)
}

// doRequest 执行带认证的 Fleet API 请求
func (c *Client) doRequest(ctx context.Context, method, path, token string, payload interface{}) (*Response, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiHost+path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tesdash/1.0")

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// ListVehicles 获取车辆列表
func (c *Client) ListVehicles(ctx context.Context, token string) (*Response, error) {
	return c.doRequest(ctx, http.MethodGet, "/api/1/vehicles", token, nil)
}

// GetVehicleData 获取车辆完整数据
func (c *Client) GetVehicleData(ctx context.Context, token, id string) (*Response, error) {
	path := fmt.Sprintf("/api/1/vehicles/%s/vehicle_data?endpoints=%s", url.PathEscape(id), url.QueryEscape(vehicleDataEndpoints))
	return c.doRequest(ctx, http.MethodGet, path, token, nil)
}

// WakeUp 发送唤醒命令
func (c *Client) WakeUp(ctx context.Context, token, id string) (*Response, error) {
	return c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/api/1/vehicles/%s/wake_up", url.PathEscape(id)), token, struct{}{})
}

// Command 发送车辆命令
func (c *Client) Command(ctx context.Context, token, id, command string, payload map[string]interface{}) (*Response, error) {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	path := fmt.Sprintf("/api/1/vehicles/%s/command/%s", url.PathEscape(id), url.PathEscape(command))
	return c.doRequest(ctx, http.MethodPost, path, token, payload)
}

// NearbyChargingSites 获取附近充电站
func (c *Client) NearbyChargingSites(ctx context.Context, token, id string) (*Response, error) {
	return c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/1/vehicles/%s/nearby_charging_sites", url.PathEscape(id)), token, nil)
}

// apiResponse 通用 API 响应结构
type apiResponse struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error,omitempty"`
}

// VehicleState 查询车辆在线状态（不会唤醒车辆）
func (c *Client) VehicleState(ctx context.Context, token, id string) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/1/vehicles/%s", url.PathEscape(id)), token, nil)
	if err != nil {
		return "", fmt.Errorf("get vehicle request: %w", err)
	}

	// 处理不同状态码
	switch resp.StatusCode {
	case http.StatusOK:
		// 正常
	case http.StatusRequestTimeout:
		return "", ErrVehicleUnavailable
	case http.StatusUnauthorized:
		return "", ErrUnauthorized
	case http.StatusTooManyRequests:
		return "", ErrRateLimited
	default:
		return "", &StatusError{StatusCode: resp.StatusCode, Body: resp.Body}
	}

	var apiResp apiResponse
	if err := json.Unmarshal(resp.Body, &apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	var vehicle Vehicle
	if err := json.Unmarshal(apiResp.Response, &vehicle); err != nil {
		return "", fmt.Errorf("decode vehicle: %w", err)
	}

	return vehicle.State, nil
}

// StatusError 非预期的上游状态码
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tesla api: status=%d body=%s", e.StatusCode, string(e.Body))
}
