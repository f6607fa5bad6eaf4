// Package backend 调用后端代理的客户端
package backend

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

	"github.com/langchou/tesdash/internal/api/tesla"
	"github.com/langchou/tesdash/internal/credentials"
)

// StatusError 代理返回非 2xx
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	msg := errorMessage(e.Body)
	if msg == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, msg)
}

// HasStatus 判断错误是否为指定状态码
func HasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

// IsClientError 错误是否为 4xx
func IsClientError(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}

// WakeResult 唤醒结果
type WakeResult struct {
	Online   bool   `json:"online"`
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
}

// CommandResponse 命令响应原文，由调用方解释
type CommandResponse struct {
	StatusCode int
	Body       []byte
}

// Client 后端代理客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	wakeClient *http.Client
}

// NewClient 创建客户端
// wakeTimeout 需要覆盖服务端的整个轮询窗口
func NewClient(baseURL string, timeout, wakeTimeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if wakeTimeout < timeout {
		wakeTimeout = timeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		wakeClient: &http.Client{Timeout: wakeTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// Config 获取公共 client id
func (c *Client) Config(ctx context.Context) (string, error) {
	var out struct {
		ClientID string `json:"clientId"`
	}
	if err := c.doJSON(ctx, c.httpClient, http.MethodGet, "/api/config", "", nil, &out); err != nil {
		return "", err
	}
	if out.ClientID == "" {
		return "", errors.New("backend returned empty client id")
	}
	return out.ClientID, nil
}

// ExchangeCode 授权码换取令牌
func (c *Client) ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (credentials.TokenResponse, error) {
	var tok credentials.TokenResponse
	err := c.doJSON(ctx, c.httpClient, http.MethodPost, "/api/auth/token", "", map[string]string{
		"code":          code,
		"code_verifier": verifier,
		"redirect_uri":  redirectURI,
	}, &tok)
	if err != nil {
		return credentials.TokenResponse{}, err
	}
	if tok.AccessToken == "" {
		return credentials.TokenResponse{}, errors.New("token response missing access_token")
	}
	return tok, nil
}

// Refresh 刷新令牌
func (c *Client) Refresh(ctx context.Context, refreshToken string) (credentials.TokenResponse, error) {
	var tok credentials.TokenResponse
	err := c.doJSON(ctx, c.httpClient, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refresh_token": refreshToken,
	}, &tok)
	if err != nil {
		return credentials.TokenResponse{}, err
	}
	if tok.AccessToken == "" {
		return credentials.TokenResponse{}, errors.New("token response missing access_token")
	}
	return tok, nil
}

// ListVehicles 获取账户下的车辆
func (c *Client) ListVehicles(ctx context.Context, token string) ([]tesla.Vehicle, error) {
	var out struct {
		Response []tesla.Vehicle `json:"response"`
	}
	if err := c.doJSON(ctx, c.httpClient, http.MethodGet, "/api/vehicles", token, nil, &out); err != nil {
		return nil, err
	}
	return out.Response, nil
}

// VehicleData 获取车辆遥测
func (c *Client) VehicleData(ctx context.Context, token, vehicleID string) (*tesla.VehicleData, error) {
	var out struct {
		Response *tesla.VehicleData `json:"response"`
	}
	path := "/api/vehicles/" + url.PathEscape(vehicleID) + "/vehicle_data"
	if err := c.doJSON(ctx, c.httpClient, http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	if out.Response == nil {
		return nil, errors.New("vehicle data response is empty")
	}
	return out.Response, nil
}

// WakeUp 请求服务端唤醒并等待结果
func (c *Client) WakeUp(ctx context.Context, token, vehicleID string) (WakeResult, error) {
	var out WakeResult
	path := "/api/vehicles/" + url.PathEscape(vehicleID) + "/wake_up"
	if err := c.doJSON(ctx, c.wakeClient, http.MethodPost, path, token, nil, &out); err != nil {
		return WakeResult{}, err
	}
	return out, nil
}

// Command 发送命令
// 仅在传输失败时返回 error，非 2xx 响应原样返回
func (c *Client) Command(ctx context.Context, token, vehicleID, command string, params map[string]interface{}) (*CommandResponse, error) {
	payload := make(map[string]interface{}, len(params)+1)
	for k, v := range params {
		payload[k] = v
	}
	payload["command"] = command

	path := "/api/vehicles/" + url.PathEscape(vehicleID) + "/command"
	status, body, err := c.do(ctx, c.httpClient, http.MethodPost, path, token, payload)
	if err != nil {
		return nil, err
	}
	return &CommandResponse{StatusCode: status, Body: body}, nil
}

func (c *Client) doJSON(ctx context.Context, hc *http.Client, method, path, token string, payload, out interface{}) error {
	status, body, err := c.do(ctx, hc, method, path, token, payload)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &StatusError{StatusCode: status, Body: body}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path, token string, payload interface{}) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// errorMessage 从 {error, error_description} 中提取可读信息
func errorMessage(body []byte) string {
	var payload struct {
		Error            interface{} `json:"error"`
		ErrorDescription string      `json:"error_description"`
	}
	if json.Unmarshal(body, &payload) != nil {
		return ""
	}
	if payload.ErrorDescription != "" {
		return payload.ErrorDescription
	}
	if s, ok := payload.Error.(string); ok {
		return s
	}
	return ""
}
