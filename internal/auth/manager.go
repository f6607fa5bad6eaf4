// Package auth 管理 OAuth 登录、令牌刷新与车辆绑定
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/langchou/tesdash/internal/api/tesla"
	"github.com/langchou/tesdash/internal/backend"
	"github.com/langchou/tesdash/internal/credentials"
	"github.com/langchou/tesdash/internal/pkce"
	"github.com/langchou/tesdash/internal/state"
	"github.com/langchou/tesdash/internal/store"
)

// pendingKey 待完成登录的 PKCE 会话在临时存储中的键，同一时间只有一个
const pendingKey = "pkce"

// defaultVehicleName 车辆列表未返回名称时使用
const defaultVehicleName = "Tesla"

// Backend 认证流程依赖的后端接口
type Backend interface {
	Config(ctx context.Context) (string, error)
	ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (credentials.TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (credentials.TokenResponse, error)
	ListVehicles(ctx context.Context, token string) ([]tesla.Vehicle, error)
}

// 事件类型
const (
	EventState  = "state"
	EventNotice = "notice"
	EventLogout = "logout"
	EventLogin  = "login"
)

// Event 会话事件
type Event struct {
	Kind       string            `json:"kind"`
	Transition *state.Transition `json:"transition,omitempty"`
	Notice     string            `json:"notice,omitempty"`
}

// Options 认证参数
type Options struct {
	AuthorizeURL    string
	Audience        string
	Scopes          string
	RedirectURI     string
	LoginTimeout    time.Duration
	KeepOnTransient bool
	Now             func() time.Time
}

// Status 会话概况
type Status struct {
	State       string     `json:"state"`
	StateSince  time.Time  `json:"state_since"`
	LoggedIn    bool       `json:"logged_in"`
	Expired     bool       `json:"expired"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	VehicleID   string     `json:"vehicle_id,omitempty"`
	VehicleName string     `json:"vehicle_name"`
	Token       *TokenInfo `json:"token,omitempty"`
}

// Manager 会话管理器
type Manager struct {
	logger     *zap.Logger
	backend    Backend
	vault      *credentials.Vault
	pending    *store.Transient[*pkce.Session]
	generator  *pkce.Generator
	completion Completion
	opener     Opener
	machine    *state.AuthMachine
	opts       Options

	refreshGroup singleflight.Group

	mu         sync.Mutex
	clientID   string
	cancelWait context.CancelFunc
	listeners  []func(Event)
}

// NewManager 创建会话管理器
func NewManager(
	logger *zap.Logger,
	b Backend,
	vault *credentials.Vault,
	pending *store.Transient[*pkce.Session],
	completion Completion,
	opts Options,
) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = 10 * time.Minute
	}

	m := &Manager{
		logger:     logger,
		backend:    b,
		vault:      vault,
		pending:    pending,
		generator:  pkce.NewGenerator(),
		completion: completion,
		opts:       opts,
	}
	m.machine = state.NewAuthMachine(state.StateLoggedOut, m.onTransition)
	return m
}

// SetOpener 设置授权页打开方式
func (m *Manager) SetOpener(o Opener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opener = o
}

// Subscribe 订阅会话事件
func (m *Manager) Subscribe(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	listeners := append([]func(Event){}, m.listeners...)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (m *Manager) onTransition(tr state.Transition) {
	m.logger.Info("Auth state changed",
		zap.String("from", tr.From),
		zap.String("to", tr.To),
		zap.String("event", tr.Event))
	m.emit(Event{Kind: EventState, Transition: &tr})
}

// State 当前会话状态
func (m *Manager) State() string {
	return m.machine.Current()
}

// Credentials 读取持久化凭据
func (m *Manager) Credentials(ctx context.Context) (credentials.Credentials, error) {
	return m.vault.Load(ctx)
}

// IsLoggedIn 是否持有 access token，不发起网络请求
func (m *Manager) IsLoggedIn(ctx context.Context) bool {
	c, err := m.vault.Load(ctx)
	if err != nil {
		m.logger.Warn("Failed to read credentials", zap.Error(err))
		return false
	}
	return c.IsLoggedIn()
}

// IsExpired 令牌是否进入过期窗口，不发起网络请求
func (m *Manager) IsExpired(ctx context.Context) bool {
	c, err := m.vault.Load(ctx)
	if err != nil {
		m.logger.Warn("Failed to read credentials", zap.Error(err))
		return false
	}
	return c.IsExpired(m.opts.Now())
}

// Status 会话概况，附带 access token 的声明
func (m *Manager) Status(ctx context.Context) (Status, error) {
	c, err := m.vault.Load(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{
		State:       m.State(),
		StateSince:  m.machine.Since(),
		LoggedIn:    c.IsLoggedIn(),
		Expired:     c.IsExpired(m.opts.Now()),
		VehicleID:   c.VehicleID,
		VehicleName: c.DisplayName(),
	}
	if !c.Expiry.IsZero() {
		exp := c.Expiry
		st.ExpiresAt = &exp
	}
	if c.IsLoggedIn() {
		if info, err := InspectToken(c.AccessToken); err == nil {
			st.Token = &info
		}
	}
	return st, nil
}

// Restore 启动时恢复会话：过期则刷新，未绑定车辆则重新发现
func (m *Manager) Restore(ctx context.Context) error {
	c, err := m.vault.Load(ctx)
	if err != nil {
		return err
	}
	if !c.IsLoggedIn() {
		m.machine.Reset(state.StateLoggedOut)
		return nil
	}

	m.machine.Reset(state.StateLoggedIn)
	if c.IsExpired(m.opts.Now()) {
		m.machine.Fire(state.EventExpire)
		if err := m.Refresh(ctx); err != nil {
			return err
		}
	}

	if c, err = m.vault.Load(ctx); err != nil {
		return err
	}
	if c.IsLoggedIn() && !c.HasVehicle() {
		if _, err := m.DiscoverVehicle(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Refresh 刷新令牌，并发调用共享同一次请求
func (m *Manager) Refresh(ctx context.Context) error {
	_, err, _ := m.refreshGroup.Do("refresh", func() (interface{}, error) {
		return nil, m.refresh(ctx)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context) error {
	c, err := m.vault.Load(ctx)
	if err != nil {
		return err
	}
	if c.RefreshToken == "" {
		// 无法续期的会话不再保留
		if c.IsLoggedIn() {
			m.logger.Warn("No refresh token, clearing session")
			if cerr := m.clearSession(ctx); cerr != nil {
				m.logger.Error("Failed to clear credentials", zap.Error(cerr))
			}
		}
		return ErrNoRefreshToken
	}

	m.machine.Fire(state.EventRefresh)

	issuedAt := m.opts.Now()
	tok, err := m.backend.Refresh(ctx, c.RefreshToken)
	if err != nil {
		if m.opts.KeepOnTransient && !backend.IsClientError(err) {
			m.logger.Warn("Token refresh failed, keeping session", zap.Error(err))
			m.machine.Fire(state.EventExpire)
			return fmt.Errorf("refresh token: %w", err)
		}

		m.logger.Warn("Token refresh rejected, clearing session", zap.Error(err))
		if cerr := m.clearSession(ctx); cerr != nil {
			m.logger.Error("Failed to clear credentials", zap.Error(cerr))
		}
		return fmt.Errorf("%w: %w", ErrRefreshRejected, err)
	}

	if err := m.vault.SaveTokens(ctx, tok, issuedAt); err != nil {
		return err
	}
	m.machine.Fire(state.EventRefreshed)
	m.logger.Info("Token refreshed", zap.Int("expires_in", tok.ExpiresIn))
	return nil
}

// AccessToken 返回可用的 access token，过期时先完成刷新
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	c, err := m.vault.Load(ctx)
	if err != nil {
		return "", err
	}
	if !c.IsLoggedIn() {
		return "", ErrNotLoggedIn
	}
	if !c.IsExpired(m.opts.Now()) {
		return c.AccessToken, nil
	}

	m.machine.Fire(state.EventExpire)
	if err := m.Refresh(ctx); err != nil {
		return "", err
	}

	if c, err = m.vault.Load(ctx); err != nil {
		return "", err
	}
	if !c.IsLoggedIn() {
		return "", ErrNotLoggedIn
	}
	return c.AccessToken, nil
}

// ClientID 公共 client id，首次成功后缓存
func (m *Manager) ClientID(ctx context.Context) (string, error) {
	m.mu.Lock()
	cached := m.clientID
	m.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	id, err := m.backend.Config(ctx)
	if err != nil {
		m.logger.Error("Failed to load backend config", zap.Error(err))
		return "", fmt.Errorf("%w: %w", ErrConfigUnavailable, err)
	}

	m.mu.Lock()
	m.clientID = id
	m.mu.Unlock()
	return id, nil
}

// BeginLogin 生成 PKCE 会话并返回授权地址，不等待用户完成授权
// 再次调用会替换尚未完成的登录
func (m *Manager) BeginLogin(ctx context.Context) (string, error) {
	clientID, err := m.ClientID(ctx)
	if err != nil {
		return "", err
	}

	session, err := m.generator.New()
	if err != nil {
		return "", fmt.Errorf("generate pkce: %w", err)
	}
	m.pending.Put(pendingKey, session)

	authorizeURL, err := m.authorizeURL(clientID, session)
	if err != nil {
		m.pending.Discard(pendingKey)
		return "", err
	}

	m.machine.Fire(state.EventConnect)

	m.mu.Lock()
	opener := m.opener
	m.mu.Unlock()
	if opener != nil {
		if err := opener.Open(ctx, authorizeURL); err != nil {
			m.logger.Warn("Failed to open authorize page", zap.Error(err))
		}
	}

	if m.completion != nil {
		m.startWaiting()
	}

	m.logger.Info("Login started")
	return authorizeURL, nil
}

func (m *Manager) authorizeURL(clientID string, session *pkce.Session) (string, error) {
	u, err := url.Parse(m.opts.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("parse authorize url: %w", err)
	}

	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", clientID)
	q.Set("redirect_uri", m.opts.RedirectURI)
	q.Set("scope", m.opts.Scopes)
	q.Set("state", session.State)
	q.Set("code_challenge", session.Challenge)
	q.Set("code_challenge_method", session.Method)
	q.Set("audience", m.opts.Audience)
	q.Set("prompt", "consent")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// startWaiting 后台等待重定向回调，替换之前的等待
// 调用返回前完成 Arm，之后到达的回调不会丢失
func (m *Manager) startWaiting() {
	ctx, cancel := context.WithTimeout(context.Background(), m.opts.LoginTimeout)

	m.mu.Lock()
	if m.cancelWait != nil {
		m.cancelWait()
	}
	m.cancelWait = cancel
	m.mu.Unlock()

	gen := m.completion.Arm()

	go func() {
		defer cancel()
		defer m.completion.Disarm(gen)

		for {
			cb, err := m.completion.Await(ctx)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					m.logger.Warn("Login was not completed in time", zap.Error(ErrLoginTimeout))
					m.pending.Discard(pendingKey)
					m.machine.Fire(state.EventAbort)
					m.emit(Event{Kind: EventNotice, Notice: ErrLoginTimeout.Error()})
				}
				return
			}

			if m.staleCallback(cb) {
				m.logger.Warn("Ignoring callback from an earlier login")
				continue
			}

			exchangeCtx, cancelExchange := context.WithTimeout(context.Background(), time.Minute)
			if err := m.HandleCallback(exchangeCtx, cb); err != nil {
				m.logger.Warn("Login failed", zap.Error(err))
			}
			cancelExchange()
			return
		}
	}()
}

// staleCallback 回调的 state 与待完成的登录不符，不消费 PKCE 会话
func (m *Manager) staleCallback(cb Callback) bool {
	session, ok := m.pending.Peek(pendingKey)
	if !ok || session == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(cb.State), []byte(session.State)) != 1
}

// HandleCallback 校验回调并用授权码换取令牌
// 待处理的 PKCE 会话无论成功与否都被丢弃
func (m *Manager) HandleCallback(ctx context.Context, cb Callback) error {
	session, ok := m.pending.Take(pendingKey)

	switch {
	case cb.Error != "":
		m.logger.Warn("Authorization denied",
			zap.String("error", cb.Error),
			zap.String("description", cb.ErrorDescription))
		m.machine.Fire(state.EventAbort)
		return fmt.Errorf("%w: %s", ErrAuthorizationDenied, cb.Error)
	case !ok || session == nil:
		m.logger.Warn("No pending login for callback")
		m.machine.Fire(state.EventAbort)
		return ErrStateMismatch
	case cb.Code == "":
		m.logger.Warn("Callback without authorization code")
		m.machine.Fire(state.EventAbort)
		return ErrMissingCode
	case subtle.ConstantTimeCompare([]byte(cb.State), []byte(session.State)) != 1:
		m.logger.Warn("OAuth state mismatch")
		m.machine.Fire(state.EventAbort)
		return ErrStateMismatch
	}

	issuedAt := m.opts.Now()
	tok, err := m.backend.ExchangeCode(ctx, cb.Code, session.Verifier, m.opts.RedirectURI)
	if err != nil {
		m.logger.Error("Token exchange failed", zap.Error(err))
		m.machine.Fire(state.EventAbort)
		return fmt.Errorf("exchange code: %w", err)
	}

	if err := m.vault.SaveTokens(ctx, tok, issuedAt); err != nil {
		m.machine.Fire(state.EventAbort)
		return err
	}
	m.machine.Fire(state.EventConnected)
	m.logger.Info("Login completed", zap.Int("expires_in", tok.ExpiresIn))

	if _, err := m.DiscoverVehicle(ctx); err != nil {
		if errors.Is(err, ErrAudienceMissing) {
			return err
		}
		m.logger.Warn("Vehicle discovery failed", zap.Error(err))
	}

	m.emit(Event{Kind: EventLogin})
	return nil
}

// DiscoverVehicle 绑定账户下的第一辆车
// 车辆列表为空时返回 nil, nil
func (m *Manager) DiscoverVehicle(ctx context.Context) (*tesla.Vehicle, error) {
	token, err := m.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	vehicles, err := m.backend.ListVehicles(ctx, token)
	if err != nil {
		if backend.HasStatus(err, http.StatusPreconditionFailed) {
			fields := []zap.Field{zap.Error(err)}
			if info, ierr := InspectToken(token); ierr == nil {
				fields = append(fields, zap.Strings("audience", info.Audience))
			}
			m.logger.Warn("Token is missing the fleet audience", fields...)

			if lerr := m.Logout(ctx); lerr != nil {
				m.logger.Error("Failed to clear credentials", zap.Error(lerr))
			}
			m.emit(Event{Kind: EventNotice, Notice: ReconnectNotice})
			return nil, ErrAudienceMissing
		}
		m.logger.Error("Failed to list vehicles", zap.Error(err))
		return nil, fmt.Errorf("list vehicles: %w", err)
	}

	if len(vehicles) == 0 {
		m.logger.Warn("No vehicles on this account")
		return nil, nil
	}

	v := vehicles[0]
	name := v.DisplayName
	if name == "" {
		name = defaultVehicleName
	}
	if err := m.vault.SaveVehicle(ctx, v.Identifier(), name); err != nil {
		return nil, err
	}

	m.logger.Info("Vehicle pinned",
		zap.String("vehicle_id", v.Identifier()),
		zap.String("name", name),
		zap.Int("available", len(vehicles)))
	return &v, nil
}

// Logout 清除全部会话数据
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.cancelWait != nil {
		m.cancelWait()
		m.cancelWait = nil
	}
	m.mu.Unlock()

	m.pending.Discard(pendingKey)
	return m.clearSession(ctx)
}

func (m *Manager) clearSession(ctx context.Context) error {
	err := m.vault.Clear(ctx)
	m.machine.Fire(state.EventLogout)
	m.emit(Event{Kind: EventLogout})
	return err
}
