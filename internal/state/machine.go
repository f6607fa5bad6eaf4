// Package state 会话认证状态机
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 会话状态常量
const (
	StateLoggedOut  = "logged_out"
	StateConnecting = "connecting"
	StateLoggedIn   = "logged_in"
	StateExpired    = "expired"
	StateRefreshing = "refreshing"
)

// 事件常量
const (
	EventConnect   = "connect"
	EventConnected = "connected"
	EventAbort     = "abort"
	EventExpire    = "expire"
	EventRefresh   = "refresh"
	EventRefreshed = "refreshed"
	EventLogout    = "logout"
)

// Transition 一次状态变化
type Transition struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Event string    `json:"event"`
	At    time.Time `json:"at"`
}

// AuthMachine 认证状态机
type AuthMachine struct {
	mu       sync.Mutex
	fsm      *fsm.FSM
	since    time.Time
	last     *Transition
	onChange func(Transition)
}

// NewAuthMachine 创建状态机
func NewAuthMachine(initialState string, onChange func(Transition)) *AuthMachine {
	if initialState == "" {
		initialState = StateLoggedOut
	}

	m := &AuthMachine{
		since:    time.Now(),
		onChange: onChange,
	}

	m.fsm = fsm.NewFSM(
		initialState,
		fsm.Events{
			// 登录流程
			{Name: EventConnect, Src: []string{StateLoggedOut, StateConnecting, StateExpired, StateLoggedIn}, Dst: StateConnecting},
			{Name: EventConnected, Src: []string{StateConnecting}, Dst: StateLoggedIn},
			{Name: EventAbort, Src: []string{StateConnecting}, Dst: StateLoggedOut},

			// 令牌过期与刷新
			{Name: EventExpire, Src: []string{StateLoggedIn, StateRefreshing}, Dst: StateExpired},
			{Name: EventRefresh, Src: []string{StateLoggedIn, StateExpired}, Dst: StateRefreshing},
			{Name: EventRefreshed, Src: []string{StateRefreshing}, Dst: StateLoggedIn},

			// 任意状态都可登出
			{Name: EventLogout, Src: []string{StateLoggedIn, StateExpired, StateRefreshing, StateConnecting}, Dst: StateLoggedOut},
		},
		fsm.Callbacks{
			"after_event": func(ctx context.Context, e *fsm.Event) {
				if e.Src != e.Dst {
					m.last = &Transition{From: e.Src, To: e.Dst, Event: e.Event, At: time.Now()}
				}
			},
		},
	)

	return m
}

// Current 当前状态
func (m *AuthMachine) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.Current()
}

// Since 进入当前状态的时间
func (m *AuthMachine) Since() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.since
}

// Trigger 触发事件
// 当前状态不接受该事件时返回错误；已处于目标状态时不报错
// onChange 在释放锁之后调用，回调里可以再读取状态
func (m *AuthMachine) Trigger(event string) error {
	m.mu.Lock()
	err := m.fsm.Event(context.Background(), event)
	tr := m.last
	m.last = nil
	if err == nil {
		m.since = time.Now()
	}
	m.mu.Unlock()

	var noTransition fsm.NoTransitionError
	if err != nil && !errors.As(err, &noTransition) {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	if tr != nil && m.onChange != nil {
		m.onChange(*tr)
	}
	return nil
}

// Fire 触发事件并忽略非法转换
// 用于把持久化状态的变化反映到状态机上
func (m *AuthMachine) Fire(event string) {
	_ = m.Trigger(event)
}

// Can 检查是否可以触发事件
func (m *AuthMachine) Can(event string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fsm.Can(event)
}

// Reset 强制设置状态，不触发回调
func (m *AuthMachine) Reset(st string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fsm.SetState(st)
	m.since = time.Now()
}
