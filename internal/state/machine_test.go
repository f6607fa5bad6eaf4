package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginFlow(t *testing.T) {
	var seen []Transition
	m := NewAuthMachine("", func(tr Transition) { seen = append(seen, tr) })

	assert.Equal(t, StateLoggedOut, m.Current())
	require.NoError(t, m.Trigger(EventConnect))
	require.NoError(t, m.Trigger(EventConnected))
	assert.Equal(t, StateLoggedIn, m.Current())

	require.Len(t, seen, 2)
	assert.Equal(t, StateLoggedOut, seen[0].From)
	assert.Equal(t, StateConnecting, seen[0].To)
	assert.Equal(t, EventConnected, seen[1].Event)
}

func TestRefreshFlow(t *testing.T) {
	m := NewAuthMachine(StateLoggedIn, nil)

	require.NoError(t, m.Trigger(EventExpire))
	require.NoError(t, m.Trigger(EventRefresh))
	assert.Equal(t, StateRefreshing, m.Current())
	require.NoError(t, m.Trigger(EventRefreshed))
	assert.Equal(t, StateLoggedIn, m.Current())
}

func TestRefreshRejectedLogsOut(t *testing.T) {
	m := NewAuthMachine(StateExpired, nil)
	require.NoError(t, m.Trigger(EventRefresh))
	require.NoError(t, m.Trigger(EventLogout))
	assert.Equal(t, StateLoggedOut, m.Current())
}

func TestInvalidEvent(t *testing.T) {
	m := NewAuthMachine(StateLoggedOut, nil)

	assert.False(t, m.Can(EventRefreshed))
	assert.Error(t, m.Trigger(EventRefreshed))
	assert.Equal(t, StateLoggedOut, m.Current())

	assert.NotPanics(t, func() { m.Fire(EventExpire) })
	assert.Equal(t, StateLoggedOut, m.Current())
}

func TestReconnectWhilePending(t *testing.T) {
	m := NewAuthMachine(StateLoggedOut, nil)
	require.NoError(t, m.Trigger(EventConnect))
	// 重复发起登录替换旧的待处理会话
	require.NoError(t, m.Trigger(EventConnect))
	assert.Equal(t, StateConnecting, m.Current())
	require.NoError(t, m.Trigger(EventAbort))
	assert.Equal(t, StateLoggedOut, m.Current())
}

func TestReset(t *testing.T) {
	called := false
	m := NewAuthMachine(StateLoggedOut, func(Transition) { called = true })
	m.Reset(StateLoggedIn)
	assert.Equal(t, StateLoggedIn, m.Current())
	assert.False(t, called)
}

func TestCallbackCanReadState(t *testing.T) {
	var m *AuthMachine
	var observed string
	m = NewAuthMachine(StateLoggedIn, func(Transition) { observed = m.Current() })
	require.NoError(t, m.Trigger(EventLogout))
	assert.Equal(t, StateLoggedOut, observed)
}

func TestTransientRefreshFailureBackToExpired(t *testing.T) {
	m := NewAuthMachine(StateExpired, nil)
	require.NoError(t, m.Trigger(EventRefresh))
	require.NoError(t, m.Trigger(EventExpire))
	assert.Equal(t, StateExpired, m.Current())
}
