package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return raw
}

func TestInspectToken(t *testing.T) {
	exp := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	raw := signed(t, jwt.MapClaims{
		"sub": "user-1",
		"aud": []string{"https://fleet.example.com/", "https://auth.example.com"},
		"exp": exp.Unix(),
		"scp": []string{"openid", "vehicle_cmds"},
	})

	info, err := InspectToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "user-1", info.Subject)
	assert.True(t, info.HasAudience("https://fleet.example.com"))
	assert.False(t, info.HasAudience("https://other.example.com"))
	assert.Equal(t, []string{"openid", "vehicle_cmds"}, info.Scopes)
	assert.True(t, exp.Equal(info.ExpiresAt))
}

func TestInspectTokenScopeString(t *testing.T) {
	info, err := InspectToken(signed(t, jwt.MapClaims{"aud": "https://fleet.example.com", "scope": "openid offline_access"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://fleet.example.com"}, info.Audience)
	assert.Equal(t, []string{"openid", "offline_access"}, info.Scopes)
}

func TestInspectTokenOpaque(t *testing.T) {
	_, err := InspectToken("not-a-jwt")
	assert.Error(t, err)
}

func TestChannelCompletionReplacesUnread(t *testing.T) {
	c := NewChannelCompletion()
	c.Arm()
	assert.True(t, c.Deliver(Callback{Code: "first"}))
	assert.True(t, c.Deliver(Callback{Code: "second"}))

	cb, err := c.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", cb.Code)
}

func TestChannelCompletionCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewChannelCompletion().Await(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestChannelCompletionDropsWithoutLogin(t *testing.T) {
	c := NewChannelCompletion()
	assert.False(t, c.Deliver(Callback{Code: "late"}))

	c.Arm()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelCompletionArmDiscardsLeftover(t *testing.T) {
	c := NewChannelCompletion()
	gen := c.Arm()
	require.True(t, c.Deliver(Callback{Code: "unread"}))

	next := c.Arm()
	// 旧一次的 Disarm 不影响新的登录
	c.Disarm(gen)
	require.True(t, c.Deliver(Callback{Code: "fresh"}))

	cb, err := c.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", cb.Code)

	c.Disarm(next)
	assert.False(t, c.Deliver(Callback{Code: "reload"}))
}
