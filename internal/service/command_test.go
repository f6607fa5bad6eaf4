package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/langchou/tesdash/internal/backend"
)

type mockCommands struct {
	mock.Mock
}

func (m *mockCommands) Command(ctx context.Context, token, vehicleID, command string, params map[string]interface{}) (*backend.CommandResponse, error) {
	args := m.Called(ctx, token, vehicleID, command, params)
	resp, _ := args.Get(0).(*backend.CommandResponse)
	return resp, args.Error(1)
}

type countingRefresher struct {
	calls int
}

func (c *countingRefresher) Refresh(context.Context) error {
	c.calls++
	return nil
}

func TestSendNotConnectedMakesNoCalls(t *testing.T) {
	commands := &mockCommands{}
	refresher := &countingRefresher{}

	noVehicle := connected()
	noVehicle.creds.VehicleID = ""

	for _, session := range []*fakeSession{{}, noVehicle} {
		svc := NewCommandService(zap.NewNop(), session, commands, refresher)
		res := svc.Lock(context.Background())
		assert.False(t, res.OK)
		assert.Equal(t, "not connected", res.Reason)
	}

	commands.AssertNotCalled(t, "Command", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 0, refresher.calls)
}

func TestSendSuccessRefreshes(t *testing.T) {
	commands := &mockCommands{}
	refresher := &countingRefresher{}
	commands.On("Command", mock.Anything, "at", "1001", CmdSetChargeLimit, map[string]interface{}{"percent": 80}).
		Return(&backend.CommandResponse{StatusCode: 200, Body: []byte(`{"response":{"result":true,"reason":""}}`)}, nil)

	svc := NewCommandService(zap.NewNop(), connected(), commands, refresher)
	res := svc.SetChargeLimit(context.Background(), 80)

	assert.True(t, res.OK)
	assert.Equal(t, 1, refresher.calls)
	commands.AssertExpectations(t)
}

func TestSendFailureDoesNotRefresh(t *testing.T) {
	commands := &mockCommands{}
	refresher := &countingRefresher{}
	commands.On("Command", mock.Anything, "at", "1001", CmdHonkHorn, mock.Anything).
		Return(&backend.CommandResponse{StatusCode: 200, Body: []byte(`{"response":{"result":false,"reason":"vehicle_unavailable"}}`)}, nil)

	svc := NewCommandService(zap.NewNop(), connected(), commands, refresher)
	res := svc.HonkHorn(context.Background())

	assert.Equal(t, Result{OK: false, Reason: "vehicle_unavailable"}, res)
	assert.Equal(t, 0, refresher.calls)
}

func TestSendNetworkError(t *testing.T) {
	commands := &mockCommands{}
	commands.On("Command", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection reset"))

	svc := NewCommandService(zap.NewNop(), connected(), commands, nil)
	var res Result
	assert.NotPanics(t, func() { res = svc.FlashLights(context.Background()) })
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "connection reset")
}

func TestSetChargeLimitRange(t *testing.T) {
	commands := &mockCommands{}
	svc := NewCommandService(zap.NewNop(), connected(), commands, nil)

	assert.False(t, svc.SetChargeLimit(context.Background(), 120).OK)
	commands.AssertNotCalled(t, "Command", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInterpretCommand(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Result
	}{
		{"result true", 200, `{"response":{"result":true}}`, OK()},
		{"result true despite status", 500, `{"response":{"result":true}}`, OK()},
		{"2xx without result", 200, `{}`, OK()},
		{"2xx empty body", 204, ``, OK()},
		{"explicit false", 200, `{"response":{"result":false,"reason":"already_set"}}`, Fail("already_set")},
		{"2xx with error", 200, `{"error":"timeout"}`, Fail("timeout")},
		{"error description", 400, `{"error":"invalid_request","error_description":"bad percent"}`, Fail("bad percent")},
		{"error only", 401, `{"error":"unauthorized"}`, Fail("unauthorized")},
		{"generic", 502, `<html>bad gateway</html>`, Fail("command failed")},
		{"false without reason", 200, `{"response":{"result":false}}`, Fail("command failed")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InterpretCommand(tt.status, []byte(tt.body)))
		})
	}
}
