package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoSnapshot(t *testing.T) {
	s := DemoSnapshot()

	assert.True(t, s.IsDemo())
	require.NotNil(t, s.BatteryLevel)
	assert.Equal(t, 78, *s.BatteryLevel)
	assert.Equal(t, "Disconnected", s.ChargingState)
	assert.Equal(t, "Model 3 Highland", s.VehicleName)
	assert.False(t, s.HasLocation())

	// 每次返回独立副本
	*s.BatteryLevel = 1
	assert.Equal(t, 78, *DemoSnapshot().BatteryLevel)
}
