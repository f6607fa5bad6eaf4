package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/tesdash/internal/store"
)

func TestPreferencesDefaults(t *testing.T) {
	prefs, err := NewPreferenceStore(store.NewMemoryStore()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultPreferences(), prefs)
}

func TestPreferencesUpdatePersists(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	ps := NewPreferenceStore(mem)

	_, err := ps.Update(ctx, func(p *Preferences) {
		p.TemperatureUnit = Fahrenheit
		p.DistanceUnit = Miles
		p.Location = &Location{Latitude: 52.37, Longitude: 4.89}
	})
	require.NoError(t, err)

	prefs, err := NewPreferenceStore(mem).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Fahrenheit, prefs.TemperatureUnit)
	assert.Equal(t, Miles, prefs.DistanceUnit)
	require.NotNil(t, prefs.Location)
	assert.InDelta(t, 52.37, prefs.Location.Latitude, 1e-9)
}

func TestPreferencesRejectInvalidUnit(t *testing.T) {
	ps := NewPreferenceStore(store.NewMemoryStore())
	_, err := ps.Update(context.Background(), func(p *Preferences) {
		p.TemperatureUnit = "kelvin"
	})
	assert.ErrorContains(t, err, "temperature unit")
}

func TestPreferencesFallbackOnStoredGarbage(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Set(ctx, map[string]string{
		KeyDistanceUnit: "furlongs",
		KeyLocation:     "{broken",
	}))

	prefs, err := NewPreferenceStore(mem).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Km, prefs.DistanceUnit)
	assert.Nil(t, prefs.Location)
}

func TestPreferencesClearLocation(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	ps := NewPreferenceStore(mem)

	_, err := ps.Update(ctx, func(p *Preferences) { p.Location = &Location{Latitude: 1, Longitude: 2} })
	require.NoError(t, err)
	_, err = ps.Update(ctx, func(p *Preferences) { p.Location = nil })
	require.NoError(t, err)

	_, ok, _ := mem.Get(ctx, KeyLocation)
	assert.False(t, ok)
}
