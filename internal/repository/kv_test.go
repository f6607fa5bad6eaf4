package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 需要真实的 PostgreSQL，设置 TESDASH_TEST_DATABASE_URL 后运行
func TestKVStoreRoundTrip(t *testing.T) {
	url := os.Getenv("TESDASH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TESDASH_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, url)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	kv := NewKVStore(db, "test-"+uuid.NewString())
	defer kv.Close()

	_, ok, err := kv.Get(ctx, "tesla_access_token")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, map[string]string{
		"tesla_access_token":  "at",
		"tesla_refresh_token": "rt",
	}))
	v, ok, err := kv.Get(ctx, "tesla_access_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "at", v)

	require.NoError(t, kv.Set(ctx, map[string]string{"tesla_access_token": "at2"}))
	v, _, _ = kv.Get(ctx, "tesla_access_token")
	assert.Equal(t, "at2", v)

	many, err := kv.GetMany(ctx, "tesla_access_token", "tesla_refresh_token", "tesla_vehicle_id")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"tesla_access_token": "at2", "tesla_refresh_token": "rt"}, many)

	require.NoError(t, kv.Delete(ctx, "tesla_access_token", "tesla_refresh_token"))
	_, ok, _ = kv.Get(ctx, "tesla_refresh_token")
	assert.False(t, ok)
}
