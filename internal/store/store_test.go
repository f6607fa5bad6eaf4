package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, map[string]string{"a": "1", "b": "2"}))
	v, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	require.NoError(t, s.Set(ctx, map[string]string{"a": "3"}))
	v, _, _ = s.Get(ctx, "a")
	assert.Equal(t, "3", v)

	require.NoError(t, s.Delete(ctx, "a", "never-set"))
	_, ok, _ = s.Get(ctx, "a")
	assert.False(t, ok)
	v, ok, _ = s.Get(ctx, "b")
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	many, err := s.GetMany(ctx, "a", "b", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"b": "2"}, many)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	exerciseStore(t, s)
	assert.Equal(t, []string{"b"}, s.Keys())
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	s, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, map[string]string{"tesla_vehicle_id": "123"}))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	v, ok, err := reopened.Get(ctx, "tesla_vehicle_id")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "123", v)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileStore(path)
	assert.ErrorContains(t, err, "decode store file")
}

func TestFileStoreFailedWriteKeepsState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing-dir", "store.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)

	err = s.Set(context.Background(), map[string]string{"a": "1"})
	require.Error(t, err)

	_, ok, _ := s.Get(context.Background(), "a")
	assert.False(t, ok)
}

func TestTransientTakeIsSingleUse(t *testing.T) {
	tr := NewTransient[string](time.Minute)
	defer tr.Close()

	tr.Put("pkce", "verifier")
	v, ok := tr.Take("pkce")
	assert.True(t, ok)
	assert.Equal(t, "verifier", v)

	_, ok = tr.Take("pkce")
	assert.False(t, ok)
}

func TestTransientPutOverwrites(t *testing.T) {
	tr := NewTransient[string](time.Minute)
	defer tr.Close()

	tr.Put("pkce", "first")
	tr.Put("pkce", "second")
	v, ok := tr.Take("pkce")
	assert.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestTransientExpires(t *testing.T) {
	tr := NewTransient[string](20 * time.Millisecond)
	defer tr.Close()

	tr.Put("pkce", "verifier")
	time.Sleep(60 * time.Millisecond)

	_, ok := tr.Take("pkce")
	assert.False(t, ok)
}

func TestTransientDiscard(t *testing.T) {
	tr := NewTransient[int](time.Minute)
	defer tr.Close()

	tr.Put("k", 1)
	tr.Discard("k")
	assert.Equal(t, 0, tr.Len())
}
