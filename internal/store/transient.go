package store

import (
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Transient 会话级临时存储（PKCE verifier、state）
// 值在 TTL 到期后自动丢弃；Take 读取后立即删除，同一个值不会被取出两次
type Transient[V any] struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, V]
}

// NewTransient 创建临时存储并启动过期清理
func NewTransient[V any](ttl time.Duration) *Transient[V] {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, V](ttl),
		ttlcache.WithDisableTouchOnHit[string, V](),
	)

	go cache.Start()

	return &Transient[V]{cache: cache}
}

// Put 写入（覆盖同名旧值）
func (t *Transient[V]) Put(key string, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Set(key, value, ttlcache.DefaultTTL)
}

// Take 取出并删除
func (t *Transient[V]) Take(key string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero V
	item := t.cache.Get(key)
	t.cache.Delete(key)
	if item == nil || item.IsExpired() {
		return zero, false
	}
	return item.Value(), true
}

// Peek 读取但不删除
func (t *Transient[V]) Peek(key string) (V, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero V
	item := t.cache.Get(key)
	if item == nil || item.IsExpired() {
		return zero, false
	}
	return item.Value(), true
}

// Discard 丢弃
func (t *Transient[V]) Discard(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Delete(key)
}

// Len 当前条目数
func (t *Transient[V]) Len() int {
	return t.cache.Len()
}

// Close 停止清理协程
func (t *Transient[V]) Close() {
	t.cache.Stop()
}
