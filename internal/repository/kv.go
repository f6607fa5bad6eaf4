package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// KVStore 基于 PostgreSQL 的键值存储，实现 store.Store
type KVStore struct {
	db        *DB
	namespace string
}

// NewKVStore 创建键值仓库
func NewKVStore(db *DB, namespace string) *KVStore {
	return &KVStore{db: db, namespace: namespace}
}

// Get 读取单个键
func (r *KVStore) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value FROM kv_store WHERE namespace = $1 AND key = $2`

	var value string
	err := r.db.Pool.QueryRow(ctx, query, r.namespace, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get key %s: %w", key, err)
	}
	return value, true, nil
}

// GetMany 单条查询读取多个键
func (r *KVStore) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	query := `SELECT key, value FROM kv_store WHERE namespace = $1 AND key = ANY($2)`
	rows, err := r.db.Pool.Query(ctx, query, r.namespace, keys)
	if err != nil {
		return nil, fmt.Errorf("get keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		out[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return out, nil
}

// Set 在一个事务内写入所有键
func (r *KVStore) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	query := `
		INSERT INTO kv_store (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = NOW()
	`

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for k, v := range values {
		if _, err := tx.Exec(ctx, query, r.namespace, k, v); err != nil {
			return fmt.Errorf("upsert key %s: %w", k, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Delete 删除多个键
func (r *KVStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	query := `DELETE FROM kv_store WHERE namespace = $1 AND key = ANY($2)`
	if _, err := r.db.Pool.Exec(ctx, query, r.namespace, keys); err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}

// Close 关闭底层连接池
func (r *KVStore) Close() error {
	r.db.Close()
	return nil
}
