package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore 以单个 hash 保存所有键，HSET 多字段写入是原子的
type RedisStore struct {
	client *redis.Client
	hash   string
	logger *zap.Logger
}

// NewRedisStore 连接 Redis
func NewRedisStore(ctx context.Context, redisURL, namespace string, logger *zap.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	// 测试连接
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{
		client: client,
		hash:   namespace + ":kv",
		logger: logger,
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.hash, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		s.logger.Error("Failed to read key from redis", zap.String("key", key), zap.Error(err))
		return "", false, err
	}
	return v, true, nil
}

// GetMany 使用 HMGET，一条命令读取全部字段
func (s *RedisStore) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	values, err := s.client.HMGet(ctx, s.hash, keys...).Result()
	if err != nil {
		s.logger.Error("Failed to read keys from redis", zap.Strings("keys", keys), zap.Error(err))
		return nil, err
	}
	for i, v := range values {
		if str, ok := v.(string); ok {
			out[keys[i]] = str
		}
	}
	return out, nil
}

func (s *RedisStore) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(values))
	for k, v := range values {
		fields[k] = v
	}
	if err := s.client.HSet(ctx, s.hash, fields).Err(); err != nil {
		s.logger.Error("Failed to write keys to redis", zap.Int("count", len(values)), zap.Error(err))
		return err
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.HDel(ctx, s.hash, keys...).Err(); err != nil {
		s.logger.Error("Failed to delete keys from redis", zap.Strings("keys", keys), zap.Error(err))
		return err
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
