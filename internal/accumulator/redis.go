package accumulator

import (
	"context"
	"errors"
	"fmt"

	xerrors "X402-Registry/internal/errors"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix 是 Redis 中叶子列表的键前缀。
const DefaultKeyPrefix = "registry:zk:merkle:"

// RedisConfig 描述 Redis 累加器的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore 使用 Redis list 保存叶子，多个实例共享同一份累加器。
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore 创建 Redis 累加器存储。
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreWithClient 复用已有的 Redis 客户端。
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Append 通过 RPUSH 追加叶子。
func (s *RedisStore) Append(ctx context.Context, schemaID, leaf string) error {
	if err := s.client.RPush(ctx, s.prefix+schemaID, leaf).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "追加累加器叶子失败")
	}
	return nil
}

// List 通过 LRANGE 读取完整叶子列表。
func (s *RedisStore) List(ctx context.Context, schemaID string) ([]string, error) {
	leaves, err := s.client.LRange(ctx, s.prefix+schemaID, 0, -1).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取累加器叶子失败")
	}
	return leaves, nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
