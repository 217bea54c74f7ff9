package accumulator

import (
	"context"
	"fmt"
	"strings"
)

// Store 保存按 schema 划分的只追加叶子列表。
type Store interface {
	Append(ctx context.Context, schemaID, leaf string) error
	List(ctx context.Context, schemaID string) ([]string, error)
	Close() error
}

// Config 描述累加器存储的选择。
type Config struct {
	Driver    string `json:"driver"`
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
}

// NewStore 根据配置创建存储，默认使用内存实现。
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, RedisConfig{
			Address:   cfg.Address,
			Password:  cfg.Password,
			DB:        cfg.DB,
			KeyPrefix: cfg.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("未知的累加器驱动: %s", cfg.Driver)
	}
}

// Snapshot 在一次读取中同时返回根与叶子的包含路径。
func Snapshot(ctx context.Context, store Store, schemaID, leaf string) (string, Proof, error) {
	leaves, err := store.List(ctx, schemaID)
	if err != nil {
		return "", Proof{}, err
	}
	root, err := ComputeRoot(leaves)
	if err != nil {
		return "", Proof{}, err
	}
	proof, err := BuildProof(leaves, leaf)
	if err != nil {
		return "", Proof{}, err
	}
	return root, proof, nil
}

// Root 读取 schema 当前的根。
func Root(ctx context.Context, store Store, schemaID string) (string, error) {
	leaves, err := store.List(ctx, schemaID)
	if err != nil {
		return "", err
	}
	return ComputeRoot(leaves)
}
