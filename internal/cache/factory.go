package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// BackendConfig describes the inputs to backend selection. Exactly one
// storage tier is chosen per SelectBackend's precedence: a configured S3
// bucket (alongside a file root) wins over a bare file root, which wins
// over a configured Redis address, which wins over the default in-memory
// backend.
type BackendConfig struct {
	FileRoot            string
	RedisAddr           string
	RedisNamespace      string
	MemoryCapacityBytes int64
	Logger              *slog.Logger

	S3Bucket          string
	S3Prefix          string
	S3Region          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3SessionToken    string
}

// SelectBackend constructs the storage tier named by cfg: an S3-mirrored
// file backend if both FileRoot and S3Bucket are set, else a bare file
// backend if FileRoot alone is set, else a Redis backend if RedisAddr is
// set, else an in-memory backend sized at cfg.MemoryCapacityBytes
// (defaulting to DefaultMemoryCapacityBytes when unset).
func SelectBackend(cfg BackendConfig) (Backend, error) {
	switch {
	case cfg.FileRoot != "" && cfg.S3Bucket != "":
		local, err := NewFileBackend(cfg.FileRoot, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("create file backend: %w", err)
		}
		client, err := NewS3ClientFromEnv(context.Background(), S3ClientConfig{
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			SessionToken:    cfg.S3SessionToken,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 client: %w", err)
		}
		return NewS3Mirror(local, client, cfg.S3Bucket, cfg.S3Prefix, cfg.Logger), nil

	case cfg.FileRoot != "":
		backend, err := NewFileBackend(cfg.FileRoot, cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("create file backend: %w", err)
		}
		return backend, nil

	case cfg.RedisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedisBackend(client, cfg.RedisNamespace), nil

	default:
		return NewMemoryBackend(cfg.MemoryCapacityBytes), nil
	}
}
