package store

import (
	"context"
	"fmt"

	"github.com/Alias1177/AccuracyTracker/internal/config"
)

// Open creates the backend selected by cfg.StoreBackend.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		b = NewMemoryBackend()
	case config.BackendFile:
		b, err = openFile(cfg.StoreDir)
	case config.BackendPostgres:
		b, err = openPostgres(ctx, ConnectionParams{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			DBName:   cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		})
	case config.BackendRedis:
		b, err = openRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func openFile(dir string) (Backend, error) {
	b, err := NewFileBackend(dir)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func openPostgres(ctx context.Context, params ConnectionParams) (Backend, error) {
	b, err := NewPostgresBackend(ctx, params)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func openRedis(ctx context.Context, opts RedisOptions) (Backend, error) {
	b, err := NewRedisBackend(ctx, opts)
	if err != nil {
		return nil, err
	}
	return b, nil
}
