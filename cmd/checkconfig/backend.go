package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kneutral-org/checkconfig/internal/autochecks"
	"github.com/kneutral-org/checkconfig/internal/checktable"
	"github.com/kneutral-org/checkconfig/internal/config"
	"github.com/kneutral-org/checkconfig/internal/snapshot"
)

// openAutochecks connects the configured autochecks backend. A nil store
// means the snapshot's own autochecks are used. The returned func releases
// the connection.
func (e *env) openAutochecks(ctx context.Context) (autochecks.Store, func(), error) {
	switch e.cfg.AutochecksBackend {
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr: e.cfg.RedisAddr,
			DB:   e.cfg.RedisDB,
		})
		store := autochecks.NewRedisStore(client, autochecks.WithKeyPrefix(e.cfg.RedisKeyPrefix))
		if err := store.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", e.cfg.RedisAddr, err)
		}
		e.logger.Info().Str("addr", e.cfg.RedisAddr).Int("db", e.cfg.RedisDB).Msg("reading autochecks from redis")
		return store, func() { _ = client.Close() }, nil

	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, e.cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres pool: %w", err)
		}
		store := autochecks.NewPostgresStore(pool)
		if err := store.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		e.logger.Info().Msg("reading autochecks from postgres")
		return store, pool.Close, nil

	default:
		return nil, func() {}, nil
	}
}

func (e *env) resolverConfig() checktable.ResolverConfig {
	cfg := checktable.DefaultResolverConfig()
	cfg.Workers = e.cfg.Workers
	cfg.AutochecksBackend = e.cfg.AutochecksBackend
	cfg.Logger = e.logger
	return cfg
}

func (e *env) resolver(snap *snapshot.Snapshot, store autochecks.Store) *checktable.Resolver {
	return snap.Resolver(store, e.resolverConfig())
}
