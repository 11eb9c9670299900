package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	config "github.com/NordCoder/Puntos/internal/config/reminder"
	"github.com/NordCoder/Puntos/internal/domain/kv"
	"github.com/NordCoder/Puntos/internal/obs"
	pg "github.com/NordCoder/Puntos/internal/repository/postgres"
	redisrepo "github.com/NordCoder/Puntos/internal/repository/redis"
)

// storage bundles Postgres, which always backs the inbox and outbox, with
// the configured KV store.
type storage struct {
	DB    *pg.DB
	KV    kv.Store
	redis *redisrepo.KVStore
}

func initStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	db, err := pg.New(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	logger.Info("db connected")

	st := &storage{DB: db}
	switch cfg.KV.Driver {
	case config.KVRedis:
		r, err := redisrepo.Open(ctx, cfg.Redis)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("redis connect: %w", err)
		}
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
		st.redis, st.KV = r, r
	default:
		st.KV = pg.NewKVRepo(db)
	}
	return st, nil
}

func (s *storage) Checks() []obs.HealthCheck {
	checks := []obs.HealthCheck{s.DB.Ping}
	if s.redis != nil {
		checks = append(checks, s.redis.Ping)
	}
	return checks
}

func (s *storage) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	s.DB.Close()
}
