package main

import (
	"context"
	"fmt"

	repository "github.com/okian/kline/internal/adapters/repository"
	service "github.com/okian/kline/internal/app"
	"github.com/okian/kline/internal/config"
	"github.com/okian/kline/internal/domain/curve"
	"github.com/okian/kline/internal/domain/noise"
	"github.com/okian/kline/internal/domain/scoring"
	"github.com/okian/kline/pkg/logger"
)

// newSynthesizer builds the curve synthesizer described by cfg.
func newSynthesizer(cfg *config.Config) *curve.Synthesizer {
	rng := noise.Entropy()
	if cfg.RandomSeed != 0 {
		rng = noise.Seeded(cfg.RandomSeed)
	}
	return curve.NewSynthesizer(
		curve.WithModel(scoring.New(cfg.ScoringOptions()...)),
		curve.WithCache(curve.NewDecadeCache(curve.WithCapacity(cfg.DecadeCacheSize))),
		curve.WithNoise(rng),
		curve.WithYearSpan(cfg.YearSpan),
		curve.WithLogger(logger.Named("curve")),
	)
}

// newStore builds the timeline store selected by cfg.
func newStore(ctx context.Context, cfg *config.Config) (repository.Store, func() error, error) {
	if cfg.Store != config.StoreRedis {
		return repository.NewMemoryStore(repository.WithCapacity(cfg.StoreCapacity)), func() error { return nil }, nil
	}
	client, err := repository.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	store := repository.NewRedisStore(client,
		repository.WithTTL(cfg.RedisTTL),
		repository.WithPrefix(cfg.RedisPrefix),
	)
	return store, client.Close, nil
}

// newService builds the application service around store.
func newService(cfg *config.Config, store repository.Store) *service.Service {
	return service.New(
		service.WithLogger(logger.Named("service")),
		service.WithSynthesizer(newSynthesizer(cfg)),
		service.WithStore(store),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithBackendConfig(cfg.Backend()),
	)
}
