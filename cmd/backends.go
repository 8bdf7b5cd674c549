package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-quality/internal/config"
	"github.com/kozaktomas/photo-quality/internal/database/mariadb"
	"github.com/kozaktomas/photo-quality/internal/database/postgres"
	"github.com/kozaktomas/photo-quality/internal/progress"
	"github.com/kozaktomas/photo-quality/internal/storage"
)

// backends bundles the wired infrastructure shared by the commands:
// the quality database, the external image catalog, the object store
// and the Redis progress channel.
type backends struct {
	pool    *postgres.Pool
	catalog *mariadb.Catalog
	records *postgres.RecordRepository
	jobs    *postgres.JobRepository
	source  *storage.MinioSource
	channel *progress.RedisChannel

	catalogPool *mariadb.Pool
}

// buildBackends connects everything the processing commands need and
// runs pending schema migrations. Callers must Close the result.
func buildBackends(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*backends, error) {
	pool, err := postgres.NewPool(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to quality database: %w", err)
	}

	if err := pool.Migrate(ctx); err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	catalogPool, err := mariadb.NewPool(cfg.Catalog.DSN)
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("connect to image catalog: %w", err)
	}
	catalog := mariadb.NewCatalog(catalogPool)

	source, err := storage.NewMinioSource(&cfg.Storage)
	if err != nil {
		_ = pool.Close()
		_ = catalogPool.Close()
		return nil, fmt.Errorf("connect to object store: %w", err)
	}

	channel, err := progress.NewRedisChannel(ctx, &cfg.Redis)
	if err != nil {
		_ = pool.Close()
		_ = catalogPool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Debug().Msg("backends connected")

	return &backends{
		pool:        pool,
		catalog:     catalog,
		records:     postgres.NewRecordRepository(pool, catalog),
		jobs:        postgres.NewJobRepository(pool),
		source:      source,
		channel:     channel,
		catalogPool: catalogPool,
	}, nil
}

// Close releases all connections. Safe to call once.
func (b *backends) Close() {
	_ = b.channel.Close()
	_ = b.catalogPool.Close()
	_ = b.pool.Close()
}
