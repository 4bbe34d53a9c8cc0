// Package postgres registers the Postgres storage backend: tsvector/GIN for
// lexical search and pgvector for embedding similarity, both backed by GORM
// over jackc/pgx.
package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/chirino/souvenir/internal/config"
	registrymigrate "github.com/chirino/souvenir/internal/registry/migrate"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

//go:embed db/schema.sql
var schemaSQL string

func init() {
	registrystore.Register(registrystore.Plugin{
		Name:   "postgres",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 20, Migrator: &migrator{}})
}

func load(ctx context.Context) (registrystore.Backend, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DBURL == "" {
		return nil, fmt.Errorf("postgres: DBURL is required")
	}
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	b := &Backend{db: db, embeddingDimension: cfg.EmbeddingDimension}
	if cfg.DatastoreMigrateAtStart {
		if err := b.Migrate(ctx); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DBURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: underlying db: %w", err)
	}
	if cfg.DBMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	return db, nil
}

// migrator lets the standalone migrate command apply the postgres schema
// without first going through the store registry's Select/Loader path.
type migrator struct{}

func (m *migrator) Name() string { return "postgres" }

func (m *migrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DatastoreType != "postgres" || cfg.DBURL == "" {
		return nil
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	return (&Backend{db: db}).Migrate(ctx)
}

// Backend is the Postgres-backed store.Backend implementation.
type Backend struct {
	db *gorm.DB
	// embeddingDimension is the configured embedder's vector width; zero
	// disables write-time dimension validation.
	embeddingDimension int
}

func (b *Backend) Name() string { return "postgres" }

func (b *Backend) Migrate(ctx context.Context) error {
	if err := b.db.WithContext(ctx).Exec(schemaSQL).Error; err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	log.Debug("postgres schema migrated")
	return nil
}

func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (b *Backend) Episodes() registrystore.EpisodeStore { return &episodeStore{db: b.db} }
func (b *Backend) Memories() registrystore.MemoryStore {
	return &memoryStore{db: b.db, embeddingDimension: b.embeddingDimension}
}

var _ registrystore.Backend = (*Backend)(nil)
var _ registrymigrate.Migrator = (*migrator)(nil)
