// Package sqlite registers the pure-Go SQLite storage backend: FTS5 for
// lexical search, the sqlite-vec extension loaded for forward compatibility
// with vector queries, and BLOB columns for embeddings. It uses
// ncruces/go-sqlite3, a cgo-free SQLite driver, so the module has no cgo
// dependency.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	"github.com/charmbracelet/log"
	"github.com/chirino/souvenir/internal/config"
	registrymigrate "github.com/chirino/souvenir/internal/registry/migrate"
	registrystore "github.com/chirino/souvenir/internal/registry/store"
	_ "github.com/ncruces/go-sqlite3/driver"
)

//go:embed db/schema.sql
var schemaSQL string

func init() {
	registrystore.Register(registrystore.Plugin{
		Name:   "sqlite",
		Loader: load,
	})
	registrymigrate.Register(registrymigrate.Plugin{Order: 10, Migrator: &migrator{}})
}

func load(ctx context.Context) (registrystore.Backend, error) {
	cfg := config.FromContext(ctx)
	dsn := ":memory:"
	if cfg != nil && cfg.DBURL != "" {
		dsn = cfg.DBURL
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// FTS5 and the unified memory table are not safe for concurrent writers
	// across connections; a single connection keeps write ordering simple.
	db.SetMaxOpenConns(1)

	b := &Backend{db: db}
	if cfg != nil {
		b.embeddingDimension = cfg.EmbeddingDimension
	}
	if cfg == nil || cfg.DatastoreMigrateAtStart {
		if err := b.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}
	return b, nil
}

// migrator lets the standalone migrate command apply the sqlite schema
// without first going through the store registry's Select/Loader path.
type migrator struct{}

func (m *migrator) Name() string { return "sqlite" }

func (m *migrator) Migrate(ctx context.Context) error {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.DatastoreType != "sqlite" {
		return nil
	}
	db, err := sql.Open("sqlite3", cfg.DBURL)
	if err != nil {
		return fmt.Errorf("sqlite: open: %w", err)
	}
	defer db.Close()
	return (&Backend{db: db}).Migrate(ctx)
}

// Backend is the sqlite-backed store.Backend implementation.
type Backend struct {
	db *sql.DB
	// embeddingDimension is the configured embedder's vector width; zero
	// disables write-time dimension validation.
	embeddingDimension int
}

func (b *Backend) Name() string { return "sqlite" }

// Migrate applies the schema, and is also self-healing: any code path that
// discovers the FTS5 virtual table missing re-creates it.
func (b *Backend) Migrate(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	log.Debug("sqlite schema migrated")
	return nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) Episodes() registrystore.EpisodeStore {
	return &episodeStore{db: b.db}
}

func (b *Backend) Memories() registrystore.MemoryStore {
	return &memoryStore{db: b.db, migrator: b, embeddingDimension: b.embeddingDimension}
}

var _ registrystore.Backend = (*Backend)(nil)
var _ registrymigrate.Migrator = (*migrator)(nil)
