package sqlite

import (
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/openaicompat/bedrock-gateway/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// New opens (creating if needed) the SQLite database at dsn and applies
// any pending migrations before returning the store.KeyStore.
func New(dsn string, logger *zap.Logger) (store.KeyStore, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	// A single writer connection avoids SQLITE_BUSY under the gateway's
	// concurrent request load; reads and writes share it.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("sqlite keystore ready", zap.String("dsn", dsn))
	return &repository{db: db}, nil
}

func runMigrations(db *sqlx.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func newMigrator(db *sqlx.DB) (*migrate.Migrate, error) {
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, err
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	return migrate.NewWithInstance("iofs", src, "sqlite3", driver)
}

// Migrator opens dsn and returns the golang-migrate handle directly, for
// callers (cmd/migrate) that need Up/Down/Steps/Version rather than the
// KeyStore wrapper New provides.
func Migrator(dsn string) (*migrate.Migrate, error) {
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	return newMigrator(db)
}
