// Package migration применяет SQL-миграции из встроенной файловой системы.
package migration

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// Migrator выполняет миграции базы данных поверх существующего пула.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
	path string
}

// NewMigrator создает мигратор. path - каталог с миграциями внутри fsys.
func NewMigrator(pool *pgxpool.Pool, fsys fs.FS, path string) *Migrator {
	return &Migrator{pool: pool, fsys: fsys, path: path}
}

// Up применяет все неприменённые миграции. Отсутствие новых миграций
// ошибкой не считается.
func (m *Migrator) Up() error {
	migrator, err := m.create()
	if err != nil {
		return err
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to read migration version: %w", err)
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("database migrations applied")
	return nil
}

// Down откатывает все миграции. Используется только в обслуживании.
func (m *Migrator) Down() error {
	migrator, err := m.create()
	if err != nil {
		return err
	}
	defer migrator.Close()

	if err := migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	log.Info().Msg("database migrations rolled back")
	return nil
}

func (m *Migrator) create() (*migrate.Migrate, error) {
	// *sql.DB поверх pgx пула, Close мигратора пул не закрывает
	db := stdlib.OpenDBFromPool(m.pool)

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(m.fsys, m.path)
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	migrator.LockTimeout = 30 * time.Second
	return migrator, nil
}
