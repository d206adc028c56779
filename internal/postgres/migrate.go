package postgres

import (
	"embed"
	"errors"
	"fmt"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const versionTimeFormat = "20060102150405"

// MigrateURL rewrites a postgres:// DSN to the scheme the pgx/v5 migrate driver registers.
func MigrateURL(dsn string) string {
	for _, p := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(dsn, p) {
			return "pgx5://" + strings.TrimPrefix(dsn, p)
		}
	}
	return dsn
}

func NewMigrator(dsn string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, MigrateURL(dsn))
	if err != nil {
		return nil, fmt.Errorf("migrate init: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration. No pending migration is not an error.
func MigrateUp(dsn string) error {
	m, err := NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func MigrateDown(dsn string, steps int) error {
	m, err := NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer m.Close()
	if steps <= 0 {
		err = m.Down()
	} else {
		err = m.Steps(-steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// CreateMigration writes an empty up/down pair into dir and returns both paths.
func CreateMigration(dir, name string, now time.Time) (up, down string, err error) {
	version := now.Format(versionTimeFormat)
	up = filepath.Join(dir, fmt.Sprintf("%s_%s.up.sql", version, name))
	down = filepath.Join(dir, fmt.Sprintf("%s_%s.down.sql", version, name))
	if err = os.WriteFile(up, []byte{}, 0o644); err != nil {
		return "", "", err
	}
	if err = os.WriteFile(down, []byte{}, 0o644); err != nil {
		return "", "", err
	}
	return up, down, nil
}
