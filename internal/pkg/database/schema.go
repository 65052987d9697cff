package database

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/PixelPremium/migrations"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

var (
	ErrSchemaDirty    = errors.New("database schema is dirty")
	ErrSchemaOutdated = errors.New("database schema is behind the required version")
)

// NewMigrator opens golang-migrate on the embedded migrations of cfg.Driver.
// The caller closes it.
func NewMigrator(cfg Config) (*migrate.Migrate, error) {
	if cfg.Driver != DriverMySQL && cfg.Driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	source, err := iofs.New(migrations.FS, cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, cfg.MigrateURL())
	if err != nil {
		return nil, fmt.Errorf("initialize migrations: %w", err)
	}
	return m, nil
}

// ValidateSchema refuses to continue unless the database is clean and at
// least at the required migration version.
func ValidateSchema(cfg Config, required uint) error {
	m, err := NewMigrator(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Warnf("[Database] Closing migration resources: %v, %v", sourceErr, dbErr)
		}
	}()

	version, dirty, err := m.Version()
	if err := checkVersion(version, dirty, err, required); err != nil {
		return err
	}
	log.Infof("[Database] Schema version %d (required %d)", version, required)
	return nil
}

func checkVersion(version uint, dirty bool, err error, required uint) error {
	if errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("%w: no migrations applied, required %d", ErrSchemaOutdated, required)
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("%w at version %d, fix it with cmd/migrate", ErrSchemaDirty, version)
	}
	if version < required {
		return fmt.Errorf("%w: at %d, required %d", ErrSchemaOutdated, version, required)
	}
	return nil
}
