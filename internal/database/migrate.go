package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrator applies the embedded migrations.  Closing it closes db.
type Migrator struct {
	m   *migrate.Migrate
	log logrus.FieldLogger
}

// NewMigrator binds the embedded migrations to db.
func NewMigrator(db *sql.DB, log logrus.FieldLogger) (*Migrator, error) {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	drv, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", drv)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Migrator{m: m, log: log}, nil
}

// Up applies every pending migration.  Being already current is not an
// error.
func (mg *Migrator) Up() error {
	return mg.done("up", mg.m.Up())
}

// Down rolls back the given number of migrations.
func (mg *Migrator) Down(steps int) error {
	if steps < 1 {
		return fmt.Errorf("down needs a positive step count, got %d", steps)
	}
	return mg.done("down", mg.m.Steps(-steps))
}

// Version reports the applied version and whether the last run left the
// schema dirty.
func (mg *Migrator) Version() (uint, bool, error) {
	v, dirty, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the source and the database handle.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

func (mg *Migrator) done(direction string, err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		mg.log.WithField("direction", direction).Info("schema already current")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", direction, err)
	}
	v, _, _ := mg.Version()
	mg.log.WithFields(logrus.Fields{"direction": direction, "version": v}).Info("schema migrated")
	return nil
}
