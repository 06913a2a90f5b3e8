package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgmigrate "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// DefaultDSN is used when neither the config file nor DB_SOURCE name a database.
const DefaultDSN = "host=localhost port=5433 user=postgres password=postgres dbname=ransomwatch sslmode=disable"

// Postgres is the production Store.
type Postgres struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// OpenPostgres connects, pings and migrates the schema to the latest version.
func OpenPostgres(ctx context.Context, dsn string, logger zerolog.Logger) (*Postgres, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := Migrate(db, logger, true); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info().Msg("Database connection established")
	return &Postgres{db: db, logger: logger}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

type migrationLogger struct {
	logger zerolog.Logger
}

func (l migrationLogger) Printf(format string, v ...any) {
	l.logger.Debug().Msgf(format, v...)
}

func (l migrationLogger) Verbose() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}

// Migrate applies every embedded migration when up is true and rolls all of
// them back otherwise. Having nothing to do is not an error.
func Migrate(db *sqlx.DB, logger zerolog.Logger, up bool) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	driver, err := pgmigrate.WithInstance(db.DB, &pgmigrate.Config{})
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	m.Log = migrationLogger{logger: logger}

	start := time.Now()
	if up {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info().Msg("No new migrations to apply")
		return nil
	}
	if err != nil {
		version, dirty, _ := m.Version()
		logger.Error().Err(err).Uint("version", version).Bool("dirty", dirty).Msg("Failed to apply migrations")
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info().Dur("elapsed", time.Since(start)).Bool("up", up).Msg("Database migrations completed")
	return nil
}

// MigratePostgres opens dsn only to run migrations; used by the migrate command.
func MigratePostgres(ctx context.Context, dsn string, logger zerolog.Logger, up bool) error {
	if dsn == "" {
		dsn = DefaultDSN
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()
	return Migrate(db, logger, up)
}
