package main

import (
	"database/sql"
	"errors"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hackgods/kiosk-checkin/migrations"
	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

// migrate applies the embedded schema.
//
//	migrate            # up
//	migrate down       # roll back one step
//	migrate force <n>  # clear a dirty version
//	migrate version
func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL")).Component("migrate")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal().Msg("POSTGRES_DSN is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db")
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("ping db")
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		logger.Fatal().Err(err).Msg("db driver")
	}

	srcDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		logger.Fatal().Err(err).Msg("source driver")
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		logger.Fatal().Err(err).Msg("create migrator")
	}
	defer func() { _, _ = m.Close() }()

	cmd := "up"
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Steps(-1)
	case "force":
		if len(os.Args) < 3 {
			logger.Fatal().Msg("usage: migrate force <version>")
		}
		version, convErr := strconv.Atoi(os.Args[2])
		if convErr != nil {
			logger.Fatal().Err(convErr).Msg("invalid version")
		}
		err = m.Force(version)
	case "version":
		version, dirty, verErr := m.Version()
		if verErr != nil && !errors.Is(verErr, migrate.ErrNilVersion) {
			logger.Fatal().Err(verErr).Msg("read version")
		}
		logger.Info().Uint("version", version).Bool("dirty", dirty).Msg("schema version")
		return
	default:
		logger.Fatal().Str("command", cmd).Msg("unknown command")
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal().Err(err).Str("command", cmd).Msg("migration failed")
	}
	logger.Info().Str("command", cmd).Msg("migrations complete")
}
