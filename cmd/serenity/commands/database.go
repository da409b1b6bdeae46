package commands

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ZanzyTHEbar/serenity/serenity/config"
	"github.com/ZanzyTHEbar/serenity/serenity/db"
	"github.com/rs/zerolog"
)

var errDatabaseDisabled = errors.New("database is disabled (set database.enabled: true)")

// openDatabase connects and migrates when the database is enabled. It returns
// a nil handle, not an error, when it is disabled.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*sql.DB, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	conn, err := db.ConnectToDB(ctx, db.Options{Driver: cfg.Driver, DSN: cfg.DSN, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// requireDatabase is openDatabase for commands that cannot run without one.
func requireDatabase(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*sql.DB, error) {
	if !cfg.Enabled {
		return nil, errDatabaseDisabled
	}
	return openDatabase(ctx, cfg, logger)
}
