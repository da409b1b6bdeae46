package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

const (
	DriverSQLite = "sqlite"
	DriverLibSQL = "libsql"
)

// Options selects the driver and data source for ConnectToDB.
type Options struct {
	Driver string // DriverSQLite or DriverLibSQL
	DSN    string // e.g. file:/var/lib/serenity/serenity.db
	Logger zerolog.Logger
}

// ConnectToDB opens the database, creating the parent directory of file DSNs,
// applies connection pragmas and verifies connectivity.
func ConnectToDB(ctx context.Context, opts Options) (*sql.DB, error) {
	if opts.Driver == "" {
		opts.Driver = DriverSQLite
	}
	if !slices.Contains(sql.Drivers(), opts.Driver) {
		return nil, fmt.Errorf("database driver %q is not compiled in (build with -tags %s)", opts.Driver, opts.Driver)
	}

	if path := filePath(opts.DSN); path != "" && path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
		}
	}

	opts.Logger.Info().Str("driver", opts.Driver).Str("dsn", opts.DSN).Msg("connecting to database")

	dsn := opts.DSN
	if opts.Driver == DriverSQLite {
		dsn = withConnParams(dsn)
	}

	db, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", opts.Driver, err)
	}

	if err := applyPragmas(ctx, db, opts.Driver, opts.Logger); err != nil {
		db.Close()
		return nil, err
	}
	if err := verify(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// sqliteConnParams are applied by modernc to every pooled connection it opens,
// keyed by the DSN prefix that marks them as already set. _txlock=immediate
// takes the write lock at BEGIN so a read-then-write transaction waits on
// busy_timeout rather than failing its lock upgrade.
var sqliteConnParams = []struct{ key, param string }{
	{"_pragma=busy_timeout", "_pragma=busy_timeout(5000)"},
	{"_pragma=foreign_keys", "_pragma=foreign_keys(1)"},
	{"_txlock=", "_txlock=immediate"},
}

// withConnParams appends the sqliteConnParams the DSN does not already set.
func withConnParams(dsn string) string {
	for _, p := range sqliteConnParams {
		if strings.Contains(dsn, p.key) {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + p.param
	}
	return dsn
}

func applyPragmas(ctx context.Context, db *sql.DB, driver string, log zerolog.Logger) error {
	if driver != DriverSQLite {
		// libsql has no per-connection DSN pragmas; one writer connection keeps
		// these settings and serializes writes.
		db.SetMaxOpenConns(1)
		for _, p := range []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, p); err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
		}
	}
	// journal_mode returns a row and is refused for in-memory databases
	var mode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL").Scan(&mode); err != nil {
		log.Warn().Err(err).Msg("WAL journal mode unavailable")
	}
	return nil
}

func verify(ctx context.Context, db *sql.DB) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}
	return nil
}

// filePath extracts the filesystem path from a sqlite-style DSN.
func filePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if strings.Contains(path, "://") {
		return ""
	}
	return path
}
