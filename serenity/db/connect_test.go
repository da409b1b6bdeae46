package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) Options {
	t.Helper()
	return Options{
		Driver: DriverSQLite,
		DSN:    "file:" + filepath.Join(t.TempDir(), "nested", "serenity.db"),
		Logger: zerolog.Nop(),
	}
}

func TestConnectCreatesDirectoryAndMigrates(t *testing.T) {
	ctx := context.Background()
	db, err := ConnectToDB(ctx, openTemp(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db))

	for _, table := range []string{"chat_turns", "crisis_alerts"} {
		var name string
		err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}

	version, err := Version(db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := ConnectToDB(ctx, openTemp(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, Migrate(ctx, db))
	require.NoError(t, Migrate(ctx, db))
}

func TestConnectUnknownDriver(t *testing.T) {
	_, err := ConnectToDB(context.Background(), Options{Driver: "postgres-but-not-really", DSN: "x"})
	assert.ErrorContains(t, err, "not compiled in")
}

func TestFilePath(t *testing.T) {
	assert.Equal(t, "/tmp/a.db", filePath("file:/tmp/a.db?_pragma=x"))
	assert.Equal(t, "rel.db", filePath("rel.db"))
	assert.Equal(t, "", filePath("libsql://example.turso.io"))
}

func TestWithConnParams(t *testing.T) {
	assert.Equal(t,
		"file:/tmp/a.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate",
		withConnParams("file:/tmp/a.db"))
	assert.Equal(t,
		"file:/tmp/a.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate",
		withConnParams("file:/tmp/a.db?mode=rwc"))
	assert.Equal(t,
		"a.db?_pragma=busy_timeout(100)&_txlock=deferred&_pragma=foreign_keys(1)",
		withConnParams("a.db?_pragma=busy_timeout(100)&_txlock=deferred"))
}

func TestPragmasApplyToEveryPooledConnection(t *testing.T) {
	ctx := context.Background()
	db, err := ConnectToDB(ctx, openTemp(t))
	require.NoError(t, err)
	defer db.Close()

	// hold several connections at once so the pool has to open new ones
	var conns []*sql.Conn
	for range 4 {
		c, err := db.Conn(ctx)
		require.NoError(t, err)
		conns = append(conns, c)
	}
	for i, c := range conns {
		var timeout, fk int
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		require.NoError(t, c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		assert.Equal(t, 5000, timeout, "conn %d", i)
		assert.Equal(t, 1, fk, "conn %d", i)
		require.NoError(t, c.Close())
	}
}
