package sqlitedriver_test

import (
	"database/sql"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/teradata-labs/crucible/internal/sqlitedriver"
)

func TestDriverRegistered(t *testing.T) {
	assert.True(t, slices.Contains(sql.Drivers(), "sqlite3"), "sqlite3 driver should be registered")
}

func TestUpsertIgnore(t *testing.T) {
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "driver.db"))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE cache (id INTEGER PRIMARY KEY AUTOINCREMENT, k TEXT NOT NULL, v TEXT);
		CREATE UNIQUE INDEX idx_cache_k ON cache(k);`)
	require.NoError(t, err)

	_, err = db.Exec("INSERT INTO cache (k, v) VALUES (?, ?) ON CONFLICT(k) DO NOTHING", "a", "first")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO cache (k, v) VALUES (?, ?) ON CONFLICT(k) DO NOTHING", "a", "second")
	require.NoError(t, err)

	var n int
	var v string
	require.NoError(t, db.QueryRow("SELECT COUNT(*), MAX(v) FROM cache").Scan(&n, &v))
	assert.Equal(t, 1, n)
	assert.Equal(t, "first", v)
}
