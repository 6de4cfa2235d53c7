package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// expectedMigrationCount is the number of migrations we expect to have
// Update this when adding new migrations
// Note: goose adds a version 0 entry when initializing, so total count is migrations + 1
const expectedMigrationCount = 2
const gooseVersionCount = expectedMigrationCount + 1 // includes goose's version 0 entry

// TestMigrations_FreshDatabase tests running migrations on a fresh database
func TestMigrations_FreshDatabase(t *testing.T) {
	tmpDB := createTempDB(t)
	defer os.Remove(tmpDB)

	// Create storage (this runs migrations)
	store, err := NewStorage(tmpDB)
	require.NoError(t, err)
	defer store.Close()

	var count int
	err = store.db.QueryRow("SELECT COUNT(*) FROM goose_db_version WHERE is_applied = 1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, gooseVersionCount, count, "Should have %d version entries (including goose init)", gooseVersionCount)

	version, err := store.MigrationVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(expectedMigrationCount), version)
}

// TestMigrations_Idempotency tests that migrations can be run multiple times
func TestMigrations_Idempotency(t *testing.T) {
	tmpDB := createTempDB(t)
	defer os.Remove(tmpDB)

	store, err := NewStorage(tmpDB)
	require.NoError(t, err)
	store.Close()

	// Run migrations second time (should be idempotent)
	store, err = NewStorage(tmpDB)
	require.NoError(t, err)
	defer store.Close()

	var count int
	err = store.db.QueryRow("SELECT COUNT(*) FROM goose_db_version WHERE is_applied = 1").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, gooseVersionCount, count, "Should still have exactly %d version entries", gooseVersionCount)
}

// TestMigrations_Schema tests that the correct schema is created
func TestMigrations_Schema(t *testing.T) {
	tmpDB := createTempDB(t)
	defer os.Remove(tmpDB)

	store, err := NewStorage(tmpDB)
	require.NoError(t, err)
	defer store.Close()

	for _, table := range []string{"orders", "order_items", "order_splits", "goose_db_version"} {
		err = store.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(new(int))
		assert.NoError(t, err, "%s table should exist", table)
	}

	var count int
	err = store.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('orders') WHERE name = 'version'
	`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "version column should exist in orders")
}

// TestMigrations_ForeignKeyConstraints tests that foreign keys are enforced
func TestMigrations_ForeignKeyConstraints(t *testing.T) {
	tmpDB := createTempDB(t)
	defer os.Remove(tmpDB)

	store, err := NewStorage(tmpDB)
	require.NoError(t, err)
	defer store.Close()

	var fkEnabled int
	err = store.db.QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled)
	require.NoError(t, err)
	assert.Equal(t, 1, fkEnabled, "Foreign keys should be enabled")

	_, err = store.db.Exec(`
		INSERT INTO order_items (id, order_id, position, product_id, quantity, unit_price)
		VALUES ('item-1', 'no-such-order', 0, 'P', 1, 100)
	`)
	require.Error(t, err, "Should fail to insert an item for a non-existent order")
	assert.Contains(t, err.Error(), "FOREIGN KEY constraint failed")
}

// TestMigrations_Sequential tests that migrations run in order
func TestMigrations_Sequential(t *testing.T) {
	tmpDB := createTempDB(t)
	defer os.Remove(tmpDB)

	store, err := NewStorage(tmpDB)
	require.NoError(t, err)
	defer store.Close()

	rows, err := store.db.Query("SELECT version_id FROM goose_db_version WHERE is_applied = 1 ORDER BY version_id")
	require.NoError(t, err)
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var version int64
		require.NoError(t, rows.Scan(&version))
		versions = append(versions, version)
	}

	require.Len(t, versions, gooseVersionCount)
	for i, v := range versions {
		assert.Equal(t, int64(i), v, "Version entry %d should have version %d", i, i)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "oracle", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported storage driver")
}

func TestRebind(t *testing.T) {
	pg := &Storage{driver: DriverPostgres}
	assert.Equal(t, "SELECT * FROM orders WHERE id = $1 AND version = $2",
		pg.rebind("SELECT * FROM orders WHERE id = ? AND version = ?"))

	lite := &Storage{driver: DriverSQLite}
	assert.Equal(t, "SELECT ? ", lite.rebind("SELECT ? "))
}

// createTempDB creates a temporary database file for testing
func createTempDB(t *testing.T) string {
	tmpFile, err := os.CreateTemp("", "test_*.db")
	require.NoError(t, err)
	tmpFile.Close()
	return tmpFile.Name()
}
