package migration

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableCount(t *testing.T, db *sqlx.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('data_points', 'outliers')`))
	return n
}

func TestRunIsIdempotentAndResettable(t *testing.T) {
	ctx := context.Background()
	db, err := sqlx.Connect("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	runner := NewRunner()
	assert.Equal(t, "1.1.0", runner.Version())
	require.NoError(t, runner.Run(ctx, db))
	require.NoError(t, runner.Run(ctx, db))
	assert.Equal(t, 2, tableCount(t, db))

	require.NoError(t, runner.Reset(ctx, db))
	assert.Equal(t, 0, tableCount(t, db))
}
