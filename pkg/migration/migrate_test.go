package migration

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// openMemoryDB はテスト用のインメモリSQLiteを開く。
func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestRun はマイグレーションの適用を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/000002_add_index.up.sql":      {Data: []byte(`CREATE INDEX idx_items_name ON items(name);`)},
		"migrations/000001_create_items.up.sql":   {Data: []byte(`CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`)},
		"migrations/000001_create_items.down.sql": {Data: []byte(`DROP TABLE items;`)},
		"migrations/README.md":                    {Data: []byte(`ignored`)},
		"migrations/latest.up.sql":                {Data: []byte(`ignored`)},
	}

	t.Run("バージョン順に適用され再実行ではスキップされること", func(t *testing.T) {
		t.Parallel()

		db := openMemoryDB(t)
		ctx := context.Background()

		n, err := Run(ctx, db, fsys, "migrations", zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		_, err = db.ExecContext(ctx, `INSERT INTO items (name) VALUES ('a')`)
		require.NoError(t, err)

		n, err = Run(ctx, db, fsys, "migrations", zap.NewNop())
		require.NoError(t, err)
		assert.Zero(t, n)

		var versions int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&versions))
		assert.Equal(t, 2, versions)
	})

	t.Run("SQLが失敗した場合はロールバックされること", func(t *testing.T) {
		t.Parallel()

		broken := fstest.MapFS{
			"m/000001_ok.up.sql":     {Data: []byte(`CREATE TABLE ok (id INTEGER);`)},
			"m/000002_broken.up.sql": {Data: []byte(`CREATE TABLE ???;`)},
		}
		db := openMemoryDB(t)
		ctx := context.Background()

		n, err := Run(ctx, db, broken, "m", zap.NewNop())
		require.Error(t, err)
		assert.Equal(t, 1, n)

		var versions int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&versions))
		assert.Equal(t, 1, versions)
	})

	t.Run("ディレクトリが無い場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		_, err := Run(context.Background(), openMemoryDB(t), fsys, "missing", zap.NewNop())
		assert.Error(t, err)
	})
}
