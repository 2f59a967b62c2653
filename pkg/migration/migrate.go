// Package migration はSQLiteデータベースのマイグレーションを管理する。
// embed.FSからSQLファイルを読み込み、バージョン管理テーブルで適用状態を追跡する。
package migration

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// upSuffix は適用対象のマイグレーションファイルの拡張子。
const upSuffix = ".up.sql"

// Run はembedされたマイグレーションファイルを順序通りに適用し、新たに適用した件数を返す。
// 未適用のマイグレーションのみ実行し、適用済みのものはスキップする。
// ファイル名形式: 000001_description.up.sql
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string, logger *zap.Logger) (int, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return 0, fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}

	migrations, err := collect(fsys, dir)
	if err != nil {
		return 0, fmt.Errorf("マイグレーションファイルの収集に失敗: %w", err)
	}

	count := 0
	for _, m := range migrations {
		if _, ok := applied[m.version]; ok {
			continue
		}
		if err := apply(ctx, db, fsys, m); err != nil {
			return count, fmt.Errorf("マイグレーション %06d の適用に失敗: %w", m.version, err)
		}
		count++
		logger.Info("マイグレーションを適用しました",
			zap.Int("version", m.version),
			zap.String("name", m.name),
		)
	}
	return count, nil
}

type file struct {
	version int
	name    string
	path    string
}

// ensureMigrationsTable はバージョン管理テーブルを作成する。
func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)
	`)
	return err
}

// appliedVersions は適用済みのマイグレーションバージョンを取得する。
func appliedVersions(ctx context.Context, db *sql.DB) (map[int]struct{}, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]struct{})
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = struct{}{}
	}
	return applied, rows.Err()
}

// collect はディレクトリからup.sqlファイルを収集してバージョン順に並べる。
// 命名規則に合わないファイルは無視する。
func collect(fsys fs.FS, dir string) ([]file, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var files []file
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), upSuffix) {
			continue
		}
		prefix, rest, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		files = append(files, file{
			version: version,
			name:    strings.TrimSuffix(rest, upSuffix),
			path:    path.Join(dir, entry.Name()),
		})
	}

	slices.SortFunc(files, func(a, b file) int {
		return cmp.Compare(a.version, b.version)
	})
	return files, nil
}

// apply は1つのマイグレーションをトランザクション内で適用する。
func apply(ctx context.Context, db *sql.DB, fsys fs.FS, m file) error {
	content, err := fs.ReadFile(fsys, m.path)
	if err != nil {
		return fmt.Errorf("ファイル読み込みに失敗: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}
	return tx.Commit()
}
