// Package database はデータベース接続とマイグレーション管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationResult はマイグレーション適用後のスキーマ状態。
type MigrationResult struct {
	// Version は適用済みの最新マイグレーション番号。
	Version uint
	// Applied は今回の実行で新たに適用したマイグレーションがあったかどうか。
	Applied bool
}

// NewMigrator はkv_entriesスキーマ用のmigrateインスタンスを生成する。
// PostgreSQL専用。SQLiteはSQLiteKVStoreが開く時にテーブルを作成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return m, nil
}

// RunMigrations は未適用のマイグレーションを全て適用し、適用後のバージョンを返す。
// すでに最新の場合はApplied=falseで返る。前回の実行が途中で失敗しdirtyのままの場合はエラー。
func RunMigrations(databaseURL string) (MigrationResult, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationResult{}, err
	}
	defer m.Close()

	applied := true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationResult{}, fmt.Errorf("failed to run migrations: %w", err)
		}
		applied = false
	}

	version, dirty, err := m.Version()
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return MigrationResult{}, fmt.Errorf("schema version %d is dirty", version)
	}

	return MigrationResult{Version: version, Applied: applied}, nil
}
