package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteKVStore はSQLiteファイルを使用したKVStore。
// クライアント常駐の既定ストレージ。
type SQLiteKVStore struct {
	db *sql.DB
}

// NewSQLiteKVStore はSQLiteKVStoreを生成し、kv_entriesテーブルがなければ作成する。
func NewSQLiteKVStore(ctx context.Context, db *sql.DB) (*SQLiteKVStore, error) {
	_, err := db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS kv_entries (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kv_entries table: %w", err)
	}
	return &SQLiteKVStore{db: db}, nil
}

// Get は指定キーの値を取得する。
func (r *SQLiteKVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM kv_entries WHERE key = ?`,
		key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get kv entry %s: %w", key, err)
	}

	return value, true, nil
}

// Set は指定キーに値をUPSERTする。updated_atはUnixミリ秒で保存する。
func (r *SQLiteKVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kv_entries (key, value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to set kv entry %s: %w", key, err)
	}
	return nil
}

// Delete は指定キーを削除する。
func (r *SQLiteKVStore) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE key = ?`,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to delete kv entry %s: %w", key, err)
	}
	return nil
}

// compile-time interface check
var _ KVStore = (*SQLiteKVStore)(nil)
