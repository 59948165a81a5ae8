package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"stellarbridge/pkg/platform/sentinel"
	"stellarbridge/pkg/platform/tx"
)

// PostgresStore persists API key hashes in api_keys. It joins a transaction
// found in the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Put(ctx context.Context, tenantID, keyHash string, createdAt time.Time) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO api_keys (tenant_id, key_hash, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO UPDATE
		SET key_hash = EXCLUDED.key_hash, created_at = EXCLUDED.created_at`,
		tenantID, keyHash, createdAt)
	if err != nil {
		return fmt.Errorf("put api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID string) (string, error) {
	var hash string
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx,
		`SELECT key_hash FROM api_keys WHERE tenant_id = $1`, tenantID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get api key: %w", err)
	}
	return hash, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID string) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM api_keys WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
