package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/pkg/platform/sentinel"
	"stellarbridge/pkg/platform/tx"
)

// PostgresStore persists vault issuance in vault_issuances.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Find(ctx context.Context, assetCode string) (*models.VaultIssuance, error) {
	var v models.VaultIssuance
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT asset_code, issued_amount, updated_at
		FROM vault_issuances WHERE asset_code = $1`, assetCode).
		Scan(&v.AssetCode, &v.IssuedAmount, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find vault issuance: %w", err)
	}
	return &v, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, issuance *models.VaultIssuance) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO vault_issuances (asset_code, issued_amount, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (asset_code) DO UPDATE SET
			issued_amount = EXCLUDED.issued_amount,
			updated_at = EXCLUDED.updated_at`,
		issuance.AssetCode, issuance.IssuedAmount, issuance.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert vault issuance: %w", err)
	}
	return nil
}
