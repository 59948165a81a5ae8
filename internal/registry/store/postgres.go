package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/internal/platform/postgres"
	"stellarbridge/pkg/platform/sentinel"
	"stellarbridge/pkg/platform/tx"
)

// PostgresStore persists bridge configurations in bridge_configurations.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, cfg *models.BridgeConfiguration) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO bridge_configurations (tenant_id, ledger_account_id, ledger_signing_key, external_token, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		cfg.TenantID, cfg.LedgerAccountID, cfg.LedgerSigningKey, cfg.ExternalToken, cfg.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("insert bridge configuration: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByTenantID(ctx context.Context, tenantID string) (*models.BridgeConfiguration, error) {
	var cfg models.BridgeConfiguration
	err := tx.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT tenant_id, ledger_account_id, ledger_signing_key, external_token, created_at
		FROM bridge_configurations WHERE tenant_id = $1`, tenantID).
		Scan(&cfg.TenantID, &cfg.LedgerAccountID, &cfg.LedgerSigningKey, &cfg.ExternalToken, &cfg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find bridge configuration: %w", err)
	}
	return &cfg, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID string) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `DELETE FROM bridge_configurations WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("delete bridge configuration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete bridge configuration: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := tx.Exec(ctx, s.db).QueryRowContext(ctx, `SELECT COUNT(*) FROM bridge_configurations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bridge configurations: %w", err)
	}
	return n, nil
}
