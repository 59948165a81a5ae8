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

// PostgresStore persists trust lines in trust_lines.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const trustLineColumns = `tenant_id, issuer_account_id, asset_code, issuer_address, maximum_amount, current_balance, updated_at`

func (s *PostgresStore) Find(ctx context.Context, key models.TrustLineKey) (*models.TrustLine, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+trustLineColumns+`
		FROM trust_lines
		WHERE tenant_id = $1 AND issuer_account_id = $2 AND asset_code = $3`,
		key.TenantID, key.IssuerAccountID, key.AssetCode)
	line, err := scanTrustLine(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find trust line: %w", err)
	}
	return line, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, line *models.TrustLine) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO trust_lines (`+trustLineColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, issuer_account_id, asset_code) DO UPDATE SET
			issuer_address = EXCLUDED.issuer_address,
			maximum_amount = EXCLUDED.maximum_amount,
			current_balance = EXCLUDED.current_balance,
			updated_at = EXCLUDED.updated_at`,
		line.TenantID, line.IssuerAccountID, line.AssetCode, line.IssuerAddress,
		line.MaximumAmount, line.CurrentBalance, line.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert trust line: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, key models.TrustLineKey) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		DELETE FROM trust_lines
		WHERE tenant_id = $1 AND issuer_account_id = $2 AND asset_code = $3`,
		key.TenantID, key.IssuerAccountID, key.AssetCode)
	if err != nil {
		return fmt.Errorf("delete trust line: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete trust line: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*models.TrustLine, error) {
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT `+trustLineColumns+`
		FROM trust_lines
		WHERE tenant_id = $1
		ORDER BY issuer_account_id, asset_code`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list trust lines: %w", err)
	}
	defer rows.Close()

	var out []*models.TrustLine
	for rows.Next() {
		line, err := scanTrustLine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trust line: %w", err)
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTrustLine(row scanner) (*models.TrustLine, error) {
	var line models.TrustLine
	err := row.Scan(&line.TenantID, &line.IssuerAccountID, &line.AssetCode, &line.IssuerAddress,
		&line.MaximumAmount, &line.CurrentBalance, &line.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &line, nil
}
