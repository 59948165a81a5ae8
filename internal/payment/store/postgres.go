package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"stellarbridge/internal/bridge/models"
	"stellarbridge/internal/platform/postgres"
	dErrors "stellarbridge/pkg/domain-errors"
	"stellarbridge/pkg/platform/sentinel"
	"stellarbridge/pkg/platform/tx"
)

// PostgresStore persists the payment log in payments.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const paymentColumns = `reference, id, source_tenant_id, source_journal_entry_ref, destination_address,
	destination_account_id, asset_code, asset_issuer, amount, is_ledger_payment, status, failure_code,
	failure_reason, ledger_tx_hash, attempts, created_at, updated_at`

func (s *PostgresStore) Insert(ctx context.Context, p *models.Payment) error {
	_, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.Reference, p.ID, p.SourceTenantID, p.SourceJournalEntryRef, p.DestinationAddress,
		p.DestinationAccountID, p.AssetCode, p.AssetIssuer, p.Amount, p.IsLedgerPayment, string(p.Status),
		string(p.FailureCode), p.FailureReason, p.LedgerTxHash, p.Attempts, p.CreatedAt, p.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByReference(ctx context.Context, reference string) (*models.Payment, error) {
	row := tx.Exec(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE reference = $1`, reference)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Update(ctx context.Context, p *models.Payment) error {
	res, err := tx.Exec(ctx, s.db).ExecContext(ctx, `
		UPDATE payments SET
			destination_account_id = $2,
			asset_issuer = $3,
			status = $4,
			failure_code = $5,
			failure_reason = $6,
			ledger_tx_hash = $7,
			attempts = $8,
			updated_at = $9
		WHERE reference = $1`,
		p.Reference, p.DestinationAccountID, p.AssetIssuer, string(p.Status), string(p.FailureCode),
		p.FailureReason, p.LedgerTxHash, p.Attempts, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, statuses ...models.PaymentStatus) ([]*models.Payment, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	rows, err := tx.Exec(ctx, s.db).QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = ANY($1)
		ORDER BY created_at`, pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []*models.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(row scanner) (*models.Payment, error) {
	var (
		p           models.Payment
		status      string
		failureCode string
	)
	err := row.Scan(&p.Reference, &p.ID, &p.SourceTenantID, &p.SourceJournalEntryRef, &p.DestinationAddress,
		&p.DestinationAccountID, &p.AssetCode, &p.AssetIssuer, &p.Amount, &p.IsLedgerPayment, &status,
		&failureCode, &p.FailureReason, &p.LedgerTxHash, &p.Attempts, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = models.PaymentStatus(status)
	p.FailureCode = dErrors.Code(failureCode)
	return &p, nil
}
