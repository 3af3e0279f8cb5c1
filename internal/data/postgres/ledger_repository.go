// Package postgres provides PostgreSQL implementations of the domain
// repositories. All ledger state lives here so that repairs can run as a
// single database transaction.
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/steelstore-ledger/internal/domain/ledger"
	"github.com/steelstore-ledger/internal/platform/persistence"
)

// LedgerRepository implements the ledger.Repository interface for PostgreSQL
type LedgerRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger repository.
// It expects db.Pool() to satisfy persistence.Querier.
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction so that deletes, inserts
// and balance rewrites of one repair commit atomically.
func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &LedgerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Append inserts a new ledger entry. The entry is validated first; the
// store never accepts a zero or negative amount.
func (r *LedgerRepository) Append(ctx context.Context, entry *ledger.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO ledger_entries (id, customer_id, entry_type, transaction_type, amount, reference_id, reference_number, balance_before, balance_after, occurred_at, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.querier.Exec(ctx, query,
		entry.ID,
		entry.CustomerID,
		entry.EntryType,
		entry.TransactionType,
		entry.Amount,
		entry.ReferenceID,
		entry.ReferenceNumber,
		entry.BalanceBefore,
		entry.BalanceAfter,
		entry.OccurredAt,
		entry.Notes,
		entry.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to append ledger entry", "error", err)
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return nil
}

// ListByCustomerID retrieves all entries for a customer in chronological
// order. The id tiebreak makes the order stable across re-reads, which the
// balance chain recomputation depends on.
func (r *LedgerRepository) ListByCustomerID(ctx context.Context, customerID uuid.UUID) ([]*ledger.Entry, error) {
	query := `
		SELECT id, customer_id, entry_type, transaction_type, amount, reference_id, reference_number, balance_before, balance_after, occurred_at, notes, created_at
		FROM ledger_entries
		WHERE customer_id = $1
		ORDER BY occurred_at ASC, created_at ASC, id ASC
	`

	rows, err := r.querier.Query(ctx, query, customerID)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "customerID", customerID.String(), "error", err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListByReference retrieves entries tracing back to one source record
func (r *LedgerRepository) ListByReference(ctx context.Context, customerID uuid.UUID, txType ledger.TransactionType, referenceID uuid.UUID) ([]*ledger.Entry, error) {
	query := `
		SELECT id, customer_id, entry_type, transaction_type, amount, reference_id, reference_number, balance_before, balance_after, occurred_at, notes, created_at
		FROM ledger_entries
		WHERE customer_id = $1 AND transaction_type = $2 AND reference_id = $3
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.querier.Query(ctx, query, customerID, txType, referenceID)
	if err != nil {
		r.logger.Error("Failed to list ledger entries by reference", "customerID", customerID.String(), "referenceID", referenceID.String(), "error", err)
		return nil, fmt.Errorf("failed to list ledger entries by reference: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Remove hard-deletes an entry. Returns ErrEntryNotFound when the entry
// does not exist, so a repair aborts instead of silently skipping.
func (r *LedgerRepository) Remove(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM ledger_entries
		WHERE id = $1
	`

	result, err := r.querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to remove ledger entry", "id", id.String(), "error", err)
		return fmt.Errorf("failed to remove ledger entry: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound{EntryID: id}
	}

	return nil
}

// UpdateBalances rewrites the balance snapshots of an existing entry
func (r *LedgerRepository) UpdateBalances(ctx context.Context, id uuid.UUID, before, after decimal.Decimal) error {
	query := `
		UPDATE ledger_entries
		SET balance_before = $1, balance_after = $2
		WHERE id = $3
	`

	result, err := r.querier.Exec(ctx, query, before, after, id)
	if err != nil {
		r.logger.Error("Failed to update ledger entry balances", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update ledger entry balances: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound{EntryID: id}
	}

	return nil
}

func scanEntries(rows pgx.Rows) ([]*ledger.Entry, error) {
	var entries []*ledger.Entry
	for rows.Next() {
		var e ledger.Entry
		if err := rows.Scan(
			&e.ID,
			&e.CustomerID,
			&e.EntryType,
			&e.TransactionType,
			&e.Amount,
			&e.ReferenceID,
			&e.ReferenceNumber,
			&e.BalanceBefore,
			&e.BalanceAfter,
			&e.OccurredAt,
			&e.Notes,
			&e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger entries: %w", err)
	}

	return entries, nil
}
