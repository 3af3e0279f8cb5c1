package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/steelstore-ledger/internal/domain/customer"
	"github.com/steelstore-ledger/internal/platform/persistence"
)

// CustomerRepository implements the customer.Repository interface for PostgreSQL
type CustomerRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

// NewCustomerRepository creates a new PostgreSQL customer repository
func NewCustomerRepository(logger *slog.Logger, db *persistence.PostgresDB) customer.Repository {
	return &CustomerRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx wraps the repository with a transaction
func (r *CustomerRepository) WithTx(tx pgx.Tx) customer.Repository {
	return &CustomerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new customer in the database
func (r *CustomerRepository) Create(ctx context.Context, cust *customer.Customer) error {
	query := `
		INSERT INTO customers (id, name, cached_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.querier.Exec(ctx, query,
		cust.ID,
		cust.Name,
		cust.CachedBalance,
		cust.CreatedAt,
		cust.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create customer", "error", err)
		return fmt.Errorf("failed to create customer: %w", err)
	}

	return nil
}

// GetByID retrieves a customer by its ID
func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	query := `
		SELECT id, name, cached_balance, created_at, updated_at
		FROM customers
		WHERE id = $1
	`

	var cust customer.Customer
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&cust.ID,
		&cust.Name,
		&cust.CachedBalance,
		&cust.CreatedAt,
		&cust.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrCustomerNotFound{CustomerID: id}
		}
		r.logger.Error("Failed to get customer", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return &cust, nil
}

// ListIDs returns every customer ID in a stable order for the batch sweep
func (r *CustomerRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT id
		FROM customers
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.querier.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list customer IDs", "error", err)
		return nil, fmt.Errorf("failed to list customer IDs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan customer ID: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read customer IDs: %w", err)
	}

	return ids, nil
}

// UpdateCachedBalance overwrites the denormalized balance
func (r *CustomerRepository) UpdateCachedBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	query := `
		UPDATE customers
		SET cached_balance = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, balance, id)
	if err != nil {
		r.logger.Error("Failed to update cached balance", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update cached balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		return customer.ErrCustomerNotFound{CustomerID: id}
	}

	return nil
}

// LockForUpdate obtains a pessimistic row lock on the customer and returns
// its current state. Must be used within a transaction; it serializes
// ledger writers and repairs touching the same customer.
func (r *CustomerRepository) LockForUpdate(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	query := `
		SELECT id, name, cached_balance, created_at, updated_at
		FROM customers
		WHERE id = $1
		FOR UPDATE
	`

	var cust customer.Customer
	err := r.querier.QueryRow(ctx, query, id).Scan(
		&cust.ID,
		&cust.Name,
		&cust.CachedBalance,
		&cust.CreatedAt,
		&cust.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrCustomerNotFound{CustomerID: id}
		}
		r.logger.Error("Failed to lock customer for update", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to lock customer for update: %w", err)
	}

	return &cust, nil
}
