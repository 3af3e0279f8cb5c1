package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/steelstore-ledger/internal/domain/customer"
	"github.com/steelstore-ledger/internal/domain/ledger"
)

// Mode controls whether a repair plan is committed or only previewed
type Mode string

const (
	ModeDryRun  Mode = "dry_run"
	ModeExecute Mode = "execute"
)

// ParseMode validates a mode string from an API request
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDryRun, ModeExecute:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid repair mode %q: must be dry_run or execute", s)
	}
}

// ApplyResult summarizes an applied (or previewed) repair plan
type ApplyResult struct {
	Success      bool            `json:"success"`
	Mode         Mode            `json:"mode"`
	FixedCount   int             `json:"fixed_count"`
	FinalBalance decimal.Decimal `json:"final_balance"`
	Operations   []Operation     `json:"operations"`
}

// RepairRecord is the durable trace of one executed repair, written to the
// history store after commit. The history store maps it to its own
// storage shape; the decimal fields do not survive codecs that only see
// exported struct fields.
type RepairRecord struct {
	ID            uuid.UUID       `json:"id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	Deleted       int             `json:"deleted"`
	Inserted      int             `json:"inserted"`
	ResidualCount int             `json:"residual_count"`
	AppliedAt     time.Time       `json:"applied_at"`
}

// TxRunner abstracts transactional execution; satisfied by
// persistence.PostgresDB.
type TxRunner interface {
	ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// HistoryRecorder persists repair records; satisfied by the Mongo history
// repository. Recording is best-effort diagnostics, not part of the
// repair transaction.
type HistoryRecorder interface {
	Record(ctx context.Context, record *RepairRecord) error
}

// Applier executes repair plans. Execution is all-or-nothing: every
// delete, insert and the cached balance update commit together or not at
// all, and the full chronological balance chain is recomputed so the
// chain invariant holds for every surviving entry, not just new ones.
type Applier struct {
	txRunner   TxRunner
	entries    ledger.Repository
	customers  customer.Repository
	reconciler *Reconciler
	history    HistoryRecorder // may be nil
	locks      *KeyedMutex
	logger     *slog.Logger
}

// NewApplier creates an applier. history may be nil when no repair
// history store is configured.
func NewApplier(
	logger *slog.Logger,
	txRunner TxRunner,
	entries ledger.Repository,
	customers customer.Repository,
	reconciler *Reconciler,
	history HistoryRecorder,
	locks *KeyedMutex,
) *Applier {
	return &Applier{
		txRunner:   txRunner,
		entries:    entries,
		customers:  customers,
		reconciler: reconciler,
		history:    history,
		locks:      locks,
		logger:     logger,
	}
}

// Repair audits the customer, plans the repair and applies it, holding
// the customer's lock across the whole sequence. Auditing under the same
// lock that guards the apply means a ledger event landing mid-repair
// cannot stale the plan: a backfill planned before a concurrent append
// would otherwise insert a duplicate and fail its convergence audit.
// Plain audits stay lock-free; only the audit that drives a repair is
// taken under the lock.
func (a *Applier) Repair(ctx context.Context, customerID uuid.UUID, mode Mode) (*ApplyResult, error) {
	unlock := a.locks.Lock(customerID)
	defer unlock()

	report, err := a.reconciler.Audit(ctx, customerID)
	if err != nil {
		return nil, err
	}

	return a.applyLocked(ctx, PlanRepair(report), mode)
}

// Apply executes or previews a repair plan.
//
// Dry run returns the operations without touching the store. Execute runs
// deletes, then inserts with recomputed running balances, then the cached
// balance update in one transaction under the customer's lock; a failure
// at any step rolls everything back and surfaces as TransactionAbortError.
// After commit the customer is re-audited; residual discrepancies surface
// as RepairIncompleteError rather than a silent success.
//
// The plan is applied as given, so it can be stale by the time the lock
// is acquired. Callers repairing from a fresh audit should use Repair,
// which audits under the lock.
func (a *Applier) Apply(ctx context.Context, plan *RepairPlan, mode Mode) (*ApplyResult, error) {
	if mode == ModeDryRun {
		return a.applyLocked(ctx, plan, mode)
	}

	unlock := a.locks.Lock(plan.CustomerID)
	defer unlock()

	return a.applyLocked(ctx, plan, mode)
}

// applyLocked runs the plan; for execute mode the caller must hold the
// customer's keyed lock.
func (a *Applier) applyLocked(ctx context.Context, plan *RepairPlan, mode Mode) (*ApplyResult, error) {
	logger := a.logger.With("customer_id", plan.CustomerID.String(), "mode", string(mode))

	if mode == ModeDryRun {
		logger.Info("dry run: repair plan preview", "operations", len(plan.Operations))
		return &ApplyResult{
			Success:      true,
			Mode:         mode,
			FixedCount:   len(plan.Operations),
			FinalBalance: plan.FinalBalance,
			Operations:   plan.Operations,
		}, nil
	}

	var balanceBefore, balanceAfter decimal.Decimal

	err := a.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		entryRepo := a.entries.WithTx(tx)
		customerRepo := a.customers.WithTx(tx)

		cust, err := customerRepo.LockForUpdate(ctx, plan.CustomerID)
		if err != nil {
			return err
		}
		balanceBefore = cust.CachedBalance

		for _, op := range plan.Operations {
			if op.Kind != OperationDelete {
				continue
			}
			if err := entryRepo.Remove(ctx, op.EntryID); err != nil {
				return fmt.Errorf("failed to delete entry %s: %w", op.EntryID, err)
			}
		}

		// Rebuild the chronological chain over what survives plus what the
		// plan inserts, then persist: new entries get their computed
		// snapshots, existing entries whose snapshots shifted are rewritten.
		surviving, err := entryRepo.ListByCustomerID(ctx, plan.CustomerID)
		if err != nil {
			return fmt.Errorf("failed to reload entries: %w", err)
		}

		existing := make(map[uuid.UUID]struct{}, len(surviving))
		for _, e := range surviving {
			existing[e.ID] = struct{}{}
		}

		merged := make([]*ledger.Entry, 0, len(surviving)+len(plan.Operations))
		merged = append(merged, surviving...)
		for _, op := range plan.Operations {
			if op.Kind == OperationInsert {
				merged = append(merged, op.Entry)
			}
		}
		SortChronological(merged)

		balances, final := ComputeRunningBalances(merged)
		for i, e := range merged {
			newBefore, newAfter := balances[i].BalanceBefore, balances[i].BalanceAfter

			if _, ok := existing[e.ID]; !ok {
				e.BalanceBefore, e.BalanceAfter = newBefore, newAfter
				if err := entryRepo.Append(ctx, e); err != nil {
					return fmt.Errorf("failed to insert entry %s: %w", e.ID, err)
				}
				continue
			}
			if !e.BalanceBefore.Equal(newBefore) || !e.BalanceAfter.Equal(newAfter) {
				e.BalanceBefore, e.BalanceAfter = newBefore, newAfter
				if err := entryRepo.UpdateBalances(ctx, e.ID, newBefore, newAfter); err != nil {
					return fmt.Errorf("failed to update balances for entry %s: %w", e.ID, err)
				}
			}
		}

		if err := customerRepo.UpdateCachedBalance(ctx, plan.CustomerID, final); err != nil {
			return fmt.Errorf("failed to update cached balance: %w", err)
		}
		balanceAfter = final

		return nil
	})
	if err != nil {
		if errors.Is(err, customer.ErrCustomerNotFound{}) {
			return nil, err
		}
		logger.Error("repair transaction aborted, all changes rolled back", "error", err)
		return nil, &TransactionAbortError{CustomerID: plan.CustomerID, Cause: err}
	}

	result := &ApplyResult{
		Success:      true,
		Mode:         mode,
		FixedCount:   len(plan.Operations),
		FinalBalance: balanceAfter,
		Operations:   plan.Operations,
	}

	// Convergence check: the repair is only done if a fresh audit comes
	// back clean.
	residual, err := a.reconciler.Audit(ctx, plan.CustomerID)
	if err != nil {
		return result, fmt.Errorf("repair committed but verification audit failed: %w", err)
	}

	a.recordHistory(ctx, plan, balanceBefore, balanceAfter, residual.DiscrepancyCount())

	if !residual.Clean() {
		result.Success = false
		logger.Warn("repair committed but discrepancies remain",
			"residual", residual.DiscrepancyCount(),
			"balance_delta", residual.BalanceDelta.String(),
		)
		return result, &RepairIncompleteError{CustomerID: plan.CustomerID, Residual: residual}
	}

	logger.Info("repair applied",
		"fixed", result.FixedCount,
		"balance_before", balanceBefore.String(),
		"balance_after", balanceAfter.String(),
	)

	return result, nil
}

func (a *Applier) recordHistory(ctx context.Context, plan *RepairPlan, before, after decimal.Decimal, residual int) {
	if a.history == nil {
		return
	}

	var deleted, inserted int
	for _, op := range plan.Operations {
		switch op.Kind {
		case OperationDelete:
			deleted++
		case OperationInsert:
			inserted++
		}
	}

	record := &RepairRecord{
		ID:            uuid.New(),
		CustomerID:    plan.CustomerID,
		BalanceBefore: before,
		BalanceAfter:  after,
		Deleted:       deleted,
		Inserted:      inserted,
		ResidualCount: residual,
		AppliedAt:     time.Now(),
	}

	if err := a.history.Record(ctx, record); err != nil {
		a.logger.Warn("failed to record repair history",
			"customer_id", plan.CustomerID.String(),
			"error", err,
		)
	}
}
