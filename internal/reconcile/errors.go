package reconcile

import (
	"fmt"

	"github.com/google/uuid"
)

// RepairIncompleteError indicates a post-repair audit still found
// discrepancies. The residual report is attached so the caller can retry
// or escalate to manual review.
type RepairIncompleteError struct {
	CustomerID uuid.UUID
	Residual   *DiscrepancyReport
}

func (e *RepairIncompleteError) Error() string {
	return fmt.Sprintf("repair incomplete for customer %s: %d residual discrepancies, balance delta %s",
		e.CustomerID, e.Residual.DiscrepancyCount(), e.Residual.BalanceDelta)
}

// TransactionAbortError indicates a failure mid-apply. All changes for the
// customer were rolled back; no partial repair survives.
type TransactionAbortError struct {
	CustomerID uuid.UUID
	Cause      error
}

func (e *TransactionAbortError) Error() string {
	return fmt.Sprintf("repair transaction aborted for customer %s: %v", e.CustomerID, e.Cause)
}

func (e *TransactionAbortError) Unwrap() error {
	return e.Cause
}
