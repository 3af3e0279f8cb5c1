package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/steelstore-ledger/internal/domain/ledger"
)

// OperationKind defines the corrective actions a repair plan can contain
type OperationKind string

const (
	OperationDelete OperationKind = "delete"
	OperationInsert OperationKind = "insert"
)

// Operation is one step of a repair plan
type Operation struct {
	Kind    OperationKind `json:"kind"`
	EntryID uuid.UUID     `json:"entry_id,omitempty"` // set for deletes
	Entry   *ledger.Entry `json:"entry,omitempty"`    // set for inserts; balances filled at apply time
	Reason  string        `json:"reason"`
}

// RepairPlan is an ordered sequence of corrective operations plus the
// cached balance the customer should end up with. Transient: produced by
// the planner, consumed by the applier.
type RepairPlan struct {
	CustomerID   uuid.UUID       `json:"customer_id"`
	Operations   []Operation     `json:"operations"`
	FinalBalance decimal.Decimal `json:"final_balance"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Empty reports whether the plan contains no operations
func (p *RepairPlan) Empty() bool {
	return len(p.Operations) == 0
}

// PlanRepair turns a discrepancy report into a corrective plan. Pure
// function over the report: same report, same operation sequence, which is
// what makes dry-run previews trustworthy. The mode only matters to the
// applier.
//
// Policy, in order of precedence:
//  1. Zero-amount entries are deleted; when the notes parse as a legacy
//     composite, two replacement adjustment entries (debit + credit) are
//     synthesized at the original timestamp.
//  2. Duplicates are deleted; the reconciler already kept the
//     earliest-created match out of the duplicate list.
//  3. Orphaned entries are deleted; they correspond to no real transaction.
//  4. Missing entries are synthesized from the invoice/payment records,
//     dated at the source record's timestamp so they land at the correct
//     chronological position.
//  5. The final balance is recomputed over the corrected entry set.
func PlanRepair(report *DiscrepancyReport) *RepairPlan {
	plan := &RepairPlan{
		CustomerID: report.CustomerID,
		CreatedAt:  time.Now(),
	}

	deleted := make(map[uuid.UUID]struct{})
	var inserts []*ledger.Entry

	for _, e := range report.ZeroAmountEntries {
		plan.addDelete(e.ID, "zero-amount entry", deleted)

		invAmount, payAmount, ok := ParseCompositeNotes(e.Notes)
		if !ok {
			continue
		}
		// Replacements are adjustments: the composite carried no reference
		// back to a real invoice or payment, so future audits must not
		// expect one.
		debit := synthesizeEntry(report.CustomerID, ledger.EntryTypeDebit, ledger.TransactionTypeAdjustment,
			invAmount, uuid.Nil, "", e.OccurredAt, "invoice portion recovered from composite entry")
		credit := synthesizeEntry(report.CustomerID, ledger.EntryTypeCredit, ledger.TransactionTypeAdjustment,
			payAmount, uuid.Nil, "", e.OccurredAt, "payment portion recovered from composite entry")

		inserts = append(inserts, debit, credit)
		plan.addInsert(debit, "replaces invoice portion of composite entry "+e.ID.String())
		plan.addInsert(credit, "replaces payment portion of composite entry "+e.ID.String())
	}

	for _, e := range report.DuplicateEntries {
		plan.addDelete(e.ID, "duplicate of earlier entry for "+string(e.TransactionType)+" "+e.ReferenceID.String(), deleted)
	}

	for _, e := range report.OrphanedDebitEntries {
		plan.addDelete(e.ID, "orphaned debit: no invoice "+e.ReferenceID.String(), deleted)
	}
	for _, e := range report.OrphanedCreditEntries {
		plan.addDelete(e.ID, "orphaned credit: no payment "+e.ReferenceID.String(), deleted)
	}

	for _, inv := range report.MissingInvoiceEntries {
		e := synthesizeEntry(report.CustomerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice,
			inv.GrandTotal, inv.ID, inv.InvoiceNumber, inv.CreatedAt, "backfilled from invoice "+inv.InvoiceNumber)
		inserts = append(inserts, e)
		plan.addInsert(e, "missing entry for invoice "+inv.InvoiceNumber)
	}
	for _, p := range report.MissingPaymentEntries {
		e := synthesizeEntry(report.CustomerID, ledger.EntryTypeCredit, ledger.TransactionTypePayment,
			p.Amount, p.ID, p.PaymentNumber, p.Date, "backfilled from payment "+p.PaymentNumber)
		inserts = append(inserts, e)
		plan.addInsert(e, "missing entry for payment "+p.PaymentNumber)
	}

	plan.FinalBalance = correctedBalance(report.Entries, deleted, inserts)

	return plan
}

func (p *RepairPlan) addDelete(id uuid.UUID, reason string, deleted map[uuid.UUID]struct{}) {
	if _, ok := deleted[id]; ok {
		return
	}
	deleted[id] = struct{}{}
	p.Operations = append(p.Operations, Operation{Kind: OperationDelete, EntryID: id, Reason: reason})
}

func (p *RepairPlan) addInsert(e *ledger.Entry, reason string) {
	p.Operations = append(p.Operations, Operation{Kind: OperationInsert, Entry: e, Reason: reason})
}

// correctedBalance computes the final balance over the entry set as it
// will look after the plan runs: current entries minus deletions plus
// synthesized inserts, in chronological order.
func correctedBalance(current []*ledger.Entry, deleted map[uuid.UUID]struct{}, inserts []*ledger.Entry) decimal.Decimal {
	merged := make([]*ledger.Entry, 0, len(current)+len(inserts))
	for _, e := range current {
		if _, ok := deleted[e.ID]; ok {
			continue
		}
		merged = append(merged, e)
	}
	merged = append(merged, inserts...)
	SortChronological(merged)
	return ComputeFinalBalance(merged)
}

func synthesizeEntry(customerID uuid.UUID, entryType ledger.EntryType, txType ledger.TransactionType,
	amount decimal.Decimal, referenceID uuid.UUID, referenceNumber string, occurredAt time.Time, notes string) *ledger.Entry {
	return &ledger.Entry{
		ID:              uuid.New(),
		CustomerID:      customerID,
		EntryType:       entryType,
		TransactionType: txType,
		Amount:          amount,
		ReferenceID:     referenceID,
		ReferenceNumber: referenceNumber,
		OccurredAt:      occurredAt,
		Notes:           notes,
		CreatedAt:       time.Now(),
	}
}
