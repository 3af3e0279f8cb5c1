package reconcile

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/steelstore-ledger/internal/domain/invoice"
	"github.com/steelstore-ledger/internal/domain/ledger"
	"github.com/steelstore-ledger/internal/domain/payment"
)

// DiscrepancyReport is the result of auditing one customer. It is
// transient: regenerated on each audit run, never persisted.
type DiscrepancyReport struct {
	CustomerID        uuid.UUID       `json:"customer_id"`
	CachedBalance     decimal.Decimal `json:"cached_balance"`
	CalculatedBalance decimal.Decimal `json:"calculated_balance"`
	// BalanceDelta is cached minus calculated; positive means the cached
	// balance overstates what the entries support.
	BalanceDelta decimal.Decimal `json:"balance_delta"`

	MissingInvoiceEntries []*invoice.Invoice `json:"missing_invoice_entries,omitempty"`
	MissingPaymentEntries []*payment.Payment `json:"missing_payment_entries,omitempty"`
	OrphanedDebitEntries  []*ledger.Entry    `json:"orphaned_debit_entries,omitempty"`
	OrphanedCreditEntries []*ledger.Entry    `json:"orphaned_credit_entries,omitempty"`
	DuplicateEntries      []*ledger.Entry    `json:"duplicate_entries,omitempty"`
	ZeroAmountEntries     []*ledger.Entry    `json:"zero_amount_entries,omitempty"`

	// Entries is the audited ledger snapshot in chronological order. The
	// repair planner builds its corrected entry set from this snapshot so
	// a plan is reproducible from the report alone.
	Entries []*ledger.Entry `json:"-"`

	AuditedAt time.Time `json:"audited_at"`
}

// DiscrepancyCount returns the number of individual defects found,
// excluding the balance delta.
func (r *DiscrepancyReport) DiscrepancyCount() int {
	return len(r.MissingInvoiceEntries) +
		len(r.MissingPaymentEntries) +
		len(r.OrphanedDebitEntries) +
		len(r.OrphanedCreditEntries) +
		len(r.DuplicateEntries) +
		len(r.ZeroAmountEntries)
}

// Clean reports whether the audit found nothing to repair. The balance
// delta is compared against the currency epsilon, not exact zero.
func (r *DiscrepancyReport) Clean() bool {
	return r.DiscrepancyCount() == 0 && AmountsEqual(r.BalanceDelta, decimal.Zero)
}
