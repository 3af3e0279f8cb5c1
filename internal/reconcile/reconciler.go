package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/steelstore-ledger/internal/domain/customer"
	"github.com/steelstore-ledger/internal/domain/invoice"
	"github.com/steelstore-ledger/internal/domain/ledger"
	"github.com/steelstore-ledger/internal/domain/payment"
)

// Reconciler detects divergence between a customer's declared state (cached
// balance, existing entries) and ground truth derived from the raw invoice
// and payment records. Audits are read-only and safe to run concurrently
// for different customers.
type Reconciler struct {
	customers customer.Repository
	invoices  invoice.Repository
	payments  payment.Repository
	entries   ledger.Repository
	logger    *slog.Logger
}

// NewReconciler creates a reconciler over the given stores
func NewReconciler(
	logger *slog.Logger,
	customers customer.Repository,
	invoices invoice.Repository,
	payments payment.Repository,
	entries ledger.Repository,
) *Reconciler {
	return &Reconciler{
		customers: customers,
		invoices:  invoices,
		payments:  payments,
		entries:   entries,
		logger:    logger,
	}
}

// Audit produces a discrepancy report for one customer. Returns
// customer.ErrCustomerNotFound for unknown customers.
//
// An audit racing an in-flight repair for the same customer may report
// transient false positives; callers that intend to repair should audit
// under the same per-customer lock the applier takes.
func (r *Reconciler) Audit(ctx context.Context, customerID uuid.UUID) (*DiscrepancyReport, error) {
	cust, err := r.customers.GetByID(ctx, customerID)
	if err != nil {
		return nil, err
	}

	invoices, err := r.invoices.ListByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoices for audit: %w", err)
	}

	payments, err := r.payments.ListByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load payments for audit: %w", err)
	}

	entries, err := r.entries.ListByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger entries for audit: %w", err)
	}

	report := &DiscrepancyReport{
		CustomerID:    customerID,
		CachedBalance: cust.CachedBalance,
		Entries:       entries,
		AuditedAt:     time.Now(),
	}

	// Zero-amount entries are defects unconditionally and are excluded
	// from reference matching: their replacements come from the legacy
	// composite notes, not from the invoice/payment records.
	matchable := make([]*ledger.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Amount.IsZero() {
			report.ZeroAmountEntries = append(report.ZeroAmountEntries, e)
			continue
		}
		matchable = append(matchable, e)
	}

	r.matchInvoices(report, invoices, matchable)
	r.matchPayments(report, payments, matchable)
	r.findOrphans(report, invoices, payments, matchable)

	report.CalculatedBalance = ComputeFinalBalance(entries)
	report.BalanceDelta = report.CachedBalance.Sub(report.CalculatedBalance)

	r.logger.Debug("audit completed",
		"customer_id", customerID.String(),
		"entries", len(entries),
		"discrepancies", report.DiscrepancyCount(),
		"balance_delta", report.BalanceDelta.String(),
	)

	return report, nil
}

// matchInvoices expects exactly one debit entry per invoice. No entry means
// the invoice is missing from the ledger; extras beyond the earliest-created
// one are duplicates.
func (r *Reconciler) matchInvoices(report *DiscrepancyReport, invoices []*invoice.Invoice, entries []*ledger.Entry) {
	for _, inv := range invoices {
		var matches []*ledger.Entry
		for _, e := range entries {
			if e.EntryType == ledger.EntryTypeDebit &&
				e.TransactionType == ledger.TransactionTypeInvoice &&
				e.ReferenceID == inv.ID {
				matches = append(matches, e)
			}
		}
		switch {
		case len(matches) == 0:
			report.MissingInvoiceEntries = append(report.MissingInvoiceEntries, inv)
		case len(matches) > 1:
			report.DuplicateEntries = append(report.DuplicateEntries, extraMatches(matches)...)
		}
	}
}

// matchPayments is the symmetric check for credit entries against payments
func (r *Reconciler) matchPayments(report *DiscrepancyReport, payments []*payment.Payment, entries []*ledger.Entry) {
	for _, p := range payments {
		var matches []*ledger.Entry
		for _, e := range entries {
			if e.EntryType == ledger.EntryTypeCredit &&
				e.TransactionType == ledger.TransactionTypePayment &&
				e.ReferenceID == p.ID {
				matches = append(matches, e)
			}
		}
		switch {
		case len(matches) == 0:
			report.MissingPaymentEntries = append(report.MissingPaymentEntries, p)
		case len(matches) > 1:
			report.DuplicateEntries = append(report.DuplicateEntries, extraMatches(matches)...)
		}
	}
}

// findOrphans flags entries whose reference points at no existing source
// record. Adjustment entries are exempt: they have no independent record
// to reconcile against.
func (r *Reconciler) findOrphans(report *DiscrepancyReport, invoices []*invoice.Invoice, payments []*payment.Payment, entries []*ledger.Entry) {
	invoiceIDs := make(map[uuid.UUID]struct{}, len(invoices))
	for _, inv := range invoices {
		invoiceIDs[inv.ID] = struct{}{}
	}
	paymentIDs := make(map[uuid.UUID]struct{}, len(payments))
	for _, p := range payments {
		paymentIDs[p.ID] = struct{}{}
	}

	for _, e := range entries {
		switch e.TransactionType {
		case ledger.TransactionTypeInvoice:
			if _, ok := invoiceIDs[e.ReferenceID]; !ok && e.EntryType == ledger.EntryTypeDebit {
				report.OrphanedDebitEntries = append(report.OrphanedDebitEntries, e)
			}
		case ledger.TransactionTypePayment:
			if _, ok := paymentIDs[e.ReferenceID]; !ok && e.EntryType == ledger.EntryTypeCredit {
				report.OrphanedCreditEntries = append(report.OrphanedCreditEntries, e)
			}
		}
	}
}

// extraMatches returns all but the earliest-created match. The survivor is
// the canonical entry; creation time breaks the tie, entry ID breaks equal
// creation times so the choice is deterministic.
func extraMatches(matches []*ledger.Entry) []*ledger.Entry {
	sorted := make([]*ledger.Entry, len(matches))
	copy(sorted, matches)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID.String() < sorted[j].ID.String()
	})
	return sorted[1:]
}
