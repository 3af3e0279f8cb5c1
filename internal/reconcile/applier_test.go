package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/steelstore-ledger/internal/domain/customer"
	"github.com/steelstore-ledger/internal/domain/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type applierFixture struct {
	*auditFixture
	history *fakeHistory
	locks   *KeyedMutex
	applier *Applier
}

func newApplierFixture(t *testing.T, cachedBalance decimal.Decimal) *applierFixture {
	t.Helper()
	audit := newAuditFixture(t, cachedBalance)
	history := &fakeHistory{}
	locks := NewKeyedMutex()
	txRunner := &fakeTxRunner{ledger: audit.entries, customers: audit.customers}

	applier := NewApplier(
		newTestLogger(),
		txRunner,
		audit.entries,
		audit.customers,
		audit.reconciler,
		history,
		locks,
	)

	return &applierFixture{auditFixture: audit, history: history, locks: locks, applier: applier}
}

// assertChainIntact checks the running-balance invariant over the stored
// entries: first entry starts at zero and each entry links to the next.
func assertChainIntact(t *testing.T, f *applierFixture) {
	t.Helper()
	entries, err := f.entries.ListByCustomerID(context.Background(), f.customerID)
	require.NoError(t, err)

	for i, e := range entries {
		if i == 0 {
			assert.True(t, e.BalanceBefore.IsZero(), "first entry must start at zero, got %s", e.BalanceBefore)
		} else {
			assert.True(t, e.BalanceBefore.Equal(entries[i-1].BalanceAfter),
				"chain broken at entry %d: before %s, previous after %s", i, e.BalanceBefore, entries[i-1].BalanceAfter)
		}
		assert.True(t, e.BalanceAfter.Equal(e.BalanceBefore.Add(e.SignedAmount())),
			"entry %d snapshot inconsistent with its own amount", i)
	}
}

func TestApplier_DryRunDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	f := newApplierFixture(t, decimal.NewFromInt(2000))

	inv := f.addInvoice(t, 1000, base)
	original := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1000, inv.ID, base)
	duplicate := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1000, inv.ID, base)
	duplicate.CreatedAt = base.Add(time.Minute)
	f.addEntry(t, original)
	f.addEntry(t, duplicate)

	report, err := f.reconciler.Audit(ctx, f.customerID)
	require.NoError(t, err)
	plan := PlanRepair(report)
	require.False(t, plan.Empty())

	result, err := f.applier.Apply(ctx, plan, ModeDryRun)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, ModeDryRun, result.Mode)
	assert.Equal(t, len(plan.Operations), result.FixedCount)

	// Nothing changed: both entries still present, cached balance untouched
	entries, err := f.entries.ListByCustomerID(ctx, f.customerID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	cust, err := f.customers.GetByID(ctx, f.customerID)
	require.NoError(t, err)
	assert.True(t, cust.CachedBalance.Equal(decimal.NewFromInt(2000)))
	assert.Empty(t, f.history.records, "dry runs are not recorded")
}

func TestApplier_ExecuteRemovesDuplicate(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	f := newApplierFixture(t, decimal.NewFromInt(2000))

	inv := f.addInvoice(t, 1000, base)
	original := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1000, inv.ID, base)
	duplicate := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1000, inv.ID, base)
	duplicate.CreatedAt = base.Add(time.Minute)
	f.addEntry(t, original)
	f.addEntry(t, duplicate)

	report, err := f.reconciler.Audit(ctx, f.customerID)
	require.NoError(t, err)
	plan := PlanRepair(report)

	result, err := f.applier.Apply(ctx, plan, ModeExecute)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.FinalBalance.Equal(decimal.NewFromInt(1000)))

	entries, err := f.entries.ListByCustomerID(ctx, f.customerID)
	require.NoError(t, err)
	require.Len(t, entries, 1, "exactly one of the two duplicates is deleted")
	assert.Equal(t, original.ID, entries[0].ID, "the earliest-created entry survives")

	cust, err := f.customers.GetByID(ctx, f.customerID)
	require.NoError(t, err)
	assert.True(t, cust.CachedBalance.Equal(decimal.NewFromInt(1000)))

	assertChainIntact(t, f)
	require.Len(t, f.history.records, 1)
	assert.Equal(t, 1, f.history.records[0].Deleted)
	assert.Equal(t, 0, f.history.records[0].ResidualCount)
}

func TestApplier_ExecuteFixesStaleCachedBalance(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	f := newApplierFixture(t, decimal.NewFromInt(1200))

	inv := f.addInvoice(t, 1000, base)
	e := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1000, inv.ID, base)
	e.BalanceAfter = decimal.NewFromInt(1000)
	f.addEntry(t, e)

	report, err := f.reconciler.Audit(ctx, f.customerID)
	require.NoError(t, err)
	assert.True(t, report.BalanceDelta.Equal(decimal.NewFromInt(200)))

	plan := PlanRepair(report)
	assert.True(t, plan.Empty(), "a stale cached balance needs no entry operations")

	result, err := f.applier.Apply(ctx, plan, ModeExecute)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.FinalBalance.Equal(decimal.NewFromInt(1000)))

	cust, err := f.customers.GetByID(ctx, f.customerID)
	require.NoError(t, err)
	assert.True(t, cust.CachedBalance.Equal(decimal.NewFromInt(1000)))
}

func TestApplier_ExecuteReplacesCompositeEntry(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	f := newApplierFixture(t, decimal.NewFromInt(500))

	zero := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeAdjustment, 0, uuid.Nil, base)
	zero.Notes = "Invoice Rs.500 + Payment Rs.500"
	f.addEntry(t, zero)

	report, err := f.reconciler.Audit(ctx, f.customerID)
	require.NoError(t, err)
	plan := PlanRepair(report)
	require.Len(t, plan.Operations, 3)

	result, err := f.applier.Apply(ctx, plan, ModeExecute)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.FinalBalance.IsZero(), "500 debit and 500 credit cancel out")

	entries, err := f.entries.ListByCustomerID(ctx, f.customerID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.False(t, e.Amount.IsZero(), "no zero-amount entry survives a repair")
		assert.Equal(t, ledger.TransactionTypeAdjustment, e.TransactionType)
	}
	assertChainIntact(t, f)
}

func TestApplier_ExecuteBackfillsMissingEntryMidChain(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	f := newApplierFixture(t, decimal.NewFromInt(900))

	// The ledger already has entries before and after the gap; the
	// backfilled payment must land between them and the whole chain must
	// be rewritten, not just appended to.
	inv := f.addInvoice(t, 1500, base)
	pay := f.addPayment(t, 600, base.Add(time.Hour))
	inv2 := f.addInvoice(t, 300, base.Add(2*time.Hour))

	e1 := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1500, inv.ID, base)
	e3 := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 300, inv2.ID, base.Add(2*time.Hour))
	f.addEntry(t, e1)
	f.addEntry(t, e3)

	report, err := f.reconciler.Audit(ctx, f.customerID)
	require.NoError(t, err)
	require.Len(t, report.MissingPaymentEntries, 1)
	assert.Equal(t, pay.ID, report.MissingPaymentEntries[0].ID)

	plan := PlanRepair(report)
	result, err := f.applier.Apply(ctx, plan, ModeExecute)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.FinalBalance.Equal(decimal.NewFromInt(1200)), "got %s", result.FinalBalance)

	entries, err := f.entries.ListByCustomerID(ctx, f.customerID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, e1.ID, entries[0].ID)
	assert.Equal(t, pay.ID, entries[1].ReferenceID, "backfilled credit sits mid-chain")
	assert.Equal(t, e3.ID, entries[2].ID)

	// e3's snapshots shifted: 1500 -> 900 after the credit, then +300
	assert.True(t, entries[2].BalanceBefore.Equal(decimal.NewFromInt(900)))
	assert.True(t, entries[2].BalanceAfter.Equal(decimal.NewFromInt(1200)))
	assertChainIntact(t, f)
}

func TestApplier_ExecuteRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	f := newApplierFixture(t, decimal.NewFromInt(2000))

	inv := f.addInvoice(t, 1000, base)
	original := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1000, inv.ID, base)
	duplicate := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1000, inv.ID, base)
	duplicate.CreatedAt = base.Add(time.Minute)
	f.addEntry(t, original)
	f.addEntry(t, duplicate)

	report, err := f.reconciler.Audit(ctx, f.customerID)
	require.NoError(t, err)
	plan := PlanRepair(report)

	boom := errors.New("disk full")
	f.customers.updateErr = boom

	_, err = f.applier.Apply(ctx, plan, ModeExecute)
	require.Error(t, err)
	var abortErr *TransactionAbortError
	require.ErrorAs(t, err, &abortErr)
	assert.Equal(t, f.customerID, abortErr.CustomerID)
	assert.ErrorIs(t, err, boom)

	// Rolled back: the duplicate is still there, cached balance untouched
	entries, err := f.entries.ListByCustomerID(ctx, f.customerID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	cust, err := f.customers.GetByID(ctx, f.customerID)
	require.NoError(t, err)
	assert.True(t, cust.CachedBalance.Equal(decimal.NewFromInt(2000)))
}

func TestApplier_ExecuteReportsResidualDiscrepancies(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	f := newApplierFixture(t, decimal.Zero)

	// The invoice has no ledger entry, but the plan being applied is
	// empty (e.g. built from a stale report), so the post-repair audit
	// still finds the missing entry.
	f.addInvoice(t, 1000, base)
	plan := &RepairPlan{CustomerID: f.customerID, CreatedAt: time.Now()}

	result, err := f.applier.Apply(ctx, plan, ModeExecute)
	require.Error(t, err)
	var incompleteErr *RepairIncompleteError
	require.ErrorAs(t, err, &incompleteErr)
	assert.Equal(t, 1, incompleteErr.Residual.DiscrepancyCount())
	require.NotNil(t, result)
	assert.False(t, result.Success)

	require.Len(t, f.history.records, 1)
	assert.Equal(t, 1, f.history.records[0].ResidualCount)
}

func TestApplier_ExecuteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	f := newApplierFixture(t, decimal.NewFromInt(2000))

	inv := f.addInvoice(t, 1000, base)
	original := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1000, inv.ID, base)
	duplicate := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1000, inv.ID, base)
	duplicate.CreatedAt = base.Add(time.Minute)
	f.addEntry(t, original)
	f.addEntry(t, duplicate)

	report, err := f.reconciler.Audit(ctx, f.customerID)
	require.NoError(t, err)
	plan := PlanRepair(report)
	_, err = f.applier.Apply(ctx, plan, ModeExecute)
	require.NoError(t, err)

	// A second audit of the now-consistent ledger yields an empty plan,
	// and applying it changes nothing.
	report2, err := f.reconciler.Audit(ctx, f.customerID)
	require.NoError(t, err)
	assert.True(t, report2.Clean())
	plan2 := PlanRepair(report2)
	assert.True(t, plan2.Empty())

	result, err := f.applier.Apply(ctx, plan2, ModeExecute)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.FixedCount)

	entries, err := f.entries.ListByCustomerID(ctx, f.customerID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	cust, err := f.customers.GetByID(ctx, f.customerID)
	require.NoError(t, err)
	assert.True(t, cust.CachedBalance.Equal(decimal.NewFromInt(1000)))
}

func TestApplier_RepairRemovesDuplicate(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	f := newApplierFixture(t, decimal.NewFromInt(2000))

	inv := f.addInvoice(t, 1000, base)
	original := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1000, inv.ID, base)
	duplicate := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1000, inv.ID, base)
	duplicate.CreatedAt = base.Add(time.Minute)
	f.addEntry(t, original)
	f.addEntry(t, duplicate)

	result, err := f.applier.Repair(ctx, f.customerID, ModeExecute)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.FinalBalance.Equal(decimal.NewFromInt(1000)))

	entries, err := f.entries.ListByCustomerID(ctx, f.customerID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, original.ID, entries[0].ID)
	assertChainIntact(t, f)
}

func TestApplier_RepairDryRunDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	f := newApplierFixture(t, decimal.Zero)

	inv := f.addInvoice(t, 750, base)

	result, err := f.applier.Repair(ctx, f.customerID, ModeDryRun)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.FixedCount, "the missing invoice entry is planned as a backfill")

	entries, err := f.entries.ListByCustomerID(ctx, f.customerID)
	require.NoError(t, err)
	assert.Empty(t, entries, "dry run never writes the backfill for invoice %s", inv.ID)
	assert.Empty(t, f.history.records)
}

func TestApplier_RepairAuditsUnderCustomerLock(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)
	f := newApplierFixture(t, decimal.Zero)

	// An invoice with no ledger entry: a repair planned right now would
	// backfill it.
	inv := f.addInvoice(t, 1000, base)

	// Hold the customer's lock and let a live event win the race: the
	// entry is appended while the repair waits. The repair must take its
	// audit after acquiring the lock, see the appended entry and plan
	// nothing, instead of inserting a duplicate from a plan built
	// against the pre-append ledger.
	unlock := f.locks.Lock(f.customerID)

	done := make(chan struct{})
	var result *ApplyResult
	var repairErr error
	go func() {
		defer close(done)
		result, repairErr = f.applier.Repair(ctx, f.customerID, ModeExecute)
	}()

	entry := entryFor(f.customerID, ledger.EntryTypeDebit, ledger.TransactionTypeInvoice, 1000, inv.ID, base)
	entry.BalanceAfter = decimal.NewFromInt(1000)
	f.addEntry(t, entry)
	require.NoError(t, f.customers.UpdateCachedBalance(ctx, f.customerID, decimal.NewFromInt(1000)))

	unlock()
	<-done

	require.NoError(t, repairErr)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.FixedCount, "the audit ran after the append, so nothing was left to fix")

	entries, err := f.entries.ListByCustomerID(ctx, f.customerID)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no duplicate backfill for the already-appended entry")
	assertChainIntact(t, f)
}

func TestApplier_RepairSurfacesAuditFailure(t *testing.T) {
	ctx := context.Background()
	f := newApplierFixture(t, decimal.Zero)

	unknownID := uuid.New()
	_, err := f.applier.Repair(ctx, unknownID, ModeExecute)
	require.Error(t, err)
	assert.ErrorIs(t, err, customer.ErrCustomerNotFound{})
}
