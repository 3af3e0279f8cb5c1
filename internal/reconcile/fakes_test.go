package reconcile

import (
	"context"
	"log/slog"
	"os"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/steelstore-ledger/internal/domain/customer"
	"github.com/steelstore-ledger/internal/domain/invoice"
	"github.com/steelstore-ledger/internal/domain/ledger"
	"github.com/steelstore-ledger/internal/domain/payment"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeLedgerRepo is an in-memory ledger store with the repository's
// ordering contract, so applier tests exercise real merge behavior.
type fakeLedgerRepo struct {
	entries   map[uuid.UUID]*ledger.Entry
	appendErr error
	removeErr error
	updateErr error
}

func newFakeLedgerRepo() *fakeLedgerRepo {
	return &fakeLedgerRepo{entries: make(map[uuid.UUID]*ledger.Entry)}
}

func (f *fakeLedgerRepo) Append(_ context.Context, entry *ledger.Entry) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	if err := entry.Validate(); err != nil {
		return err
	}
	cp := *entry
	f.entries[entry.ID] = &cp
	return nil
}

func (f *fakeLedgerRepo) ListByCustomerID(_ context.Context, customerID uuid.UUID) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	for _, e := range f.entries {
		if e.CustomerID == customerID {
			cp := *e
			out = append(out, &cp)
		}
	}
	SortChronological(out)
	return out, nil
}

func (f *fakeLedgerRepo) ListByReference(_ context.Context, customerID uuid.UUID, txType ledger.TransactionType, referenceID uuid.UUID) ([]*ledger.Entry, error) {
	var out []*ledger.Entry
	for _, e := range f.entries {
		if e.CustomerID == customerID && e.TransactionType == txType && e.ReferenceID == referenceID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (f *fakeLedgerRepo) Remove(_ context.Context, id uuid.UUID) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	if _, ok := f.entries[id]; !ok {
		return ledger.ErrEntryNotFound{EntryID: id}
	}
	delete(f.entries, id)
	return nil
}

func (f *fakeLedgerRepo) UpdateBalances(_ context.Context, id uuid.UUID, before, after decimal.Decimal) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	e, ok := f.entries[id]
	if !ok {
		return ledger.ErrEntryNotFound{EntryID: id}
	}
	e.BalanceBefore = before
	e.BalanceAfter = after
	return nil
}

func (f *fakeLedgerRepo) WithTx(_ pgx.Tx) ledger.Repository { return f }

func (f *fakeLedgerRepo) snapshot() map[uuid.UUID]ledger.Entry {
	snap := make(map[uuid.UUID]ledger.Entry, len(f.entries))
	for id, e := range f.entries {
		snap[id] = *e
	}
	return snap
}

func (f *fakeLedgerRepo) restore(snap map[uuid.UUID]ledger.Entry) {
	f.entries = make(map[uuid.UUID]*ledger.Entry, len(snap))
	for id, e := range snap {
		cp := e
		f.entries[id] = &cp
	}
}

// fakeCustomerRepo is an in-memory customer store
type fakeCustomerRepo struct {
	customers map[uuid.UUID]*customer.Customer
	updateErr error
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{customers: make(map[uuid.UUID]*customer.Customer)}
}

func (f *fakeCustomerRepo) Create(_ context.Context, cust *customer.Customer) error {
	cp := *cust
	f.customers[cust.ID] = &cp
	return nil
}

func (f *fakeCustomerRepo) GetByID(_ context.Context, id uuid.UUID) (*customer.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return nil, customer.ErrCustomerNotFound{CustomerID: id}
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCustomerRepo) ListIDs(_ context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id := range f.customers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (f *fakeCustomerRepo) UpdateCachedBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	c, ok := f.customers[id]
	if !ok {
		return customer.ErrCustomerNotFound{CustomerID: id}
	}
	c.CachedBalance = balance
	return nil
}

func (f *fakeCustomerRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*customer.Customer, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeCustomerRepo) WithTx(_ pgx.Tx) customer.Repository { return f }

func (f *fakeCustomerRepo) snapshot() map[uuid.UUID]customer.Customer {
	snap := make(map[uuid.UUID]customer.Customer, len(f.customers))
	for id, c := range f.customers {
		snap[id] = *c
	}
	return snap
}

func (f *fakeCustomerRepo) restore(snap map[uuid.UUID]customer.Customer) {
	f.customers = make(map[uuid.UUID]*customer.Customer, len(snap))
	for id, c := range snap {
		cp := c
		f.customers[id] = &cp
	}
}

// fakeInvoiceRepo serves a fixed invoice list
type fakeInvoiceRepo struct {
	invoices []*invoice.Invoice
}

func (f *fakeInvoiceRepo) ListByCustomerID(_ context.Context, customerID uuid.UUID) ([]*invoice.Invoice, error) {
	var out []*invoice.Invoice
	for _, inv := range f.invoices {
		if inv.CustomerID == customerID {
			out = append(out, inv)
		}
	}
	return out, nil
}

// fakePaymentRepo serves a fixed payment list
type fakePaymentRepo struct {
	payments []*payment.Payment
}

func (f *fakePaymentRepo) ListByCustomerID(_ context.Context, customerID uuid.UUID) ([]*payment.Payment, error) {
	var out []*payment.Payment
	for _, p := range f.payments {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	return out, nil
}

// fakeTxRunner mimics transactional semantics for the in-memory fakes:
// the stores are snapshotted before the function runs and restored if it
// fails, so rollback behavior is observable in tests.
type fakeTxRunner struct {
	ledger    *fakeLedgerRepo
	customers *fakeCustomerRepo
}

func (f *fakeTxRunner) ExecuteTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	ledgerSnap := f.ledger.snapshot()
	customerSnap := f.customers.snapshot()

	if err := fn(nil); err != nil {
		f.ledger.restore(ledgerSnap)
		f.customers.restore(customerSnap)
		return err
	}
	return nil
}

// fakeHistory collects repair records
type fakeHistory struct {
	records []*RepairRecord
	err     error
}

func (f *fakeHistory) Record(_ context.Context, record *RepairRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}
