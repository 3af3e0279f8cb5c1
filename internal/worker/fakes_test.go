package worker

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
	"github.com/steelstore-ledger/internal/reconcile"
	"github.com/stretchr/testify/mock"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type fakeLedgerRepo struct {
	entries   map[uuid.UUID]*ledger.Entry
	appendErr error
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
	reconcile.SortChronological(out)
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
	if _, ok := f.entries[id]; !ok {
		return ledger.ErrEntryNotFound{EntryID: id}
	}
	delete(f.entries, id)
	return nil
}

func (f *fakeLedgerRepo) UpdateBalances(_ context.Context, id uuid.UUID, before, after decimal.Decimal) error {
	e, ok := f.entries[id]
	if !ok {
		return ledger.ErrEntryNotFound{EntryID: id}
	}
	e.BalanceBefore = before
	e.BalanceAfter = after
	return nil
}

func (f *fakeLedgerRepo) WithTx(_ pgx.Tx) ledger.Repository { return f }

type fakeCustomerRepo struct {
	customers map[uuid.UUID]*customer.Customer
	listErr   error
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
	if f.listErr != nil {
		return nil, f.listErr
	}
	var ids []uuid.UUID
	for id := range f.customers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (f *fakeCustomerRepo) UpdateCachedBalance(_ context.Context, id uuid.UUID, balance decimal.Decimal) error {
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

// fakeTxRunner runs the function directly; the in-memory fakes have no
// real transactions to roll back.
type fakeTxRunner struct{}

func (f *fakeTxRunner) ExecuteTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	return fn(nil)
}

type mockDLQProducer struct {
	mock.Mock
}

func (m *mockDLQProducer) PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error {
	args := m.Called(ctx, key, originalMessageValue, reason)
	return args.Error(0)
}

func (m *mockDLQProducer) Close() error {
	args := m.Called()
	return args.Error(0)
}
