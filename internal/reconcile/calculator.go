package reconcile

import (
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/steelstore-ledger/internal/domain/ledger"
)

// currencyEpsilon is the tolerance for amount comparisons. Amounts within
// 0.01 of each other are treated as equal; summation itself is exact.
var currencyEpsilon = decimal.New(1, -2)

// RunningBalance pairs an entry with its recomputed balance snapshots
type RunningBalance struct {
	EntryID       uuid.UUID
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
}

// SortChronological orders entries in place by (occurred_at, created_at, id),
// the canonical ledger order. The ID tiebreak keeps the order stable when
// two entries share a timestamp.
func SortChronological(entries []*ledger.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.Before(b.OccurredAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

// ComputeRunningBalances derives ground-truth balances from an ordered entry
// stream. The balance starts at zero; each debit adds its amount and each
// credit subtracts it. Returns the per-entry snapshots and the final balance.
// Pure function: no I/O, no mutation of the input.
func ComputeRunningBalances(entries []*ledger.Entry) ([]RunningBalance, decimal.Decimal) {
	balances := make([]RunningBalance, 0, len(entries))
	balance := decimal.Zero

	for _, e := range entries {
		before := balance
		balance = balance.Add(e.SignedAmount())
		balances = append(balances, RunningBalance{
			EntryID:       e.ID,
			BalanceBefore: before,
			BalanceAfter:  balance,
		})
	}

	return balances, balance
}

// ComputeFinalBalance returns only the final scalar. An empty entry
// sequence yields zero.
func ComputeFinalBalance(entries []*ledger.Entry) decimal.Decimal {
	_, final := ComputeRunningBalances(entries)
	return final
}

// AmountsEqual reports whether two amounts match within the currency epsilon
func AmountsEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(currencyEpsilon)
}
