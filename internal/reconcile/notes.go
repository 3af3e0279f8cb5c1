package reconcile

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseCompositeNotes recovers the true amounts from a legacy zero-amount
// composite entry. An old defect wrote a single entry with amount 0 and a
// note of the form:
//
//	"Invoice Rs.1500 + Payment Rs.1500"
//
// Keywords are case-insensitive and amounts may contain comma grouping.
// The grammar is deliberately this narrow; it is a one-time migration
// concern, not general note parsing.
func ParseCompositeNotes(notes string) (invoiceAmount, paymentAmount decimal.Decimal, ok bool) {
	parts := strings.Split(notes, "+")
	if len(parts) != 2 {
		return decimal.Zero, decimal.Zero, false
	}

	invoiceAmount, ok = parsePortion(parts[0], "invoice")
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	paymentAmount, ok = parsePortion(parts[1], "payment")
	if !ok {
		return decimal.Zero, decimal.Zero, false
	}
	if !invoiceAmount.IsPositive() || !paymentAmount.IsPositive() {
		return decimal.Zero, decimal.Zero, false
	}
	return invoiceAmount, paymentAmount, true
}

// parsePortion parses one side of the composite note: "<keyword> Rs.<amount>"
func parsePortion(s, keyword string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, keyword) {
		return decimal.Zero, false
	}
	rest := strings.TrimSpace(s[len(keyword):])
	lowerRest := strings.ToLower(rest)
	if !strings.HasPrefix(lowerRest, "rs.") {
		return decimal.Zero, false
	}
	raw := strings.TrimSpace(rest[len("rs."):])
	raw = strings.ReplaceAll(raw, ",", "")
	if raw == "" {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}
