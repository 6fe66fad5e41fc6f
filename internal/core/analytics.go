package core

import (
	"fmt"
	"sort"
	"time"
)

type (
	// Entry is a transaction annotated with its owning debtor's display
	// name, the unit the analytics functions operate on.
	Entry struct {
		Transaction
		DebtorName string `json:"debtorName"`
	}

	// Totals is the sum of amounts partitioned by transaction kind.
	Totals struct {
		Debt    Money `json:"debt"`
		Payment Money `json:"payment"`
	}

	// MonthTotals are the per-kind sums for one calendar month.
	MonthTotals struct {
		Year  int        `json:"year"`
		Month time.Month `json:"month"`
		Totals
	}

	// Mismatch reports a debtor whose stored balance disagrees with the
	// balance recomputed from its transaction history.
	Mismatch struct {
		DebtorID   string
		Stored     Money
		Recomputed Money
	}
)

// Net is the signed balance implied by the totals: debt minus payment.
func (t Totals) Net() Money {
	return t.Debt.Sub(t.Payment)
}

// Label renders the month for display, most specific first, e.g. "April 2026".
func (m MonthTotals) Label() string {
	return fmt.Sprintf("%s %d", m.Month, m.Year)
}

// Flatten collects every transaction across all debtors, annotated with the
// debtor's name. The snapshot is borrowed read-only; Flatten never mutates it.
func Flatten(debtors []Debtor) []Entry {
	var entries []Entry
	for _, d := range debtors {
		for _, t := range d.Transactions {
			entries = append(entries, Entry{Transaction: t, DebtorName: d.Name})
		}
	}
	return entries
}

// FilterByRange keeps entries dated inside the inclusive [start, end] window.
// A zero start means from the beginning of time. A non-zero end includes the
// whole calendar day it falls on, so an entry at 23:59 on the end date stays in.
func FilterByRange(entries []Entry, start, end time.Time) []Entry {
	if !end.IsZero() {
		end = endOfDay(end)
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if !start.IsZero() && e.Date.Before(start) {
			continue
		}
		if !end.IsZero() && e.Date.After(end) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}

// Sum partitions the entries by kind and sums each side.
func Sum(entries []Entry) Totals {
	var t Totals
	for _, e := range entries {
		switch e.Kind {
		case Debt:
			t.Debt = t.Debt.Add(e.Amount)
		case Payment:
			t.Payment = t.Payment.Add(e.Amount)
		}
	}
	return t
}

// MonthlyBreakdown groups entries by calendar month and sums each group by
// kind, most recent month first.
func MonthlyBreakdown(entries []Entry) []MonthTotals {
	byMonth := make(map[int]*MonthTotals)
	for _, e := range entries {
		key := e.Date.Year()*100 + int(e.Date.Month())
		mt, ok := byMonth[key]
		if !ok {
			mt = &MonthTotals{Year: e.Date.Year(), Month: e.Date.Month()}
			byMonth[key] = mt
		}
		switch e.Kind {
		case Debt:
			mt.Debt = mt.Debt.Add(e.Amount)
		case Payment:
			mt.Payment = mt.Payment.Add(e.Amount)
		}
	}

	out := make([]MonthTotals, 0, len(byMonth))
	for _, mt := range byMonth {
		out = append(out, *mt)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out
}

// SortByDateDesc orders entries in place, most recent first.
func SortByDateDesc(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date.After(entries[j].Date) })
}

// DetailedList keeps only entries of one kind, sorted by date descending.
func DetailedList(entries []Entry, kind TransactionKind) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	SortByDateDesc(out)
	return out
}

// TotalReceivable sums the positive balances across the ledger: the amount
// currently owed to the merchant.
func TotalReceivable(debtors []Debtor) Money {
	var total Money
	for _, d := range debtors {
		if d.Balance.IsPositive() {
			total = total.Add(d.Balance)
		}
	}
	return total
}

// VerifyBalances recomputes every debtor's balance from its raw transaction
// history and reports any disagreement with the stored balance. On a complete,
// unfiltered snapshot the result must be empty; anything else means the store
// broke its consistency contract.
func VerifyBalances(debtors []Debtor) []Mismatch {
	var mismatches []Mismatch
	for _, d := range debtors {
		recomputed := RecomputeBalance(d.Transactions)
		if recomputed != d.Balance {
			mismatches = append(mismatches, Mismatch{
				DebtorID:   d.ID,
				Stored:     d.Balance,
				Recomputed: recomputed,
			})
		}
	}
	return mismatches
}

// RecomputeBalance folds a transaction history into the signed balance it
// implies: sum of debts minus sum of payments.
func RecomputeBalance(history []Transaction) Money {
	var balance Money
	for _, t := range history {
		balance = balance.Add(t.Kind.Signed(t.Amount))
	}
	return balance
}
