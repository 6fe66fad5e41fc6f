package worker

import (
	"context"
	"testing"
	"time"

	"daftar/internal/amqp"
	"daftar/internal/core"
)

type fakeStore struct {
	debtors map[string]core.Debtor
	err     error
}

func (f *fakeStore) GetDebtor(ctx context.Context, id string) (core.Debtor, error) {
	if f.err != nil {
		return core.Debtor{}, f.err
	}
	d, ok := f.debtors[id]
	if !ok {
		return core.Debtor{}, core.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) ListDebtors(ctx context.Context) ([]core.Debtor, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]core.Debtor, 0, len(f.debtors))
	for _, d := range f.debtors {
		out = append(out, d)
	}
	return out, nil
}

func debtorWithHistory(id string, phone string, cents int64) core.Debtor {
	kind := core.Debt
	amount := core.Money{Cents: cents}
	if cents < 0 {
		kind = core.Payment
		amount = core.Money{Cents: -cents}
	}
	return core.Debtor{
		ID:      id,
		Name:    "Ali",
		Phone:   phone,
		Balance: core.Money{Cents: cents},
		Transactions: []core.Transaction{
			{ID: "t1", DebtorID: id, Amount: amount, Kind: kind, Date: time.Now()},
		},
	}
}

func TestHandleTransactionRecorded(t *testing.T) {
	store := &fakeStore{debtors: map[string]core.Debtor{
		"d-1": debtorWithHistory("d-1", "+992901234567", 15000),
	}}
	w := NewReminderWorker(store)

	msg := amqp.NewTransactionRecordedMessage("t1", "d-1")
	if err := w.HandleTransactionRecorded(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHandleTransactionRecordedMissingDebtor(t *testing.T) {
	w := NewReminderWorker(&fakeStore{debtors: map[string]core.Debtor{}})
	msg := amqp.NewTransactionRecordedMessage("t1", "missing")
	if err := w.HandleTransactionRecorded(context.Background(), msg); err == nil {
		t.Fatal("expected error for unknown debtor")
	}
}

func TestHandleTransactionRecordedNoPhoneIsNotFatal(t *testing.T) {
	// A debtor without a phone cannot be reminded, but the message must
	// still be acknowledged rather than requeued forever.
	store := &fakeStore{debtors: map[string]core.Debtor{
		"d-1": debtorWithHistory("d-1", "", 15000),
	}}
	w := NewReminderWorker(store)

	msg := amqp.NewTransactionRecordedMessage("t1", "d-1")
	if err := w.HandleTransactionRecorded(context.Background(), msg); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestHandleTransactionRecordedSettledDebtor(t *testing.T) {
	store := &fakeStore{debtors: map[string]core.Debtor{
		"d-1": debtorWithHistory("d-1", "+992901234567", -5000),
	}}
	w := NewReminderWorker(store)

	msg := amqp.NewTransactionRecordedMessage("t1", "d-1")
	if err := w.HandleTransactionRecorded(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAuditBalances(t *testing.T) {
	clean := debtorWithHistory("d-1", "", 1000)
	broken := debtorWithHistory("d-2", "", 1000)
	broken.Balance = core.Money{Cents: 9999}

	w := NewReminderWorker(&fakeStore{debtors: map[string]core.Debtor{
		"d-1": clean,
		"d-2": broken,
	}})

	n, err := w.AuditBalances(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 mismatch, got %d", n)
	}
}

func TestAuditBalancesStoreFailure(t *testing.T) {
	w := NewReminderWorker(&fakeStore{err: core.ErrUnavailable})
	if _, err := w.AuditBalances(context.Background()); err == nil {
		t.Fatal("expected error when the store is unavailable")
	}
}
