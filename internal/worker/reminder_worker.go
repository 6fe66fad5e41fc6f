// Package worker runs the background side of the ledger: reacting to
// recorded transactions with payment reminders and periodically auditing the
// balance-consistency contract over the whole ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"daftar/internal/amqp"
	"daftar/internal/core"
	"daftar/internal/notify"
)

// DebtorReader is the slice of the ledger store the worker needs.
type DebtorReader interface {
	GetDebtor(ctx context.Context, id string) (core.Debtor, error)
	ListDebtors(ctx context.Context) ([]core.Debtor, error)
}

// ReminderWorker turns transaction-recorded events into payment reminders.
type ReminderWorker struct {
	store DebtorReader
}

func NewReminderWorker(store DebtorReader) *ReminderWorker {
	return &ReminderWorker{store: store}
}

// HandleTransactionRecorded processes a single recorded-transaction event.
// It refetches the debtor rather than trusting the message, verifies that the
// stored balance matches the history, and prepares a reminder link when the
// debtor still owes money.
func (w *ReminderWorker) HandleTransactionRecorded(ctx context.Context, msg *amqp.TransactionRecordedMessage) error {
	debtor, err := w.store.GetDebtor(ctx, msg.DebtorID)
	if err != nil {
		return fmt.Errorf("get debtor %s: %w", msg.DebtorID, err)
	}

	if recomputed := core.RecomputeBalance(debtor.Transactions); recomputed != debtor.Balance {
		// A mismatch here means the atomic append contract was broken
		// somewhere; surface loudly but keep consuming.
		slog.ErrorContext(ctx, "Balance mismatch detected",
			"debtor_id", debtor.ID,
			"stored", debtor.Balance.String(),
			"recomputed", recomputed.String())
	}

	if !debtor.Balance.IsPositive() {
		slog.DebugContext(ctx, "Debtor settled, no reminder needed",
			"debtor_id", debtor.ID,
			"balance", debtor.Balance.String())
		return nil
	}

	link, err := notify.PaymentReminder(debtor.Phone, debtor.Balance)
	if err != nil {
		if errors.Is(err, notify.ErrNoPhone) {
			slog.WarnContext(ctx, "Cannot prepare reminder, debtor has no phone",
				"debtor_id", debtor.ID)
			return nil
		}
		return fmt.Errorf("compose reminder for %s: %w", debtor.ID, err)
	}

	// Delivery is an external concern; the prepared link is what this
	// system owes the merchant.
	slog.InfoContext(ctx, "Payment reminder prepared",
		"debtor_id", debtor.ID,
		"balance", debtor.Balance.String(),
		"link", link)
	return nil
}

// AuditBalances recomputes every debtor's balance from its transaction
// history and logs any disagreement with the stored value. Returns the number
// of mismatches found.
func (w *ReminderWorker) AuditBalances(ctx context.Context) (int, error) {
	debtors, err := w.store.ListDebtors(ctx)
	if err != nil {
		return 0, fmt.Errorf("list debtors: %w", err)
	}

	mismatches := core.VerifyBalances(debtors)
	for _, m := range mismatches {
		slog.ErrorContext(ctx, "Ledger audit found balance mismatch",
			"debtor_id", m.DebtorID,
			"stored", m.Stored.String(),
			"recomputed", m.Recomputed.String())
	}
	if len(mismatches) == 0 {
		slog.InfoContext(ctx, "Ledger audit clean", "debtors", len(debtors))
	}
	return len(mismatches), nil
}
