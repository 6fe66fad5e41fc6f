package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// Debt increases a debtor's balance (the merchant extended credit).
	Debt TransactionKind = "DEBT"
	// Payment decreases a debtor's balance (the debtor paid down credit).
	Payment TransactionKind = "PAYMENT"
)

type (
	TransactionKind string

	// Transaction is a single recorded debt or payment event against one
	// debtor. Immutable once created.
	Transaction struct {
		ID          string          `json:"id"`
		DebtorID    string          `json:"debtorId"`
		Amount      Money           `json:"amount"`
		Kind        TransactionKind `json:"type"`
		Description string          `json:"description,omitempty"`
		Date        time.Time       `json:"date"`
		CreatedBy   string          `json:"createdBy"`
	}

	// Debtor is a customer who owes or has owed money to the merchant.
	// Balance is the signed running total derived from the transaction
	// history and must always equal the signed sum of Transactions.
	Debtor struct {
		ID           string        `json:"id"`
		Name         string        `json:"name"`
		Phone        string        `json:"phone"`
		Balance      Money         `json:"balance"`
		LastActivity time.Time     `json:"lastActivity"`
		CreatedBy    string        `json:"createdBy"`
		Transactions []Transaction `json:"transactions"`
	}

	// NewDebtor carries the caller-supplied fields for creating a debtor.
	// ID is optional; when set it acts as an idempotency key and a
	// duplicate is rejected with ErrConflict by the store.
	NewDebtor struct {
		ID        string
		Name      string
		Phone     string
		CreatedBy string
	}

	// NewTransaction carries the caller-supplied fields for appending a
	// transaction to a debtor's history. A zero Date means "now".
	NewTransaction struct {
		ID          string
		DebtorID    string
		Amount      Money
		Kind        TransactionKind
		Description string
		Date        time.Time
		CreatedBy   string
	}
)

var (
	// ErrValidation marks bad input shape or value, rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a reference to a debtor that does not exist.
	ErrNotFound = errors.New("debtor not found")
	// ErrConflict marks a duplicate identifier (idempotency-key collision).
	ErrConflict = errors.New("identifier already exists")
	// ErrUnavailable marks a transient storage failure; callers may retry.
	ErrUnavailable = errors.New("storage unavailable")
)

var (
	ErrEmptyName       = fmt.Errorf("%w: name cannot be empty", ErrValidation)
	ErrEmptyDebtorID   = fmt.Errorf("%w: debtor id cannot be empty", ErrValidation)
	ErrInvalidAmount   = fmt.Errorf("%w: invalid amount", ErrValidation)
	ErrUnknownKind     = fmt.Errorf("%w: unknown transaction kind", ErrValidation)
	ErrDescriptionSize = fmt.Errorf("%w: description too long (max 500 characters)", ErrValidation)
)

// Valid reports whether the kind is one of the two recognized values.
func (k TransactionKind) Valid() bool {
	return k == Debt || k == Payment
}

// Signed returns the balance delta for an amount of this kind: positive
// for DEBT, negative for PAYMENT.
func (k TransactionKind) Signed(m Money) Money {
	if k == Payment {
		return m.Neg()
	}
	return m
}

func (d NewDebtor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrEmptyName
	}
	if len(d.Name) > 200 {
		return fmt.Errorf("%w: name too long (max 200 characters)", ErrValidation)
	}
	return nil
}

func (t NewTransaction) Validate() error {
	if strings.TrimSpace(t.DebtorID) == "" {
		return ErrEmptyDebtorID
	}
	if !t.Kind.Valid() {
		return ErrUnknownKind
	}
	if t.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	if len(t.Description) > 500 {
		return ErrDescriptionSize
	}
	return nil
}
