// Package storage implements the durable ledger store on SQLite. It is the
// only component allowed to mutate debtor balances, and it does so exclusively
// through the transactional append path.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"daftar/internal/core"
)

// timeLayout is RFC 3339 with fixed-width nanoseconds so that stored UTC
// timestamps sort lexically, letting ORDER BY work on the raw column.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(dbPath string) (*LedgerRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// foreign_keys enforces the debtor->transactions cascade; busy_timeout
	// makes concurrent writers wait for the lock instead of failing.
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(wal)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &LedgerRepository{db: db}, nil
}

func (r *LedgerRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the underlying store is reachable.
func (r *LedgerRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// ListDebtors returns every debtor with its full transaction history,
// ordered by last activity descending; each history is date descending.
// A fetch failure surfaces as an error, never as an empty ledger.
//
// Both tables are read inside one transaction on a single connection so the
// snapshot is consistent: an append committing between the two reads can
// never yield a transaction row whose balance delta is missing.
func (r *LedgerRepository) ListDebtors(ctx context.Context) ([]core.Debtor, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, unavailable("list debtors", err)
	}
	defer tx.Rollback()

	debtors, err := queryDebtors(ctx, tx)
	if err != nil {
		return nil, unavailable("list debtors", err)
	}
	byDebtor, err := queryHistories(ctx, tx)
	if err != nil {
		return nil, unavailable("list transactions", err)
	}

	for i := range debtors {
		history := byDebtor[debtors[i].ID]
		if history == nil {
			history = []core.Transaction{}
		}
		debtors[i].Transactions = history
	}
	return debtors, nil
}

func queryDebtors(ctx context.Context, tx *sql.Tx) ([]core.Debtor, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, name, phone, balance_cents, last_activity, created_by
		 FROM debtors
		 ORDER BY last_activity DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var debtors []core.Debtor
	for rows.Next() {
		d, err := scanDebtor(rows)
		if err != nil {
			return nil, err
		}
		debtors = append(debtors, d)
	}
	return debtors, rows.Err()
}

func queryHistories(ctx context.Context, tx *sql.Tx) (map[string][]core.Transaction, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, debtor_id, amount_cents, kind, description, date, created_by
		 FROM transactions
		 ORDER BY date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byDebtor := make(map[string][]core.Transaction)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		byDebtor[t.DebtorID] = append(byDebtor[t.DebtorID], t)
	}
	return byDebtor, rows.Err()
}

// GetDebtor returns one debtor with its history, date descending.
func (r *LedgerRepository) GetDebtor(ctx context.Context, id string) (core.Debtor, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, phone, balance_cents, last_activity, created_by
		 FROM debtors WHERE id = ?`, id)

	d, err := scanDebtor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Debtor{}, fmt.Errorf("get debtor %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Debtor{}, unavailable("get debtor", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, debtor_id, amount_cents, kind, description, date, created_by
		 FROM transactions WHERE debtor_id = ?
		 ORDER BY date DESC`, id)
	if err != nil {
		return core.Debtor{}, unavailable("get debtor history", err)
	}
	defer rows.Close()

	d.Transactions = []core.Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return core.Debtor{}, unavailable("get debtor history", err)
		}
		d.Transactions = append(d.Transactions, t)
	}
	if err := rows.Err(); err != nil {
		return core.Debtor{}, unavailable("get debtor history", err)
	}
	return d, nil
}

// CreateDebtor allocates a new debtor with balance 0 and an empty history.
// When the caller supplies an id it serves as an idempotency key: a second
// create with the same id fails with ErrConflict instead of duplicating.
func (r *LedgerRepository) CreateDebtor(ctx context.Context, in core.NewDebtor) (core.Debtor, error) {
	if err := in.Validate(); err != nil {
		return core.Debtor{}, err
	}

	d := core.Debtor{
		ID:           in.ID,
		Name:         strings.TrimSpace(in.Name),
		Phone:        strings.TrimSpace(in.Phone),
		LastActivity: time.Now().UTC(),
		CreatedBy:    in.CreatedBy,
		Transactions: []core.Transaction{},
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO debtors (id, name, phone, balance_cents, last_activity, created_by)
		 VALUES (?, ?, ?, 0, ?, ?)`,
		d.ID, d.Name, d.Phone, d.LastActivity.Format(timeLayout), d.CreatedBy)
	if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
		return core.Debtor{}, fmt.Errorf("create debtor %s: %w", d.ID, core.ErrConflict)
	}
	if err != nil {
		return core.Debtor{}, unavailable("create debtor", err)
	}

	slog.InfoContext(ctx, "Debtor created",
		"debtor_id", d.ID,
		"name", d.Name,
		"created_by", d.CreatedBy)
	return d, nil
}

// AppendTransaction records a transaction and adjusts the owning debtor's
// balance in one atomic unit: either both rows persist or neither does.
//
// The balance delta is applied server-side as an increment expression, never
// as a read-then-write from client memory, so concurrent appends against the
// same debtor serialize on the row and no delta is ever lost.
func (r *LedgerRepository) AppendTransaction(ctx context.Context, in core.NewTransaction) (core.Transaction, error) {
	if err := in.Validate(); err != nil {
		return core.Transaction{}, err
	}

	t := core.Transaction{
		ID:          in.ID,
		DebtorID:    in.DebtorID,
		Amount:      in.Amount,
		Kind:        in.Kind,
		Description: strings.TrimSpace(in.Description),
		Date:        in.Date.UTC(),
		CreatedBy:   in.CreatedBy,
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if in.Date.IsZero() {
		t.Date = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Transaction{}, unavailable("begin transaction", err)
	}
	defer tx.Rollback()

	delta := t.Kind.Signed(t.Amount)
	res, err := tx.ExecContext(ctx,
		`UPDATE debtors
		 SET balance_cents = balance_cents + ?, last_activity = ?
		 WHERE id = ?`,
		delta.Cents, t.Date.Format(timeLayout), t.DebtorID)
	if err != nil {
		return core.Transaction{}, unavailable("update balance", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return core.Transaction{}, unavailable("update balance", err)
	}
	if affected == 0 {
		return core.Transaction{}, fmt.Errorf("append transaction for %s: %w", t.DebtorID, core.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, debtor_id, amount_cents, kind, description, date, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.DebtorID, t.Amount.Cents, string(t.Kind), nullable(t.Description),
		t.Date.Format(timeLayout), t.CreatedBy)
	if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
		return core.Transaction{}, fmt.Errorf("append transaction %s: %w", t.ID, core.ErrConflict)
	}
	if err != nil {
		return core.Transaction{}, unavailable("insert transaction", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Transaction{}, unavailable("commit transaction", err)
	}

	slog.InfoContext(ctx, "Transaction appended",
		"transaction_id", t.ID,
		"debtor_id", t.DebtorID,
		"kind", string(t.Kind),
		"amount", t.Amount.String(),
		"created_by", t.CreatedBy)
	return t, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDebtor(row rowScanner) (core.Debtor, error) {
	var (
		d            core.Debtor
		lastActivity string
	)
	if err := row.Scan(&d.ID, &d.Name, &d.Phone, &d.Balance.Cents, &lastActivity, &d.CreatedBy); err != nil {
		return core.Debtor{}, err
	}
	ts, err := time.Parse(timeLayout, lastActivity)
	if err != nil {
		return core.Debtor{}, fmt.Errorf("parse last_activity: %w", err)
	}
	d.LastActivity = ts
	return d, nil
}

func scanTransaction(row rowScanner) (core.Transaction, error) {
	var (
		t           core.Transaction
		kind        string
		description sql.NullString
		date        string
	)
	if err := row.Scan(&t.ID, &t.DebtorID, &t.Amount.Cents, &kind, &description, &date, &t.CreatedBy); err != nil {
		return core.Transaction{}, err
	}
	ts, err := time.Parse(timeLayout, date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse date: %w", err)
	}
	t.Kind = core.TransactionKind(kind)
	t.Description = description.String
	t.Date = ts
	return t, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isConstraint(err error, codes ...int) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	for _, c := range codes {
		if se.Code() == c {
			return true
		}
	}
	return false
}

// unavailable folds infrastructure failures into the retryable bucket of the
// error taxonomy while keeping the operation context in the message.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", core.ErrUnavailable, op, err)
}
