package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"daftar/internal/core"
	applog "daftar/internal/log"
	"daftar/internal/notify"
)

const dateLayout = "2006-01-02"

type (
	createDebtorRequest struct {
		ID        string `json:"id,omitempty"`
		Name      string `json:"name"`
		Phone     string `json:"phone,omitempty"`
		CreatedBy string `json:"createdBy,omitempty"`
	}

	createTransactionRequest struct {
		ID          string     `json:"id,omitempty"`
		DebtorID    string     `json:"debtorId"`
		Amount      core.Money `json:"amount"`
		Kind        string     `json:"type"`
		Description string     `json:"description,omitempty"`
		Date        *time.Time `json:"date,omitempty"`
		CreatedBy   string     `json:"createdBy,omitempty"`
	}

	analyticsResponse struct {
		Totals           core.Totals      `json:"totals"`
		Net              core.Money       `json:"net"`
		TotalReceivable  core.Money       `json:"totalReceivable"`
		MonthlyBreakdown []monthlySummary `json:"monthlyBreakdown"`
		Debts            []core.Entry     `json:"debts"`
		Payments         []core.Entry     `json:"payments"`
	}

	monthlySummary struct {
		Label string `json:"label"`
		core.MonthTotals
	}

	linkResponse struct {
		DebtorID string `json:"debtorId"`
		URL      string `json:"url"`
	}
)

func (s *Server) handleListDebtors(w http.ResponseWriter, r *http.Request) {
	debtors, err := s.snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, debtors)
}

func (s *Server) handleCreateDebtor(w http.ResponseWriter, r *http.Request) {
	var req createDebtorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	debtor, err := s.ledger.CreateDebtor(ctx, core.NewDebtor{
		ID:        req.ID,
		Name:      req.Name,
		Phone:     req.Phone,
		CreatedBy: req.CreatedBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	s.invalidateDerived()
	writeJSON(w, http.StatusCreated, debtor)
}

func (s *Server) handleAppendTransaction(w http.ResponseWriter, r *http.Request) {
	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// A malformed amount surfaces from the decoder as a validation
		// error; keep its 422 instead of a blanket 400.
		if errors.Is(err, core.ErrValidation) {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	in := core.NewTransaction{
		ID:          req.ID,
		DebtorID:    req.DebtorID,
		Amount:      req.Amount,
		Kind:        core.TransactionKind(req.Kind),
		Description: req.Description,
		CreatedBy:   req.CreatedBy,
	}
	if req.Date != nil {
		in.Date = *req.Date
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	tx, err := s.ledger.AppendTransaction(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}

	s.invalidateDerived()
	s.publishRecorded(r.Context(), tx)
	writeJSON(w, http.StatusCreated, tx)
}

// publishRecorded announces the committed write. The write already succeeded,
// so a publish failure is logged and the response stays 201.
func (s *Server) publishRecorded(ctx context.Context, tx core.Transaction) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishTransactionRecorded(ctx, tx.ID, tx.DebtorID); err != nil {
		s.logger.WarnContext(ctx, "Failed publishing transaction event",
			applog.FieldTransactionID, tx.ID,
			applog.FieldDebtorID, tx.DebtorID,
			applog.FieldError, err)
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var kind core.TransactionKind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind = core.TransactionKind(raw)
		if !kind.Valid() {
			writeError(w, core.ErrUnknownKind)
			return
		}
	}

	debtors, err := s.snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	entries := core.FilterByRange(core.Flatten(debtors), start, end)
	if kind != "" {
		entries = core.DetailedList(entries, kind)
	} else {
		core.SortByDateDesc(entries)
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, err)
		return
	}

	cacheKey := fmt.Sprintf("%s..%s", r.URL.Query().Get("start"), r.URL.Query().Get("end"))
	if resp, ok := s.analyticsCache.Get(cacheKey); ok {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	debtors, err := s.snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	// Consistency is checked on the full snapshot, before any date filter
	// hides transactions that contribute to a stored balance.
	if mismatches := core.VerifyBalances(debtors); len(mismatches) > 0 {
		for _, m := range mismatches {
			s.logger.ErrorContext(r.Context(), "Balance mismatch detected",
				applog.FieldDebtorID, m.DebtorID,
				"stored", m.Stored.String(),
				"recomputed", m.Recomputed.String())
		}
	}

	entries := core.FilterByRange(core.Flatten(debtors), start, end)
	totals := core.Sum(entries)

	months := core.MonthlyBreakdown(entries)
	monthly := make([]monthlySummary, 0, len(months))
	for _, m := range months {
		monthly = append(monthly, monthlySummary{Label: m.Label(), MonthTotals: m})
	}

	resp := analyticsResponse{
		Totals:           totals,
		Net:              totals.Net(),
		TotalReceivable:  core.TotalReceivable(debtors),
		MonthlyBreakdown: monthly,
		Debts:            core.DetailedList(entries, core.Debt),
		Payments:         core.DetailedList(entries, core.Payment),
	}
	s.analyticsCache.Set(cacheKey, resp)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReminder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	debtor, err := s.ledger.GetDebtor(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	link, err := notify.PaymentReminder(debtor.Phone, debtor.Balance)
	if err != nil {
		writeError(w, err)
		return
	}

	s.logger.InfoContext(ctx, "Prepared payment reminder",
		applog.FieldOperation, applog.OpRemind,
		applog.FieldDebtorID, debtor.ID,
		applog.FieldBalance, debtor.Balance.String())
	writeJSON(w, http.StatusOK, linkResponse{DebtorID: debtor.ID, URL: link})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	debtor, err := s.ledger.GetDebtor(ctx, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	link, err := notify.ProfileShare(s.shareBaseURL, debtor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, linkResponse{DebtorID: debtor.ID, URL: link})
}

// parseRange reads optional start and end query parameters as calendar days.
func parseRange(r *http.Request) (start, end time.Time, err error) {
	q := r.URL.Query()
	if raw := q.Get("start"); raw != "" {
		start, err = time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start must be YYYY-MM-DD", core.ErrValidation)
		}
	}
	if raw := q.Get("end"); raw != "" {
		end, err = time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: end must be YYYY-MM-DD", core.ErrValidation)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end before start", core.ErrValidation)
	}
	return start, end, nil
}
