package http

import (
	"net/http"
	"strconv"
	"time"

	"conti/internal/core"
	"conti/internal/ledger"
	"conti/internal/log"
)

type transactionRequest struct {
	AccountID        string `json:"account_id"`
	CategoryID       string `json:"category_id"`
	Type             string `json:"type"`
	Amount           string `json:"amount"`
	Date             string `json:"date"`
	Description      string `json:"description"`
	GoalID           string `json:"goal_id"`
	LoanTrackerID    string `json:"loan_tracker_id"`
	SavingsTrackerID string `json:"savings_tracker_id"`
	Source           string `json:"source"`
}

type transactionPatchRequest struct {
	AccountID        *string `json:"account_id"`
	CategoryID       *string `json:"category_id"`
	Type             *string `json:"type"`
	Amount           *string `json:"amount"`
	Date             *string `json:"date"`
	Description      *string `json:"description"`
	GoalID           *string `json:"goal_id"`
	LoanTrackerID    *string `json:"loan_tracker_id"`
	SavingsTrackerID *string `json:"savings_tracker_id"`
}

type transferRequest struct {
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	Description   string `json:"description"`
}

type transactionResponse struct {
	ID               string `json:"id"`
	AccountID        string `json:"account_id"`
	CategoryID       string `json:"category_id,omitempty"`
	Type             string `json:"type"`
	Amount           string `json:"amount"`
	Date             string `json:"date"`
	Description      string `json:"description,omitempty"`
	GoalID           string `json:"goal_id,omitempty"`
	LoanTrackerID    string `json:"loan_tracker_id,omitempty"`
	SavingsTrackerID string `json:"savings_tracker_id,omitempty"`
	TransferPeerID   string `json:"transfer_peer_id,omitempty"`
	Source           string `json:"source"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

type transferResponse struct {
	From transactionResponse `json:"from"`
	To   transactionResponse `json:"to"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:               t.ID,
		AccountID:        t.AccountID,
		CategoryID:       t.CategoryID,
		Type:             string(t.Type),
		Amount:           t.Amount.String(),
		Date:             t.Date.String(),
		Description:      t.Description,
		GoalID:           t.GoalID,
		LoanTrackerID:    t.LoanTrackerID,
		SavingsTrackerID: t.SavingsTrackerID,
		TransferPeerID:   t.TransferPeerID,
		Source:           string(t.Source),
		CreatedAt:        t.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	var req transactionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	t, err := s.coordinator.CreateTransaction(r.Context(), userID, ledger.CreateTransactionInput{
		AccountID:        req.AccountID,
		CategoryID:       req.CategoryID,
		Type:             core.TransactionType(req.Type),
		Amount:           amount,
		Date:             date,
		Description:      req.Description,
		GoalID:           req.GoalID,
		LoanTrackerID:    req.LoanTrackerID,
		SavingsTrackerID: req.SavingsTrackerID,
		Source:           core.TransactionSource(req.Source),
	})
	if err != nil {
		s.writeKindError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionResponse(t))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	var req transactionPatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	patch := core.TransactionPatch{
		AccountID:        req.AccountID,
		CategoryID:       req.CategoryID,
		Description:      req.Description,
		GoalID:           req.GoalID,
		LoanTrackerID:    req.LoanTrackerID,
		SavingsTrackerID: req.SavingsTrackerID,
	}
	if req.Type != nil {
		typ := core.TransactionType(*req.Type)
		patch.Type = &typ
	}
	if req.Amount != nil {
		amount, err := core.ParseAmount(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount")
			return
		}
		patch.Amount = &amount
	}
	if req.Date != nil {
		date, err := core.ParseDate(*req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		patch.Date = &date
	}

	t, err := s.coordinator.UpdateTransaction(r.Context(), userID, id, patch)
	if err != nil {
		s.writeKindError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionResponse(t))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, userID string) {
	id := r.PathValue("id")
	if err := s.coordinator.DeleteTransaction(r.Context(), userID, id); err != nil {
		s.writeKindError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request, userID string) {
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	date, err := core.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}

	tr, err := s.coordinator.CreateTransfer(r.Context(), userID, ledger.TransferInput{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        amount,
		Date:          date,
		Description:   req.Description,
	})
	if err != nil {
		s.writeKindError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, transferResponse{
		From: toTransactionResponse(tr.From),
		To:   toTransactionResponse(tr.To),
	})
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	var filter ledger.TransactionFilter
	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		year, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		filter.Year = year
	}
	if v := q.Get("month"); v != "" {
		month, err := strconv.Atoi(v)
		if err != nil || month < 1 || month > 12 {
			writeError(w, http.StatusBadRequest, "invalid month")
			return
		}
		filter.Month = month
	}
	if filter.Month != 0 && filter.Year == 0 {
		writeError(w, http.StatusBadRequest, "month filter requires year")
		return
	}
	filter.CategoryID = q.Get("category_id")
	filter.AccountID = q.Get("account_id")

	ts, err := s.coordinator.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		s.writeKindError(w, r, err)
		return
	}
	out := make([]transactionResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, http.StatusOK, out)
}

type categoryLineResponse struct {
	CategoryID string `json:"category_id,omitempty"`
	Overall    bool   `json:"overall"`
	Budgeted   string `json:"budgeted"`
	Spent      string `json:"spent"`
	Virtual    bool   `json:"virtual"`
}

type aggregateResponse struct {
	Year          int                    `json:"year"`
	Month         int                    `json:"month"`
	TotalBudgeted string                 `json:"total_budgeted"`
	TotalSpent    string                 `json:"total_spent"`
	PerCategory   []categoryLineResponse `json:"per_category"`
	ComputedAt    string                 `json:"computed_at"`
}

func (s *Server) handleGetAggregate(w http.ResponseWriter, r *http.Request, userID string) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid month")
		return
	}

	agg, err := s.aggregates.GetOrBuild(r.Context(), userID, year, month)
	if err != nil {
		s.writeKindError(w, r, err)
		return
	}

	resp := aggregateResponse{
		Year:          agg.Year,
		Month:         agg.Month,
		TotalBudgeted: agg.TotalBudgeted.String(),
		TotalSpent:    agg.TotalSpent.String(),
		PerCategory:   make([]categoryLineResponse, 0, len(agg.PerCategory)),
		ComputedAt:    agg.ComputedAt.UTC().Format(time.RFC3339),
	}
	for _, line := range agg.PerCategory {
		resp.PerCategory = append(resp.PerCategory, categoryLineResponse{
			CategoryID: line.CategoryID,
			Overall:    line.Overall,
			Budgeted:   line.Budgeted.String(),
			Spent:      line.Spent.String(),
			Virtual:    line.Virtual,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeKindError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForKind(core.KindOf(err))
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			log.FieldPath, r.URL.Path,
			log.FieldError, err.Error())
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
