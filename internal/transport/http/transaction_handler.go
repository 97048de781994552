package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_till/internal/domain"
	"github.com/fjod/go_till/internal/transaction"
	"github.com/go-chi/chi/v5"
)

type TransactionHandler struct {
	repo    *transaction.Repository
	timeout time.Duration
}

func NewTransactionHandler(repo *transaction.Repository, timeout time.Duration) *TransactionHandler {
	return &TransactionHandler{
		repo:    repo,
		timeout: timeout,
	}
}

type ResolveRequestDTO struct {
	Outcome     string `json:"outcome"`
	ReferenceNo string `json:"reference_no,omitempty"`
}

type StatusCountsDTO struct {
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
	Cancelled int `json:"cancelled"`
}

// GET /api/v1/transactions/{transaction_id}
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := parseTransactionID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_transaction_id", "transaction_id must be a positive integer")
		return
	}

	t, err := h.repo.Find(ctx, id)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertTransaction(t))
}

// GET /api/v1/transactions?q=&status=&payment_method=&date_from=&date_to=
func (h *TransactionHandler) Search(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	q := r.URL.Query()
	f := transaction.Filter{
		IDLike:        q.Get("q"),
		Status:        domain.TxStatus(q.Get("status")),
		PaymentMethod: domain.PaymentMethod(q.Get("payment_method")),
	}

	if raw := q.Get("date_from"); raw != "" {
		from, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_date_from", "date_from must be YYYY-MM-DD")
			return
		}
		f.DateFrom = from
	}
	if raw := q.Get("date_to"); raw != "" {
		to, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_date_to", "date_to must be YYYY-MM-DD")
			return
		}
		f.DateTo = to
	}

	results, err := h.repo.Search(ctx, f)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if results == nil {
		results = make([]transaction.Summary, 0)
	}
	respondJSON(w, http.StatusOK, results)
}

// POST /api/v1/transactions/{transaction_id}/resolve
//
// Moves a pending transaction to its terminal status. Only one of two
// concurrent resolutions can win; the loser gets a conflict.
func (h *TransactionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	id, err := parseTransactionID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_transaction_id", "transaction_id must be a positive integer")
		return
	}

	var req ResolveRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var outcome transaction.Outcome
	switch req.Outcome {
	case string(transaction.OutcomeComplete):
		outcome = transaction.OutcomeComplete
	case string(transaction.OutcomeCancel):
		outcome = transaction.OutcomeCancel
	default:
		respondError(w, http.StatusBadRequest, "invalid_outcome", "outcome must be COMPLETE or CANCEL")
		return
	}

	t, err := h.repo.ResolvePending(ctx, id, outcome, req.ReferenceNo)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, convertTransaction(t))
}

// GET /api/v1/transactions/stats
func (h *TransactionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var counts StatusCountsDTO
	var err error
	if counts.Completed, err = h.repo.CountByStatus(ctx, domain.TxStatusCompleted); err != nil {
		handleDomainError(w, err)
		return
	}
	if counts.Pending, err = h.repo.CountByStatus(ctx, domain.TxStatusPending); err != nil {
		handleDomainError(w, err)
		return
	}
	if counts.Cancelled, err = h.repo.CountByStatus(ctx, domain.TxStatusCancelled); err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, counts)
}

// GET /api/v1/transactions/recent?limit=N
func (h *TransactionHandler) Recent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	results, err := h.repo.ListRecent(ctx, limit)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if results == nil {
		results = make([]transaction.Summary, 0)
	}
	respondJSON(w, http.StatusOK, results)
}

func parseTransactionID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "transaction_id"), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}
