package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_till/internal/checkout"
	"github.com/fjod/go_till/internal/domain"
)

type CheckoutHandler struct {
	checkout *checkout.Service
	timeout  time.Duration
}

func NewCheckoutHandler(svc *checkout.Service, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: svc,
		timeout:  timeout,
	}
}

type SettleRequestDTO struct {
	SessionID      string       `json:"session_id"`
	CustomerName   string       `json:"customer_name,omitempty"`
	PaymentMethod  string       `json:"payment_method"`
	AmountTendered domain.Money `json:"amount_tendered"`
	ReferenceNo    string       `json:"reference_no,omitempty"`
}

type TransactionResponseDTO struct {
	ID             int64                    `json:"id"`
	CreatedAt      time.Time                `json:"created_at"`
	ResolvedAt     *time.Time               `json:"resolved_at,omitempty"`
	Actor          string                   `json:"actor,omitempty"`
	CustomerName   string                   `json:"customer_name,omitempty"`
	PaymentMethod  domain.PaymentMethod     `json:"payment_method"`
	Status         domain.TxStatus          `json:"status"`
	ReferenceNo    string                   `json:"reference_no,omitempty"`
	Lines          []domain.TransactionLine `json:"lines"`
	Totals         domain.Totals            `json:"totals"`
	AmountTendered domain.Money             `json:"amount_tendered"`
	ChangeDue      domain.Money             `json:"change_due"`
}

func convertTransaction(t *domain.Transaction) TransactionResponseDTO {
	lines := t.Lines
	if lines == nil {
		lines = make([]domain.TransactionLine, 0)
	}
	return TransactionResponseDTO{
		ID:             t.ID,
		CreatedAt:      t.CreatedAt,
		ResolvedAt:     t.ResolvedAt,
		Actor:          t.Actor,
		CustomerName:   t.CustomerName,
		PaymentMethod:  t.PaymentMethod,
		Status:         t.Status,
		ReferenceNo:    t.ReferenceNo,
		Lines:          lines,
		Totals:         t.Totals,
		AmountTendered: t.AmountTendered,
		ChangeDue:      t.ChangeDue,
	}
}

// POST /api/v1/checkout
//
// Settles the session cart into a transaction. The Idempotency-Key header
// makes retries of the same settlement safe.
func (h *CheckoutHandler) Settle(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SettleRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}

	method := domain.PaymentMethod(req.PaymentMethod)
	switch method {
	case domain.PaymentCash, domain.PaymentCard, domain.PaymentBankTransfer, domain.PaymentEWallet:
	default:
		respondError(w, http.StatusBadRequest, "invalid_payment_method", "unknown payment method")
		return
	}
	if req.AmountTendered < 0 {
		respondError(w, http.StatusBadRequest, "invalid_amount", "amount_tendered must not be negative")
		return
	}

	t, err := h.checkout.Settle(ctx, checkout.Request{
		SessionID:      req.SessionID,
		Actor:          getActorFromContext(r.Context()),
		CustomerName:   req.CustomerName,
		PaymentMethod:  method,
		AmountTendered: req.AmountTendered,
		ReferenceNo:    req.ReferenceNo,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, convertTransaction(t))
}
