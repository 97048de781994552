package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_till/internal/cart"
	"github.com/fjod/go_till/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	carts   *cart.Service
	timeout time.Duration
}

func NewCartHandler(carts *cart.Service, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Note      string `json:"note,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type DiscountRequestDTO struct {
	Kind  string `json:"kind"`
	Value int64  `json:"value"`
}

type CartResponseDTO struct {
	SessionID     string            `json:"session_id"`
	Lines         []domain.CartLine `json:"lines"`
	OrderDiscount *domain.Discount  `json:"order_discount,omitempty"`
	Totals        domain.Totals     `json:"totals"`
}

func (h *CartHandler) cartResponse(sessionID string) (CartResponseDTO, error) {
	snapshot, _, err := h.carts.Snapshot(sessionID)
	if err != nil {
		return CartResponseDTO{}, err
	}
	totals, err := domain.ComputeTotals(snapshot)
	if err != nil {
		return CartResponseDTO{}, err
	}
	lines := snapshot.Lines
	if lines == nil {
		lines = make([]domain.CartLine, 0)
	}
	return CartResponseDTO{
		SessionID:     sessionID,
		Lines:         lines,
		OrderDiscount: snapshot.OrderDiscount,
		Totals:        totals,
	}, nil
}

func (h *CartHandler) respondCart(w http.ResponseWriter, status int, sessionID string) {
	resp, err := h.cartResponse(sessionID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, status, resp)
}

// POST /api/v1/carts
func (h *CartHandler) Create(w http.ResponseWriter, r *http.Request) {
	sessionID := h.carts.Create()
	h.respondCart(w, http.StatusCreated, sessionID)
}

// GET /api/v1/carts/{session_id}
func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	h.respondCart(w, http.StatusOK, sessionID)
}

// POST /api/v1/carts/{session_id}/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	sessionID := chi.URLParam(r, "session_id")

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be positive")
		return
	}

	if err := h.carts.AddItem(ctx, sessionID, req.ProductID, req.Quantity, req.Note); err != nil {
		handleDomainError(w, err)
		return
	}
	h.respondCart(w, http.StatusCreated, sessionID)
}

// PUT /api/v1/carts/{session_id}/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	productID, err := parseProductID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := h.carts.SetQuantity(sessionID, productID, req.Quantity); err != nil {
		handleDomainError(w, err)
		return
	}
	h.respondCart(w, http.StatusOK, sessionID)
}

// DELETE /api/v1/carts/{session_id}/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	productID, err := parseProductID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	if err := h.carts.RemoveItem(sessionID, productID); err != nil {
		handleDomainError(w, err)
		return
	}
	h.respondCart(w, http.StatusOK, sessionID)
}

// POST /api/v1/carts/{session_id}/items/{product_id}/discount
func (h *CartHandler) ApplyLineDiscount(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	productID, err := parseProductID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	var req DiscountRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	d := domain.Discount{Kind: domain.DiscountKind(req.Kind), Value: req.Value}
	if err := h.carts.ApplyLineDiscount(sessionID, productID, d); err != nil {
		handleDomainError(w, err)
		return
	}
	h.respondCart(w, http.StatusOK, sessionID)
}

// POST /api/v1/carts/{session_id}/discount
func (h *CartHandler) ApplyOrderDiscount(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	var req DiscountRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	d := domain.Discount{Kind: domain.DiscountKind(req.Kind), Value: req.Value}
	if err := h.carts.ApplyOrderDiscount(sessionID, d); err != nil {
		handleDomainError(w, err)
		return
	}
	h.respondCart(w, http.StatusOK, sessionID)
}

// DELETE /api/v1/carts/{session_id}
func (h *CartHandler) Discard(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	h.carts.Discard(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func parseProductID(r *http.Request) (int64, error) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil {
		return 0, err
	}
	if productID <= 0 {
		return 0, strconv.ErrRange
	}
	return productID, nil
}
