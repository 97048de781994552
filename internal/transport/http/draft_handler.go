package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_till/internal/cart"
	"github.com/fjod/go_till/internal/domain"
	"github.com/fjod/go_till/internal/draft"
	"github.com/go-chi/chi/v5"
)

type DraftHandler struct {
	drafts  draft.Store
	carts   *cart.Service
	timeout time.Duration
}

func NewDraftHandler(drafts draft.Store, carts *cart.Service, timeout time.Duration) *DraftHandler {
	return &DraftHandler{
		drafts:  drafts,
		carts:   carts,
		timeout: timeout,
	}
}

type SaveDraftRequestDTO struct {
	SessionID   string `json:"session_id"`
	Reference   string `json:"reference,omitempty"`
	Title       string `json:"title"`
	CustomerRef string `json:"customer_ref,omitempty"`
}

type LoadDraftResponseDTO struct {
	Draft draft.Summary   `json:"draft"`
	Cart  CartResponseDTO `json:"cart"`
}

// POST /api/v1/drafts
//
// Parks the session cart as a durable draft. The sale stays resumable; the
// session keeps running and remembers which draft holds its snapshot.
func (h *DraftHandler) Save(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SaveDraftRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}

	snapshot, _, err := h.carts.Snapshot(req.SessionID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if snapshot.IsEmpty() {
		respondError(w, http.StatusBadRequest, "empty_cart", "cannot park an empty cart")
		return
	}

	totals, err := domain.ComputeTotals(snapshot)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	raw, err := snapshot.Serialize()
	if err != nil {
		handleDomainError(w, err)
		return
	}

	saved, err := h.drafts.Save(ctx, draft.Draft{
		Reference:   req.Reference,
		Title:       req.Title,
		CustomerRef: req.CustomerRef,
		Snapshot:    raw,
		Total:       totals.GrandTotal,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	if err := h.carts.AttachDraft(req.SessionID, saved.ID); err != nil {
		handleDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, draft.Summary{
		ID:          saved.ID,
		Reference:   saved.Reference,
		Title:       saved.Title,
		CustomerRef: saved.CustomerRef,
		Total:       saved.Total,
		CreatedAt:   saved.CreatedAt,
	})
}

// GET /api/v1/drafts
func (h *DraftHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	summaries, err := h.drafts.List(ctx)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	if summaries == nil {
		summaries = make([]draft.Summary, 0)
	}
	respondJSON(w, http.StatusOK, summaries)
}

// POST /api/v1/drafts/{draft_id}/resume
//
// Restores the parked cart into a fresh session. The draft itself survives
// until settlement or an explicit discard.
func (h *DraftHandler) Resume(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	draftID := chi.URLParam(r, "draft_id")
	if draftID == "" {
		respondError(w, http.StatusBadRequest, "missing_draft_id", "draft_id is required")
		return
	}

	d, err := h.drafts.Load(ctx, draftID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	sessionID, err := h.carts.CreateFromDraft(d.ID, d.Snapshot)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	snapshot, _, err := h.carts.Snapshot(sessionID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	totals, err := domain.ComputeTotals(snapshot)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, LoadDraftResponseDTO{
		Draft: draft.Summary{
			ID:          d.ID,
			Reference:   d.Reference,
			Title:       d.Title,
			CustomerRef: d.CustomerRef,
			Total:       d.Total,
			CreatedAt:   d.CreatedAt,
		},
		Cart: CartResponseDTO{
			SessionID:     sessionID,
			Lines:         snapshot.Lines,
			OrderDiscount: snapshot.OrderDiscount,
			Totals:        totals,
		},
	})
}

// DELETE /api/v1/drafts/{draft_id}
func (h *DraftHandler) Discard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	draftID := chi.URLParam(r, "draft_id")
	if draftID == "" {
		respondError(w, http.StatusBadRequest, "missing_draft_id", "draft_id is required")
		return
	}

	if err := h.drafts.Discard(ctx, draftID); err != nil {
		handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
