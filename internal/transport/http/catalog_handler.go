package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_till/internal/catalog"
	"github.com/fjod/go_till/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CatalogHandler struct {
	store   catalog.Store
	timeout time.Duration
}

func NewCatalogHandler(store catalog.Store, timeout time.Duration) *CatalogHandler {
	return &CatalogHandler{
		store:   store,
		timeout: timeout,
	}
}

type CategoryDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type ProductDTO struct {
	ID         int64        `json:"id"`
	CategoryID int64        `json:"category_id"`
	Name       string       `json:"name"`
	Price      domain.Money `json:"price"`
	Stock      int          `json:"stock"`
	LowStock   bool         `json:"low_stock"`
	Active     bool         `json:"active"`
}

func convertProduct(p *domain.Product) ProductDTO {
	return ProductDTO{
		ID:         p.ID,
		CategoryID: p.CategoryID,
		Name:       p.Name,
		Price:      p.Price,
		Stock:      p.Stock,
		LowStock:   p.Stock <= p.LowStock,
		Active:     p.Active,
	}
}

// GET /api/v1/catalog/categories
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := h.store.ListCategories(ctx)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	dtos := make([]CategoryDTO, 0, len(categories))
	for _, c := range categories {
		dtos = append(dtos, CategoryDTO{ID: c.ID, Name: c.Name})
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/catalog/products?category_id=N
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var products []*domain.Product
	var err error

	if raw := r.URL.Query().Get("category_id"); raw != "" {
		categoryID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil || categoryID <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_category_id", "category_id must be a positive integer")
			return
		}
		products, err = h.store.ListProductsByCategory(ctx, categoryID)
	} else {
		products, err = h.store.ListProducts(ctx)
	}
	if err != nil {
		handleDomainError(w, err)
		return
	}

	dtos := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		dtos = append(dtos, convertProduct(p))
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /api/v1/catalog/products/{product_id}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productIDStr := chi.URLParam(r, "product_id")
	productID, err := strconv.ParseInt(productIDStr, 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return
	}

	p, err := h.store.GetProduct(ctx, productID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertProduct(p))
}
