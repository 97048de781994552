package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handlers struct {
	Catalog      *CatalogHandler
	Cart         *CartHandler
	Draft        *DraftHandler
	Checkout     *CheckoutHandler
	Transactions *TransactionHandler
}

// NewRouter assembles the API surface. Every route lives under /api/v1 so a
// future revision can coexist on the same listener.
func NewRouter(h Handlers, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(ActorMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/categories", h.Catalog.ListCategories)
			r.Get("/products", h.Catalog.ListProducts)
			r.Get("/products/{product_id}", h.Catalog.GetProduct)
		})

		r.Route("/carts", func(r chi.Router) {
			r.Post("/", h.Cart.Create)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", h.Cart.Get)
				r.Delete("/", h.Cart.Discard)
				r.Post("/items", h.Cart.AddItem)
				r.Put("/items/{product_id}", h.Cart.UpdateQuantity)
				r.Delete("/items/{product_id}", h.Cart.RemoveItem)
				r.Post("/items/{product_id}/discount", h.Cart.ApplyLineDiscount)
				r.Post("/discount", h.Cart.ApplyOrderDiscount)
			})
		})

		r.Route("/drafts", func(r chi.Router) {
			r.Post("/", h.Draft.Save)
			r.Get("/", h.Draft.List)
			r.Post("/{draft_id}/resume", h.Draft.Resume)
			r.Delete("/{draft_id}", h.Draft.Discard)
		})

		r.Post("/checkout", h.Checkout.Settle)

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.Transactions.Search)
			r.Get("/stats", h.Transactions.Stats)
			r.Get("/recent", h.Transactions.Recent)
			r.Get("/{transaction_id}", h.Transactions.Get)
			r.Post("/{transaction_id}/resolve", h.Transactions.Resolve)
		})
	})

	return r
}
