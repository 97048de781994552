package catalog

import (
	"context"

	"github.com/fjod/go_till/internal/domain"
)

// Store defines catalog access for the rest of the engine. Stock mutation on
// a given product id is atomic: concurrent decrements on the same product
// serialize, and stock never goes negative.
type Store interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)

	ListCategories(ctx context.Context) ([]domain.Category, error)

	// ListProducts returns all active products ordered by category and name.
	ListProducts(ctx context.Context) ([]*domain.Product, error)

	ListProductsByCategory(ctx context.Context, categoryID int64) ([]*domain.Product, error)

	// DecrementStock atomically reduces stock by qty and returns the new
	// quantity. Fails with domain.StockError when qty exceeds current stock.
	DecrementStock(ctx context.Context, id int64, qty int) (int, error)

	// IncrementStock gives stock back, used by settlement rollback and
	// pending-transaction cancellation.
	IncrementStock(ctx context.Context, id int64, qty int) (int, error)
}
