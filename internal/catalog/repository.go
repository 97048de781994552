package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fjod/go_till/internal/domain"
)

// Repository is the sqlite-backed catalog store.
type Repository struct {
	db *sql.DB
}

func NewRepository(conn *sql.DB) *Repository {
	return &Repository{db: conn}
}

const productColumns = `id, COALESCE(category_id, 0), name, price, stock, low_stock, active, created_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	p := &domain.Product{}
	var active int
	err := row.Scan(
		&p.ID,
		&p.CategoryID,
		&p.Name,
		&p.Price,
		&p.Stock,
		&p.LowStock,
		&active,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Active = active != 0
	return p, nil
}

func (r *Repository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM products WHERE id = ?`, productColumns)

	p, err := scanProduct(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product %d: %w: %w", id, domain.ErrStorageFailure, err)
	}
	return p, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w: %w", domain.ErrStorageFailure, err)
	}
	defer rows.Close()

	var cats []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("scan category: %w: %w", domain.ErrStorageFailure, err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w: %w", domain.ErrStorageFailure, err)
	}
	return cats, nil
}

func (r *Repository) ListProducts(ctx context.Context) ([]*domain.Product, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM products
		WHERE active = 1
		ORDER BY COALESCE(category_id, 0), name`, productColumns)
	return r.queryProducts(ctx, query)
}

func (r *Repository) ListProductsByCategory(ctx context.Context, categoryID int64) ([]*domain.Product, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM products
		WHERE active = 1 AND category_id = ?
		ORDER BY name`, productColumns)
	return r.queryProducts(ctx, query, categoryID)
}

func (r *Repository) queryProducts(ctx context.Context, query string, args ...any) ([]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query products: %w: %w", domain.ErrStorageFailure, err)
	}
	defer rows.Close()

	var products []*domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w: %w", domain.ErrStorageFailure, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w: %w", domain.ErrStorageFailure, err)
	}
	return products, nil
}

// DecrementStock runs a guarded UPDATE and its follow-up reads inside one
// database transaction, so two things hold: the read-modify-write cannot
// interleave with another decrement, and the quantities reported on a
// rejection are exactly the stock the rejected UPDATE saw.
func (r *Repository) DecrementStock(ctx context.Context, id int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, qty)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin decrement for product %d: %w: %w", id, domain.ErrStorageFailure, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?`,
		qty, id, qty)
	if err != nil {
		return 0, fmt.Errorf("decrement stock for product %d: %w: %w", id, domain.ErrStorageFailure, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("decrement stock for product %d: %w: %w", id, domain.ErrStorageFailure, err)
	}

	var stock int
	err = tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, id).Scan(&stock)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("read stock for product %d: %w: %w", id, domain.ErrStorageFailure, err)
	}

	if affected == 0 {
		return stock, &domain.StockError{ProductID: id, Requested: qty, Available: stock}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit decrement for product %d: %w: %w", id, domain.ErrStorageFailure, err)
	}
	return stock, nil
}

func (r *Repository) IncrementStock(ctx context.Context, id int64, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, qty)
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE products SET stock = stock + ? WHERE id = ?`, qty, id)
	if err != nil {
		return 0, fmt.Errorf("increment stock for product %d: %w: %w", id, domain.ErrStorageFailure, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("increment stock for product %d: %w: %w", id, domain.ErrStorageFailure, err)
	}
	if affected == 0 {
		return 0, domain.ErrNotFound
	}

	return r.currentStock(ctx, id)
}

func (r *Repository) currentStock(ctx context.Context, id int64) (int, error) {
	var stock int
	if err := r.db.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, id).Scan(&stock); err != nil {
		return 0, fmt.Errorf("read stock for product %d: %w: %w", id, domain.ErrStorageFailure, err)
	}
	return stock, nil
}

// CreateCategory and CreateProduct exist for seeding and inventory
// management; the settlement path never calls them.

func (r *Repository) CreateCategory(ctx context.Context, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO categories(name) VALUES(?)`, name)
	if err != nil {
		return 0, fmt.Errorf("insert category: %w: %w", domain.ErrStorageFailure, err)
	}
	return res.LastInsertId()
}

func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product) (int64, error) {
	var categoryID any
	if p.CategoryID != 0 {
		categoryID = p.CategoryID
	}
	active := 0
	if p.Active {
		active = 1
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO products(category_id, name, price, stock, low_stock, active, created_at)
		VALUES(?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		categoryID, p.Name, p.Price, p.Stock, p.LowStock, active)
	if err != nil {
		return 0, fmt.Errorf("insert product: %w: %w", domain.ErrStorageFailure, err)
	}
	return res.LastInsertId()
}

func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	v := 0
	if active {
		v = 1
	}
	res, err := r.db.ExecContext(ctx, `UPDATE products SET active = ? WHERE id = ?`, v, id)
	if err != nil {
		return fmt.Errorf("set active for product %d: %w: %w", id, domain.ErrStorageFailure, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set active for product %d: %w: %w", id, domain.ErrStorageFailure, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
