package transaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_till/internal/clock"
	"github.com/fjod/go_till/internal/domain"
)

// Outcome is the resolution requested for a PENDING transaction.
type Outcome string

const (
	OutcomeComplete Outcome = "COMPLETE"
	OutcomeCancel   Outcome = "CANCEL"
)

const EventSaleCompleted = "sale.completed"

// Repository is the sqlite-backed transaction ledger. It shares the database
// with the catalog so a resolution can restore stock in the same transaction
// that flips the status.
type Repository struct {
	db    *sql.DB
	clock clock.Clock
}

func NewRepository(conn *sql.DB, clk clock.Clock) *Repository {
	return &Repository{db: conn, clock: clk}
}

// querier is satisfied by both *sql.DB and *sql.Tx so reads can run inside
// an open transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Commit persists a settled transaction: the header row, its line items, the
// outbox event for completed sales and the journal close, all in one
// database transaction.
func (r *Repository) Commit(ctx context.Context, t *domain.Transaction, attemptID, idempotencyKey string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin commit: %w: %w", domain.ErrStorageFailure, err)
	}
	defer tx.Rollback()

	var idemKey any
	if idempotencyKey != "" {
		idemKey = idempotencyKey
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO transactions(
			created_at, actor, customer_name, payment_method, status, reference_no,
			subtotal, line_discount, order_discount, grand_total,
			amount_tendered, change_due, idempotency_key
		) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.CreatedAt,
		t.Actor,
		t.CustomerName,
		string(t.PaymentMethod),
		string(t.Status),
		t.ReferenceNo,
		t.Totals.Subtotal,
		t.Totals.LineDiscountTotal,
		t.Totals.OrderDiscountTotal,
		t.Totals.GrandTotal,
		t.AmountTendered,
		t.ChangeDue,
		idemKey,
	)
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w: %w", domain.ErrStorageFailure, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w: %w", domain.ErrStorageFailure, err)
	}

	for _, line := range t.Lines {
		if err := insertItem(ctx, tx, id, line); err != nil {
			return 0, err
		}
	}

	if t.Status == domain.TxStatusCompleted {
		if err := r.insertOutboxEvent(ctx, tx, id, t); err != nil {
			return 0, err
		}
	}

	if attemptID != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE settlement_attempts SET state = 'SETTLED', updated_at = ? WHERE id = ?`,
			r.clock.Now(), attemptID); err != nil {
			return 0, fmt.Errorf("close settlement attempt: %w: %w", domain.ErrStorageFailure, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w: %w", domain.ErrStorageFailure, err)
	}
	return id, nil
}

func insertItem(ctx context.Context, tx *sql.Tx, transactionID int64, line domain.TransactionLine) error {
	var kind, value any
	if line.Discount != nil {
		kind = string(line.Discount.Kind)
		value = line.Discount.Value
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transaction_items(transaction_id, product_id, name, qty, unit_price, note, discount_kind, discount_value)
		VALUES(?,?,?,?,?,?,?,?)`,
		transactionID, line.ProductID, line.Name, line.Quantity, line.UnitPrice, line.Note, kind, value)
	if err != nil {
		return fmt.Errorf("insert transaction item: %w: %w", domain.ErrStorageFailure, err)
	}
	return nil
}

func (r *Repository) insertOutboxEvent(ctx context.Context, tx *sql.Tx, id int64, t *domain.Transaction) error {
	payload, err := json.Marshal(map[string]any{
		"transaction_id": id,
		"actor":          t.Actor,
		"payment_method": t.PaymentMethod,
		"grand_total":    t.Totals.GrandTotal,
		"lines":          t.Lines,
		"completed_at":   r.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_events(aggregate_id, event_type, payload, created_at)
		VALUES(?,?,?,?)`,
		fmt.Sprint(id), EventSaleCompleted, payload, r.clock.Now())
	if err != nil {
		return fmt.Errorf("insert outbox event: %w: %w", domain.ErrStorageFailure, err)
	}
	return nil
}

func (r *Repository) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM transactions WHERE idempotency_key = ?`, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction by idempotency key: %w: %w", domain.ErrStorageFailure, err)
	}
	return r.Find(ctx, id)
}

const transactionColumns = `id, created_at, resolved_at, actor, customer_name, payment_method,
	status, reference_no, subtotal, line_discount, order_discount, grand_total,
	amount_tendered, change_due`

func (r *Repository) Find(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = ?`, transactionColumns)

	t, err := scanTransaction(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query transaction %d: %w: %w", id, domain.ErrStorageFailure, err)
	}

	lines, err := queryItems(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	t.Lines = lines
	return t, nil
}

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var resolvedAt sql.NullTime
	var method, status string
	err := row.Scan(
		&t.ID,
		&t.CreatedAt,
		&resolvedAt,
		&t.Actor,
		&t.CustomerName,
		&method,
		&status,
		&t.ReferenceNo,
		&t.Totals.Subtotal,
		&t.Totals.LineDiscountTotal,
		&t.Totals.OrderDiscountTotal,
		&t.Totals.GrandTotal,
		&t.AmountTendered,
		&t.ChangeDue,
	)
	if err != nil {
		return nil, err
	}
	t.PaymentMethod = domain.PaymentMethod(method)
	t.Status = domain.TxStatus(status)
	if resolvedAt.Valid {
		t.ResolvedAt = &resolvedAt.Time
	}
	return t, nil
}

func queryItems(ctx context.Context, q querier, transactionID int64) ([]domain.TransactionLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, name, qty, unit_price, note, discount_kind, discount_value
		FROM transaction_items
		WHERE transaction_id = ?
		ORDER BY id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("query transaction items: %w: %w", domain.ErrStorageFailure, err)
	}
	defer rows.Close()

	var lines []domain.TransactionLine
	for rows.Next() {
		var line domain.TransactionLine
		var kind sql.NullString
		var value sql.NullInt64
		if err := rows.Scan(&line.ProductID, &line.Name, &line.Quantity, &line.UnitPrice, &line.Note, &kind, &value); err != nil {
			return nil, fmt.Errorf("scan transaction item: %w: %w", domain.ErrStorageFailure, err)
		}
		if kind.Valid {
			line.Discount = &domain.Discount{Kind: domain.DiscountKind(kind.String), Value: value.Int64}
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w: %w", domain.ErrStorageFailure, err)
	}
	return lines, nil
}

// Filter narrows Search results; zero fields match everything. All set
// fields combine with logical AND. Date bounds compare against the
// transaction's calendar date only, inclusive on both ends.
type Filter struct {
	IDLike        string
	Status        domain.TxStatus
	PaymentMethod domain.PaymentMethod
	DateFrom      time.Time
	DateTo        time.Time
}

// Summary is one Search result row.
type Summary struct {
	ID             int64                `json:"id"`
	CreatedAt      time.Time            `json:"created_at"`
	PaymentMethod  domain.PaymentMethod `json:"payment_method"`
	Status         domain.TxStatus      `json:"status"`
	GrandTotal     domain.Money         `json:"grand_total"`
	AmountTendered domain.Money         `json:"amount_tendered"`
	ChangeDue      domain.Money         `json:"change_due"`
	ItemsCount     int                  `json:"items_count"`
}

func (r *Repository) Search(ctx context.Context, f Filter) ([]Summary, error) {
	var where []string
	var params []any

	if strings.TrimSpace(f.IDLike) != "" {
		where = append(where, "CAST(t.id AS TEXT) LIKE ?")
		params = append(params, "%"+strings.TrimSpace(f.IDLike)+"%")
	}
	if f.Status != "" {
		where = append(where, "t.status = ?")
		params = append(params, string(f.Status))
	}
	if f.PaymentMethod != "" {
		where = append(where, "t.payment_method = ?")
		params = append(params, string(f.PaymentMethod))
	}
	if !f.DateFrom.IsZero() {
		where = append(where, "DATE(t.created_at) >= DATE(?)")
		params = append(params, f.DateFrom.Format("2006-01-02"))
	}
	if !f.DateTo.IsZero() {
		where = append(where, "DATE(t.created_at) <= DATE(?)")
		params = append(params, f.DateTo.Format("2006-01-02"))
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT t.id, t.created_at, t.payment_method, t.status,
		       t.grand_total, t.amount_tendered, t.change_due,
		       (SELECT COALESCE(SUM(qty), 0) FROM transaction_items ti WHERE ti.transaction_id = t.id)
		FROM transactions t
		%s
		ORDER BY t.created_at DESC, t.id DESC`, whereSQL)

	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("search transactions: %w: %w", domain.ErrStorageFailure, err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]Summary, error) {
	var results []Summary
	for rows.Next() {
		var s Summary
		var method, status string
		if err := rows.Scan(&s.ID, &s.CreatedAt, &method, &status, &s.GrandTotal, &s.AmountTendered, &s.ChangeDue, &s.ItemsCount); err != nil {
			return nil, fmt.Errorf("scan transaction summary: %w: %w", domain.ErrStorageFailure, err)
		}
		s.PaymentMethod = domain.PaymentMethod(method)
		s.Status = domain.TxStatus(status)
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w: %w", domain.ErrStorageFailure, err)
	}
	return results, nil
}

// ResolvePending moves a PENDING transaction to COMPLETED or CANCELLED. The
// status flip is a compare-and-swap guarded on the current status, so two
// concurrent resolutions cannot both succeed. Cancellation restores the
// stock of every line item in the same database transaction.
func (r *Repository) ResolvePending(ctx context.Context, id int64, outcome Outcome, referenceNo string) (*domain.Transaction, error) {
	target := domain.TxStatusCompleted
	if outcome == OutcomeCancel {
		target = domain.TxStatusCancelled
	} else if outcome != OutcomeComplete {
		return nil, fmt.Errorf("%w: unknown outcome %q", domain.ErrInvalidAmount, outcome)
	}
	if !domain.CanTransition(domain.TxStatusPending, target) {
		return nil, domain.ErrNotPending
	}

	now := r.clock.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin resolution: %w: %w", domain.ErrStorageFailure, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?,
		    reference_no = CASE WHEN ? != '' THEN ? ELSE reference_no END,
		    amount_tendered = CASE WHEN ? = 'COMPLETED' AND amount_tendered < grand_total THEN grand_total ELSE amount_tendered END,
		    resolved_at = ?
		WHERE id = ? AND status = 'PENDING'`,
		string(target), referenceNo, strings.TrimSpace(referenceNo), string(target), now, id)
	if err != nil {
		return nil, fmt.Errorf("resolve transaction %d: %w: %w", id, domain.ErrStorageFailure, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("resolve transaction %d: %w: %w", id, domain.ErrStorageFailure, err)
	}
	if affected == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM transactions WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("read transaction %d: %w: %w", id, domain.ErrStorageFailure, err)
		}
		return nil, fmt.Errorf("%w: transaction %d is %s", domain.ErrNotPending, id, status)
	}

	if target == domain.TxStatusCancelled {
		// Give the reserved inventory back.
		if _, err := tx.ExecContext(ctx, `
			UPDATE products
			SET stock = stock + (
				SELECT COALESCE(SUM(qty), 0) FROM transaction_items ti
				WHERE ti.transaction_id = ? AND ti.product_id = products.id
			)
			WHERE id IN (SELECT product_id FROM transaction_items WHERE transaction_id = ?)`,
			id, id); err != nil {
			return nil, fmt.Errorf("restore stock for transaction %d: %w: %w", id, domain.ErrStorageFailure, err)
		}
	}

	if target == domain.TxStatusCompleted {
		t, err := r.findInTx(ctx, tx, id)
		if err != nil {
			return nil, err
		}
		if err := r.insertOutboxEvent(ctx, tx, id, t); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit resolution: %w: %w", domain.ErrStorageFailure, err)
	}

	return r.Find(ctx, id)
}

// findInTx loads the full transaction, line items included, inside an open
// database transaction. The resolution event is built from it, so the event
// payload carries the same lines the commit-time event does.
func (r *Repository) findInTx(ctx context.Context, tx *sql.Tx, id int64) (*domain.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = ?`, transactionColumns)
	t, err := scanTransaction(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("query transaction %d: %w: %w", id, domain.ErrStorageFailure, err)
	}
	lines, err := queryItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	t.Lines = lines
	return t, nil
}

func (r *Repository) CountByStatus(ctx context.Context, status domain.TxStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE status = ?`, string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transactions by status: %w: %w", domain.ErrStorageFailure, err)
	}
	return count, nil
}

// ListRecent returns the N most recent transactions of any status, for the
// dashboard collaborator.
func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT t.id, t.created_at, t.payment_method, t.status,
		       t.grand_total, t.amount_tendered, t.change_due,
		       (SELECT COALESCE(SUM(qty), 0) FROM transaction_items ti WHERE ti.transaction_id = t.id)
		FROM transactions t
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent transactions: %w: %w", domain.ErrStorageFailure, err)
	}
	defer rows.Close()

	return scanSummaries(rows)
}
