package transaction

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_till/internal/domain"
)

// Attempt is a journaled settlement attempt. Attempts stuck in
// STOCK_RESERVED are the reserved-but-uncommitted case a crash can leave
// behind; the recovery poller releases their stock.
type Attempt struct {
	ID        string
	State     string
	Lines     []domain.TransactionLine
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r *Repository) BeginAttempt(ctx context.Context, id string, lines []domain.TransactionLine) error {
	payload, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal attempt lines: %w", err)
	}

	now := r.clock.Now()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO settlement_attempts(id, state, lines, created_at, updated_at)
		VALUES(?,?,?,?,?)`,
		id, "VALIDATED", payload, now, now)
	if err != nil {
		return fmt.Errorf("insert settlement attempt: %w: %w", domain.ErrStorageFailure, err)
	}
	return nil
}

// ReserveAttempt decrements stock for every line of a VALIDATED attempt and
// flips it to STOCK_RESERVED, all in one database transaction. A crash at
// any point leaves either nothing reserved at all or a STOCK_RESERVED row
// the recovery sweep can release; stock and journal never diverge.
func (r *Repository) ReserveAttempt(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reservation: %w: %w", domain.ErrStorageFailure, err)
	}
	defer tx.Rollback()

	var payload []byte
	err = tx.QueryRowContext(ctx,
		`SELECT lines FROM settlement_attempts WHERE id = ? AND state = 'VALIDATED'`, id).
		Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: attempt %s is not open for reservation", domain.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read attempt %s: %w: %w", id, domain.ErrStorageFailure, err)
	}

	var lines []domain.TransactionLine
	if err := json.Unmarshal(payload, &lines); err != nil {
		return fmt.Errorf("unmarshal attempt lines: %w", err)
	}

	for _, line := range lines {
		res, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - ? WHERE id = ? AND stock >= ?`,
			line.Quantity, line.ProductID, line.Quantity)
		if err != nil {
			return fmt.Errorf("reserve stock for product %d: %w: %w", line.ProductID, domain.ErrStorageFailure, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reserve stock for product %d: %w: %w", line.ProductID, domain.ErrStorageFailure, err)
		}
		if affected == 0 {
			var stock int
			err := tx.QueryRowContext(ctx, `SELECT stock FROM products WHERE id = ?`, line.ProductID).Scan(&stock)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: product %d", domain.ErrNotFound, line.ProductID)
			}
			if err != nil {
				return fmt.Errorf("read stock for product %d: %w: %w", line.ProductID, domain.ErrStorageFailure, err)
			}
			return &domain.StockError{ProductID: line.ProductID, Requested: line.Quantity, Available: stock}
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE settlement_attempts SET state = 'STOCK_RESERVED', updated_at = ? WHERE id = ?`,
		r.clock.Now(), id); err != nil {
		return fmt.Errorf("mark attempt %s reserved: %w: %w", id, domain.ErrStorageFailure, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reservation: %w: %w", domain.ErrStorageFailure, err)
	}
	return nil
}

func (r *Repository) SetAttemptState(ctx context.Context, id string, state string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE settlement_attempts SET state = ?, updated_at = ? WHERE id = ?`,
		state, r.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("update settlement attempt %s: %w: %w", id, domain.ErrStorageFailure, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update settlement attempt %s: %w: %w", id, domain.ErrStorageFailure, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ReleaseAttempt gives back the stock reserved by a stuck attempt and marks
// it REJECTED, in one database transaction so a crash mid-release cannot
// double-credit stock on the next sweep. Attempts not in STOCK_RESERVED
// have nothing to release and return ErrNotFound.
func (r *Repository) ReleaseAttempt(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin release: %w: %w", domain.ErrStorageFailure, err)
	}
	defer tx.Rollback()

	var payload []byte
	err = tx.QueryRowContext(ctx,
		`SELECT lines FROM settlement_attempts WHERE id = ? AND state = 'STOCK_RESERVED'`, id).
		Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: attempt %s holds no reservation", domain.ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read attempt %s: %w: %w", id, domain.ErrStorageFailure, err)
	}

	var lines []domain.TransactionLine
	if err := json.Unmarshal(payload, &lines); err != nil {
		return fmt.Errorf("unmarshal attempt lines: %w", err)
	}

	for _, line := range lines {
		if _, err := tx.ExecContext(ctx,
			`UPDATE products SET stock = stock + ? WHERE id = ?`,
			line.Quantity, line.ProductID); err != nil {
			return fmt.Errorf("restore stock for product %d: %w: %w", line.ProductID, domain.ErrStorageFailure, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE settlement_attempts SET state = 'REJECTED', updated_at = ? WHERE id = ?`,
		r.clock.Now(), id); err != nil {
		return fmt.Errorf("close attempt %s: %w: %w", id, domain.ErrStorageFailure, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit release: %w: %w", domain.ErrStorageFailure, err)
	}
	return nil
}

// StuckAttempts returns attempts that reserved stock before the cutoff and
// never reached a terminal state.
func (r *Repository) StuckAttempts(ctx context.Context, before time.Time) ([]*Attempt, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, state, lines, created_at, updated_at
		FROM settlement_attempts
		WHERE state = 'STOCK_RESERVED' AND updated_at < ?`, before)
	if err != nil {
		return nil, fmt.Errorf("query stuck attempts: %w: %w", domain.ErrStorageFailure, err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		a := &Attempt{}
		var payload []byte
		if err := rows.Scan(&a.ID, &a.State, &payload, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan stuck attempt: %w: %w", domain.ErrStorageFailure, err)
		}
		if err := json.Unmarshal(payload, &a.Lines); err != nil {
			return nil, fmt.Errorf("unmarshal attempt lines: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w: %w", domain.ErrStorageFailure, err)
	}
	return attempts, nil
}
