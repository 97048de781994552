package checkout

import (
	"context"
	"sync"

	"github.com/fjod/go_till/internal/domain"
)

// mockLedger implements Ledger and captures the committed transaction.
type mockLedger struct {
	existing  *domain.Transaction
	findErr   error
	commitErr error

	committed      *domain.Transaction
	attemptID      string
	idempotencyKey string
	nextID         int64
}

func (m *mockLedger) Commit(_ context.Context, t *domain.Transaction, attemptID, idempotencyKey string) (int64, error) {
	if m.commitErr != nil {
		return 0, m.commitErr
	}
	m.committed = t
	m.attemptID = attemptID
	m.idempotencyKey = idempotencyKey
	if m.nextID == 0 {
		m.nextID = 1
	}
	return m.nextID, nil
}

func (m *mockLedger) FindByIdempotencyKey(_ context.Context, _ string) (*domain.Transaction, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	if m.existing == nil {
		return nil, domain.ErrNotFound
	}
	return m.existing, nil
}

// mockJournal implements Journal over an in-memory stock map, mirroring the
// all-or-nothing reservation of the real repository: either every line is
// decremented and the attempt flips to STOCK_RESERVED, or nothing changes.
type mockJournal struct {
	mu      sync.Mutex
	stock   map[int64]int
	lines   map[string][]domain.TransactionLine
	history map[string][]string

	beginErr   error
	reserveErr error
	releaseErr error
	stateErr   error
}

func newMockJournal(stock map[int64]int) *mockJournal {
	if stock == nil {
		stock = make(map[int64]int)
	}
	return &mockJournal{
		stock:   stock,
		lines:   make(map[string][]domain.TransactionLine),
		history: make(map[string][]string),
	}
}

func (m *mockJournal) BeginAttempt(ctx context.Context, id string, lines []domain.TransactionLine) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.beginErr != nil {
		return m.beginErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines[id] = lines
	m.history[id] = []string{"VALIDATED"}
	return nil
}

func (m *mockJournal) ReserveAttempt(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.reserveErr != nil {
		return m.reserveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastLocked(id) != "VALIDATED" {
		return domain.ErrNotFound
	}
	for _, line := range m.lines[id] {
		available, ok := m.stock[line.ProductID]
		if !ok {
			return domain.ErrNotFound
		}
		if available < line.Quantity {
			return &domain.StockError{ProductID: line.ProductID, Requested: line.Quantity, Available: available}
		}
	}
	for _, line := range m.lines[id] {
		m.stock[line.ProductID] -= line.Quantity
	}
	m.history[id] = append(m.history[id], "STOCK_RESERVED")
	return nil
}

func (m *mockJournal) ReleaseAttempt(_ context.Context, id string) error {
	if m.releaseErr != nil {
		return m.releaseErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastLocked(id) != "STOCK_RESERVED" {
		return domain.ErrNotFound
	}
	for _, line := range m.lines[id] {
		m.stock[line.ProductID] += line.Quantity
	}
	m.history[id] = append(m.history[id], "REJECTED")
	return nil
}

func (m *mockJournal) SetAttemptState(_ context.Context, id string, state string) error {
	if m.stateErr != nil {
		return m.stateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[id] = append(m.history[id], state)
	return nil
}

func (m *mockJournal) lastLocked(id string) string {
	states := m.history[id]
	if len(states) == 0 {
		return ""
	}
	return states[len(states)-1]
}

func (m *mockJournal) lastState(id string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastLocked(id)
}

func (m *mockJournal) level(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[id]
}

// mockCarts implements Carts for a single session.
type mockCarts struct {
	cart      *domain.Cart
	draftID   string
	err       error
	discarded []string
}

func (m *mockCarts) Snapshot(_ string) (*domain.Cart, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return m.cart, m.draftID, nil
}

func (m *mockCarts) Discard(sessionID string) {
	m.discarded = append(m.discarded, sessionID)
}

// mockDrafts implements Drafts.
type mockDrafts struct {
	err       error
	discarded []string
}

func (m *mockDrafts) Discard(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	m.discarded = append(m.discarded, id)
	return nil
}
