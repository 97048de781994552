package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/go_till/internal/catalog"
	"github.com/fjod/go_till/internal/domain"
	"github.com/google/uuid"
)

var ErrSessionNotFound = errors.New("cart session not found")

// Service owns every in-progress cart, one per operator session. A cart is
// exclusively owned by its session; all mutations on a session serialize on
// the session lock.
type Service struct {
	catalog catalog.Store

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	mu      sync.Mutex
	cart    *domain.Cart
	draftID string // draft this cart was restored from, cleared on checkout
}

func NewService(store catalog.Store) *Service {
	return &Service{
		catalog:  store,
		sessions: make(map[string]*session),
	}
}

// Create starts an empty cart and returns its session id.
func (s *Service) Create() string {
	id := uuid.New().String()
	s.mu.Lock()
	s.sessions[id] = &session{cart: &domain.Cart{}}
	s.mu.Unlock()
	return id
}

// CreateFromDraft starts a session from a serialized cart snapshot.
func (s *Service) CreateFromDraft(draftID string, snapshot []byte) (string, error) {
	c, err := domain.RestoreCart(snapshot)
	if err != nil {
		return "", err
	}
	id := uuid.New().String()
	s.mu.Lock()
	s.sessions[id] = &session{cart: c, draftID: draftID}
	s.mu.Unlock()
	return id, nil
}

func (s *Service) get(sessionID string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// AddItem merges qty of the product into the session cart, snapshotting the
// current catalog price on first add.
func (s *Service) AddItem(ctx context.Context, sessionID string, productID int64, qty int, note string) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}

	p, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !p.Active {
		return domain.ErrProductInactive
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.cart.AddLine(p, qty, note)
}

func (s *Service) SetQuantity(sessionID string, productID int64, qty int) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.cart.SetQuantity(productID, qty)
}

func (s *Service) RemoveItem(sessionID string, productID int64) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.cart.RemoveLine(productID)
	return nil
}

func (s *Service) ApplyLineDiscount(sessionID string, productID int64, d domain.Discount) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.cart.ApplyLineDiscount(productID, d)
}

func (s *Service) ApplyOrderDiscount(sessionID string, d domain.Discount) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.cart.ApplyOrderDiscount(d)
}

func (s *Service) Totals(sessionID string) (domain.Totals, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return domain.Totals{}, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return domain.ComputeTotals(sess.cart)
}

// Snapshot returns a deep copy of the session cart plus the draft id the
// session was restored from, for draft saving and settlement.
func (s *Service) Snapshot(sessionID string) (*domain.Cart, string, error) {
	sess, err := s.get(sessionID)
	if err != nil {
		return nil, "", err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	cp := &domain.Cart{Note: sess.cart.Note}
	cp.Lines = make([]domain.CartLine, len(sess.cart.Lines))
	copy(cp.Lines, sess.cart.Lines)
	for i := range cp.Lines {
		if d := cp.Lines[i].Discount; d != nil {
			dc := *d
			cp.Lines[i].Discount = &dc
		}
	}
	if sess.cart.OrderDiscount != nil {
		dc := *sess.cart.OrderDiscount
		cp.OrderDiscount = &dc
	}
	return cp, sess.draftID, nil
}

// AttachDraft records that the session cart is persisted under the given
// draft id, so a later settlement clears that draft.
func (s *Service) AttachDraft(sessionID, draftID string) error {
	sess, err := s.get(sessionID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	sess.draftID = draftID
	sess.mu.Unlock()
	return nil
}

// Discard destroys the session and its cart.
func (s *Service) Discard(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}
