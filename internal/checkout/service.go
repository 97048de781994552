package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_till/internal/clock"
	"github.com/fjod/go_till/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrIllegalTransition = errors.New("illegal transition of settlement state")

// Ledger persists committed transactions. Commit writes the transaction, its
// line items, the outbox event and the journal close in one database
// transaction, so a crash can never leave a half-written sale.
type Ledger interface {
	Commit(ctx context.Context, t *domain.Transaction, attemptID, idempotencyKey string) (int64, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Transaction, error)
}

// Journal records settlement attempts and owns their stock movements.
// ReserveAttempt decrements stock and flips the attempt to STOCK_RESERVED in
// one database transaction; ReleaseAttempt is the atomic inverse. An attempt
// left in STOCK_RESERVED with no committed transaction is therefore always
// visible to the recovery poller, which releases its stock.
type Journal interface {
	BeginAttempt(ctx context.Context, id string, lines []domain.TransactionLine) error
	ReserveAttempt(ctx context.Context, id string) error
	ReleaseAttempt(ctx context.Context, id string) error
	SetAttemptState(ctx context.Context, id string, state string) error
}

// Carts hands over the session cart being settled.
type Carts interface {
	Snapshot(sessionID string) (*domain.Cart, string, error)
	Discard(sessionID string)
}

// Drafts clears the originating draft once a settlement commits.
type Drafts interface {
	Discard(ctx context.Context, id string) error
}

// Policy configures which payment methods may tender less than the grand
// total, parking the sale as PENDING instead of rejecting it.
type Policy struct {
	DeferredMethods map[domain.PaymentMethod]bool
}

func DefaultPolicy() Policy {
	return Policy{DeferredMethods: map[domain.PaymentMethod]bool{
		domain.PaymentBankTransfer: true,
		domain.PaymentEWallet:      true,
	}}
}

type Service struct {
	ledger  Ledger
	journal Journal
	carts   Carts
	drafts  Drafts
	clock   clock.Clock
	policy  Policy
	logger  *zap.Logger
}

func NewService(ledger Ledger, journal Journal, carts Carts, drafts Drafts, clk clock.Clock, policy Policy, logger *zap.Logger) *Service {
	return &Service{
		ledger:  ledger,
		journal: journal,
		carts:   carts,
		drafts:  drafts,
		clock:   clk,
		policy:  policy,
		logger:  logger,
	}
}

type Request struct {
	SessionID      string
	Actor          string
	CustomerName   string
	PaymentMethod  domain.PaymentMethod
	AmountTendered domain.Money
	ReferenceNo    string
	IdempotencyKey string
}

// Settle drives one checkout attempt through
// OPEN -> VALIDATED -> STOCK_RESERVED -> SETTLED, exiting to REJECTED on any
// failure. A failed attempt leaves catalog stock and the ledger exactly as
// they were before the attempt began.
func (s *Service) Settle(ctx context.Context, req Request) (*domain.Transaction, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.ledger.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("duplicate settlement request",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Int64("transaction_id", existing.ID))
			return existing, nil
		}
	}

	cart, draftID, err := s.carts.Snapshot(req.SessionID)
	if err != nil {
		return nil, err
	}

	state := StateOpen

	// OPEN -> VALIDATED
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}
	totals, err := domain.ComputeTotals(cart)
	if err != nil {
		return nil, err
	}
	if !CanTransitionTo(state, StateValidated) {
		return nil, ErrIllegalTransition
	}
	state = StateValidated

	lines := make([]domain.TransactionLine, len(cart.Lines))
	for i, l := range cart.Lines {
		lines[i] = domain.TransactionLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Note:      l.Note,
			Discount:  l.Discount,
		}
	}

	attemptID := uuid.New().String()
	if err := s.journal.BeginAttempt(ctx, attemptID, lines); err != nil {
		return nil, fmt.Errorf("failed to journal settlement attempt: %w", err)
	}

	// VALIDATED -> STOCK_RESERVED. The journal decrements stock and flips
	// the attempt in one database transaction, so a crash anywhere here
	// leaves either nothing reserved or a STOCK_RESERVED attempt the
	// recovery sweep will release.
	if !CanTransitionTo(state, StateStockReserved) {
		s.abort(attemptID)
		return nil, ErrIllegalTransition
	}
	if err := s.journal.ReserveAttempt(ctx, attemptID); err != nil {
		s.abort(attemptID)
		return nil, err
	}
	state = StateStockReserved

	// STOCK_RESERVED -> SETTLED
	status := domain.TxStatusCompleted
	var change domain.Money
	if req.AmountTendered < totals.GrandTotal {
		if !s.policy.DeferredMethods[req.PaymentMethod] {
			s.abort(attemptID)
			return nil, &domain.PaymentError{Tendered: req.AmountTendered, Required: totals.GrandTotal}
		}
		status = domain.TxStatusPending
	} else {
		change = req.AmountTendered - totals.GrandTotal
	}

	t := &domain.Transaction{
		CreatedAt:      s.clock.Now(),
		Actor:          req.Actor,
		CustomerName:   req.CustomerName,
		PaymentMethod:  req.PaymentMethod,
		Status:         status,
		ReferenceNo:    req.ReferenceNo,
		Lines:          lines,
		Totals:         totals,
		AmountTendered: req.AmountTendered,
		ChangeDue:      change,
	}

	id, err := s.ledger.Commit(ctx, t, attemptID, req.IdempotencyKey)
	if err != nil {
		s.abort(attemptID)
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.ID = id

	s.carts.Discard(req.SessionID)
	if draftID != "" {
		if err := s.drafts.Discard(context.WithoutCancel(ctx), draftID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("failed to clear draft after settlement",
				zap.String("draft_id", draftID), zap.Error(err))
		}
	}

	return t, nil
}

const releaseRetries = 3

// abort closes a failed attempt. It runs on a background context so caller
// cancellation cannot strand reserved stock. When the attempt holds a
// reservation the release restores stock and rejects it atomically; when it
// never reserved anything it is rejected directly. An attempt whose release
// keeps failing stays STOCK_RESERVED and the recovery sweep picks it up.
func (s *Service) abort(attemptID string) {
	ctx := context.Background()
	var err error
	for attempt := 0; attempt < releaseRetries; attempt++ {
		err = s.journal.ReleaseAttempt(ctx, attemptID)
		if err == nil {
			return
		}
		if errors.Is(err, domain.ErrNotFound) {
			s.reject(attemptID)
			return
		}
	}
	s.logger.Error("failed to release reserved stock",
		zap.String("attempt_id", attemptID), zap.Error(err))
}

func (s *Service) reject(attemptID string) {
	if err := s.journal.SetAttemptState(context.Background(), attemptID, string(StateRejected)); err != nil {
		s.logger.Error("failed to mark settlement attempt rejected",
			zap.String("attempt_id", attemptID), zap.Error(err))
	}
}
