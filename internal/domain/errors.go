package domain

import (
	"errors"
	"fmt"
)

// Common errors returned by the engine
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrProductInactive     = errors.New("product is inactive")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrEmptyCart           = errors.New("cart is empty, nothing to settle")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrNotPending          = errors.New("transaction is not pending")

	// ErrStorageFailure classifies persistence-layer failures, as opposed
	// to a rule the caller violated. Repositories wrap driver errors with
	// it so callers can errors.Is without knowing the driver.
	ErrStorageFailure = errors.New("storage failure")
)

// StockError carries the product and quantities involved in a failed stock
// decrement so the caller can render an actionable message.
type StockError struct {
	ProductID int64
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

// PaymentError carries the amounts involved in a rejected payment.
type PaymentError struct {
	Tendered Money
	Required Money
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("insufficient payment: tendered %d, required %d", e.Tendered, e.Required)
}

func (e *PaymentError) Unwrap() error {
	return ErrInsufficientPayment
}
