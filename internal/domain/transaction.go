package domain

import "time"

type TxStatus string

const (
	TxStatusCompleted TxStatus = "COMPLETED"
	TxStatusPending   TxStatus = "PENDING"
	TxStatusCancelled TxStatus = "CANCELLED"
)

func (s TxStatus) IsTerminal() bool {
	return s == TxStatusCompleted || s == TxStatusCancelled
}

// String representation (for logging)
func (s TxStatus) String() string {
	return string(s)
}

// CanTransition reports whether a transaction may move from one status to
// another. Only PENDING transactions ever transition; COMPLETED and
// CANCELLED are terminal.
func CanTransition(from, to TxStatus) bool {
	if from != TxStatusPending {
		return false
	}
	return to == TxStatusCompleted || to == TxStatusCancelled
}

type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentCard         PaymentMethod = "card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentEWallet      PaymentMethod = "e_wallet"
)

// TransactionLine is a committed line item. Every field is a snapshot taken
// at settlement, independent of later catalog mutation.
type TransactionLine struct {
	ProductID int64     `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice Money     `json:"unit_price"`
	Note      string    `json:"note,omitempty"`
	Discount  *Discount `json:"discount,omitempty"`
}

// Transaction is the financial record of a sale attempt. Once its status is
// terminal no further mutation is permitted; transactions are never deleted.
type Transaction struct {
	ID             int64
	CreatedAt      time.Time
	ResolvedAt     *time.Time
	Actor          string // opaque attribution token from the auth collaborator
	CustomerName   string
	PaymentMethod  PaymentMethod
	Status         TxStatus
	ReferenceNo    string
	Lines          []TransactionLine
	Totals         Totals
	AmountTendered Money
	ChangeDue      Money
}
