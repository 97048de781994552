package draft

import (
	"context"
	"time"

	"github.com/fjod/go_till/internal/domain"
)

// Draft is a durable, resumable snapshot of a cart.
type Draft struct {
	ID          string       `bson:"_id" json:"id"`
	Reference   string       `bson:"reference,omitempty" json:"reference,omitempty"`
	Title       string       `bson:"title" json:"title"`
	CustomerRef string       `bson:"customer_ref,omitempty" json:"customer_ref,omitempty"`
	Snapshot    []byte       `bson:"snapshot" json:"-"`
	Total       domain.Money `bson:"total" json:"total"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`
}

// Summary is what draft listings return; the cart snapshot stays out.
type Summary struct {
	ID          string       `json:"id"`
	Reference   string       `json:"reference,omitempty"`
	Title       string       `json:"title"`
	CustomerRef string       `json:"customer_ref,omitempty"`
	Total       domain.Money `json:"total"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Store persists cart snapshots between sessions.
type Store interface {
	// Save creates a new draft, or overwrites the snapshot of the open draft
	// carrying the same non-empty reference.
	Save(ctx context.Context, d Draft) (Draft, error)

	// List returns draft summaries, newest first.
	List(ctx context.Context) ([]Summary, error)

	// Load returns the draft without deleting it; deletion is explicit.
	Load(ctx context.Context, id string) (Draft, error)

	Discard(ctx context.Context, id string) error
}
