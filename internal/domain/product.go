package domain

import "time"

type Category struct {
	ID   int64
	Name string
}

// Product is a catalog entry. The engine reads products and mutates only the
// stock quantity, at settlement and compensation time.
type Product struct {
	ID         int64
	CategoryID int64
	Name       string
	Price      Money // unit price in minor units
	Stock      int
	LowStock   int
	Active     bool
	CreatedAt  time.Time
}
