package domain

import (
	"encoding/json"
	"fmt"
)

// CartLine is one product in an order-in-progress. UnitPrice is snapshotted
// when the line is created and is immune to later catalog price changes.
type CartLine struct {
	ProductID int64     `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice Money     `json:"unit_price"`
	Note      string    `json:"note,omitempty"`
	Discount  *Discount `json:"discount,omitempty"`
}

// Cart is an uncommitted order being assembled by an operator. Lines keep
// insertion order for display; no two lines reference the same product.
type Cart struct {
	Lines         []CartLine `json:"lines"`
	OrderDiscount *Discount  `json:"order_discount,omitempty"`
	Note          string     `json:"note,omitempty"`
}

func (c *Cart) find(productID int64) *CartLine {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return &c.Lines[i]
		}
	}
	return nil
}

// AddLine merges qty into an existing line for the product, or appends a new
// line snapshotting the given unit price.
func (c *Cart) AddLine(p *Product, qty int, note string) error {
	if qty <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	if line := c.find(p.ID); line != nil {
		line.Quantity += qty
		return nil
	}
	c.Lines = append(c.Lines, CartLine{
		ProductID: p.ID,
		Name:      p.Name,
		Quantity:  qty,
		UnitPrice: p.Price,
		Note:      note,
	})
	return nil
}

// SetQuantity replaces the quantity of an existing line. Zero removes the
// line; negative quantities are rejected.
func (c *Cart) SetQuantity(productID int64, qty int) error {
	if qty < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, qty)
	}
	line := c.find(productID)
	if line == nil {
		return ErrNotFound
	}
	if qty == 0 {
		c.RemoveLine(productID)
		return nil
	}
	line.Quantity = qty
	return nil
}

func (c *Cart) RemoveLine(productID int64) {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
			return
		}
	}
}

func (c *Cart) ApplyLineDiscount(productID int64, d Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if !d.isLine() {
		return fmt.Errorf("%w: %s is not a line discount", ErrInvalidAmount, d.Kind)
	}
	line := c.find(productID)
	if line == nil {
		return ErrNotFound
	}
	line.Discount = &d
	return nil
}

func (c *Cart) ApplyOrderDiscount(d Discount) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.isLine() {
		return fmt.Errorf("%w: %s is not an order discount", ErrInvalidAmount, d.Kind)
	}
	c.OrderDiscount = &d
	return nil
}

func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Serialize encodes the cart for draft storage. RestoreCart on the result
// reproduces an identical cart, including line order.
func (c *Cart) Serialize() ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal cart: %w", err)
	}
	return data, nil
}

func RestoreCart(data []byte) (*Cart, error) {
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &c, nil
}
