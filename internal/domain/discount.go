package domain

import "fmt"

type DiscountKind string

const (
	DiscountLinePercent  DiscountKind = "LINE_PERCENT"
	DiscountLineFixed    DiscountKind = "LINE_FIXED"
	DiscountOrderPercent DiscountKind = "ORDER_PERCENT"
	DiscountOrderFixed   DiscountKind = "ORDER_FIXED"
)

// Discount reduces a line or order amount. For percent kinds Value is in
// basis points (1000 = 10%); for fixed kinds Value is in minor units.
type Discount struct {
	Kind  DiscountKind `json:"kind"`
	Value int64        `json:"value"`
}

func (d Discount) isLine() bool {
	return d.Kind == DiscountLinePercent || d.Kind == DiscountLineFixed
}

func (d Discount) isPercent() bool {
	return d.Kind == DiscountLinePercent || d.Kind == DiscountOrderPercent
}

// Validate rejects misconfigured discounts: unknown kinds, negative values
// and percentages above 100%.
func (d Discount) Validate() error {
	switch d.Kind {
	case DiscountLinePercent, DiscountLineFixed, DiscountOrderPercent, DiscountOrderFixed:
	default:
		return fmt.Errorf("%w: unknown discount kind %q", ErrInvalidAmount, d.Kind)
	}
	if d.Value < 0 {
		return fmt.Errorf("%w: negative discount value %d", ErrInvalidAmount, d.Value)
	}
	if d.isPercent() && d.Value > 10000 {
		return fmt.Errorf("%w: discount percentage %d exceeds 100%%", ErrInvalidAmount, d.Value)
	}
	return nil
}

// AmountOff returns how much the discount takes off base, clamped to
// [0, base] so a discount can never push an amount negative.
func (d Discount) AmountOff(base Money) Money {
	var off Money
	if d.isPercent() {
		off = PercentOf(base, d.Value)
	} else {
		off = Money(d.Value)
	}
	return ClampMoney(off, base)
}

// Totals is the result of pricing a cart.
type Totals struct {
	Subtotal           Money `json:"subtotal"`
	LineDiscountTotal  Money `json:"line_discount_total"`
	OrderDiscountTotal Money `json:"order_discount_total"`
	GrandTotal         Money `json:"grand_total"`
}

// ComputeTotals prices a cart: each line's own discount is applied against
// the line gross first, then the order-level discount against the sum of the
// discounted lines. Pure function, no side effects on the cart.
func ComputeTotals(c *Cart) (Totals, error) {
	var t Totals
	var preOrder Money

	for i := range c.Lines {
		line := &c.Lines[i]
		gross := line.UnitPrice * Money(line.Quantity)
		t.Subtotal += gross

		net := gross
		if line.Discount != nil {
			if err := line.Discount.Validate(); err != nil {
				return Totals{}, err
			}
			if !line.Discount.isLine() {
				return Totals{}, fmt.Errorf("%w: %s is not a line discount", ErrInvalidAmount, line.Discount.Kind)
			}
			off := line.Discount.AmountOff(gross)
			t.LineDiscountTotal += off
			net = gross - off
		}
		preOrder += net
	}

	t.GrandTotal = preOrder
	if c.OrderDiscount != nil {
		if err := c.OrderDiscount.Validate(); err != nil {
			return Totals{}, err
		}
		if c.OrderDiscount.isLine() {
			return Totals{}, fmt.Errorf("%w: %s is not an order discount", ErrInvalidAmount, c.OrderDiscount.Kind)
		}
		t.OrderDiscountTotal = c.OrderDiscount.AmountOff(preOrder)
		t.GrandTotal = preOrder - t.OrderDiscountTotal
	}

	return t, nil
}
