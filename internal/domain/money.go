package domain

// Money is an amount in minor currency units (centavos). All monetary
// arithmetic in the engine is integer arithmetic on this type; floats never
// enter the calculation path.
type Money int64

// PercentOf returns bps basis points of amount (1000 bps = 10%).
// The division rounds half up, which keeps percentage discounts deterministic.
func PercentOf(amount Money, bps int64) Money {
	if amount <= 0 || bps <= 0 {
		return 0
	}
	return Money((int64(amount)*bps + 5000) / 10000)
}

// ClampMoney bounds v to the range [0, max].
func ClampMoney(v, max Money) Money {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
