package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentOf(t *testing.T) {
	tests := []struct {
		name   string
		amount Money
		bps    int64
		want   Money
	}{
		{"ten percent", 1000, 1000, 100},
		{"full amount", 1000, 10000, 1000},
		{"rounds half up", 25, 1000, 3}, // 2.5 -> 3
		{"rounds down below half", 24, 1000, 2},
		{"zero amount", 0, 1000, 0},
		{"zero bps", 1000, 0, 0},
		{"negative amount", -100, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PercentOf(tt.amount, tt.bps))
		})
	}
}

func TestClampMoney(t *testing.T) {
	assert.Equal(t, Money(0), ClampMoney(-5, 100))
	assert.Equal(t, Money(100), ClampMoney(150, 100))
	assert.Equal(t, Money(50), ClampMoney(50, 100))
}
