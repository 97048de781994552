package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from TxStatus
		to   TxStatus
		want bool
	}{
		{"pending to completed", TxStatusPending, TxStatusCompleted, true},
		{"pending to cancelled", TxStatusPending, TxStatusCancelled, true},
		{"pending to pending", TxStatusPending, TxStatusPending, false},
		{"completed is terminal", TxStatusCompleted, TxStatusCancelled, false},
		{"cancelled is terminal", TxStatusCancelled, TxStatusCompleted, false},
		{"completed to pending", TxStatusCompleted, TxStatusPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTxStatusIsTerminal(t *testing.T) {
	assert.True(t, TxStatusCompleted.IsTerminal())
	assert.True(t, TxStatusCancelled.IsTerminal())
	assert.False(t, TxStatusPending.IsTerminal())
}
