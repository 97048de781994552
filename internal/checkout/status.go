package checkout

// State tracks a single settlement attempt.
type State string

const (
	StateOpen          State = "OPEN"
	StateValidated     State = "VALIDATED"
	StateStockReserved State = "STOCK_RESERVED"
	StateSettled       State = "SETTLED"
	StateRejected      State = "REJECTED"
)

func (s State) IsTerminal() bool {
	return s == StateSettled || s == StateRejected
}

// String representation (for logging)
func (s State) String() string {
	return string(s)
}

var transitions = map[State][]State{
	StateOpen:          {StateValidated, StateRejected},
	StateValidated:     {StateStockReserved, StateRejected},
	StateStockReserved: {StateSettled, StateRejected},
}

// CanTransitionTo reports whether a settlement attempt may move from one
// state to the next. REJECTED is reachable from every pre-SETTLED state;
// terminal states never transition.
func CanTransitionTo(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
