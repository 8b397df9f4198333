package orders

// State is the lifecycle position of an order.
type State string

const (
	StateInProgress State = "IN_PROGRESS"
	StateSent       State = "SENT"
	StateReceived   State = "RECEIVED"
)

func (s State) rank() int {
	switch s {
	case StateInProgress:
		return 0
	case StateSent:
		return 1
	case StateReceived:
		return 2
	}
	return -1
}

// Valid reports whether s is a known state.
func (s State) Valid() bool { return s.rank() >= 0 }

// CanTransition allows only single forward steps.
func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	return to.rank() == from.rank()+1
}

// EditMode tells which line fields can change in a given state.
type EditMode string

const (
	// ModeEdit allows stock and ordered weight.
	ModeEdit EditMode = "EDIT"
	// ModeReview allows stock only; the ordered weight is locked.
	ModeReview EditMode = "REVIEW"
)

// Mode returns the line edit mode for an order in state s.
func (s State) Mode() EditMode {
	if s == StateInProgress {
		return ModeEdit
	}
	return ModeReview
}
