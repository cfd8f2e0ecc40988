package smtp

// State names the shape an Envelope is currently in.
type State int

// Envelope states, each strictly more complete than the previous one.
const (
	// StateEmpty means no transaction is open.
	StateEmpty State = iota

	// StateHasSender means MAIL has been accepted.
	StateHasSender

	// StateHasRecipients means at least one RCPT has been accepted.
	StateHasRecipients

	// StateComplete means the body has been read and the envelope can be stored.
	StateComplete
)

// String returns a string representation of the State.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateHasSender:
		return "HAS_SENDER"
	case StateHasRecipients:
		return "HAS_RECIPIENTS"
	case StateComplete:
		return "COMPLETE"
	default:
		return "UNKNOWN"
	}
}

// CanTransitionTo checks whether the state is allowed to move to next.
// MAIL restarts a transaction from anywhere and RSET returns to Empty from anywhere.
func (s State) CanTransitionTo(next State) bool {
	transitions := map[State]map[State]bool{
		StateEmpty:         {StateEmpty: true, StateHasSender: true},
		StateHasSender:     {StateEmpty: true, StateHasSender: true, StateHasRecipients: true},
		StateHasRecipients: {StateEmpty: true, StateHasSender: true, StateHasRecipients: true, StateComplete: true},
		StateComplete:      {StateEmpty: true, StateHasSender: true},
	}

	if m, ok := transitions[s]; ok {
		return m[next]
	}
	return false
}
