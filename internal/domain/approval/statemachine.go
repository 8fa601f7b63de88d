package approval

// transitions is the single source of truth for decision lifecycle moves.
// PENDING may resolve to APPROVED or REJECTED; cancellation is reachable
// from any live state; APPROVED and REJECTED admit nothing else.
var transitions = map[string]map[string]bool{
	StatusPending: {
		StatusApproved:  true,
		StatusRejected:  true,
		StatusCancelled: true,
	},
	StatusApproved: {
		StatusCancelled: true,
	},
	StatusRejected: {
		StatusCancelled: true,
	},
	StatusCancelled: {},
}

// CanTransition reports whether a decision may move from one status to
// another. Consumers consult this before writing; an illegal move is a
// conflict, not an error to retry.
func CanTransition(from, to string) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}
