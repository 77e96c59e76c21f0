package accounts

// transitions is the lifecycle graph. Purged has no outgoing edges.
var transitions = map[PrincipalState]map[PrincipalState]struct{}{
	StatePendingVerification: {
		StateActive: {},
	},
	StateActive: {
		StateDeleted: {},
	},
	StateDeleted: {
		StateActive: {},
		StatePurged: {},
	},
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to PrincipalState) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// transitionError is the error reported when p cannot move to target.
func transitionError(p *Principal, target PrincipalState) error {
	if CanTransition(p.State(), target) {
		return nil
	}

	switch {
	case target == StateDeleted:
		return ErrAlreadyDeleted
	case target == StatePurged:
		return ErrNotYetSoftDeleted
	case target == StateActive:
		return ErrNotDeleted
	default:
		return ErrInvalidTransition
	}
}
