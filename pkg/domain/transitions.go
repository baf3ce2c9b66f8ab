package domain

// CanTransitionItem reports whether a weighted item may move from one status
// to another. Terminal states are COMPLETED and CANCELLED; COMPLETED is
// reachable only from IN_PROGRESS, CANCELLED from NOT_STARTED or IN_PROGRESS.
func CanTransitionItem(from, to ItemStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case ItemStatusNotStarted:
		return to == ItemStatusInProgress || to == ItemStatusCancelled
	case ItemStatusInProgress:
		return to == ItemStatusCompleted || to == ItemStatusCancelled
	default:
		return false
	}
}

// CanTransitionSubject reports whether a rollup subject may move from one
// status to another. ON_HOLD and CANCELLED are side transitions reachable
// from any non-terminal state; COMPLETED and CANCELLED are terminal.
func CanTransitionSubject(from, to SubjectStatus) bool {
	if from == to {
		return true
	}
	if TerminalSubject(from) {
		return false
	}
	switch to {
	case SubjectStatusInProgress, SubjectStatusOnHold, SubjectStatusCompleted, SubjectStatusCancelled:
		return true
	case SubjectStatusPlanning:
		// only a hold can be unwound back to planning
		return from == SubjectStatusOnHold
	default:
		return false
	}
}

// TerminalSubject reports whether a subject status accepts no further transitions.
func TerminalSubject(status SubjectStatus) bool {
	return status == SubjectStatusCompleted || status == SubjectStatusCancelled
}

// TerminalItem reports whether an item status accepts no further transitions.
func TerminalItem(status ItemStatus) bool {
	return status == ItemStatusCompleted || status == ItemStatusCancelled
}

// ValidItemStatus reports whether the value is a recognised item status.
func ValidItemStatus(status ItemStatus) bool {
	switch status {
	case ItemStatusNotStarted, ItemStatusInProgress, ItemStatusCompleted, ItemStatusCancelled:
		return true
	}
	return false
}

// ValidSubjectStatus reports whether the value is a recognised subject status.
func ValidSubjectStatus(status SubjectStatus) bool {
	switch status {
	case SubjectStatusPlanning, SubjectStatusInProgress, SubjectStatusOnHold, SubjectStatusCompleted, SubjectStatusCancelled:
		return true
	}
	return false
}
