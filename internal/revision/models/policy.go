package models

// AutoAction is what a commit does with an eligible flag.
type AutoAction string

const (
	ActionDeactivateVoter AutoAction = "deactivate_voter"
)

// Policy maps flag types to the action a commit applies automatically.
// Types absent from the table stay pending for manual handling.
type Policy map[FlagType]AutoAction

// DefaultPolicy auto-applies deceased matches only. Duplicate pairs need a
// human to decide which record survives.
func DefaultPolicy() Policy {
	return Policy{FlagDeceased: ActionDeactivateVoter}
}

// Eligible returns the action for t, if any.
func (p Policy) Eligible(t FlagType) (AutoAction, bool) {
	a, ok := p[t]
	return a, ok
}
