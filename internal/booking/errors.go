package booking

import "errors"

// Expected, user-facing outcomes. The HTTP layer maps these to status codes;
// none of them indicates a bug.
var (
	// ErrInvalidWindow covers malformed windows: end before start, missing
	// instants, or a same-day request under the minimum duration.
	ErrInvalidWindow = errors.New("invalid window")

	// ErrInvalidQuantity is returned for a non-positive requested quantity.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")

	// ErrInsufficientCapacity means fewer free units than requested. Nothing
	// is reserved; the caller may retry with different parameters.
	ErrInsufficientCapacity = errors.New("insufficient capacity")

	// ErrForbidden means the actor is not in the current stage's candidate
	// set. Always logged with actor and stage for audit.
	ErrForbidden = errors.New("actor not authorized for current stage")

	// ErrNotCurrentStage means there is no pending stage left to act on.
	ErrNotCurrentStage = errors.New("no pending stage to act on")

	// ErrAlreadyTerminal guards approve/reject on a REJECTED or COMPLETED
	// ticket. Stored state is never mutated in this case.
	ErrAlreadyTerminal = errors.New("ticket is already terminal")

	// ErrStaleStage means a concurrent actor resolved the stage first. The
	// UI should show "already handled" rather than a generic failure.
	ErrStaleStage = errors.New("stage already resolved by another actor")

	// ErrBadTransition covers pickup/return calls from the wrong status.
	ErrBadTransition = errors.New("invalid status transition")

	// ErrNotFound is returned for unknown tickets, asset types or users.
	ErrNotFound = errors.New("not found")
)

// ConfigError is a fatal flow-template misconfiguration detected at ticket
// creation: duplicate step orders, an empty step list, or a stage scope
// referencing a deleted department or section. Such a ticket must not be
// created and an administrator should be alerted.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "approval flow misconfigured: " + e.Reason
}

// IsConfigError reports whether err is a flow configuration error.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
