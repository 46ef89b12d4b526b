package counseling

import (
	"github.com/trezcool/piyuguide/core"
)

// allowed lists the targets reachable from each non-terminal status.
var allowed = map[string][]string{
	StatusPending:    {StatusConfirmed, StatusCancelled, StatusInProgress},
	StatusConfirmed:  {StatusCancelled, StatusInProgress, StatusNoShow},
	StatusInProgress: {StatusCompleted},
}

// IsTerminal reports whether no transition may leave `status`.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled || status == StatusNoShow
}

// CheckTransition returns nil when `from` may move to `to`, a *core.TransitionError otherwise.
func CheckTransition(from, to string) error {
	if IsTerminal(from) {
		return core.NewTransitionError(from, to, core.ReasonTerminalState)
	}
	for _, s := range allowed[from] {
		if s == to {
			return nil
		}
	}
	return core.NewTransitionError(from, to, core.ReasonNotAllowed)
}

// CheckReschedule returns nil when a session in `status` may be moved to another time.
func CheckReschedule(status string) error {
	switch status {
	case StatusPending, StatusConfirmed:
		return nil
	}
	if IsTerminal(status) {
		return core.NewTransitionError(status, status, core.ReasonTerminalState)
	}
	return core.NewTransitionError(status, status, core.ReasonNotAllowed)
}
