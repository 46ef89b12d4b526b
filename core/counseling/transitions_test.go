package counseling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/piyuguide/core"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from, to   string
		wantReason string
	}{
		{StatusPending, StatusConfirmed, ""},
		{StatusPending, StatusCancelled, ""},
		{StatusPending, StatusInProgress, ""},
		{StatusPending, StatusCompleted, core.ReasonNotAllowed},
		{StatusPending, StatusNoShow, core.ReasonNotAllowed},
		{StatusConfirmed, StatusInProgress, ""},
		{StatusConfirmed, StatusCancelled, ""},
		{StatusConfirmed, StatusNoShow, ""},
		{StatusConfirmed, StatusConfirmed, core.ReasonNotAllowed},
		{StatusInProgress, StatusCompleted, ""},
		{StatusInProgress, StatusCancelled, core.ReasonNotAllowed},
		{StatusInProgress, StatusPending, core.ReasonNotAllowed},
	}
	for _, tc := range tests {
		t.Run(tc.from+"->"+tc.to, func(t *testing.T) {
			err := CheckTransition(tc.from, tc.to)
			if tc.wantReason == "" {
				assert.NoError(t, err)
				return
			}
			var tErr *core.TransitionError
			require.ErrorAs(t, err, &tErr)
			assert.Equal(t, tc.wantReason, tErr.Reason)
		})
	}
}

func TestCheckTransition_TerminalStatesAreSticky(t *testing.T) {
	for _, from := range []string{StatusCompleted, StatusCancelled, StatusNoShow} {
		assert.True(t, IsTerminal(from))
		for _, to := range Statuses {
			err := CheckTransition(from, to)
			var tErr *core.TransitionError
			if assert.ErrorAs(t, err, &tErr, "%s -> %s", from, to) {
				assert.Equal(t, core.ReasonTerminalState, tErr.Reason)
			}
		}
		assert.Error(t, CheckReschedule(from))
	}
}

func TestCheckReschedule(t *testing.T) {
	assert.NoError(t, CheckReschedule(StatusPending))
	assert.NoError(t, CheckReschedule(StatusConfirmed))

	var tErr *core.TransitionError
	require.ErrorAs(t, CheckReschedule(StatusInProgress), &tErr)
	assert.Equal(t, core.ReasonNotAllowed, tErr.Reason)
}

func TestSession_appendNote(t *testing.T) {
	s := Session{}
	s.appendNote("first")
	s.appendNote("second")
	assert.Equal(t, "first\nsecond", s.Notes)
}
