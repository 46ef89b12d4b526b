package counseling_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/counseling"
	testutil "github.com/trezcool/piyuguide/tests"
)

func TestTick_StartsWithinWindow(t *testing.T) {
	h := newHarness(t, at(9, 56))
	s1 := h.createSession(counseling.StatusConfirmed, at(10, 0), withMeeting, h.withCounselor)

	rep, err := h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, counseling.TickReport{Started: 1}, rep)
	assert.Equal(t, counseling.StatusInProgress, h.session(s1.ID).Status)
	assert.Equal(t, 1, h.countTitled("Video session ready"))

	h.clock.T = at(9, 57)
	rep, err = h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, counseling.TickReport{}, rep)
	assert.Equal(t, 1, h.countTitled("Video session ready"))
}

func TestTick_StartWindowBoundary(t *testing.T) {
	h := newHarness(t, at(9, 55).Add(-time.Second))
	s1 := h.createSession(counseling.StatusConfirmed, at(10, 0), withMeeting)

	rep, err := h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Reminded)
	assert.Equal(t, counseling.StatusConfirmed, h.session(s1.ID).Status)

	h.clock.T = at(9, 55)
	rep, err = h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Started)
	assert.Equal(t, counseling.StatusInProgress, h.session(s1.ID).Status)
}

func TestTick_RemindsOnce(t *testing.T) {
	h := newHarness(t, at(9, 50))
	s1 := h.createSession(counseling.StatusConfirmed, at(10, 5), withMeeting)

	rep, err := h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, counseling.TickReport{Reminded: 1}, rep)

	h.clock.T = at(9, 51)
	rep, err = h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Reminded)

	ns := h.studentNotifications()
	require.Len(t, ns, 1)
	assert.Equal(t, "Counseling session reminder", ns[0].Title)
	assert.Equal(t, "Your counseling session starts in 15 minutes.", ns[0].Message)
	assert.Equal(t, at(9, 50), *h.session(s1.ID).LastReminderAt)

	rems, err := h.repo.QueryReminders(h.ctx, s1.ID)
	require.NoError(t, err)
	require.Len(t, rems, 1)
	assert.Equal(t, counseling.ReminderInApp, rems[0].Type)
	assert.Equal(t, counseling.ReminderSent, rems[0].Status)
}

func TestTick_ConcurrentTicksDoNotDoubleEmit(t *testing.T) {
	h := newHarness(t, at(9, 50))
	h.createSession(counseling.StatusConfirmed, at(10, 5), withMeeting)
	h.createSession(counseling.StatusConfirmed, at(9, 53), withMeeting)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Tick(h.ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.countTitled("Counseling session reminder"))
	assert.Equal(t, 1, h.countTitled("Video session ready"))
}

func TestTick_ProvisionsUpcomingSessions(t *testing.T) {
	h := newHarness(t, at(9, 50))
	s1 := h.createSession(counseling.StatusPending, at(10, 0))
	notVideo := h.createSession(counseling.StatusConfirmed, at(10, 0), func(s *counseling.Session) { s.IsVideoSession = false })

	rep, err := h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, counseling.TickReport{Provisioned: 1, Reminded: 1}, rep)

	s := h.session(s1.ID)
	assert.True(t, s.HasMeeting())
	assert.Equal(t, counseling.StatusPending, s.Status)
	assert.Equal(t, notVideo, h.session(notVideo.ID))
	assert.Contains(t, h.auditActions(), audit.ActionMeetingProvisioned)

	// provisioned credentials are kept on later ticks
	h.clock.T = at(9, 51)
	_, err = h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, s.MeetingID, h.session(s1.ID).MeetingID)
	assert.Equal(t, 1, h.meetings.Calls)
}

func TestTick_ProvisionFailure(t *testing.T) {
	h := newHarness(t, at(9, 56))
	broken := h.createSession(counseling.StatusConfirmed, at(10, 0))
	ready := h.createSession(counseling.StatusConfirmed, at(10, 1), withMeeting)
	h.meetings.Err = errors.New("provider down")

	rep, err := h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 1, rep.Started)

	assert.Equal(t, broken, h.session(broken.ID))
	assert.Equal(t, counseling.StatusInProgress, h.session(ready.ID).Status)

	entries, err := h.audits.QueryEntries(h.ctx, audit.QueryFilter{Action: audit.ActionSessionStarted})
	require.NoError(t, err)
	var failed []audit.Entry
	for _, e := range entries {
		if !e.Success {
			failed = append(failed, e)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, broken.ID, failed[0].TargetID)
}

func TestTick_NoShow(t *testing.T) {
	h := newHarness(t, at(10, 20).Add(-time.Second))
	s1 := h.createSession(counseling.StatusConfirmed, at(10, 0), withMeeting, h.withCounselor)
	joined := h.createSession(counseling.StatusConfirmed, at(10, 0), withMeeting, h.withCounselor, func(s *counseling.Session) {
		s.CounselorJoinedAt = core.TimePtr(at(9, 59))
	})
	pending := h.createSession(counseling.StatusPending, at(9, 0))

	rep, err := h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.NoShows)
	assert.Equal(t, counseling.StatusConfirmed, h.session(s1.ID).Status)

	h.clock.T = at(10, 20)
	rep, err = h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.NoShows)
	assert.Equal(t, counseling.StatusNoShow, h.session(s1.ID).Status)
	assert.Equal(t, counseling.StatusConfirmed, h.session(joined.ID).Status)
	assert.Equal(t, counseling.StatusPending, h.session(pending.ID).Status)
	assert.Equal(t, 1, h.countTitled("Counseling session missed"))

	entries, err := h.audits.QueryEntries(h.ctx, audit.QueryFilter{Action: audit.ActionSessionNoShow})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "System", entries[0].ActorName)
}

func TestTick_EmailReminders(t *testing.T) {
	h := newHarness(t, at(7, 0))
	s1 := h.createSession(counseling.StatusPending, at(10, 0))
	s2 := h.createSession(counseling.StatusPending, at(10, 30))
	_, err := h.svc.Confirm(h.ctx, h.p, s1.ID)
	require.NoError(t, err)
	_, err = h.svc.Confirm(h.ctx, h.p, s2.ID)
	require.NoError(t, err)
	_, err = h.svc.Cancel(h.ctx, h.p, s2.ID, "student asked")
	require.NoError(t, err)

	h.clock.T = at(8, 59)
	rep, err := h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.EmailsSent)
	assert.Empty(t, h.mail.Sent())

	h.clock.T = at(9, 0)
	rep, err = h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.EmailsSent)
	sent := h.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, h.student.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Guidance Office")

	rems, err := h.repo.QueryReminders(h.ctx, s1.ID)
	require.NoError(t, err)
	require.Len(t, rems, 1)
	assert.Equal(t, counseling.ReminderSent, rems[0].Status)
	assert.Equal(t, at(9, 0), *rems[0].SentAt)

	h.clock.T = at(9, 1)
	rep, err = h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.EmailsSent)
	assert.Len(t, h.mail.Sent(), 1)
}

func TestTick_EmailReminderOfInactiveSessionIsCancelled(t *testing.T) {
	h := newHarness(t, at(9, 0))
	s1 := h.createSession(counseling.StatusCompleted, at(10, 0))
	rem, err := h.repo.CreateReminder(h.ctx, counseling.Reminder{
		SessionID:    s1.ID,
		UserID:       h.student.ID,
		Type:         counseling.ReminderEmail,
		ScheduledFor: at(8, 0),
		Status:       counseling.ReminderScheduled,
	})
	require.NoError(t, err)

	rep, err := h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, counseling.TickReport{}, rep)
	assert.Empty(t, h.mail.Sent())

	rems, err := h.repo.QueryReminders(h.ctx, s1.ID)
	require.NoError(t, err)
	require.Len(t, rems, 1)
	assert.Equal(t, rem.ID, rems[0].ID)
	assert.Equal(t, counseling.ReminderCancelled, rems[0].Status)
}

func TestTick_EmailReminderWithoutAddressFails(t *testing.T) {
	h := newHarness(t, at(9, 0))
	noEmail := testutil.CreateStudent(t, h.users, "Nora", "", h.office.CampusID)
	s1 := h.createSession(counseling.StatusConfirmed, at(10, 0), withMeeting, func(s *counseling.Session) {
		s.StudentID = noEmail.ID
	})
	_, err := h.repo.CreateReminder(h.ctx, counseling.Reminder{
		SessionID:    s1.ID,
		UserID:       noEmail.ID,
		Type:         counseling.ReminderEmail,
		ScheduledFor: at(9, 0),
		Status:       counseling.ReminderScheduled,
	})
	require.NoError(t, err)

	rep, err := h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.EmailsFailed)
	assert.Zero(t, rep.Errors)

	rems, err := h.repo.QueryReminders(h.ctx, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, counseling.ReminderFailed, rems[0].Status)
	assert.Contains(t, h.auditActions(), audit.ActionEmailFailed)
}

func TestTick_DefersOnExpiredContext(t *testing.T) {
	h := newHarness(t, at(9, 56))
	s1 := h.createSession(counseling.StatusConfirmed, at(10, 0), withMeeting)

	ctx, cancel := context.WithCancel(h.ctx)
	cancel()
	rep, err := h.svc.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, rep.Deferred)
	assert.Equal(t, s1, h.session(s1.ID))

	// the next tick picks it up
	rep, err = h.svc.Tick(h.ctx)
	require.NoError(t, err)
	assert.False(t, rep.Deferred)
	assert.Equal(t, 1, rep.Started)
}
