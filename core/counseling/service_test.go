package counseling_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/counseling"
	"github.com/trezcool/piyuguide/core/notification"
	"github.com/trezcool/piyuguide/core/user"
	logsvc "github.com/trezcool/piyuguide/services/logger"
	testutil "github.com/trezcool/piyuguide/tests"
)

func TestService_ConfirmAndJoin(t *testing.T) {
	h := newHarness(t, at(9, 0))
	s1 := h.createSession(counseling.StatusPending, at(10, 0))

	s, err := h.svc.UpdateStatus(h.ctx, h.p, s1.ID, counseling.UpdateStatus{Status: counseling.StatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, counseling.StatusConfirmed, s.Status)
	require.NotNil(t, s.CounselorID)
	assert.Equal(t, h.admin.ID, *s.CounselorID)
	assert.True(t, s.HasMeeting())

	stored := h.session(s1.ID)
	assert.Equal(t, s, stored)

	ns := h.studentNotifications()
	require.Len(t, ns, 1)
	assert.Equal(t, notification.TypeVideoSession, ns[0].Type)
	assert.Equal(t, 1, h.pusher.Count(h.student.ID))
	assert.Contains(t, h.auditActions(), audit.ActionSessionConfirmed)
	assert.Contains(t, h.auditActions(), audit.ActionMeetingProvisioned)

	// within the start window the join starts the session
	h.clock.T = at(9, 57)
	v, err := h.svc.Join(h.ctx, h.p, s1.ID, counseling.JoinInfo{DeviceInfo: "firefox", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, counseling.StatusInProgress, v.Session.Status)
	require.NotNil(t, v.Session.CounselorJoinedAt)
	assert.Equal(t, at(9, 57), *v.Session.CounselorJoinedAt)
	require.Len(t, v.Participations, 1)
	assert.Equal(t, "firefox", v.Participations[0].DeviceInfo)
	assert.Equal(t, *stored.MeetingID, *v.Session.MeetingID, "credentials are never regenerated")
	assert.Equal(t, 1, h.countTitled("Video session ready"))

	// re-joining changes nothing
	h.clock.Add(time.Minute)
	v2, err := h.svc.Join(h.ctx, h.p, s1.ID, counseling.JoinInfo{})
	require.NoError(t, err)
	assert.Equal(t, v.Session, v2.Session)
	assert.Len(t, v2.Participations, 1)
	assert.Equal(t, 1, h.countTitled("Video session ready"))
	assert.Equal(t, 1, h.meetings.Calls)
}

func TestService_Confirm_ProvisionFailure(t *testing.T) {
	h := newHarness(t, at(9, 0))
	h.meetings.Err = errors.New("provider down")
	s1 := h.createSession(counseling.StatusPending, at(10, 0))

	_, err := h.svc.Confirm(h.ctx, h.p, s1.ID)
	var pErr *core.ProvisionError
	require.ErrorAs(t, err, &pErr)

	assert.Equal(t, s1, h.session(s1.ID), "state is left unchanged")
	assert.Empty(t, h.studentNotifications())

	entries, qErr := h.audits.QueryEntries(h.ctx, audit.QueryFilter{Action: audit.ActionSessionConfirmed})
	require.NoError(t, qErr)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, s1.ID, entries[0].TargetID)
}

func TestService_Confirm_SchedulesEmailReminder(t *testing.T) {
	h := newHarness(t, at(7, 0))
	s1 := h.createSession(counseling.StatusPending, at(10, 0))

	_, err := h.svc.Confirm(h.ctx, h.p, s1.ID)
	require.NoError(t, err)

	rems, err := h.repo.QueryReminders(h.ctx, s1.ID)
	require.NoError(t, err)
	require.Len(t, rems, 1)
	assert.Equal(t, counseling.ReminderEmail, rems[0].Type)
	assert.Equal(t, counseling.ReminderScheduled, rems[0].Status)
	assert.Equal(t, at(9, 0), rems[0].ScheduledFor)
}

// failingNotifications writes the rows, then reports a failure as a broken statement would.
type failingNotifications struct {
	notification.Repository
}

func (r failingNotifications) CreateNotifications(ctx context.Context, ns []notification.Notification) ([]notification.Notification, error) {
	if _, err := r.Repository.CreateNotifications(ctx, ns); err != nil {
		return nil, err
	}
	return nil, errors.New("insert failed")
}

func TestService_Confirm_NotificationFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, at(9, 0))
	logger := logsvc.NewNopLogger()
	recorder := audit.NewRecorder(h.audits, logger, h.clock)
	userSvc := user.NewService(h.users, conf, h.clock)
	gw := notification.NewGateway(failingNotifications{h.notifs}, userSvc, h.pusher, recorder, logger, h.clock, conf)
	svc := counseling.NewService(h.db, h.repo, userSvc, gw, h.meetings, h.mail, h.files, recorder, logger, h.clock, conf)
	s1 := h.createSession(counseling.StatusPending, at(10, 0))

	s, err := svc.Confirm(h.ctx, h.p, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, counseling.StatusConfirmed, s.Status)
	assert.Equal(t, counseling.StatusConfirmed, h.session(s1.ID).Status)

	assert.Empty(t, h.studentNotifications(), "the failed insert is undone")
	assert.Zero(t, h.pusher.Count(h.student.ID))
	assert.Contains(t, h.auditActions(), audit.ActionPushFailed)
	assert.Contains(t, h.auditActions(), audit.ActionSessionConfirmed)
}

func TestService_Cancel(t *testing.T) {
	h := newHarness(t, at(7, 0))
	s1 := h.createSession(counseling.StatusPending, at(10, 0))
	_, err := h.svc.Confirm(h.ctx, h.p, s1.ID)
	require.NoError(t, err)

	_, err = h.svc.UpdateStatus(h.ctx, h.p, s1.ID, counseling.UpdateStatus{Status: counseling.StatusCancelled, Reason: "  "})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)

	s, err := h.svc.UpdateStatus(h.ctx, h.p, s1.ID, counseling.UpdateStatus{Status: counseling.StatusCancelled, Reason: "admin unavailable"})
	require.NoError(t, err)
	assert.Equal(t, counseling.StatusCancelled, s.Status)
	assert.Contains(t, s.Notes, "Cancellation reason: admin unavailable")
	assert.Equal(t, 1, h.countTitled("Counseling session cancelled"))

	rems, err := h.repo.QueryReminders(h.ctx, s1.ID)
	require.NoError(t, err)
	require.Len(t, rems, 1)
	assert.Equal(t, counseling.ReminderCancelled, rems[0].Status)

	// terminal
	_, err = h.svc.Confirm(h.ctx, h.p, s1.ID)
	var tErr *core.TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, core.ReasonTerminalState, tErr.Reason)
}

func TestService_Authorization(t *testing.T) {
	h := newHarness(t, at(9, 0))
	s1 := h.createSession(counseling.StatusPending, at(10, 0))

	other := testutil.CreateOffice(t, h.users, h.office.CampusID, "Registrar", true)
	_, outsider := testutil.CreateOfficeAdmin(t, h.users, other, "Otto", "otto@school.test")
	student := user.Principal{UserID: h.student.ID, Role: user.RoleStudent}

	for _, p := range []user.Principal{outsider, student} {
		_, err := h.svc.Get(h.ctx, p, s1.ID)
		assert.ErrorIs(t, err, user.ErrNotOfficeAdmin)
		_, err = h.svc.Confirm(h.ctx, p, s1.ID)
		assert.ErrorIs(t, err, user.ErrNotOfficeAdmin)
		_, err = h.svc.Join(h.ctx, p, s1.ID, counseling.JoinInfo{})
		assert.ErrorIs(t, err, user.ErrNotOfficeAdmin)
	}
	assert.Equal(t, s1, h.session(s1.ID))

	_, err := h.svc.Get(h.ctx, h.p, "missing")
	assert.True(t, core.IsNotFound(err))
}

func TestService_VideoDisabledOffice(t *testing.T) {
	h := newHarness(t, at(9, 0))
	off := testutil.CreateOffice(t, h.users, h.office.CampusID, "Cashier", false)
	_, p := testutil.CreateOfficeAdmin(t, h.users, off, "Cass", "cass@school.test")
	s1 := h.createSession(counseling.StatusPending, at(10, 0), func(s *counseling.Session) { s.OfficeID = off.ID })

	_, err := h.svc.Confirm(h.ctx, p, s1.ID)
	assert.ErrorIs(t, err, user.ErrVideoDisabled)
	_, err = h.svc.Cancel(h.ctx, p, s1.ID, "closed")
	assert.ErrorIs(t, err, user.ErrVideoDisabled)
	_, err = h.svc.Join(h.ctx, p, s1.ID, counseling.JoinInfo{})
	assert.ErrorIs(t, err, user.ErrVideoDisabled)
	_, err = h.svc.Get(h.ctx, p, s1.ID)
	assert.ErrorIs(t, err, user.ErrVideoDisabled)
	_, err = h.svc.List(h.ctx, p, counseling.ListFilter{})
	assert.ErrorIs(t, err, user.ErrVideoDisabled)

	assert.Equal(t, s1, h.session(s1.ID))
	assert.Zero(t, h.meetings.Calls)
}

func TestService_Get_DoesNotStartSession(t *testing.T) {
	h := newHarness(t, at(9, 58))
	s1 := h.createSession(counseling.StatusConfirmed, at(10, 0), withMeeting, h.withCounselor)

	v, err := h.svc.Get(h.ctx, h.p, s1.ID)
	require.NoError(t, err)
	assert.Equal(t, counseling.StatusConfirmed, v.Session.Status)
	assert.Equal(t, h.student.ID, v.Student.ID)
	require.NotNil(t, v.Counselor)
	assert.Equal(t, h.admin.ID, v.Counselor.ID)
	assert.Empty(t, v.Participations)
	assert.Empty(t, h.studentNotifications())
}

func TestService_Join(t *testing.T) {
	t.Run("outside the start window", func(t *testing.T) {
		h := newHarness(t, at(9, 0))
		s1 := h.createSession(counseling.StatusConfirmed, at(10, 0), withMeeting, h.withCounselor)

		v, err := h.svc.Join(h.ctx, h.p, s1.ID, counseling.JoinInfo{})
		require.NoError(t, err)
		assert.Equal(t, counseling.StatusConfirmed, v.Session.Status)
		assert.NotNil(t, v.Session.CounselorJoinedAt)
		assert.Len(t, v.Participations, 1)
		assert.Zero(t, h.countTitled("Video session ready"))
	})

	t.Run("assigns and provisions", func(t *testing.T) {
		h := newHarness(t, at(9, 56))
		s1 := h.createSession(counseling.StatusPending, at(10, 0))

		v, err := h.svc.Join(h.ctx, h.p, s1.ID, counseling.JoinInfo{})
		require.NoError(t, err)
		assert.Equal(t, counseling.StatusInProgress, v.Session.Status)
		assert.True(t, v.Session.IsCounselor(h.admin.ID))
		assert.True(t, v.Session.HasMeeting())
	})

	t.Run("second admin does not become counselor", func(t *testing.T) {
		h := newHarness(t, at(9, 56))
		s1 := h.createSession(counseling.StatusInProgress, at(10, 0), withMeeting, h.withCounselor)
		_, p2 := testutil.CreateOfficeAdmin(t, h.users, h.office, "Ben", "ben@school.test")

		v, err := h.svc.Join(h.ctx, p2, s1.ID, counseling.JoinInfo{})
		require.NoError(t, err)
		assert.True(t, v.Session.IsCounselor(h.admin.ID))
		assert.Nil(t, v.Session.CounselorJoinedAt)
		assert.Len(t, v.Participations, 1)
	})

	t.Run("second admin within the start window", func(t *testing.T) {
		h := newHarness(t, at(9, 58))
		s1 := h.createSession(counseling.StatusConfirmed, at(10, 0), withMeeting, h.withCounselor)
		_, p2 := testutil.CreateOfficeAdmin(t, h.users, h.office, "Ben", "ben@school.test")

		v, err := h.svc.Join(h.ctx, p2, s1.ID, counseling.JoinInfo{})
		require.NoError(t, err)
		assert.Equal(t, counseling.StatusConfirmed, v.Session.Status)
		assert.Nil(t, v.Session.CounselorJoinedAt)
		assert.Len(t, v.Participations, 1)
		assert.Zero(t, h.countTitled("Video session ready"))

		// the counselor joining starts it
		v, err = h.svc.Join(h.ctx, h.p, s1.ID, counseling.JoinInfo{})
		require.NoError(t, err)
		assert.Equal(t, counseling.StatusInProgress, v.Session.Status)
		require.NotNil(t, v.Session.CounselorJoinedAt)
		assert.Len(t, v.Participations, 2)
	})

	t.Run("terminal session", func(t *testing.T) {
		h := newHarness(t, at(9, 56))
		s1 := h.createSession(counseling.StatusCompleted, at(10, 0), withMeeting, h.withCounselor)

		_, err := h.svc.Join(h.ctx, h.p, s1.ID, counseling.JoinInfo{})
		var tErr *core.TransitionError
		require.ErrorAs(t, err, &tErr)
		assert.Equal(t, core.ReasonTerminalState, tErr.Reason)
	})
}

func TestService_End(t *testing.T) {
	h := newHarness(t, at(10, 30))
	s1 := h.createSession(counseling.StatusInProgress, at(10, 0), withMeeting, h.withCounselor, func(s *counseling.Session) {
		s.Notes = "Student prefers mornings"
	})
	_, err := h.repo.CreateParticipation(h.ctx, counseling.Participation{SessionID: s1.ID, UserID: h.admin.ID, JoinedAt: at(10, 0)})
	require.NoError(t, err)

	v, err := h.svc.End(h.ctx, h.p, s1.ID, counseling.End{
		Notes: "Follow-up in two weeks",
		Recording: &counseling.RecordingUpload{
			Filename:       "rec.webm",
			Content:        strings.NewReader("video"),
			StudentConsent: true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, counseling.StatusCompleted, v.Session.Status)
	assert.Equal(t, at(10, 30), *v.Session.SessionEndedAt)
	assert.Equal(t, "Student prefers mornings\nFollow-up in two weeks", v.Session.Notes)
	require.Len(t, v.Participations, 1)
	assert.NotNil(t, v.Participations[0].LeftAt)
	require.Len(t, v.Recordings, 1)
	assert.True(t, v.Recordings[0].StudentConsent)
	assert.Contains(t, h.files.Files, v.Recordings[0].Path)
	assert.Equal(t, 1, h.countTitled("Counseling session completed"))
}

func TestService_End_RollbackDeletesRecording(t *testing.T) {
	h := newHarness(t, at(10, 30))
	s1 := h.createSession(counseling.StatusConfirmed, at(10, 0), withMeeting, h.withCounselor)

	_, err := h.svc.End(h.ctx, h.p, s1.ID, counseling.End{
		Recording: &counseling.RecordingUpload{Filename: "rec.webm", Content: strings.NewReader("video")},
	})
	var tErr *core.TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Empty(t, h.files.Files)
	assert.Equal(t, s1, h.session(s1.ID))
}

func TestService_Reschedule(t *testing.T) {
	h := newHarness(t, at(9, 0))
	s1 := h.createSession(counseling.StatusPending, at(10, 0))

	s, err := h.svc.Reschedule(h.ctx, h.p, s1.ID, counseling.Reschedule{Date: "2025-06-02", Time: "14:30"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC), s.ScheduledAt)
	assert.Equal(t, counseling.StatusConfirmed, s.Status)
	assert.Contains(t, s.Notes, "2025-06-01 10:00 UTC")
	assert.Contains(t, s.Notes, "2025-06-02 14:30 UTC")
	assert.True(t, s.HasMeeting())
	assert.Len(t, h.studentNotifications(), 1)
	assert.Equal(t, 1, h.countTitled("Counseling session rescheduled"))

	rems, err := h.repo.QueryReminders(h.ctx, s1.ID)
	require.NoError(t, err)
	require.Len(t, rems, 1)
	assert.Equal(t, time.Date(2025, 6, 2, 13, 30, 0, 0, time.UTC), rems[0].ScheduledFor)

	// again: the old reminder is cancelled, a new one planned
	_, err = h.svc.Reschedule(h.ctx, h.p, s1.ID, counseling.Reschedule{Date: "2025-06-03", Time: "08:00"})
	require.NoError(t, err)
	rems, err = h.repo.QueryReminders(h.ctx, s1.ID)
	require.NoError(t, err)
	require.Len(t, rems, 2)
	assert.Equal(t, counseling.ReminderCancelled, rems[0].Status)
	assert.Equal(t, counseling.ReminderScheduled, rems[1].Status)
}

func TestService_Reschedule_Invalid(t *testing.T) {
	h := newHarness(t, at(9, 0))
	s1 := h.createSession(counseling.StatusPending, at(10, 0))
	done := h.createSession(counseling.StatusCompleted, at(8, 0))

	tests := []struct {
		name string
		id   string
		r    counseling.Reschedule
	}{
		{"past", s1.ID, counseling.Reschedule{Date: "2025-06-01", Time: "08:59"}},
		{"bad date", s1.ID, counseling.Reschedule{Date: "2025-13-01", Time: "10:00"}},
		{"bad time", s1.ID, counseling.Reschedule{Date: "2025-06-02", Time: "25:00"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.Reschedule(h.ctx, h.p, tc.id, tc.r)
			var vErr *core.ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}

	_, err := h.svc.Reschedule(h.ctx, h.p, done.ID, counseling.Reschedule{Date: "2025-06-02", Time: "10:00"})
	var tErr *core.TransitionError
	assert.ErrorAs(t, err, &tErr)
	assert.Equal(t, s1, h.session(s1.ID))
}

func TestService_StartAndNoShow(t *testing.T) {
	h := newHarness(t, at(8, 0))
	s1 := h.createSession(counseling.StatusConfirmed, at(10, 0), h.withCounselor)
	s2 := h.createSession(counseling.StatusConfirmed, at(11, 0), withMeeting, h.withCounselor)

	// admins may start any time; video sessions get credentials first
	s, err := h.svc.UpdateStatus(h.ctx, h.p, s1.ID, counseling.UpdateStatus{Status: counseling.StatusInProgress})
	require.NoError(t, err)
	assert.Equal(t, counseling.StatusInProgress, s.Status)
	assert.True(t, s.HasMeeting())

	_, err = h.svc.UpdateStatus(h.ctx, h.p, s1.ID, counseling.UpdateStatus{Status: counseling.StatusNoShow})
	var tErr *core.TransitionError
	require.ErrorAs(t, err, &tErr)

	s, err = h.svc.UpdateStatus(h.ctx, h.p, s2.ID, counseling.UpdateStatus{Status: counseling.StatusNoShow})
	require.NoError(t, err)
	assert.Equal(t, counseling.StatusNoShow, s.Status)
	assert.Equal(t, 1, h.countTitled("Counseling session missed"))

	_, err = h.svc.UpdateStatus(h.ctx, h.p, s2.ID, counseling.UpdateStatus{Status: counseling.StatusPending})
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, core.ReasonTerminalState, tErr.Reason)
}

func TestService_SaveNotes(t *testing.T) {
	h := newHarness(t, at(8, 0))
	s1 := h.createSession(counseling.StatusCompleted, at(7, 0), withMeeting, h.withCounselor)

	s, err := h.svc.SaveNotes(h.ctx, h.p, s1.ID, "Discussed study habits")
	require.NoError(t, err)
	assert.Equal(t, "Discussed study habits", s.Notes)
	assert.Equal(t, counseling.StatusCompleted, s.Status)
	assert.Contains(t, h.auditActions(), audit.ActionSessionNotes)
}

func TestService_SendReminder(t *testing.T) {
	h := newHarness(t, at(9, 0))
	s1 := h.createSession(counseling.StatusConfirmed, at(10, 0), withMeeting, h.withCounselor)

	rem, err := h.svc.SendReminder(h.ctx, h.p, s1.ID, counseling.SendReminder{Type: counseling.ReminderInApp})
	require.NoError(t, err)
	assert.Equal(t, counseling.ReminderSent, rem.Status)
	assert.Equal(t, 1, h.countTitled("Counseling session reminder"))
	assert.Equal(t, at(9, 0), *h.session(s1.ID).LastReminderAt)

	_, err = h.svc.SendReminder(h.ctx, h.p, s1.ID, counseling.SendReminder{Type: counseling.ReminderInApp})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 1, h.countTitled("Counseling session reminder"))

	rem, err = h.svc.SendReminder(h.ctx, h.p, s1.ID, counseling.SendReminder{Type: counseling.ReminderEmail})
	require.NoError(t, err)
	assert.Equal(t, counseling.ReminderEmail, rem.Type)
	sent := h.mail.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, h.student.Email, sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "https://meet.test/m-1")

	_, err = h.svc.SendReminder(h.ctx, h.p, s1.ID, counseling.SendReminder{Type: counseling.ReminderSMS})
	require.ErrorAs(t, err, &vErr)

	h.clock.Add(61 * time.Minute)
	_, err = h.svc.SendReminder(h.ctx, h.p, s1.ID, counseling.SendReminder{Type: counseling.ReminderInApp})
	require.NoError(t, err)
	assert.Equal(t, 2, h.countTitled("Counseling session reminder"))

	done := h.createSession(counseling.StatusCompleted, at(8, 0))
	_, err = h.svc.SendReminder(h.ctx, h.p, done.ID, counseling.SendReminder{Type: counseling.ReminderInApp})
	require.ErrorAs(t, err, &vErr)
}

func TestService_List(t *testing.T) {
	h := newHarness(t, at(12, 0))
	yesterday := h.createSession(counseling.StatusCompleted, at(12, 0).AddDate(0, 0, -1), h.withCounselor)
	morning := h.createSession(counseling.StatusCompleted, at(9, 0))
	evening := h.createSession(counseling.StatusConfirmed, at(18, 0), h.withCounselor)
	nextWeek := h.createSession(counseling.StatusPending, at(10, 0).AddDate(0, 0, 8))
	h.createSession(counseling.StatusPending, at(15, 0), func(s *counseling.Session) { s.IsVideoSession = false })

	ids := func(pg core.Paginated) []string {
		out := make([]string, 0)
		for _, s := range pg.Items.([]counseling.Session) {
			out = append(out, s.ID)
		}
		return out
	}

	tests := []struct {
		name string
		lf   counseling.ListFilter
		want []string
	}{
		{"all, newest first", counseling.ListFilter{}, []string{nextWeek.ID, evening.ID, morning.ID, yesterday.ID}},
		{"today", counseling.ListFilter{DateRange: counseling.RangeToday}, []string{evening.ID, morning.ID}},
		{"upcoming, soonest first", counseling.ListFilter{DateRange: counseling.RangeUpcoming}, []string{evening.ID, nextWeek.ID}},
		{"past", counseling.ListFilter{DateRange: counseling.RangePast}, []string{morning.ID, yesterday.ID}},
		{"status", counseling.ListFilter{Status: counseling.StatusCompleted}, []string{morning.ID, yesterday.ID}},
		{"mine", counseling.ListFilter{MySessions: true}, []string{evening.ID, yesterday.ID}},
		{"paged", counseling.ListFilter{Page: 2, PerPage: 3}, []string{yesterday.ID}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pg, err := h.svc.List(h.ctx, h.p, tc.lf)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ids(pg))
		})
	}

	pg, err := h.svc.List(h.ctx, h.p, counseling.ListFilter{PerPage: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, pg.Total)
	assert.Equal(t, 2, pg.Pages)

	_, err = h.svc.List(h.ctx, user.Principal{UserID: h.student.ID, Role: user.RoleStudent}, counseling.ListFilter{})
	assert.ErrorIs(t, err, user.ErrNotOfficeAdmin)
}

func TestService_Stats(t *testing.T) {
	h := newHarness(t, at(12, 0))
	h.createSession(counseling.StatusCompleted, at(9, 0))
	h.createSession(counseling.StatusConfirmed, at(18, 0))
	h.createSession(counseling.StatusPending, at(10, 0).AddDate(0, 0, 3))
	h.createSession(counseling.StatusCancelled, at(10, 0).AddDate(0, 0, -3))

	st, err := h.svc.Stats(h.ctx, h.office.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		counseling.StatusCompleted: 1,
		counseling.StatusConfirmed: 1,
		counseling.StatusPending:   1,
		counseling.StatusCancelled: 1,
	}, st.ByStatus)
	assert.Equal(t, 2, st.Today)
	assert.Equal(t, 2, st.Upcoming)
}

func TestService_VideoSessionsInProgressHaveCredentials(t *testing.T) {
	h := newHarness(t, at(9, 56))
	pending := h.createSession(counseling.StatusPending, at(10, 0))
	confirmed := h.createSession(counseling.StatusConfirmed, at(10, 0), h.withCounselor)
	ticked := h.createSession(counseling.StatusConfirmed, at(10, 1))

	_, err := h.svc.Join(h.ctx, h.p, pending.ID, counseling.JoinInfo{})
	require.NoError(t, err)
	_, err = h.svc.Start(h.ctx, h.p, confirmed.ID)
	require.NoError(t, err)
	_, err = h.svc.Tick(h.ctx)
	require.NoError(t, err)

	for _, id := range []string{pending.ID, confirmed.ID, ticked.ID} {
		s := h.session(id)
		assert.Equal(t, counseling.StatusInProgress, s.Status)
		assert.True(t, s.HasMeeting(), s.ID)
	}
}
