package tests

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/piyuguide/apps/api/echo"
	"github.com/trezcool/piyuguide/core/counseling"
	testutil "github.com/trezcool/piyuguide/tests"
)

type sessionPage struct {
	Total int                  `json:"total"`
	Items []counseling.Session `json:"items"`
}

func sessionPath(id, action string) string {
	if action == "" {
		return "/video-session/" + id
	}
	return "/video-session/" + id + "/" + action
}

func Test_counselingApi_query(t *testing.T) {
	a := setup(t)

	soon := a.session(t, counseling.StatusPending, 2*time.Hour)
	later := a.session(t, counseling.StatusConfirmed, 48*time.Hour)
	past := a.session(t, counseling.StatusCompleted, -48*time.Hour)
	inPerson := a.session(t, counseling.StatusPending, time.Hour)
	inPerson.IsVideoSession = false
	_, err := a.sessions.UpdateSession(context.Background(), inPerson)
	require.NoError(t, err)

	ids := func(sessions []counseling.Session) []string {
		out := make([]string, 0, len(sessions))
		for _, s := range sessions {
			out = append(out, s.ID)
		}
		return out
	}

	tests := []struct {
		name    string
		path    string
		token   string
		wantIDs []string
	}{
		{name: "all video sessions, newest first", path: "/video-counseling", token: a.adminToken, wantIDs: []string{later.ID, soon.ID, past.ID}},
		{name: "by status", path: "/video-counseling?status=pending", token: a.adminToken, wantIDs: []string{soon.ID}},
		{name: "upcoming, soonest first", path: "/video-counseling?date_range=upcoming", token: a.adminToken, wantIDs: []string{soon.ID, later.ID}},
		{name: "past", path: "/video-counseling?date_range=past", token: a.adminToken, wantIDs: []string{past.ID}},
		{name: "paged", path: "/video-counseling?per_page=2&page=2", token: a.adminToken, wantIDs: []string{past.ID}},
		{name: "other office sees nothing", path: "/video-counseling", token: a.otherToken, wantIDs: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := a.do(httpTest{method: http.MethodGet, path: tt.path, token: tt.token})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var page sessionPage
			unmarchall(t, rec, &page)
			assert.Equal(t, tt.wantIDs, ids(page.Items))
		})
	}

	t.Run("bad filter", func(t *testing.T) {
		rec := a.do(httpTest{method: http.MethodGet, path: "/video-counseling?status=lost", token: a.adminToken})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var fields map[string]string
		unmarchall(t, rec, &fields)
		assert.Contains(t, fields, "status")
	})
}

func Test_counselingApi_retrieve(t *testing.T) {
	a := setup(t)
	s := a.session(t, counseling.StatusPending, time.Hour)

	tests := []httpTest{
		{
			name:     "unknown session",
			method:   http.MethodGet,
			path:     sessionPath(uuid.NewString(), ""),
			token:    a.adminToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "counseling session not found"}),
		},
		{
			name:     "malformed id",
			method:   http.MethodGet,
			path:     sessionPath("nope", ""),
			token:    a.adminToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "counseling session not found"}),
		},
		{
			name:     "another office's session",
			method:   http.MethodGet,
			path:     sessionPath(s.ID, ""),
			token:    a.otherToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "you are not an admin of this office"}),
		},
	}
	runTests(t, a, tests)

	t.Run("view", func(t *testing.T) {
		rec := a.do(httpTest{method: http.MethodGet, path: sessionPath(s.ID, ""), token: a.adminToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var view counseling.View
		unmarchall(t, rec, &view)
		assert.Equal(t, s.ID, view.Session.ID)
		assert.Equal(t, a.student.ID, view.Student.ID)
		assert.Nil(t, view.Counselor)
	})
}

func Test_counselingApi_videoDisabledOffice(t *testing.T) {
	a := setup(t)
	off := testutil.CreateOffice(t, a.users, a.office.CampusID, "Cashier", false)
	cashier, _ := testutil.CreateOfficeAdmin(t, a.users, off, "Cass", "cass@school.test")
	token := getToken(t, a.conf, cashier)
	s := testutil.CreateSession(t, a.sessions, counseling.Session{
		OfficeID:       off.ID,
		StudentID:      a.student.ID,
		ScheduledAt:    a.clock.Now().Add(time.Hour),
		Status:         counseling.StatusPending,
		IsVideoSession: true,
	})
	disabled := marchallObj(t, httpErr{Error: "video counseling is not enabled for this office"})

	tests := []httpTest{
		{
			name:     "list",
			method:   http.MethodGet,
			path:     "/video-counseling",
			token:    token,
			wantCode: http.StatusForbidden,
			wantData: disabled,
		},
		{
			name:     "confirm",
			method:   http.MethodPost,
			path:     sessionPath(s.ID, "update-status"),
			body:     marchallObj(t, counseling.UpdateStatus{Status: counseling.StatusConfirmed}),
			token:    token,
			wantCode: http.StatusForbidden,
			wantData: disabled,
		},
		{
			name:     "join",
			method:   http.MethodPost,
			path:     sessionPath(s.ID, "join"),
			token:    token,
			wantCode: http.StatusForbidden,
			wantData: disabled,
		},
	}
	runTests(t, a, tests)
	assert.Zero(t, a.meetings.Calls)
}

func Test_counselingApi_join(t *testing.T) {
	a := setup(t)

	t.Run("joining a due session starts it", func(t *testing.T) {
		s := a.session(t, counseling.StatusConfirmed, 2*time.Minute)
		rec := a.do(httpTest{method: http.MethodPost, path: sessionPath(s.ID, "join"), token: a.adminToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var view counseling.View
		unmarchall(t, rec, &view)
		assert.Equal(t, counseling.StatusInProgress, view.Session.Status)
		assert.True(t, view.Session.HasMeeting())
		if assert.NotNil(t, view.Session.CounselorID) {
			assert.Equal(t, a.admin.ID, *view.Session.CounselorID)
		}
		if assert.Len(t, view.Participations, 1) {
			assert.Equal(t, "piyuguide-tests", view.Participations[0].DeviceInfo)
		}
		assert.Equal(t, 1, a.pusher.Count(a.student.ID))
	})

	t.Run("joining early keeps the status", func(t *testing.T) {
		s := a.session(t, counseling.StatusConfirmed, 3*time.Hour)
		rec := a.do(httpTest{method: http.MethodPost, path: sessionPath(s.ID, "join"), token: a.adminToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var view counseling.View
		unmarchall(t, rec, &view)
		assert.Equal(t, counseling.StatusConfirmed, view.Session.Status)
	})

	t.Run("terminal session", func(t *testing.T) {
		s := a.session(t, counseling.StatusCancelled, time.Hour)
		tt := httpTest{
			method:   http.MethodPost,
			path:     sessionPath(s.ID, "join"),
			token:    a.adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"error":  `cannot transition from "cancelled" to "in_progress"`,
				"reason": "terminal_state",
				"from":   counseling.StatusCancelled,
				"to":     counseling.StatusInProgress,
			}),
		}
		checkCodeAndData(t, tt, a.do(tt))
	})

	t.Run("meeting provider down", func(t *testing.T) {
		a.meetings.Err = errors.New("provider unavailable")
		defer func() { a.meetings.Err = nil }()

		s := a.session(t, counseling.StatusConfirmed, time.Minute)
		tt := httpTest{
			method:   http.MethodPost,
			path:     sessionPath(s.ID, "join"),
			token:    a.adminToken,
			wantCode: http.StatusInternalServerError,
			wantData: marchallObj(t, httpErr{Error: "the video meeting could not be set up, please try again"}),
		}
		checkCodeAndData(t, tt, a.do(tt))

		got, err := a.sessions.GetSession(context.Background(), s.ID)
		require.NoError(t, err)
		assert.Equal(t, counseling.StatusConfirmed, got.Status)
		assert.Nil(t, got.CounselorID)
	})
}

func Test_counselingApi_updateStatus(t *testing.T) {
	a := setup(t)
	pending := a.session(t, counseling.StatusPending, 24*time.Hour)
	completed := a.session(t, counseling.StatusCompleted, -24*time.Hour)

	tests := []httpTest{
		{
			name:     "pending to completed",
			method:   http.MethodPost,
			path:     sessionPath(pending.ID, "update-status"),
			body:     marchallObj(t, counseling.UpdateStatus{Status: counseling.StatusCompleted}),
			token:    a.adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"error":  `cannot transition from "pending" to "completed"`,
				"reason": "transition_not_allowed",
				"from":   counseling.StatusPending,
				"to":     counseling.StatusCompleted,
			}),
		},
		{
			name:     "completed is final",
			method:   http.MethodPost,
			path:     sessionPath(completed.ID, "update-status"),
			body:     marchallObj(t, counseling.UpdateStatus{Status: counseling.StatusCancelled, Reason: "late"}),
			token:    a.adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{
				"error":  `cannot transition from "completed" to "cancelled"`,
				"reason": "terminal_state",
				"from":   counseling.StatusCompleted,
				"to":     counseling.StatusCancelled,
			}),
		},
		{
			name:     "cancel without reason",
			method:   http.MethodPost,
			path:     sessionPath(pending.ID, "update-status"),
			body:     marchallObj(t, counseling.UpdateStatus{Status: counseling.StatusCancelled}),
			token:    a.adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"reason": "a cancellation reason is required"}),
		},
	}
	runTests(t, a, tests)

	t.Run("confirm", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost,
			path:   sessionPath(pending.ID, "update-status"),
			body:   marchallObj(t, counseling.UpdateStatus{Status: counseling.StatusConfirmed}),
			token:  a.adminToken,
		}
		rec := a.do(tt)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var s counseling.Session
		unmarchall(t, rec, &s)
		assert.Equal(t, counseling.StatusConfirmed, s.Status)
		assert.True(t, s.HasMeeting())
		assert.Equal(t, 1, a.meetings.Calls)

		// confirming again is rejected and does not touch the meeting
		rec = a.do(tt)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, 1, a.meetings.Calls)
	})
}

func Test_counselingApi_end(t *testing.T) {
	a := setup(t)

	t.Run("with notes", func(t *testing.T) {
		s := a.session(t, counseling.StatusInProgress, -10*time.Minute)
		rec := a.do(httpTest{
			method: http.MethodPost,
			path:   sessionPath(s.ID, "end"),
			body:   marchallObj(t, NotesRequest{Notes: "Follow up next week"}),
			token:  a.adminToken,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var view counseling.View
		unmarchall(t, rec, &view)
		assert.Equal(t, counseling.StatusCompleted, view.Session.Status)
		assert.NotNil(t, view.Session.SessionEndedAt)
		assert.Contains(t, view.Session.Notes, "Follow up next week")
	})

	t.Run("with recording", func(t *testing.T) {
		s := a.session(t, counseling.StatusInProgress, -10*time.Minute)

		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		require.NoError(t, w.WriteField("notes", "recorded"))
		require.NoError(t, w.WriteField("student_consent", "true"))
		fw, err := w.CreateFormFile("recording", "session.webm")
		require.NoError(t, err)
		_, err = fw.Write([]byte("webm-bytes"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		req, rec := newAuthRequest(http.MethodPost, sessionPath(s.ID, "end"), a.adminToken, body.Bytes())
		req.Header.Set("Content-Type", w.FormDataContentType())
		a.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var view counseling.View
		unmarchall(t, rec, &view)
		if assert.Len(t, view.Recordings, 1) {
			assert.True(t, view.Recordings[0].StudentConsent)
			assert.False(t, view.Recordings[0].CounselorConsent)
			assert.Equal(t, []byte("webm-bytes"), a.files.Files[view.Recordings[0].Path])
		}
	})

	t.Run("pending session", func(t *testing.T) {
		s := a.session(t, counseling.StatusPending, time.Hour)
		rec := a.do(httpTest{method: http.MethodPost, path: sessionPath(s.ID, "end"), body: []byte(`{}`), token: a.adminToken})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func Test_counselingApi_sendReminder(t *testing.T) {
	a := setup(t)
	s := a.session(t, counseling.StatusConfirmed, 24*time.Hour)
	path := sessionPath(s.ID, "send-reminder")

	tests := []httpTest{
		{
			name:     "sms",
			method:   http.MethodPost,
			path:     path,
			body:     marchallObj(t, counseling.SendReminder{Type: counseling.ReminderSMS}),
			token:    a.adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"reminder_type": "sms reminders are not supported"}),
		},
		{
			name:     "missing type",
			method:   http.MethodPost,
			path:     path,
			body:     []byte(`{}`),
			token:    a.adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"reminder_type": "this field is required"}),
		},
	}
	runTests(t, a, tests)

	t.Run("in app, once per hour", func(t *testing.T) {
		tt := httpTest{
			method: http.MethodPost,
			path:   path,
			body:   marchallObj(t, counseling.SendReminder{Type: counseling.ReminderInApp}),
			token:  a.adminToken,
		}
		rec := a.do(tt)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var rem counseling.Reminder
		unmarchall(t, rec, &rem)
		assert.Equal(t, counseling.ReminderInApp, rem.Type)
		assert.Equal(t, a.student.ID, rem.UserID)

		tt.wantCode = http.StatusBadRequest
		tt.wantData = marchallObj(t, httpErr{Error: "a reminder of this type was already sent within the last hour"})
		checkCodeAndData(t, tt, a.do(tt))

		a.clock.T = a.clock.T.Add(61 * time.Minute)
		rec = a.do(tt)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func Test_counselingApi_reschedule(t *testing.T) {
	a := setup(t)
	s := a.session(t, counseling.StatusPending, 24*time.Hour)
	path := sessionPath(s.ID, "reschedule")
	next := a.clock.Now().Add(72 * time.Hour)

	tests := []httpTest{
		{
			name:     "in the past",
			method:   http.MethodPost,
			path:     path,
			body:     marchallObj(t, counseling.Reschedule{Date: "2001-01-01", Time: "10:00"}),
			token:    a.adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"reschedule_date": "the new schedule must be in the future"}),
		},
		{
			name:     "malformed time",
			method:   http.MethodPost,
			path:     path,
			body:     marchallObj(t, counseling.Reschedule{Date: next.Format("2006-01-02"), Time: "25h"}),
			token:    a.adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"reschedule_time": "reschedule_time must be a time of day (HH:MM)"}),
		},
	}
	runTests(t, a, tests)

	t.Run("pending is confirmed", func(t *testing.T) {
		rec := a.do(httpTest{
			method: http.MethodPost,
			path:   path,
			body:   marchallObj(t, counseling.Reschedule{Date: next.Format("2006-01-02"), Time: "10:30"}),
			token:  a.adminToken,
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got counseling.Session
		unmarchall(t, rec, &got)
		assert.Equal(t, counseling.StatusConfirmed, got.Status)
		assert.Equal(t, time.Date(next.Year(), next.Month(), next.Day(), 10, 30, 0, 0, time.UTC), got.ScheduledAt)
		assert.Contains(t, got.Notes, "Rescheduled from")
	})
}

func Test_counselingApi_saveNotes(t *testing.T) {
	a := setup(t)
	s := a.session(t, counseling.StatusCompleted, -time.Hour)

	rec := a.do(httpTest{
		method: http.MethodPost,
		path:   sessionPath(s.ID, "save-notes"),
		body:   marchallObj(t, NotesRequest{Notes: "Student doing better"}),
		token:  a.adminToken,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got counseling.Session
	unmarchall(t, rec, &got)
	assert.Equal(t, "Student doing better", got.Notes)
	assert.Equal(t, counseling.StatusCompleted, got.Status)
}
