package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/piyuguide/core/notification"
)

type notificationPage struct {
	Total int                         `json:"total"`
	Items []notification.Notification `json:"items"`
}

func (a *app) notify(t *testing.T, userID, title, typ string) {
	a.clock.T = a.clock.T.Add(time.Second)
	_, err := a.notifs.Notify(context.Background(), []string{userID}, notification.Payload{Title: title, Type: typ})
	require.NoError(t, err)
}

func (a *app) notifications(t *testing.T, token, query string) notificationPage {
	rec := a.do(httpTest{method: http.MethodGet, path: "/notifications" + query, token: token})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page notificationPage
	unmarchall(t, rec, &page)
	return page
}

func Test_notificationApi(t *testing.T) {
	a := setup(t)

	a.notify(t, a.admin.ID, "first", notification.TypeSystem)
	a.notify(t, a.admin.ID, "second", notification.TypeVideoSession)
	a.notify(t, a.admin.ID, "third", notification.TypeVideoSession)
	a.notify(t, a.student.ID, "student's", notification.TypeSystem)

	unread := func(n int) []byte { return marchallObj(t, map[string]int{"unread_count": n}) }
	count := func(n int) []byte { return marchallObj(t, map[string]int{"count": n}) }

	page := a.notifications(t, a.adminToken, "")
	require.Equal(t, 3, page.Total)
	assert.Equal(t, "third", page.Items[0].Title, "newest first")
	third, first := page.Items[0], page.Items[2]

	t.Run("filters", func(t *testing.T) {
		assert.Equal(t, 2, a.notifications(t, a.adminToken, "?type=video_session").Total)
		assert.Len(t, a.notifications(t, a.adminToken, "?per_page=1").Items, 1)

		rec := a.do(httpTest{method: http.MethodGet, path: "/notifications?read=maybe", token: a.adminToken})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"read":"read must be true or false"}`, rec.Body.String())
	})

	tests := []httpTest{
		{
			name:     "unread count",
			method:   http.MethodGet,
			path:     "/notifications/get-unread-count",
			token:    a.adminToken,
			wantCode: http.StatusOK,
			wantData: unread(3),
		},
		{
			name:     "mark read",
			method:   http.MethodPost,
			path:     "/notifications/mark-read/" + third.ID,
			token:    a.adminToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]string{"status": "ok"}),
		},
		{
			name:     "unread count after mark read",
			method:   http.MethodGet,
			path:     "/notifications/get-unread-count",
			token:    a.adminToken,
			wantCode: http.StatusOK,
			wantData: unread(2),
		},
		{
			name:     "someone else's notification",
			method:   http.MethodPost,
			path:     "/notifications/mark-read/" + first.ID,
			token:    a.studentToken,
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "notification not found"}),
		},
		{
			name:     "delete all read",
			method:   http.MethodDelete,
			path:     "/notifications/delete-all-read",
			token:    a.adminToken,
			wantCode: http.StatusOK,
			wantData: count(1),
		},
		{
			name:     "mark all read",
			method:   http.MethodPost,
			path:     "/notifications/mark-all-read",
			token:    a.adminToken,
			wantCode: http.StatusOK,
			wantData: count(2),
		},
		{
			name:     "mark all read again",
			method:   http.MethodPost,
			path:     "/notifications/mark-all-read",
			token:    a.adminToken,
			wantCode: http.StatusOK,
			wantData: count(0),
		},
		{
			name:     "student unread count",
			method:   http.MethodGet,
			path:     "/notifications/get-unread-count",
			token:    a.studentToken,
			wantCode: http.StatusOK,
			wantData: unread(1),
		},
	}
	runTests(t, a, tests)

	t.Run("delete", func(t *testing.T) {
		rec := a.do(httpTest{method: http.MethodDelete, path: "/notifications/delete/" + first.ID, token: a.adminToken})
		assert.Equal(t, http.StatusNoContent, rec.Code)

		page := a.notifications(t, a.adminToken, "")
		if assert.Equal(t, 1, page.Total) {
			assert.Equal(t, "second", page.Items[0].Title)
		}

		rec = a.do(httpTest{method: http.MethodDelete, path: "/notifications/delete/" + first.ID, token: a.adminToken})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_notificationApi_announce(t *testing.T) {
	a := setup(t)

	announcement := func(id, audience string) []byte {
		return marchallObj(t, notification.Announcement{
			AnnouncementID: id,
			Title:          "Wellness week",
			Message:        "Free sessions all week.",
			Audience:       audience,
		})
	}

	tests := []httpTest{
		{
			name:     "students of the campus",
			method:   http.MethodPost,
			path:     "/announcements/notify",
			body:     announcement("a-1", notification.AudienceStudents),
			token:    a.adminToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]int{"count": 1}),
		},
		{
			name:     "campus admins, without the author",
			method:   http.MethodPost,
			path:     "/announcements/notify",
			body:     announcement("a-2", notification.AudienceCampusAdmins),
			token:    a.adminToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, map[string]int{"count": 1}),
		},
		{
			name:     "unknown audience",
			method:   http.MethodPost,
			path:     "/announcements/notify",
			body:     announcement("a-3", "everyone"),
			token:    a.adminToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"audience": "audience must be one of [students office_admins campus_admins]"}),
		},
		{
			name:     "students may not announce",
			method:   http.MethodPost,
			path:     "/announcements/notify",
			body:     announcement("a-4", notification.AudienceStudents),
			token:    a.studentToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	}
	runTests(t, a, tests)

	page := a.notifications(t, a.studentToken, "?type=announcement")
	if assert.Equal(t, 1, page.Total) {
		n := page.Items[0]
		assert.Equal(t, "Wellness week", n.Title)
		if assert.NotNil(t, n.AnnouncementID) {
			assert.Equal(t, "a-1", *n.AnnouncementID)
		}
		assert.Equal(t, "/announcements/a-1", n.Link)
	}
	assert.Equal(t, 1, a.pusher.Count(a.student.ID))
}
