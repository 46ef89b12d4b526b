package tests

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/piyuguide/apps/api/echo"
	"github.com/trezcool/piyuguide/core/counseling"
	"github.com/trezcool/piyuguide/core/dashboard"
	"github.com/trezcool/piyuguide/core/inquiry"
	"github.com/trezcool/piyuguide/core/notification"
	testutil "github.com/trezcool/piyuguide/tests"
)

func Test_dashboardApi(t *testing.T) {
	a := setup(t)

	a.session(t, counseling.StatusPending, 2*time.Hour)
	a.session(t, counseling.StatusConfirmed, 72*time.Hour)
	a.session(t, counseling.StatusCompleted, -72*time.Hour)
	testutil.CreateInquiry(t, a.inquiries, inquiry.Inquiry{OfficeID: a.office.ID, StudentID: a.student.ID, CreatedAt: a.clock.Now()})
	a.notify(t, a.admin.ID, "hello", notification.TypeSystem)

	t.Run("data", func(t *testing.T) {
		rec := a.do(httpTest{method: http.MethodGet, path: "/dashboard_data", token: a.adminToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var st dashboard.Stats
		unmarchall(t, rec, &st)
		assert.Equal(t, 1, st.PendingInquiries)
		assert.Equal(t, 1, st.UnreadNotifications)
		assert.Equal(t, 1, st.Sessions.ByStatus[counseling.StatusPending])
		assert.Equal(t, 1, st.Sessions.ByStatus[counseling.StatusConfirmed])
		assert.Equal(t, 1, st.Sessions.ByStatus[counseling.StatusCompleted])
		assert.Len(t, st.Team, 1)
	})

	t.Run("page", func(t *testing.T) {
		rec := a.do(httpTest{method: http.MethodGet, path: "/dashboard", token: a.adminToken})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp DashboardResponse
		unmarchall(t, rec, &resp)
		assert.Equal(t, a.admin.ID, resp.User.UserID)
		assert.Equal(t, a.office, resp.Office)
		assert.Equal(t, 1, resp.Stats.PendingInquiries)
	})

	runTests(t, a, []httpTest{
		{
			name:     "students have no dashboard",
			method:   http.MethodGet,
			path:     "/dashboard_data",
			token:    a.studentToken,
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
	})
}
