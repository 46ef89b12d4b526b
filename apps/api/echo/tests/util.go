package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/piyuguide/apps/api/echo"
	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/concern"
	"github.com/trezcool/piyuguide/core/counseling"
	"github.com/trezcool/piyuguide/core/dashboard"
	"github.com/trezcool/piyuguide/core/inquiry"
	"github.com/trezcool/piyuguide/core/notification"
	"github.com/trezcool/piyuguide/core/report"
	"github.com/trezcool/piyuguide/core/user"
	emailsvc "github.com/trezcool/piyuguide/services/email"
	exportsvc "github.com/trezcool/piyuguide/services/export"
	logsvc "github.com/trezcool/piyuguide/services/logger"
	inmemdb "github.com/trezcool/piyuguide/storage/database/inmem"
	testutil "github.com/trezcool/piyuguide/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// app is a server wired to in-memory stores, with one office and its people.
type app struct {
	*Server
	conf      *core.Config
	clock     *core.FixedClock
	users     user.Repository
	sessions  counseling.Repository
	concerns  concern.Repository
	inquiries inquiry.Repository
	notifs    *notification.Gateway
	meetings  *testutil.MeetingStub
	files     *testutil.FileStoreStub
	pusher    *testutil.PusherStub

	office       user.Office
	admin        user.User
	adminToken   string
	other        user.User // admin of another office
	otherToken   string
	student      user.User
	studentToken string
}

func setup(t *testing.T) *app {
	conf := testutil.Config()
	logger := logsvc.NewNopLogger()
	clock := &core.FixedClock{T: time.Now().UTC().Truncate(time.Second)}

	// set up DB & repos
	db := inmemdb.Open()
	a := &app{
		conf:      conf,
		clock:     clock,
		users:     inmemdb.NewUserRepository(db),
		sessions:  inmemdb.NewCounselingRepository(db),
		concerns:  inmemdb.NewConcernRepository(db),
		inquiries: inmemdb.NewInquiryRepository(db),
		meetings:  &testutil.MeetingStub{},
		files:     testutil.NewFileStoreStub(),
		pusher:    testutil.NewPusherStub(),
	}
	audits := inmemdb.NewAuditRepository(db)

	// set up services
	recorder := audit.NewRecorder(audits, logger, clock)
	usrSvc := user.NewService(a.users, conf, clock)
	a.notifs = notification.NewGateway(inmemdb.NewNotificationRepository(db), usrSvc, a.pusher, recorder, logger, clock, conf)
	counselingSvc := counseling.NewService(db, a.sessions, usrSvc, a.notifs, a.meetings, emailsvc.NewServiceMock(logger, conf),
		a.files, recorder, logger, clock, conf)
	concernSvc := concern.NewService(db, a.concerns, a.sessions, a.inquiries, recorder, clock)
	dashboardSvc := dashboard.NewService(a.inquiries, counselingSvc, a.notifs, usrSvc, clock)
	reportSvc := report.NewService(a.inquiries, a.sessions, recorder, usrSvc, a.concerns, exportsvc.Renderers(conf), recorder, clock, conf)

	validate := validator.New()
	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	core.InitValidators(validate, translator)

	// set up server
	a.Server = NewServer(&Options{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		UserSvc:       usrSvc,
		CounselingSvc: counselingSvc,
		ConcernSvc:    concernSvc,
		Notifications: a.notifs,
		DashboardSvc:  dashboardSvc,
		ReportSvc:     reportSvc,
	})

	cmp := testutil.CreateCampus(t, a.users, "Main")
	a.office = testutil.CreateOffice(t, a.users, cmp.ID, "Guidance Office", true)
	otherOffice := testutil.CreateOffice(t, a.users, cmp.ID, "Registrar", true)
	a.admin, _ = testutil.CreateOfficeAdmin(t, a.users, a.office, "Ana", "ana@school.test")
	a.other, _ = testutil.CreateOfficeAdmin(t, a.users, otherOffice, "Oto", "oto@school.test")
	a.student = testutil.CreateStudent(t, a.users, "Uma", "uma@school.test", cmp.ID)

	a.adminToken = getToken(t, conf, a.admin)
	a.otherToken = getToken(t, conf, a.other)
	a.studentToken = getToken(t, conf, a.student)
	return a
}

// session stores a video session of the office scheduled `in` from now.
func (a *app) session(t *testing.T, status string, in time.Duration) counseling.Session {
	return testutil.CreateSession(t, a.sessions, counseling.Session{
		OfficeID:       a.office.ID,
		StudentID:      a.student.ID,
		ScheduledAt:    a.clock.Now().Add(in),
		Status:         status,
		IsVideoSession: true,
	})
}

func (a *app) do(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	a.ServeHTTP(rec, req)
	return rec
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "piyuguide-tests")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, conf *core.Config, usr user.User) string {
	claims := GetUserClaims(usr, conf)
	token, err := GenerateToken(claims, conf)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarchall(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarchall() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// runTests runs table tests comparing both status code and body.
func runTests(t *testing.T, a *app, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checkCodeAndData(t, tt, a.do(tt))
		})
	}
}
