package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/concern"
	"github.com/trezcool/piyuguide/core/counseling"
	"github.com/trezcool/piyuguide/core/dashboard"
	"github.com/trezcool/piyuguide/core/notification"
	"github.com/trezcool/piyuguide/core/report"
	"github.com/trezcool/piyuguide/core/user"
)

type (
	Options struct {
		Conf          *core.Config
		Logger        core.Logger
		Validate      *validator.Validate
		Translator    ut.Translator
		UserSvc       *user.Service
		CounselingSvc *counseling.Service
		ConcernSvc    *concern.Service
		Notifications *notification.Gateway
		DashboardSvc  *dashboard.Service
		ReportSvc     *report.Service
		Streams       Streamer
	}

	Server struct {
		opts     *Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}

	// guards are the middleware chains protecting routes.
	guards struct {
		authed []echo.MiddlewareFunc // any signed-in user
		admin  []echo.MiddlewareFunc // office admins only
		stream []echo.MiddlewareFunc // signed-in user, token in the query string
	}
)

func NewServer(opts *Options) *Server {
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	if !opts.Conf.TestMode {
		signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !(conf.Server.DisableReqLogs || conf.TestMode) {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug && !conf.TestMode

	s.app.GET("/", home)

	jwtConf := newJWTConfig(conf)
	streamConf := jwtConf
	streamConf.TokenLookup = "query:token"

	principal := principalMiddleware(s.opts.UserSvc)
	g := guards{
		authed: []echo.MiddlewareFunc{middleware.JWTWithConfig(jwtConf), principal},
		stream: []echo.MiddlewareFunc{middleware.JWTWithConfig(streamConf), principal},
	}
	g.admin = append(append([]echo.MiddlewareFunc{}, g.authed...), officeAdminMiddleware())

	registerPresenceAPI(s.app, g, s.opts.UserSvc, s.opts.Streams)
	registerDashboardAPI(s.app, g, s.opts.DashboardSvc, s.opts.UserSvc)
	registerCounselingAPI(s.app, g, s.opts.CounselingSvc, s.opts.Validate)
	registerConcernAPI(s.app, g, s.opts.ConcernSvc, s.opts.Validate)
	registerNotificationAPI(s.app, g, s.opts.Notifications, s.opts.Validate)
	registerReportAPI(s.app, g, s.opts.ReportSvc, s.opts.Validate)
}

// Start serves until the listener fails; the failure is reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to PiyuGuide API!")
}
