package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/piyuguide/apps/api/echo"
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
	filesvc "github.com/trezcool/piyuguide/services/files"
	logsvc "github.com/trezcool/piyuguide/services/logger"
	meetingsvc "github.com/trezcool/piyuguide/services/meeting"
	pushsvc "github.com/trezcool/piyuguide/services/push"
	schedulersvc "github.com/trezcool/piyuguide/services/scheduler"
	"github.com/trezcool/piyuguide/storage/database"
	sqlxrepos "github.com/trezcool/piyuguide/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	Repositories struct {
		dig.Out
		Users         user.Repository
		Sessions      counseling.Repository
		Concerns      concern.Repository
		Inquiries     inquiry.Repository
		Notifications notification.Repository
		Audits        audit.Repository
	}

	ServerParams struct {
		dig.In
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
		Hub           *pushsvc.Hub
	}
)

func newLogrus(conf *core.Config) *logrus.Logger {
	return logsvc.NewLogrus(conf, os.Stdout)
}

func newLogger(lr *logrus.Logger, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(lr, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(logsvc.NewLogrus(conf, os.Stderr), conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, *sqlxrepos.DB) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(context.Background(), db.DB); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, sqlxrepos.NewDB(db)
}

func newRepositories(db *sqlxrepos.DB) Repositories {
	return Repositories{
		Users:         sqlxrepos.NewUserRepository(db),
		Sessions:      sqlxrepos.NewCounselingRepository(db),
		Concerns:      sqlxrepos.NewConcernRepository(db),
		Inquiries:     sqlxrepos.NewInquiryRepository(db),
		Notifications: sqlxrepos.NewNotificationRepository(db),
		Audits:        sqlxrepos.NewAuditRepository(db),
	}
}

func newClock() core.Clock {
	return core.SystemClock
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(log.New(os.Stdout, "", 0), logger, conf)
	}
	return emailsvc.NewSendgridService(logger, conf)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

func newGateway(
	repo notification.Repository,
	users *user.Service,
	hub *pushsvc.Hub,
	recorder *audit.Recorder,
	logger core.Logger,
	clock core.Clock,
	conf *core.Config,
) *notification.Gateway {
	return notification.NewGateway(repo, users, hub, recorder, logger, clock, conf)
}

func newCounselingService(
	db *sqlxrepos.DB,
	repo counseling.Repository,
	users *user.Service,
	gw *notification.Gateway,
	mailSvc core.EmailService,
	recorder *audit.Recorder,
	logger core.Logger,
	clock core.Clock,
	conf *core.Config,
) *counseling.Service {
	return counseling.NewService(db, repo, users, gw, meetingsvc.NewProvider(conf), mailSvc,
		filesvc.NewLocalStore(conf), recorder, logger, clock, conf)
}

func newConcernService(
	db *sqlxrepos.DB,
	repo concern.Repository,
	sessions counseling.Repository,
	inquiries inquiry.Repository,
	recorder *audit.Recorder,
	clock core.Clock,
) *concern.Service {
	return concern.NewService(db, repo, sessions, inquiries, recorder, clock)
}

func newDashboardService(
	inquiries inquiry.Repository,
	sessions *counseling.Service,
	gw *notification.Gateway,
	users *user.Service,
	clock core.Clock,
) *dashboard.Service {
	return dashboard.NewService(inquiries, sessions, gw, users, clock)
}

func newReportService(
	inquiries inquiry.Repository,
	sessions counseling.Repository,
	recorder *audit.Recorder,
	users *user.Service,
	concerns concern.Repository,
	clock core.Clock,
	conf *core.Config,
) *report.Service {
	return report.NewService(inquiries, sessions, recorder, users, concerns, exportsvc.Renderers(conf), recorder, clock, conf)
}

func newScheduler(sessions *counseling.Service, users *user.Service, logger core.Logger, conf *core.Config) *schedulersvc.Scheduler {
	return schedulersvc.New(sessions, users, logger, conf)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		CounselingSvc: p.CounselingSvc,
		ConcernSvc:    p.ConcernSvc,
		Notifications: p.Notifications,
		DashboardSvc:  p.DashboardSvc,
		ReportSvc:     p.ReportSvc,
		Streams:       p.Hub,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogrus))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newRepositories))
	must(c.Provide(newClock))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(audit.NewRecorder))
	must(c.Provide(user.NewService))
	must(c.Provide(pushsvc.NewHub))
	must(c.Provide(newGateway))
	must(c.Provide(newCounselingService))
	must(c.Provide(newConcernService))
	must(c.Provide(newDashboardService))
	must(c.Provide(newReportService))
	must(c.Provide(newScheduler))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
