package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/counseling"
	"github.com/trezcool/piyuguide/core/notification"
	"github.com/trezcool/piyuguide/core/user"
	emailsvc "github.com/trezcool/piyuguide/services/email"
	filesvc "github.com/trezcool/piyuguide/services/files"
	logsvc "github.com/trezcool/piyuguide/services/logger"
	meetingsvc "github.com/trezcool/piyuguide/services/meeting"
	"github.com/trezcool/piyuguide/storage/database"
	sqlxrepos "github.com/trezcool/piyuguide/storage/database/sqlx"
)

// noPush drops real-time events: the CLI has no websocket clients.
type noPush struct{}

func (noPush) Push(_ context.Context, _ string, _ notification.Event) error { return nil }

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewLogrusLogger(logsvc.NewLogrus(conf, os.Stderr))

	// set up DB
	raw, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer raw.Close()
	db := sqlxrepos.NewDB(raw)

	// set up services
	clock := core.SystemClock
	recorder := audit.NewRecorder(sqlxrepos.NewAuditRepository(db), logger, clock)
	usrSvc := user.NewService(sqlxrepos.NewUserRepository(db), conf, clock)
	gw := notification.NewGateway(sqlxrepos.NewNotificationRepository(db), usrSvc, noPush{}, recorder, logger, clock, conf)
	core.ParseEmailTemplates(conf, logger)
	var mailSvc core.EmailService = emailsvc.NewSendgridService(logger, conf)
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(log.New(os.Stdout, "", 0), logger, conf)
	}
	counselingSvc := counseling.NewService(db, sqlxrepos.NewCounselingRepository(db), usrSvc, gw, meetingsvc.NewProvider(conf),
		mailSvc, filesvc.NewLocalStore(conf), recorder, logger, clock, conf)

	// start CLI
	cli := commandLine{
		conf:   conf,
		db:     raw.DB,
		usrSvc: usrSvc,
		ticker: counselingSvc,
		out:    os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %s", err), err)
		}
		raw.Close()
		os.Exit(1)
	}
}
