package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/counseling"
)

type (
	Ticker interface {
		Tick(ctx context.Context) (counseling.TickReport, error)
	}

	Sweeper interface {
		SweepPresence(ctx context.Context) (int, error)
	}

	// Scheduler runs the counseling tick and the presence sweep on their cron specs.
	// A run still in progress when the next one is due makes that next run skip.
	Scheduler struct {
		cron        *cron.Cron
		ticker      Ticker
		sweeper     Sweeper
		logger      core.Logger
		tickSpec    string
		tickTimeout time.Duration
		sweepSpec   string
	}
)

func New(ticker Ticker, sweeper Sweeper, logger core.Logger, conf *core.Config) *Scheduler {
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(conf.Location()),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ticker:      ticker,
		sweeper:     sweeper,
		logger:      logger,
		tickSpec:    conf.Counseling.TickSpec,
		tickTimeout: conf.Counseling.TickTimeout,
		sweepSpec:   conf.Presence.SweepSpec,
	}
}

// Start registers the jobs and starts the cron engine in its own goroutine.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.tickSpec, s.RunTick); err != nil {
		return errors.Wrapf(err, "scheduling counseling tick %q", s.tickSpec)
	}
	if s.sweepSpec != "" {
		if _, err := s.cron.AddFunc(s.sweepSpec, s.RunSweep); err != nil {
			return errors.Wrapf(err, "scheduling presence sweep %q", s.sweepSpec)
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started", map[string]interface{}{"tick": s.tickSpec, "sweep": s.sweepSpec})
	return nil
}

// Stop stops scheduling new runs and waits for running ones, or for ctx to be done.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return core.NewShutdownError("scheduler did not stop in time")
	}
}

// RunTick runs one counseling tick bounded by the tick timeout.
func (s *Scheduler) RunTick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.tickTimeout)
	defer cancel()

	rep, err := s.ticker.Tick(ctx)
	if err != nil {
		s.logger.Error("counseling tick failed", err)
		return
	}
	if rep != (counseling.TickReport{}) {
		s.logger.Info("counseling tick", map[string]interface{}{
			"provisioned":   rep.Provisioned,
			"started":       rep.Started,
			"reminded":      rep.Reminded,
			"no_shows":      rep.NoShows,
			"emails_sent":   rep.EmailsSent,
			"emails_failed": rep.EmailsFailed,
			"errors":        rep.Errors,
			"deferred":      rep.Deferred,
		})
	}
}

// RunSweep flags stale users offline.
func (s *Scheduler) RunSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.tickTimeout)
	defer cancel()

	n, err := s.sweeper.SweepPresence(ctx)
	if err != nil {
		s.logger.Error("presence sweep failed", err)
		return
	}
	if n > 0 {
		s.logger.Debug("presence sweep", map[string]interface{}{"offline": n})
	}
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

var _ cron.Logger = cronLogger{} // interface compliance check

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, kv(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, err, kv(keysAndValues))
}

func kv(keysAndValues []interface{}) map[string]interface{} {
	m := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		m[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return m
}
