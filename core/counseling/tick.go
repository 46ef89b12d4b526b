package counseling

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/user"
)

// Tick runs one scheduler pass: it provisions, starts and reminds upcoming video sessions,
// marks lapsed confirmed sessions as no-show and dispatches due email reminders.
// Each session is handled in its own transaction under a row lock, so concurrent ticks
// never double-emit. When ctx expires the remaining work is left to the next tick.
func (svc *Service) Tick(ctx context.Context) (TickReport, error) {
	var rep TickReport
	now := svc.clock.Now()

	due, err := svc.repo.QueryDueSessions(ctx, now, now.Add(svc.conf.ReminderWindow))
	if err != nil {
		return rep, pkgerrors.Wrap(err, "querying due sessions")
	}
	for _, s := range due {
		if ctx.Err() != nil {
			rep.Deferred = true
			return rep, nil
		}
		svc.advance(ctx, s.ID, now, &rep)
	}

	lapsed, err := svc.repo.QueryNoShowCandidates(ctx, now.Add(-svc.conf.NoShowGrace))
	if err != nil {
		return rep, pkgerrors.Wrap(err, "querying no-show candidates")
	}
	for _, s := range lapsed {
		if ctx.Err() != nil {
			rep.Deferred = true
			return rep, nil
		}
		svc.expire(ctx, s.ID, now, &rep)
	}

	if err = svc.dispatchEmailReminders(ctx, now, &rep); err != nil {
		return rep, err
	}
	return rep, nil
}

// tickFailed logs a per-session failure; the tick moves on to the next session.
func (svc *Service) tickFailed(ctx context.Context, action, sessionID string, err error, rep *TickReport) {
	rep.Errors++
	svc.logger.Error(fmt.Sprintf("scheduler: session %s: %v", sessionID, err), err, user.System)
	svc.recordFailure(ctx, user.System, action, sessionID, err)
}

func (svc *Service) advance(ctx context.Context, id string, now time.Time, rep *TickReport) {
	var (
		provisioned, started, reminded bool
		action                         = audit.ActionSessionStarted
	)
	// database work is not cut short by the tick deadline
	txCtx := context.WithoutCancel(ctx)
	err := svc.db.InTx(txCtx, func(ctx context.Context) error {
		s, err := svc.repo.LockSession(ctx, id)
		if err != nil {
			return err
		}
		// another tick or an admin may have moved it since the query
		if !s.IsVideoSession || (s.Status != StatusPending && s.Status != StatusConfirmed) {
			return nil
		}
		if s.ScheduledAt.Before(now) || s.ScheduledAt.After(now.Add(svc.conf.ReminderWindow)) {
			return nil
		}

		if provisioned, err = svc.provision(ctx, &s); err != nil {
			return err
		}
		if provisioned {
			svc.audit.Record(ctx, audit.New(user.System, audit.ActionMeetingProvisioned, audit.TargetSession,
				audit.Target(s.ID), audit.Office(s.OfficeID)))
		}

		if !s.ScheduledAt.After(now.Add(svc.conf.StartWindow)) {
			s.Status = StatusInProgress
			s.UpdatedAt = now
			if s, err = svc.repo.UpdateSession(ctx, s); err != nil {
				return pkgerrors.Wrap(err, "updating session")
			}
			svc.notifyReady(ctx, user.System, s)
			svc.audit.Record(ctx, audit.New(user.System, audit.ActionSessionStarted, audit.TargetSession,
				audit.Target(s.ID), audit.Office(s.OfficeID), audit.Status(s.Status)))
			started = true
			return nil
		}

		action = audit.ActionReminderSent
		if s.LastReminderAt != nil && s.LastReminderAt.After(now.Add(-svc.conf.DedupHorizon)) {
			if provisioned {
				s.UpdatedAt = now
				_, err = svc.repo.UpdateSession(ctx, s)
				return pkgerrors.Wrap(err, "updating session")
			}
			return nil
		}
		if _, reminded, err = svc.remindInApp(ctx, s, now); err != nil {
			return err
		}
		if reminded {
			s.LastReminderAt = &now
			svc.audit.Record(ctx, audit.New(user.System, audit.ActionReminderSent, audit.TargetSession,
				audit.Target(s.ID), audit.Office(s.OfficeID), audit.Details(ReminderInApp)))
		}
		if reminded || provisioned {
			s.UpdatedAt = now
			if _, err = svc.repo.UpdateSession(ctx, s); err != nil {
				return pkgerrors.Wrap(err, "updating session")
			}
		}
		return nil
	})
	if err != nil {
		svc.tickFailed(txCtx, action, id, err, rep)
		return
	}
	if provisioned {
		rep.Provisioned++
	}
	if started {
		rep.Started++
	}
	if reminded {
		rep.Reminded++
	}
}

func (svc *Service) expire(ctx context.Context, id string, now time.Time, rep *TickReport) {
	marked := false
	txCtx := context.WithoutCancel(ctx)
	err := svc.db.InTx(txCtx, func(ctx context.Context) error {
		s, err := svc.repo.LockSession(ctx, id)
		if err != nil {
			return err
		}
		if s.Status != StatusConfirmed || s.CounselorJoinedAt != nil ||
			s.ScheduledAt.After(now.Add(-svc.conf.NoShowGrace)) {
			return nil
		}
		if _, err = svc.noShow(ctx, user.System, s); err != nil {
			return err
		}
		marked = true
		return nil
	})
	if err != nil {
		svc.tickFailed(txCtx, audit.ActionSessionNoShow, id, err, rep)
		return
	}
	if marked {
		rep.NoShows++
	}
}

// dispatchEmailReminders sends the scheduled email reminders that fell due.
// A reminder whose session is no longer active is cancelled instead.
func (svc *Service) dispatchEmailReminders(ctx context.Context, now time.Time, rep *TickReport) error {
	due, err := svc.repo.QueryDueReminders(ctx, ReminderEmail, now)
	if err != nil {
		return pkgerrors.Wrap(err, "querying due reminders")
	}
	for _, r := range due {
		if ctx.Err() != nil {
			rep.Deferred = true
			return nil
		}
		svc.dispatchEmailReminder(ctx, r, now, rep)
	}
	return nil
}

func (svc *Service) dispatchEmailReminder(ctx context.Context, r Reminder, now time.Time, rep *TickReport) {
	var sent, failed bool
	txCtx := context.WithoutCancel(ctx)
	err := svc.db.InTx(txCtx, func(ctx context.Context) error {
		s, err := svc.repo.LockSession(ctx, r.SessionID)
		if err != nil {
			return err
		}
		if s.Status != StatusPending && s.Status != StatusConfirmed {
			_, err = svc.repo.SetReminderStatus(ctx, r.ID, ReminderScheduled, ReminderCancelled, nil)
			return pkgerrors.Wrap(err, "cancelling reminder")
		}

		msg, err := svc.reminderEmail(ctx, s)
		if err != nil {
			failed = true
			svc.logger.Warn(fmt.Sprintf("scheduler: email reminder %s: %v", r.ID, err), err, user.System)
			svc.audit.Record(ctx, audit.New(user.System, audit.ActionEmailFailed, audit.TargetSession,
				audit.Target(s.ID), audit.Office(s.OfficeID), audit.Failed(err)))
			_, err = svc.repo.SetReminderStatus(ctx, r.ID, ReminderScheduled, ReminderFailed, nil)
			return pkgerrors.Wrap(err, "failing reminder")
		}

		// a concurrent tick may have claimed it already
		if sent, err = svc.repo.SetReminderStatus(ctx, r.ID, ReminderScheduled, ReminderSent, &now); err != nil || !sent {
			return pkgerrors.Wrap(err, "claiming reminder")
		}
		core.AfterCommit(ctx, func(context.Context) { svc.mailSvc.SendMessages(msg) })
		svc.audit.Record(ctx, audit.New(user.System, audit.ActionReminderSent, audit.TargetSession,
			audit.Target(s.ID), audit.Office(s.OfficeID), audit.Details(ReminderEmail)))
		return nil
	})
	if err != nil {
		sent, failed = false, false
		svc.tickFailed(txCtx, audit.ActionReminderSent, r.SessionID, err, rep)
		return
	}
	if sent {
		rep.EmailsSent++
	}
	if failed {
		rep.EmailsFailed++
	}
}
