package counseling

import (
	"context"
	"fmt"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/user"
)

// Join records the principal entering the session. The first admin to join becomes the
// counselor when none is assigned. When the counselor joins a pending or confirmed session
// within the start window, it moves to in_progress; an in_progress session is left as is.
// Other admins of the office only get a participation row.
func (svc *Service) Join(ctx context.Context, p user.Principal, id string, info JoinInfo) (View, error) {
	var s Session
	err := svc.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		if s, err = svc.load(ctx, p, id, true); err != nil {
			return err
		}
		if IsTerminal(s.Status) {
			return core.NewTransitionError(s.Status, StatusInProgress, core.ReasonTerminalState)
		}

		now := svc.clock.Now()
		changed := false
		if s.CounselorID == nil {
			s.CounselorID = &p.UserID
			changed = true
		}
		provisioned, err := svc.provision(ctx, &s)
		if err != nil {
			return err
		}
		changed = changed || provisioned
		if s.IsCounselor(p.UserID) && s.CounselorJoinedAt == nil {
			s.CounselorJoinedAt = &now
			changed = true
		}

		started := false
		if s.IsCounselor(p.UserID) && (s.Status == StatusPending || s.Status == StatusConfirmed) &&
			!s.ScheduledAt.After(now.Add(svc.conf.StartWindow)) {
			s.Status = StatusInProgress
			started, changed = true, true
		}
		if changed {
			s.UpdatedAt = now
			if s, err = svc.repo.UpdateSession(ctx, s); err != nil {
				return pkgerrors.Wrap(err, "updating session")
			}
		}

		if err = svc.addParticipation(ctx, s, p.UserID, info, now); err != nil {
			return err
		}

		if provisioned {
			svc.audit.Record(ctx, audit.New(p, audit.ActionMeetingProvisioned, audit.TargetSession, audit.Target(s.ID), audit.Office(s.OfficeID)))
		}
		if started {
			svc.notifyReady(ctx, p, s)
			svc.audit.Record(ctx, audit.New(p, audit.ActionSessionStarted, audit.TargetSession,
				audit.Target(s.ID), audit.Office(s.OfficeID), audit.Status(s.Status)))
		}
		svc.audit.Record(ctx, audit.New(p, audit.ActionSessionJoined, audit.TargetSession,
			audit.Target(s.ID), audit.Office(s.OfficeID), audit.Status(s.Status)))
		return nil
	})
	if err != nil {
		svc.recordFailure(ctx, p, audit.ActionSessionJoined, id, err)
		return View{}, err
	}
	return svc.view(ctx, s)
}

// addParticipation opens a participation row unless the user already has an open one.
func (svc *Service) addParticipation(ctx context.Context, s Session, userID string, info JoinInfo, now time.Time) error {
	parts, err := svc.repo.QueryParticipations(ctx, s.ID)
	if err != nil {
		return pkgerrors.Wrap(err, "querying participations")
	}
	for _, pt := range parts {
		if pt.UserID == userID && pt.LeftAt == nil {
			return nil
		}
	}
	_, err = svc.repo.CreateParticipation(ctx, Participation{
		SessionID:  s.ID,
		UserID:     userID,
		JoinedAt:   now,
		DeviceInfo: info.DeviceInfo,
		IPAddress:  info.IPAddress,
	})
	return pkgerrors.Wrap(err, "creating participation")
}

// End completes an in_progress session, closing open participations. The optional
// recording is written before the transaction and removed again if it rolls back.
func (svc *Service) End(ctx context.Context, p user.Principal, id string, end End) (View, error) {
	var path string
	if end.Recording != nil && end.Recording.Content != nil {
		var err error
		path, err = svc.files.Save(ctx, "recordings", end.Recording.Filename, end.Recording.Content)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("saving recording of session %s: %v", id, err), err, p)
			svc.audit.Record(ctx, audit.New(p, audit.ActionSessionEnded, audit.TargetRecording, audit.Target(id), audit.Failed(err)))
			path = ""
		}
	}

	var s Session
	err := svc.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		if s, err = svc.load(ctx, p, id, true); err != nil {
			return err
		}
		if err = CheckTransition(s.Status, StatusCompleted); err != nil {
			return err
		}

		now := svc.clock.Now()
		s.Status = StatusCompleted
		s.SessionEndedAt = &now
		if notes := strings.TrimSpace(end.Notes); notes != "" {
			s.appendNote(notes)
		}
		s.UpdatedAt = now
		if s, err = svc.repo.UpdateSession(ctx, s); err != nil {
			return pkgerrors.Wrap(err, "updating session")
		}
		if _, err = svc.repo.CloseParticipations(ctx, s.ID, now); err != nil {
			return pkgerrors.Wrap(err, "closing participations")
		}
		if path != "" {
			_, err = svc.repo.CreateRecording(ctx, Recording{
				SessionID:        s.ID,
				Path:             path,
				StudentConsent:   end.Recording.StudentConsent,
				CounselorConsent: end.Recording.CounselorConsent,
				CreatedAt:        now,
			})
			if err != nil {
				return pkgerrors.Wrap(err, "creating recording")
			}
		}

		svc.notifyStudent(ctx, p, s, "Counseling session completed",
			"Your counseling session has ended. Thank you for attending.")
		svc.audit.Record(ctx, audit.New(p, audit.ActionSessionEnded, audit.TargetSession,
			audit.Target(s.ID), audit.Office(s.OfficeID), audit.Status(s.Status)))
		return nil
	})
	if err != nil {
		if path != "" {
			svc.deleteFile(ctx, p, path)
		}
		return View{}, err
	}
	return svc.view(ctx, s)
}

func (svc *Service) deleteFile(ctx context.Context, p user.Principal, path string) {
	if err := svc.files.Delete(ctx, path); err != nil {
		svc.logger.Warn(fmt.Sprintf("deleting %s: %v", path, err), err, p)
		svc.audit.Record(ctx, audit.New(p, audit.ActionFileDeleteFailed, audit.TargetRecording, audit.Details(path), audit.Failed(err)))
	}
}

// Reschedule moves a pending or confirmed session to a new date and time (office timezone).
// The old and new times are kept in the notes and a pending session is confirmed on the way.
func (svc *Service) Reschedule(ctx context.Context, p user.Principal, id string, r Reschedule) (Session, error) {
	newAt, err := time.ParseInLocation(core.DateLayout+" "+core.ClockLayout, r.Date+" "+r.Time, svc.loc)
	if err != nil {
		return Session{}, core.NewValidationError(errBadSchedule, core.FieldError{Field: "reschedule_date", Error: errBadSchedule.Error()})
	}
	newAt = newAt.UTC()
	if !newAt.After(svc.clock.Now()) {
		return Session{}, core.NewValidationError(errPastSchedule, core.FieldError{Field: "reschedule_date", Error: errPastSchedule.Error()})
	}

	var s Session
	err = svc.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		if s, err = svc.load(ctx, p, id, true); err != nil {
			return err
		}
		if err = CheckReschedule(s.Status); err != nil {
			return err
		}

		oldAt := s.ScheduledAt
		s.ScheduledAt = newAt
		s.LastReminderAt = nil
		s.appendNote(fmt.Sprintf("Rescheduled from %s to %s", svc.formatTime(oldAt), svc.formatTime(newAt)))
		if s.Status == StatusPending {
			if err = svc.confirm(ctx, p, &s); err != nil {
				return err
			}
		}
		s.UpdatedAt = svc.clock.Now()
		if s, err = svc.repo.UpdateSession(ctx, s); err != nil {
			return pkgerrors.Wrap(err, "updating session")
		}
		if _, err = svc.repo.CancelReminders(ctx, s.ID, ReminderEmail); err != nil {
			return pkgerrors.Wrap(err, "cancelling reminders")
		}
		if err = svc.scheduleEmailReminder(ctx, s); err != nil {
			return err
		}

		svc.notifyStudent(ctx, p, s, "Counseling session rescheduled",
			fmt.Sprintf("Your counseling session was moved from %s to %s.", svc.formatTime(oldAt), svc.formatTime(newAt)))
		svc.audit.Record(ctx, audit.New(p, audit.ActionSessionRescheduled, audit.TargetSession,
			audit.Target(s.ID), audit.Office(s.OfficeID), audit.Status(s.Status)))
		return nil
	})
	if err != nil {
		svc.recordFailure(ctx, p, audit.ActionSessionRescheduled, id, err)
		return Session{}, err
	}
	return s, nil
}
