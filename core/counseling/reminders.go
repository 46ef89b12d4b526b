package counseling

import (
	"context"
	"fmt"
	"math"
	"net/mail"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/notification"
	"github.com/trezcool/piyuguide/core/user"
)

const reminderTemplate = "session_reminder"

type reminderEmailData struct {
	StudentName string
	OfficeName  string
	ScheduledAt string
	MeetingURL  string
}

// scheduleEmailReminder plans an email to the student ahead of a confirmed session,
// unless that instant already passed.
func (svc *Service) scheduleEmailReminder(ctx context.Context, s Session) error {
	if s.Status != StatusConfirmed {
		return nil
	}
	at := s.ScheduledAt.Add(-svc.conf.EmailReminderLead)
	if !at.After(svc.clock.Now()) {
		return nil
	}
	_, err := svc.repo.CreateReminder(ctx, Reminder{
		SessionID:    s.ID,
		UserID:       s.StudentID,
		Type:         ReminderEmail,
		ScheduledFor: at,
		Status:       ReminderScheduled,
		CreatedAt:    svc.clock.Now(),
	})
	return pkgerrors.Wrap(err, "scheduling email reminder")
}

func reminderKey(s Session) string {
	return fmt.Sprintf("session:%s:reminder:%d", s.ID, s.ScheduledAt.Unix())
}

func minutesUntil(t, now time.Time) int {
	return int(math.Ceil(t.Sub(now).Minutes()))
}

// remindInApp notifies the student that the session starts soon, once per dedup horizon.
func (svc *Service) remindInApp(ctx context.Context, s Session, now time.Time) (Reminder, bool, error) {
	mins := minutesUntil(s.ScheduledAt, now)
	msg := fmt.Sprintf("Your counseling session starts in %d minutes.", mins)
	if mins <= 0 {
		msg = fmt.Sprintf("Your counseling session was scheduled for %s.", svc.formatTime(s.ScheduledAt))
	}
	sent, err := svc.notifier.NotifyOnce(ctx, s.StudentID, notification.Payload{
		Title:          "Counseling session reminder",
		Message:        msg,
		Type:           notification.TypeVideoSession,
		SourceOfficeID: s.OfficeID,
		Link:           studentLink(s),
		CorrelationKey: reminderKey(s),
		Extra:          map[string]interface{}{"minutes": mins},
	}, svc.conf.DedupHorizon)
	if err != nil || !sent {
		return Reminder{}, false, err
	}
	rem, err := svc.repo.CreateReminder(ctx, Reminder{
		SessionID:    s.ID,
		UserID:       s.StudentID,
		Type:         ReminderInApp,
		ScheduledFor: now,
		SentAt:       &now,
		Status:       ReminderSent,
		CreatedAt:    now,
	})
	if err != nil {
		return Reminder{}, false, pkgerrors.Wrap(err, "recording reminder")
	}
	return rem, true, nil
}

func (svc *Service) reminderEmail(ctx context.Context, s Session) (*core.EmailMessage, error) {
	student, err := svc.users.GetByID(ctx, s.StudentID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "getting student")
	}
	if student.Email == "" {
		return nil, errNoStudentEmail
	}
	office, err := svc.users.GetOffice(ctx, s.OfficeID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "getting office")
	}
	data := reminderEmailData{
		StudentName: student.Name,
		OfficeName:  office.Name,
		ScheduledAt: svc.formatTime(s.ScheduledAt),
	}
	if s.MeetingURL != nil {
		data.MeetingURL = *s.MeetingURL
	}
	return &core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "Reminder: counseling session on " + data.ScheduledAt,
		TemplateName: reminderTemplate,
		TemplateData: data,
	}, nil
}

// SendReminder sends a reminder of the given type to the student right away.
func (svc *Service) SendReminder(ctx context.Context, p user.Principal, id string, sr SendReminder) (Reminder, error) {
	if sr.Type == ReminderSMS {
		return Reminder{}, core.NewValidationError(errSMSUnsupported, core.FieldError{Field: "reminder_type", Error: errSMSUnsupported.Error()})
	}

	var rem Reminder
	err := svc.db.InTx(ctx, func(ctx context.Context) error {
		s, err := svc.load(ctx, p, id, true)
		if err != nil {
			return err
		}
		if s.Status != StatusPending && s.Status != StatusConfirmed {
			return core.NewValidationError(errReminderInactive)
		}
		now := svc.clock.Now()

		switch sr.Type {
		case ReminderInApp:
			var sent bool
			if rem, sent, err = svc.remindInApp(ctx, s, now); err != nil {
				return err
			}
			if !sent {
				return core.NewValidationError(errReminderTooSoon)
			}
			s.LastReminderAt = &now
			if _, err = svc.repo.UpdateSession(ctx, s); err != nil {
				return pkgerrors.Wrap(err, "updating session")
			}
		case ReminderEmail:
			if rem, err = svc.remindByEmail(ctx, s, now); err != nil {
				return err
			}
		}

		svc.audit.Record(ctx, audit.New(p, audit.ActionReminderSent, audit.TargetSession,
			audit.Target(s.ID), audit.Office(s.OfficeID), audit.Details(sr.Type)))
		return nil
	})
	if err != nil {
		return Reminder{}, err
	}
	return rem, nil
}

func (svc *Service) remindByEmail(ctx context.Context, s Session, now time.Time) (Reminder, error) {
	rems, err := svc.repo.QueryReminders(ctx, s.ID)
	if err != nil {
		return Reminder{}, pkgerrors.Wrap(err, "querying reminders")
	}
	for _, r := range rems {
		if r.Type == ReminderEmail && r.Status == ReminderSent && r.SentAt != nil &&
			r.SentAt.After(now.Add(-svc.conf.DedupHorizon)) {
			return Reminder{}, core.NewValidationError(errReminderTooSoon)
		}
	}

	msg, err := svc.reminderEmail(ctx, s)
	if err == errNoStudentEmail {
		return Reminder{}, core.NewValidationError(err)
	} else if err != nil {
		return Reminder{}, err
	}
	rem, err := svc.repo.CreateReminder(ctx, Reminder{
		SessionID:    s.ID,
		UserID:       s.StudentID,
		Type:         ReminderEmail,
		ScheduledFor: now,
		SentAt:       &now,
		Status:       ReminderSent,
		CreatedAt:    now,
	})
	if err != nil {
		return Reminder{}, pkgerrors.Wrap(err, "recording reminder")
	}
	core.AfterCommit(ctx, func(context.Context) { svc.mailSvc.SendMessages(msg) })
	return rem, nil
}
