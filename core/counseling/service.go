package counseling

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/notification"
	"github.com/trezcool/piyuguide/core/user"
)

var (
	// errors
	ErrNotFound = core.NewNotFoundError("counseling session")

	errReasonRequired   = errors.New("a cancellation reason is required")
	errPastSchedule     = errors.New("the new schedule must be in the future")
	errBadSchedule      = errors.New("invalid date or time")
	errSMSUnsupported   = errors.New("sms reminders are not supported")
	errReminderTooSoon  = errors.New("a reminder of this type was already sent within the last hour")
	errReminderInactive = errors.New("reminders can only be sent for pending or confirmed sessions")
	errNoStudentEmail   = errors.New("the student has no email address")
)

const noteTimeLayout = "2006-01-02 15:04 MST"

type (
	Repository interface {
		CreateSession(ctx context.Context, s Session) (Session, error)
		GetSession(ctx context.Context, id string) (Session, error)
		// LockSession reads the session and, within a transaction, locks its row until commit.
		LockSession(ctx context.Context, id string) (Session, error)
		UpdateSession(ctx context.Context, s Session) (Session, error)
		// QuerySessions returns a page of matching sessions and the total count. A zero page returns all.
		QuerySessions(ctx context.Context, filter QueryFilter, page core.Page) ([]Session, int, error)
		// QueryDueSessions returns pending or confirmed video sessions scheduled within [from, to].
		QueryDueSessions(ctx context.Context, from, to time.Time) ([]Session, error)
		// QueryNoShowCandidates returns confirmed sessions scheduled at or before `before`
		// that the counselor never joined.
		QueryNoShowCandidates(ctx context.Context, before time.Time) ([]Session, error)
		CountSessionsByStatus(ctx context.Context, officeID string) (map[string]int, error)
		CountSessionsBetween(ctx context.Context, officeID string, from, to time.Time) (int, error)
		CountSessionsByConcern(ctx context.Context, officeID, typeID string) (int, error)

		CreateParticipation(ctx context.Context, p Participation) (Participation, error)
		QueryParticipations(ctx context.Context, sessionID string) ([]Participation, error)
		// CloseParticipations sets left_at on every open participation of the session.
		CloseParticipations(ctx context.Context, sessionID string, at time.Time) (int, error)

		CreateRecording(ctx context.Context, r Recording) (Recording, error)
		QueryRecordings(ctx context.Context, sessionID string) ([]Recording, error)

		CreateReminder(ctx context.Context, r Reminder) (Reminder, error)
		QueryReminders(ctx context.Context, sessionID string) ([]Reminder, error)
		// QueryDueReminders returns scheduled reminders of type `typ` due at or before `before`.
		QueryDueReminders(ctx context.Context, typ string, before time.Time) ([]Reminder, error)
		// SetReminderStatus moves a reminder from `from` to `to`; false when it was not in `from`.
		SetReminderStatus(ctx context.Context, id, from, to string, sentAt *time.Time) (bool, error)
		// CancelReminders cancels the scheduled reminders of type `typ` of the session.
		CancelReminders(ctx context.Context, sessionID, typ string) (int, error)
	}

	Notifier interface {
		Notify(ctx context.Context, recipients []string, p notification.Payload) (int, error)
		NotifyOnce(ctx context.Context, recipient string, p notification.Payload, horizon time.Duration) (bool, error)
	}

	Directory interface {
		GetByID(ctx context.Context, id string) (user.User, error)
		GetOffice(ctx context.Context, id string) (user.Office, error)
		RequireVideoOffice(ctx context.Context, officeID string) error
	}

	// FileStore keeps uploaded files under unique names.
	FileStore interface {
		Save(ctx context.Context, dir, filename string, r io.Reader) (string, error)
		Delete(ctx context.Context, path string) error
	}

	Service struct {
		db         core.Transactor
		repo       Repository
		users      Directory
		notifier   Notifier
		meetings   MeetingProvider
		mailSvc    core.EmailService
		files      FileStore
		audit      *audit.Recorder
		logger     core.Logger
		clock      core.Clock
		conf       core.CounselingConfig
		loc        *time.Location
		maxPerPage int
	}
)

func NewService(
	db core.Transactor,
	repo Repository,
	users Directory,
	notifier Notifier,
	meetings MeetingProvider,
	mailSvc core.EmailService,
	files FileStore,
	recorder *audit.Recorder,
	logger core.Logger,
	clock core.Clock,
	conf *core.Config,
) *Service {
	return &Service{
		db:         db,
		repo:       repo,
		users:      users,
		notifier:   notifier,
		meetings:   meetings,
		mailSvc:    mailSvc,
		files:      files,
		audit:      recorder,
		logger:     logger,
		clock:      clock,
		conf:       conf.Counseling,
		loc:        conf.Location(),
		maxPerPage: conf.Reports.PageSize,
	}
}

// load reads the session, locked when `lock` is set, and checks the principal manages its office.
func (svc *Service) load(ctx context.Context, p user.Principal, id string, lock bool) (Session, error) {
	var (
		s   Session
		err error
	)
	if lock {
		s, err = svc.repo.LockSession(ctx, id)
	} else {
		s, err = svc.repo.GetSession(ctx, id)
	}
	if err != nil {
		return Session{}, err
	}
	if !p.IsOfficeAdminOf(s.OfficeID) {
		return Session{}, user.ErrNotOfficeAdmin
	}
	if err = svc.users.RequireVideoOffice(ctx, s.OfficeID); err != nil {
		return Session{}, err
	}
	return s, nil
}

// provision generates meeting credentials for a video session that has none.
// Credentials are never regenerated once set.
func (svc *Service) provision(ctx context.Context, s *Session) (bool, error) {
	if !s.IsVideoSession || s.HasMeeting() {
		return false, nil
	}
	mctx, cancel := context.WithTimeout(ctx, svc.conf.MeetingTimeout)
	defer cancel()

	m, err := svc.meetings.Generate(mctx, s.ID)
	if err != nil {
		return false, core.NewProvisionError(err)
	}
	s.setMeeting(m)
	return true, nil
}

// recordFailure audits a failed operation outside of its rolled back transaction.
func (svc *Service) recordFailure(ctx context.Context, p user.Principal, action, sessionID string, err error) {
	var pErr *core.ProvisionError
	if errors.As(err, &pErr) {
		svc.logger.Error(fmt.Sprintf("provisioning meeting for session %s: %v", sessionID, err), err, p)
		svc.audit.Record(ctx, audit.New(p, action, audit.TargetSession, audit.Target(sessionID), audit.Failed(err)))
	}
}

func studentLink(s Session) string {
	return "/student/counseling/" + s.ID
}

// notifyStudent persists and pushes a session notification. Failures are logged and audited only.
func (svc *Service) notifyStudent(ctx context.Context, p user.Principal, s Session, title, msg string) {
	_, err := svc.notifier.Notify(ctx, []string{s.StudentID}, notification.Payload{
		Title:          title,
		Message:        msg,
		Type:           notification.TypeVideoSession,
		SourceOfficeID: s.OfficeID,
		Link:           studentLink(s),
	})
	if err != nil {
		svc.notifyFailed(ctx, p, s, err)
	}
}

// notifyReady tells the student the session can be joined, at most once per dedup horizon.
func (svc *Service) notifyReady(ctx context.Context, p user.Principal, s Session) {
	_, err := svc.notifier.NotifyOnce(ctx, s.StudentID, notification.Payload{
		Title:          "Video session ready",
		Message:        "Your counselor is ready. Join your video counseling session now.",
		Type:           notification.TypeVideoSession,
		SourceOfficeID: s.OfficeID,
		Link:           studentLink(s),
		CorrelationKey: fmt.Sprintf("session:%s:ready:%d", s.ID, s.ScheduledAt.Unix()),
	}, svc.conf.DedupHorizon)
	if err != nil {
		svc.notifyFailed(ctx, p, s, err)
	}
}

func (svc *Service) notifyFailed(ctx context.Context, p user.Principal, s Session, err error) {
	svc.logger.Error(fmt.Sprintf("notifying student of session %s: %v", s.ID, err), err, p)
	svc.audit.Record(ctx, audit.New(p, audit.ActionPushFailed, audit.TargetSession, audit.Target(s.ID), audit.Office(s.OfficeID), audit.Failed(err)))
}

func (svc *Service) formatTime(t time.Time) string {
	return t.In(svc.loc).Format(noteTimeLayout)
}

// Get returns the session with its participants, recordings and reminders. It changes nothing.
func (svc *Service) Get(ctx context.Context, p user.Principal, id string) (View, error) {
	s, err := svc.load(ctx, p, id, false)
	if err != nil {
		return View{}, err
	}
	return svc.view(ctx, s)
}

func (svc *Service) view(ctx context.Context, s Session) (View, error) {
	v := View{Session: s}
	var err error
	if v.Student, err = svc.users.GetByID(ctx, s.StudentID); err != nil {
		return View{}, pkgerrors.Wrap(err, "getting student")
	}
	if s.CounselorID != nil {
		c, err := svc.users.GetByID(ctx, *s.CounselorID)
		if err != nil {
			return View{}, pkgerrors.Wrap(err, "getting counselor")
		}
		v.Counselor = &c
	}
	if v.Participations, err = svc.repo.QueryParticipations(ctx, s.ID); err != nil {
		return View{}, pkgerrors.Wrap(err, "querying participations")
	}
	if v.Recordings, err = svc.repo.QueryRecordings(ctx, s.ID); err != nil {
		return View{}, pkgerrors.Wrap(err, "querying recordings")
	}
	if v.Reminders, err = svc.repo.QueryReminders(ctx, s.ID); err != nil {
		return View{}, pkgerrors.Wrap(err, "querying reminders")
	}
	return v, nil
}

// List returns a page of the office's video sessions.
func (svc *Service) List(ctx context.Context, p user.Principal, lf ListFilter) (core.Paginated, error) {
	if !p.IsOfficeAdmin() {
		return core.Paginated{}, user.ErrNotOfficeAdmin
	}
	if err := svc.users.RequireVideoOffice(ctx, p.OfficeID); err != nil {
		return core.Paginated{}, err
	}
	filter := QueryFilter{
		OfficeID:   p.OfficeID,
		Status:     lf.Status,
		VideoOnly:  true,
		Descending: true,
	}
	if lf.MySessions {
		filter.CounselorID = p.UserID
	}
	now := svc.clock.Now()
	today := startOfDay(now, svc.loc)
	switch lf.DateRange {
	case RangeToday:
		filter.From, filter.To = core.TimePtr(today), core.TimePtr(today.AddDate(0, 0, 1))
	case RangeUpcoming:
		filter.From = core.TimePtr(now)
		filter.Descending = false
	case RangePast:
		filter.To = core.TimePtr(now)
	case RangeWeek:
		weekday := (int(today.Weekday()) + 6) % 7 // monday first
		start := today.AddDate(0, 0, -weekday)
		filter.From, filter.To = core.TimePtr(start), core.TimePtr(start.AddDate(0, 0, 7))
	case RangeMonth:
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, svc.loc).UTC()
		filter.From, filter.To = core.TimePtr(start), core.TimePtr(start.AddDate(0, 1, 0))
	}

	page := core.NewPage(lf.Page, lf.PerPage, svc.maxPerPage)
	sessions, total, err := svc.repo.QuerySessions(ctx, filter, page)
	if err != nil {
		return core.Paginated{}, pkgerrors.Wrap(err, "querying sessions")
	}
	return core.NewPaginated(page, total, sessions), nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc).UTC()
}

// UpdateStatus applies an explicit status change requested by an office admin.
func (svc *Service) UpdateStatus(ctx context.Context, p user.Principal, id string, us UpdateStatus) (Session, error) {
	switch us.Status {
	case StatusConfirmed:
		return svc.Confirm(ctx, p, id)
	case StatusCancelled:
		return svc.Cancel(ctx, p, id, us.Reason)
	case StatusInProgress:
		return svc.Start(ctx, p, id)
	case StatusCompleted:
		v, err := svc.End(ctx, p, id, End{Notes: us.Notes})
		return v.Session, err
	case StatusNoShow:
		return svc.MarkNoShow(ctx, p, id)
	}
	s, err := svc.load(ctx, p, id, false)
	if err != nil {
		return Session{}, err
	}
	return Session{}, CheckTransition(s.Status, us.Status)
}

// Confirm accepts a pending session: the principal becomes the counselor unless one is
// assigned, and video sessions get their meeting credentials.
func (svc *Service) Confirm(ctx context.Context, p user.Principal, id string) (Session, error) {
	var s Session
	err := svc.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		if s, err = svc.load(ctx, p, id, true); err != nil {
			return err
		}
		if err = CheckTransition(s.Status, StatusConfirmed); err != nil {
			return err
		}
		if err = svc.confirm(ctx, p, &s); err != nil {
			return err
		}
		if s, err = svc.repo.UpdateSession(ctx, s); err != nil {
			return pkgerrors.Wrap(err, "updating session")
		}
		if err = svc.scheduleEmailReminder(ctx, s); err != nil {
			return err
		}

		svc.notifyStudent(ctx, p, s, "Counseling session confirmed",
			fmt.Sprintf("Your counseling session on %s has been confirmed.", svc.formatTime(s.ScheduledAt)))
		svc.audit.Record(ctx, audit.New(p, audit.ActionSessionConfirmed, audit.TargetSession,
			audit.Target(s.ID), audit.Office(s.OfficeID), audit.Status(s.Status)))
		return nil
	})
	if err != nil {
		svc.recordFailure(ctx, p, audit.ActionSessionConfirmed, id, err)
		return Session{}, err
	}
	return s, nil
}

func (svc *Service) confirm(ctx context.Context, p user.Principal, s *Session) error {
	if s.CounselorID == nil {
		s.CounselorID = &p.UserID
	}
	provisioned, err := svc.provision(ctx, s)
	if err != nil {
		return err
	}
	if provisioned {
		svc.audit.Record(ctx, audit.New(p, audit.ActionMeetingProvisioned, audit.TargetSession, audit.Target(s.ID), audit.Office(s.OfficeID)))
	}
	s.Status = StatusConfirmed
	s.UpdatedAt = svc.clock.Now()
	return nil
}

// Cancel cancels a pending or confirmed session and records the reason in its notes.
func (svc *Service) Cancel(ctx context.Context, p user.Principal, id, reason string) (Session, error) {
	reason = core.CleanString(reason)
	if reason == "" {
		return Session{}, core.NewValidationError(errReasonRequired, core.FieldError{Field: "reason", Error: errReasonRequired.Error()})
	}

	var s Session
	err := svc.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		if s, err = svc.load(ctx, p, id, true); err != nil {
			return err
		}
		if err = CheckTransition(s.Status, StatusCancelled); err != nil {
			return err
		}
		s.Status = StatusCancelled
		s.appendNote("Cancellation reason: " + reason)
		s.UpdatedAt = svc.clock.Now()
		if s, err = svc.repo.UpdateSession(ctx, s); err != nil {
			return pkgerrors.Wrap(err, "updating session")
		}
		if _, err = svc.repo.CancelReminders(ctx, s.ID, ReminderEmail); err != nil {
			return pkgerrors.Wrap(err, "cancelling reminders")
		}

		svc.notifyStudent(ctx, p, s, "Counseling session cancelled",
			fmt.Sprintf("Your counseling session on %s has been cancelled. Reason: %s", svc.formatTime(s.ScheduledAt), reason))
		svc.audit.Record(ctx, audit.New(p, audit.ActionSessionCancelled, audit.TargetSession,
			audit.Target(s.ID), audit.Office(s.OfficeID), audit.Status(s.Status), audit.Details(reason)))
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// Start moves a pending or confirmed session to in_progress on an admin's request.
func (svc *Service) Start(ctx context.Context, p user.Principal, id string) (Session, error) {
	var s Session
	err := svc.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		if s, err = svc.load(ctx, p, id, true); err != nil {
			return err
		}
		if err = CheckTransition(s.Status, StatusInProgress); err != nil {
			return err
		}
		if s.CounselorID == nil {
			s.CounselorID = &p.UserID
		}
		if _, err = svc.provision(ctx, &s); err != nil {
			return err
		}
		s.Status = StatusInProgress
		s.UpdatedAt = svc.clock.Now()
		if s, err = svc.repo.UpdateSession(ctx, s); err != nil {
			return pkgerrors.Wrap(err, "updating session")
		}

		svc.notifyReady(ctx, p, s)
		svc.audit.Record(ctx, audit.New(p, audit.ActionSessionStarted, audit.TargetSession,
			audit.Target(s.ID), audit.Office(s.OfficeID), audit.Status(s.Status)))
		return nil
	})
	if err != nil {
		svc.recordFailure(ctx, p, audit.ActionSessionStarted, id, err)
		return Session{}, err
	}
	return s, nil
}

// MarkNoShow closes a confirmed session the student did not attend.
func (svc *Service) MarkNoShow(ctx context.Context, p user.Principal, id string) (Session, error) {
	var s Session
	err := svc.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		if s, err = svc.load(ctx, p, id, true); err != nil {
			return err
		}
		if err = CheckTransition(s.Status, StatusNoShow); err != nil {
			return err
		}
		s, err = svc.noShow(ctx, p, s)
		return err
	})
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

func (svc *Service) noShow(ctx context.Context, p user.Principal, s Session) (Session, error) {
	var err error
	s.Status = StatusNoShow
	s.UpdatedAt = svc.clock.Now()
	if s, err = svc.repo.UpdateSession(ctx, s); err != nil {
		return Session{}, pkgerrors.Wrap(err, "updating session")
	}
	if _, err = svc.repo.CancelReminders(ctx, s.ID, ReminderEmail); err != nil {
		return Session{}, pkgerrors.Wrap(err, "cancelling reminders")
	}

	svc.notifyStudent(ctx, p, s, "Counseling session missed",
		fmt.Sprintf("Your counseling session on %s was marked as missed. Please request a new one if needed.", svc.formatTime(s.ScheduledAt)))
	svc.audit.Record(ctx, audit.New(p, audit.ActionSessionNoShow, audit.TargetSession,
		audit.Target(s.ID), audit.Office(s.OfficeID), audit.Status(s.Status)))
	return s, nil
}

// SaveNotes replaces the session notes.
func (svc *Service) SaveNotes(ctx context.Context, p user.Principal, id, notes string) (Session, error) {
	var s Session
	err := svc.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		if s, err = svc.load(ctx, p, id, true); err != nil {
			return err
		}
		s.Notes = notes
		s.UpdatedAt = svc.clock.Now()
		if s, err = svc.repo.UpdateSession(ctx, s); err != nil {
			return pkgerrors.Wrap(err, "updating session")
		}
		svc.audit.Record(ctx, audit.New(p, audit.ActionSessionNotes, audit.TargetSession, audit.Target(s.ID), audit.Office(s.OfficeID)))
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// Stats counts the office's sessions by status, today and over the next 7 days.
func (svc *Service) Stats(ctx context.Context, officeID string) (Stats, error) {
	byStatus, err := svc.repo.CountSessionsByStatus(ctx, officeID)
	if err != nil {
		return Stats{}, pkgerrors.Wrap(err, "counting sessions by status")
	}
	now := svc.clock.Now()
	today := startOfDay(now, svc.loc)
	st := Stats{ByStatus: byStatus}
	if st.Today, err = svc.repo.CountSessionsBetween(ctx, officeID, today, today.AddDate(0, 0, 1)); err != nil {
		return Stats{}, pkgerrors.Wrap(err, "counting today's sessions")
	}
	if st.Upcoming, err = svc.repo.CountSessionsBetween(ctx, officeID, now, now.AddDate(0, 0, 7)); err != nil {
		return Stats{}, pkgerrors.Wrap(err, "counting upcoming sessions")
	}
	return st, nil
}
