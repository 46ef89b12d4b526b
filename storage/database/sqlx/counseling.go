package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/counseling"
)

type sessionRow struct {
	ID                string      `db:"id"`
	OfficeID          string      `db:"office_id"`
	StudentID         string      `db:"student_id"`
	CounselorID       null.String `db:"counselor_id"`
	ScheduledAt       time.Time   `db:"scheduled_at"`
	DurationMinutes   null.Int    `db:"duration_minutes"`
	Status            string      `db:"status"`
	IsVideoSession    bool        `db:"is_video_session"`
	MeetingID         null.String `db:"meeting_id"`
	MeetingURL        null.String `db:"meeting_url"`
	MeetingPassword   null.String `db:"meeting_password"`
	CounselorJoinedAt null.Time   `db:"counselor_joined_at"`
	SessionEndedAt    null.Time   `db:"session_ended_at"`
	Notes             string      `db:"notes"`
	NatureOfConcernID null.String `db:"nature_of_concern_id"`
	LastReminderAt    null.Time   `db:"last_reminder_at"`
	CreatedAt         time.Time   `db:"created_at"`
	UpdatedAt         time.Time   `db:"updated_at"`
}

func (r sessionRow) session() counseling.Session {
	return counseling.Session{
		ID:                r.ID,
		OfficeID:          r.OfficeID,
		StudentID:         r.StudentID,
		CounselorID:       r.CounselorID.Ptr(),
		ScheduledAt:       r.ScheduledAt.UTC(),
		DurationMinutes:   r.DurationMinutes.Ptr(),
		Status:            r.Status,
		IsVideoSession:    r.IsVideoSession,
		MeetingID:         r.MeetingID.Ptr(),
		MeetingURL:        r.MeetingURL.Ptr(),
		MeetingPassword:   r.MeetingPassword.Ptr(),
		CounselorJoinedAt: utcPtr(r.CounselorJoinedAt),
		SessionEndedAt:    utcPtr(r.SessionEndedAt),
		Notes:             r.Notes,
		NatureOfConcernID: r.NatureOfConcernID.Ptr(),
		LastReminderAt:    utcPtr(r.LastReminderAt),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
}

func sessionsOf(rows []sessionRow) []counseling.Session {
	sessions := make([]counseling.Session, 0, len(rows))
	for _, r := range rows {
		sessions = append(sessions, r.session())
	}
	return sessions
}

// sessionValues returns the column values of s, in sessionColumns order.
func sessionValues(s counseling.Session) []interface{} {
	return []interface{}{
		s.ID, s.OfficeID, s.StudentID, null.StringFromPtr(s.CounselorID), s.ScheduledAt, null.IntFromPtr(s.DurationMinutes),
		s.Status, s.IsVideoSession, null.StringFromPtr(s.MeetingID), null.StringFromPtr(s.MeetingURL),
		null.StringFromPtr(s.MeetingPassword), null.TimeFromPtr(s.CounselorJoinedAt), null.TimeFromPtr(s.SessionEndedAt),
		s.Notes, null.StringFromPtr(s.NatureOfConcernID), null.TimeFromPtr(s.LastReminderAt), s.CreatedAt, s.UpdatedAt,
	}
}

var (
	sessionColumns = []string{
		"id", "office_id", "student_id", "counselor_id", "scheduled_at", "duration_minutes", "status",
		"is_video_session", "meeting_id", "meeting_url", "meeting_password", "counselor_joined_at",
		"session_ended_at", "notes", "nature_of_concern_id", "last_reminder_at", "created_at", "updated_at",
	}
	participationColumns = []string{"id", "session_id", "user_id", "joined_at", "left_at", "device_info", "ip_address"}
	recordingColumns     = []string{"id", "session_id", "path", "student_consent", "counselor_consent", "created_at"}
	reminderColumns      = []string{"id", "session_id", "user_id", "reminder_type", "scheduled_for", "sent_at", "status", "created_at"}
)

type counselingRepository struct {
	db *DB
}

var _ counseling.Repository = (*counselingRepository)(nil) // interface compliance check

func NewCounselingRepository(db *DB) *counselingRepository {
	return &counselingRepository{db: db}
}

func (repo *counselingRepository) CreateSession(ctx context.Context, s counseling.Session) (counseling.Session, error) {
	s.ID = newID()
	if _, err := repo.db.exec(ctx, psql.Insert("counseling_session").Columns(sessionColumns...).Values(sessionValues(s)...)); err != nil {
		return counseling.Session{}, errors.Wrap(err, "inserting session")
	}
	return s, nil
}

func (repo *counselingRepository) getSession(ctx context.Context, id string, lock bool) (counseling.Session, error) {
	if !isUUID(id) {
		return counseling.Session{}, counseling.ErrNotFound
	}
	q := psql.Select(sessionColumns...).From("counseling_session").Where(sq.Eq{"id": id})
	if lock {
		q = q.Suffix("FOR UPDATE")
	}
	var row sessionRow
	if err := repo.db.get(ctx, &row, q); err != nil {
		return counseling.Session{}, notFound(err, counseling.ErrNotFound)
	}
	return row.session(), nil
}

func (repo *counselingRepository) GetSession(ctx context.Context, id string) (counseling.Session, error) {
	return repo.getSession(ctx, id, false)
}

// LockSession holds the row lock until the transaction of ctx ends. Outside one it is a plain read.
func (repo *counselingRepository) LockSession(ctx context.Context, id string) (counseling.Session, error) {
	return repo.getSession(ctx, id, core.InTx(ctx))
}

func (repo *counselingRepository) UpdateSession(ctx context.Context, s counseling.Session) (counseling.Session, error) {
	if !isUUID(s.ID) {
		return counseling.Session{}, counseling.ErrNotFound
	}
	q := psql.Update("counseling_session").Where(sq.Eq{"id": s.ID})
	values := sessionValues(s)
	for i, col := range sessionColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		q = q.Set(col, values[i])
	}
	n, err := repo.db.exec(ctx, q)
	if err != nil {
		return counseling.Session{}, errors.Wrap(err, "updating session")
	}
	if n == 0 {
		return counseling.Session{}, counseling.ErrNotFound
	}
	return s, nil
}

func (repo *counselingRepository) QuerySessions(ctx context.Context, filter counseling.QueryFilter, page core.Page) ([]counseling.Session, int, error) {
	where := sq.And{}
	for col, id := range map[string]string{
		"office_id":            filter.OfficeID,
		"counselor_id":         filter.CounselorID,
		"nature_of_concern_id": filter.ConcernTypeID,
	} {
		if id == "" {
			continue
		}
		if !isUUID(id) {
			return []counseling.Session{}, 0, nil
		}
		where = append(where, sq.Eq{col: id})
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": filter.Status})
	}
	if filter.VideoOnly {
		where = append(where, sq.Eq{"is_video_session": true})
	}
	if filter.From != nil {
		where = append(where, sq.GtOrEq{"scheduled_at": *filter.From})
	}
	if filter.To != nil {
		where = append(where, sq.Lt{"scheduled_at": *filter.To})
	}

	total, err := repo.db.count(ctx, psql.Select("count(*)").From("counseling_session").Where(where))
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting sessions")
	}
	order := "scheduled_at"
	if filter.Descending {
		order = "scheduled_at DESC"
	}
	var rows []sessionRow
	if err = repo.db.selectAll(ctx, &rows, paged(psql.Select(sessionColumns...).
		From("counseling_session").
		Where(where).
		OrderBy(order, "id"), page)); err != nil {
		return nil, 0, errors.Wrap(err, "querying sessions")
	}
	return sessionsOf(rows), total, nil
}

func (repo *counselingRepository) querySessions(ctx context.Context, where sq.Sqlizer) ([]counseling.Session, error) {
	var rows []sessionRow
	if err := repo.db.selectAll(ctx, &rows, psql.Select(sessionColumns...).
		From("counseling_session").
		Where(where).
		OrderBy("scheduled_at", "id")); err != nil {
		return nil, errors.Wrap(err, "querying sessions")
	}
	return sessionsOf(rows), nil
}

func (repo *counselingRepository) QueryDueSessions(ctx context.Context, from, to time.Time) ([]counseling.Session, error) {
	return repo.querySessions(ctx, sq.And{
		sq.Eq{"is_video_session": true},
		sq.Eq{"status": []string{counseling.StatusPending, counseling.StatusConfirmed}},
		sq.GtOrEq{"scheduled_at": from},
		sq.LtOrEq{"scheduled_at": to},
	})
}

func (repo *counselingRepository) QueryNoShowCandidates(ctx context.Context, before time.Time) ([]counseling.Session, error) {
	return repo.querySessions(ctx, sq.And{
		sq.Eq{"status": counseling.StatusConfirmed},
		sq.Eq{"counselor_joined_at": nil},
		sq.LtOrEq{"scheduled_at": before},
	})
}

func (repo *counselingRepository) CountSessionsByStatus(ctx context.Context, officeID string) (map[string]int, error) {
	counts := make(map[string]int, len(counseling.Statuses))
	if !isUUID(officeID) {
		return counts, nil
	}
	err := countBy(ctx, repo.db, counts, psql.Select("status AS key", "count(*) AS n").
		From("counseling_session").
		Where(sq.Eq{"office_id": officeID, "is_video_session": true}).
		GroupBy("status"))
	return counts, errors.Wrap(err, "counting sessions by status")
}

func (repo *counselingRepository) CountSessionsBetween(ctx context.Context, officeID string, from, to time.Time) (int, error) {
	if !isUUID(officeID) {
		return 0, nil
	}
	n, err := repo.db.count(ctx, psql.Select("count(*)").From("counseling_session").Where(sq.And{
		sq.Eq{"office_id": officeID, "is_video_session": true},
		sq.GtOrEq{"scheduled_at": from},
		sq.Lt{"scheduled_at": to},
	}))
	return n, errors.Wrap(err, "counting sessions")
}

func (repo *counselingRepository) CountSessionsByConcern(ctx context.Context, officeID, typeID string) (int, error) {
	if !isUUID(typeID) || (officeID != "" && !isUUID(officeID)) {
		return 0, nil
	}
	q := psql.Select("count(*)").From("counseling_session").Where(sq.Eq{"nature_of_concern_id": typeID})
	if officeID != "" {
		q = q.Where(sq.Eq{"office_id": officeID})
	}
	n, err := repo.db.count(ctx, q)
	return n, errors.Wrap(err, "counting sessions by concern")
}

type participationRow struct {
	ID         string    `db:"id"`
	SessionID  string    `db:"session_id"`
	UserID     string    `db:"user_id"`
	JoinedAt   time.Time `db:"joined_at"`
	LeftAt     null.Time `db:"left_at"`
	DeviceInfo string    `db:"device_info"`
	IPAddress  string    `db:"ip_address"`
}

func (repo *counselingRepository) CreateParticipation(ctx context.Context, p counseling.Participation) (counseling.Participation, error) {
	p.ID = newID()
	if _, err := repo.db.exec(ctx, psql.Insert("session_participation").
		Columns(participationColumns...).
		Values(p.ID, p.SessionID, p.UserID, p.JoinedAt, null.TimeFromPtr(p.LeftAt), p.DeviceInfo, p.IPAddress)); err != nil {
		return counseling.Participation{}, errors.Wrap(err, "inserting participation")
	}
	return p, nil
}

func (repo *counselingRepository) QueryParticipations(ctx context.Context, sessionID string) ([]counseling.Participation, error) {
	parts := make([]counseling.Participation, 0)
	if !isUUID(sessionID) {
		return parts, nil
	}
	var rows []participationRow
	if err := repo.db.selectAll(ctx, &rows, psql.Select(participationColumns...).
		From("session_participation").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("joined_at", "id")); err != nil {
		return nil, errors.Wrap(err, "querying participations")
	}
	for _, r := range rows {
		parts = append(parts, counseling.Participation{
			ID:         r.ID,
			SessionID:  r.SessionID,
			UserID:     r.UserID,
			JoinedAt:   r.JoinedAt.UTC(),
			LeftAt:     utcPtr(r.LeftAt),
			DeviceInfo: r.DeviceInfo,
			IPAddress:  r.IPAddress,
		})
	}
	return parts, nil
}

func (repo *counselingRepository) CloseParticipations(ctx context.Context, sessionID string, at time.Time) (int, error) {
	if !isUUID(sessionID) {
		return 0, nil
	}
	n, err := repo.db.exec(ctx, psql.Update("session_participation").
		Set("left_at", at).
		Where(sq.Eq{"session_id": sessionID, "left_at": nil}))
	return n, errors.Wrap(err, "closing participations")
}

type recordingRow struct {
	ID               string    `db:"id"`
	SessionID        string    `db:"session_id"`
	Path             string    `db:"path"`
	StudentConsent   bool      `db:"student_consent"`
	CounselorConsent bool      `db:"counselor_consent"`
	CreatedAt        time.Time `db:"created_at"`
}

func (repo *counselingRepository) CreateRecording(ctx context.Context, r counseling.Recording) (counseling.Recording, error) {
	r.ID = newID()
	if _, err := repo.db.exec(ctx, psql.Insert("session_recording").
		Columns(recordingColumns...).
		Values(r.ID, r.SessionID, r.Path, r.StudentConsent, r.CounselorConsent, r.CreatedAt)); err != nil {
		return counseling.Recording{}, errors.Wrap(err, "inserting recording")
	}
	return r, nil
}

func (repo *counselingRepository) QueryRecordings(ctx context.Context, sessionID string) ([]counseling.Recording, error) {
	recs := make([]counseling.Recording, 0)
	if !isUUID(sessionID) {
		return recs, nil
	}
	var rows []recordingRow
	if err := repo.db.selectAll(ctx, &rows, psql.Select(recordingColumns...).
		From("session_recording").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy("created_at", "id")); err != nil {
		return nil, errors.Wrap(err, "querying recordings")
	}
	for _, r := range rows {
		rec := counseling.Recording(r)
		rec.CreatedAt = rec.CreatedAt.UTC()
		recs = append(recs, rec)
	}
	return recs, nil
}

type reminderRow struct {
	ID           string    `db:"id"`
	SessionID    string    `db:"session_id"`
	UserID       string    `db:"user_id"`
	Type         string    `db:"reminder_type"`
	ScheduledFor time.Time `db:"scheduled_for"`
	SentAt       null.Time `db:"sent_at"`
	Status       string    `db:"status"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r reminderRow) reminder() counseling.Reminder {
	return counseling.Reminder{
		ID:           r.ID,
		SessionID:    r.SessionID,
		UserID:       r.UserID,
		Type:         r.Type,
		ScheduledFor: r.ScheduledFor.UTC(),
		SentAt:       utcPtr(r.SentAt),
		Status:       r.Status,
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func (repo *counselingRepository) queryReminders(ctx context.Context, where sq.Sqlizer, orderBy ...string) ([]counseling.Reminder, error) {
	var rows []reminderRow
	if err := repo.db.selectAll(ctx, &rows, psql.Select(reminderColumns...).
		From("session_reminder").
		Where(where).
		OrderBy(orderBy...)); err != nil {
		return nil, errors.Wrap(err, "querying reminders")
	}
	rems := make([]counseling.Reminder, 0, len(rows))
	for _, r := range rows {
		rems = append(rems, r.reminder())
	}
	return rems, nil
}

func (repo *counselingRepository) CreateReminder(ctx context.Context, r counseling.Reminder) (counseling.Reminder, error) {
	r.ID = newID()
	if _, err := repo.db.exec(ctx, psql.Insert("session_reminder").
		Columns(reminderColumns...).
		Values(r.ID, r.SessionID, r.UserID, r.Type, r.ScheduledFor, null.TimeFromPtr(r.SentAt), r.Status, r.CreatedAt)); err != nil {
		return counseling.Reminder{}, errors.Wrap(err, "inserting reminder")
	}
	return r, nil
}

func (repo *counselingRepository) QueryReminders(ctx context.Context, sessionID string) ([]counseling.Reminder, error) {
	if !isUUID(sessionID) {
		return []counseling.Reminder{}, nil
	}
	return repo.queryReminders(ctx, sq.Eq{"session_id": sessionID}, "created_at", "id")
}

func (repo *counselingRepository) QueryDueReminders(ctx context.Context, typ string, before time.Time) ([]counseling.Reminder, error) {
	return repo.queryReminders(ctx, sq.And{
		sq.Eq{"reminder_type": typ, "status": counseling.ReminderScheduled},
		sq.LtOrEq{"scheduled_for": before},
	}, "scheduled_for", "id")
}

// SetReminderStatus is a compare-and-set on the status column, so concurrent dispatchers
// cannot both claim a reminder.
func (repo *counselingRepository) SetReminderStatus(ctx context.Context, id, from, to string, sentAt *time.Time) (bool, error) {
	if !isUUID(id) {
		return false, nil
	}
	q := psql.Update("session_reminder").Set("status", to).Where(sq.Eq{"id": id, "status": from})
	if sentAt != nil {
		q = q.Set("sent_at", *sentAt)
	}
	n, err := repo.db.exec(ctx, q)
	if err != nil {
		return false, errors.Wrap(err, "updating reminder status")
	}
	return n == 1, nil
}

func (repo *counselingRepository) CancelReminders(ctx context.Context, sessionID, typ string) (int, error) {
	if !isUUID(sessionID) {
		return 0, nil
	}
	n, err := repo.db.exec(ctx, psql.Update("session_reminder").
		Set("status", counseling.ReminderCancelled).
		Where(sq.Eq{"session_id": sessionID, "reminder_type": typ, "status": counseling.ReminderScheduled}))
	return n, errors.Wrap(err, "cancelling reminders")
}
