package counseling

import (
	"context"
	"io"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/piyuguide/core/user"
)

// Session statuses
const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no-show"
)

var Statuses = []string{StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow}

// Reminder types & statuses
const (
	ReminderInApp = "in_app"
	ReminderEmail = "email"
	ReminderSMS   = "sms"

	ReminderScheduled = "scheduled"
	ReminderSent      = "sent"
	ReminderFailed    = "failed"
	ReminderCancelled = "cancelled"
)

type Session struct {
	ID                string     `json:"id"`
	OfficeID          string     `json:"office_id"`
	StudentID         string     `json:"student_id"`
	CounselorID       *string    `json:"counselor_id"`
	ScheduledAt       time.Time  `json:"scheduled_at"` // UTC
	DurationMinutes   *int       `json:"duration_minutes,omitempty"`
	Status            string     `json:"status"`
	IsVideoSession    bool       `json:"is_video_session"`
	MeetingID         *string    `json:"meeting_id"`
	MeetingURL        *string    `json:"meeting_url"`
	MeetingPassword   *string    `json:"meeting_password"`
	CounselorJoinedAt *time.Time `json:"counselor_joined_at"`
	SessionEndedAt    *time.Time `json:"session_ended_at"`
	Notes             string     `json:"notes"`
	NatureOfConcernID *string    `json:"nature_of_concern_id"`
	LastReminderAt    *time.Time `json:"last_reminder_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (s Session) HasMeeting() bool {
	return s.MeetingID != nil && s.MeetingURL != nil && s.MeetingPassword != nil
}

func (s *Session) setMeeting(m Meeting) {
	s.MeetingID = &m.ID
	s.MeetingURL = &m.URL
	s.MeetingPassword = &m.Password
}

func (s Session) IsCounselor(userID string) bool {
	return s.CounselorID != nil && *s.CounselorID == userID
}

// appendNote adds a line to the session notes.
func (s *Session) appendNote(line string) {
	if s.Notes == "" {
		s.Notes = line
		return
	}
	s.Notes += "\n" + line
}

// Meeting is the credential triple yielded by a MeetingProvider.
type Meeting struct {
	ID       string `json:"meeting_id"`
	URL      string `json:"meeting_url"`
	Password string `json:"meeting_password"`
}

// MeetingProvider generates joinable meeting credentials for a session.
type MeetingProvider interface {
	Generate(ctx context.Context, sessionID string) (Meeting, error)
}

type Participation struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	UserID     string     `json:"user_id"`
	JoinedAt   time.Time  `json:"joined_at"`
	LeftAt     *time.Time `json:"left_at"`
	DeviceInfo string     `json:"device_info,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
}

type Recording struct {
	ID               string    `json:"id"`
	SessionID        string    `json:"session_id"`
	Path             string    `json:"path"`
	StudentConsent   bool      `json:"student_consent"`
	CounselorConsent bool      `json:"counselor_consent"`
	CreatedAt        time.Time `json:"created_at"`
}

type Reminder struct {
	ID           string     `json:"id"`
	SessionID    string     `json:"session_id"`
	UserID       string     `json:"user_id"`
	Type         string     `json:"reminder_type"`
	ScheduledFor time.Time  `json:"scheduled_for"`
	SentAt       *time.Time `json:"sent_at"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// View is a session with the records around it.
type View struct {
	Session        Session         `json:"session"`
	Student        user.User       `json:"student"`
	Counselor      *user.User      `json:"counselor"`
	Participations []Participation `json:"participations"`
	Recordings     []Recording     `json:"recordings"`
	Reminders      []Reminder      `json:"reminders"`
}

type QueryFilter struct {
	OfficeID      string
	Status        string
	CounselorID   string
	ConcernTypeID string
	VideoOnly     bool
	From          *time.Time
	To            *time.Time
	Descending    bool
}

// Date ranges accepted by List.
const (
	RangeToday    = "today"
	RangeUpcoming = "upcoming"
	RangePast     = "past"
	RangeWeek     = "this_week"
	RangeMonth    = "this_month"
)

type ListFilter struct {
	Status     string `query:"status" validate:"omitempty,oneof=pending confirmed in_progress completed cancelled no-show"`
	DateRange  string `query:"date_range" validate:"omitempty,oneof=today upcoming past this_week this_month all"`
	MySessions bool   `query:"my_sessions"`
	Page       int    `query:"page"`
	PerPage    int    `query:"per_page"`
}

func (lf ListFilter) Validate(validate *validator.Validate) error {
	return validate.Struct(lf)
}

type UpdateStatus struct {
	Status string `json:"status" form:"status" validate:"required,oneof=pending confirmed in_progress completed cancelled no-show"`
	Reason string `json:"reason" form:"reason" validate:"max=1000"`
	Notes  string `json:"notes" form:"notes"`
}

func (us UpdateStatus) Validate(validate *validator.Validate) error {
	return validate.Struct(us)
}

type Reschedule struct {
	Date string `json:"reschedule_date" form:"reschedule_date" validate:"required,date"`
	Time string `json:"reschedule_time" form:"reschedule_time" validate:"required,clock"`
}

func (r Reschedule) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

type SendReminder struct {
	Type string `json:"reminder_type" form:"reminder_type" validate:"required,oneof=in_app email sms"`
}

func (sr SendReminder) Validate(validate *validator.Validate) error {
	return validate.Struct(sr)
}

// JoinInfo describes the client joining a session.
type JoinInfo struct {
	DeviceInfo string
	IPAddress  string
}

// RecordingUpload is an optional recording attached when ending a session.
type RecordingUpload struct {
	Filename         string
	Content          io.Reader
	StudentConsent   bool
	CounselorConsent bool
}

type End struct {
	Notes     string
	Recording *RecordingUpload
}

// Stats are the session counters of an office dashboard.
type Stats struct {
	ByStatus map[string]int `json:"by_status"`
	Today    int            `json:"today"`
	Upcoming int            `json:"upcoming"`
}

// TickReport summarizes one scheduler pass.
type TickReport struct {
	Provisioned  int  `json:"provisioned"`
	Started      int  `json:"started"`
	Reminded     int  `json:"reminded"`
	NoShows      int  `json:"no_shows"`
	EmailsSent   int  `json:"emails_sent"`
	EmailsFailed int  `json:"emails_failed"`
	Errors       int  `json:"errors"`
	Deferred     bool `json:"deferred"`
}
