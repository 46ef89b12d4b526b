package audit

import (
	"context"
	"time"

	"github.com/trezcool/piyuguide/core/user"
)

// Actions
const (
	ActionSessionConfirmed   = "session_confirmed"
	ActionSessionCancelled   = "session_cancelled"
	ActionSessionStarted     = "session_started"
	ActionSessionJoined      = "session_joined"
	ActionSessionEnded       = "session_ended"
	ActionSessionRescheduled = "session_rescheduled"
	ActionSessionNoShow      = "session_no_show"
	ActionSessionNotes       = "session_notes_saved"
	ActionReminderSent       = "reminder_sent"
	ActionMeetingProvisioned = "meeting_provisioned"
	ActionConcernAdded       = "concern_type_added"
	ActionConcernEdited      = "concern_type_edited"
	ActionConcernArchived    = "concern_type_archived"
	ActionConcernRemoved     = "concern_type_removed"
	ActionConcernAutoReply   = "concern_type_auto_reply"
	ActionReportGenerated    = "report_generated"
	ActionAnnouncementNotify = "announcement_notified"
	ActionPushFailed         = "push_failed"
	ActionEmailFailed        = "email_failed"
	ActionFileDeleteFailed   = "file_delete_failed"
)

// Target types
const (
	TargetSession      = "counseling_session"
	TargetConcernType  = "concern_type"
	TargetNotification = "notification"
	TargetReport       = "report"
	TargetAnnouncement = "announcement"
	TargetRecording    = "session_recording"
)

// Entry is an append-only audit log row.
type Entry struct {
	ID         string    `json:"id"`
	ActorID    string    `json:"actor_id,omitempty"`
	ActorRole  string    `json:"actor_role"`
	ActorName  string    `json:"actor_name,omitempty"`
	Action     string    `json:"action"`
	TargetType string    `json:"target_type"`
	TargetID   string    `json:"target_id,omitempty"`
	OfficeID   *string   `json:"office_id,omitempty"`
	InquiryID  *string   `json:"inquiry_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Details    string    `json:"details,omitempty"`
	Success    bool      `json:"success"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

type Option func(*Entry)

// New is the single way to build an Entry: actor, action and target type are required.
func New(actor user.Principal, action, targetType string, opts ...Option) Entry {
	e := Entry{
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		ActorName:  actor.Name,
		Action:     action,
		TargetType: targetType,
		Success:    true,
	}
	if actor.OfficeID != "" {
		off := actor.OfficeID
		e.OfficeID = &off
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func Target(id string) Option {
	return func(e *Entry) { e.TargetID = id }
}

func Office(id string) Option {
	return func(e *Entry) {
		if id != "" {
			e.OfficeID = &id
		}
	}
}

func Inquiry(id string) Option {
	return func(e *Entry) { e.InquiryID = &id }
}

func Status(s string) Option {
	return func(e *Entry) { e.Status = s }
}

func Details(d string) Option {
	return func(e *Entry) { e.Details = d }
}

// Failed marks the entry unsuccessful and keeps err's text as details.
func Failed(err error) Option {
	return func(e *Entry) {
		e.Success = false
		if err != nil {
			e.Details = err.Error()
		}
	}
}

type requestInfoKey struct{}

type requestInfo struct {
	ip        string
	userAgent string
}

// WithRequestInfo stores the caller's IP and user agent for entries recorded with ctx.
func WithRequestInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{ip: ip, userAgent: userAgent})
}

func requestInfoFrom(ctx context.Context) (requestInfo, bool) {
	ri, ok := ctx.Value(requestInfoKey{}).(requestInfo)
	return ri, ok
}

type QueryFilter struct {
	OfficeID string
	From     time.Time
	To       time.Time
	Action   string
}
