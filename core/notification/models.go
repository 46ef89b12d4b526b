package notification

import (
	"time"
)

// Notification types
const (
	TypeVideoSession = "video_session"
	TypeAnnouncement = "announcement"
	TypeInquiry      = "inquiry"
	TypeSystem       = "system"
)

var Types = []string{TypeVideoSession, TypeAnnouncement, TypeInquiry, TypeSystem}

// Notification is owned by exactly one recipient.
type Notification struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Type           string    `json:"notification_type"`
	SourceOfficeID *string   `json:"source_office_id,omitempty"`
	AnnouncementID *string   `json:"announcement_id,omitempty"`
	Link           string    `json:"link,omitempty"`
	CorrelationKey string    `json:"-"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"` // UTC
}

// Payload is what a caller asks to deliver. Only the durable fields are persisted;
// Extra travels with the real-time push alone.
type Payload struct {
	Title          string
	Message        string
	Type           string
	SourceOfficeID string
	AnnouncementID string
	Link           string
	CorrelationKey string
	CreatedAt      time.Time
	Extra          map[string]interface{}
}

func (p Payload) toNotification(recipient string, now time.Time) Notification {
	n := Notification{
		UserID:         recipient,
		Title:          p.Title,
		Message:        p.Message,
		Type:           p.Type,
		Link:           p.Link,
		CorrelationKey: p.CorrelationKey,
		CreatedAt:      p.CreatedAt,
	}
	if n.Type == "" {
		n.Type = TypeSystem
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	if p.SourceOfficeID != "" {
		off := p.SourceOfficeID
		n.SourceOfficeID = &off
	}
	if p.AnnouncementID != "" {
		ann := p.AnnouncementID
		n.AnnouncementID = &ann
	}
	return n
}

// Event is the real-time message pushed to a recipient's open connections.
type Event struct {
	Kind         string                 `json:"kind"`
	Notification Notification           `json:"notification"`
	Extra        map[string]interface{} `json:"extra,omitempty"`
}

const EventNotification = "notification"

// DedupKey identifies equivalent notifications.
type DedupKey struct {
	UserID         string
	Type           string
	CorrelationKey string
}

type QueryFilter struct {
	IsRead *bool
	Type   string
}
