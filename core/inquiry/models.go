package inquiry

import (
	"context"
	"time"

	"github.com/trezcool/piyuguide/core"
)

// Statuses
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusResolved   = "resolved"
	StatusClosed     = "closed"
)

var (
	Statuses    = []string{StatusPending, StatusInProgress, StatusResolved, StatusClosed}
	ErrNotFound = core.NewNotFoundError("inquiry")
)

// Inquiry is the read model of a student-initiated thread addressed to an office.
type Inquiry struct {
	ID              string     `json:"id"`
	OfficeID        string     `json:"office_id"`
	StudentID       string     `json:"student_id"`
	ConcernTypeID   *string    `json:"concern_type_id,omitempty"`
	Subject         string     `json:"subject"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`                  // UTC
	FirstResponseAt *time.Time `json:"first_response_at,omitempty"` // UTC
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`       // UTC
}

// ResolutionTime is how long the inquiry took to resolve, false while unresolved.
func (i Inquiry) ResolutionTime() (time.Duration, bool) {
	if i.ResolvedAt == nil || i.ResolvedAt.Before(i.CreatedAt) {
		return 0, false
	}
	return i.ResolvedAt.Sub(i.CreatedAt), true
}

type QueryFilter struct {
	OfficeID      string
	Status        string
	ConcernTypeID string
	From          time.Time
	To            time.Time
}

type Repository interface {
	CreateInquiry(ctx context.Context, inq Inquiry) (Inquiry, error)
	// QueryInquiries returns matching inquiries, newest first.
	QueryInquiries(ctx context.Context, filter QueryFilter) ([]Inquiry, error)
	CountInquiriesByStatus(ctx context.Context, officeID string) (map[string]int, error)
	CountInquiriesByConcern(ctx context.Context, officeID, typeID string) (int, error)
}
