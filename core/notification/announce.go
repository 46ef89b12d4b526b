package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/user"
)

// Announcement audiences
const (
	AudienceStudents     = "students"
	AudienceOfficeAdmins = "office_admins"
	AudienceCampusAdmins = "campus_admins"
)

var errNoCampus = errors.New("your account is not attached to a campus")

// Announcement is the fan-out request for a published announcement.
type Announcement struct {
	AnnouncementID string `json:"announcement_id" validate:"required"`
	Title          string `json:"title" validate:"required,notblank,max=200"`
	Message        string `json:"message" validate:"max=2000"`
	Audience       string `json:"audience" validate:"required,oneof=students office_admins campus_admins"`
	ImageCount     int    `json:"image_count"`
}

func (a Announcement) Validate(validate *validator.Validate) error {
	return validate.Struct(a)
}

// Announce fans an announcement out to its audience on behalf of an office admin.
func (g *Gateway) Announce(ctx context.Context, p user.Principal, a Announcement) (int, error) {
	if !p.IsOfficeAdmin() {
		return 0, user.ErrNotOfficeAdmin
	}
	payload := Payload{
		Title:          a.Title,
		Message:        a.Message,
		Type:           TypeAnnouncement,
		SourceOfficeID: p.OfficeID,
		AnnouncementID: a.AnnouncementID,
		Link:           "/announcements/" + a.AnnouncementID,
		Extra: map[string]interface{}{
			"author_name": p.Name,
			"author_role": p.Role,
			"image_count": a.ImageCount,
		},
	}

	var (
		n   int
		err error
	)
	switch a.Audience {
	case AudienceOfficeAdmins:
		n, err = g.BroadcastOffice(ctx, p.OfficeID, p.UserID, payload)
	case AudienceCampusAdmins, AudienceStudents:
		if p.CampusID == "" {
			return 0, core.NewValidationError(errNoCampus)
		}
		if a.Audience == AudienceStudents {
			n, err = g.BroadcastStudents(ctx, p.CampusID, p.UserID, payload)
		} else {
			n, err = g.BroadcastCampus(ctx, p.CampusID, p.UserID, payload)
		}
	default:
		return 0, core.NewValidationError(nil, core.FieldError{Field: "audience", Error: "unknown audience"})
	}
	if err != nil {
		return 0, err
	}

	g.audit.Record(ctx, audit.New(
		p, audit.ActionAnnouncementNotify, audit.TargetAnnouncement,
		audit.Target(a.AnnouncementID), audit.Details(fmt.Sprintf("%s: %d recipients", a.Audience, n)),
	))
	return n, nil
}
