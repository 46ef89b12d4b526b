package concern

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Domains an office may subscribe a concern type to.
const (
	DomainInquiries  = "inquiries"
	DomainCounseling = "counseling"
)

// ConcernType is a tag of the shared catalog. Names are unique, case-insensitively.
type ConcernType struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	AllowsOther bool      `json:"allows_other"`
	CreatedAt   time.Time `json:"created_at"` // UTC
}

// OfficeConcernType subscribes an office to a concern type.
// With both flags off it is equivalent to absence.
type OfficeConcernType struct {
	ID               string      `json:"id"`
	OfficeID         string      `json:"office_id"`
	ConcernTypeID    string      `json:"concern_type_id"`
	ForInquiries     bool        `json:"for_inquiries"`
	ForCounseling    bool        `json:"for_counseling"`
	AutoReplyEnabled bool        `json:"auto_reply_enabled"`
	AutoReplyMessage string      `json:"auto_reply_message,omitempty"`
	ConcernType      ConcernType `json:"concern_type"`
}

func (oct OfficeConcernType) ActiveFor(domain string) bool {
	switch domain {
	case DomainInquiries:
		return oct.ForInquiries
	case DomainCounseling:
		return oct.ForCounseling
	}
	return oct.ForInquiries || oct.ForCounseling
}

func (oct OfficeConcernType) Active() bool {
	return oct.ForInquiries || oct.ForCounseling
}

// Detail is a concern type as seen by one office, with its usage.
type Detail struct {
	OfficeConcernType
	CounselingUsage int `json:"counseling_usage"`
	InquiryUsage    int `json:"inquiry_usage"`
}

type QueryFilter struct {
	OfficeID      string
	ForInquiries  *bool
	ForCounseling *bool
}

// Action payloads

type NewConcern struct {
	Name          string `json:"name" form:"name" validate:"required,notblank,max=100"`
	Description   string `json:"description" form:"description" validate:"max=500"`
	AllowsOther   bool   `json:"allows_other" form:"allows_other"`
	ForInquiries  bool   `json:"for_inquiries" form:"for_inquiries"`
	ForCounseling bool   `json:"for_counseling" form:"for_counseling"`
}

func (nc NewConcern) Validate(validate *validator.Validate) error {
	return validate.Struct(nc)
}

type EditConcern struct {
	Name          string `json:"name" form:"name" validate:"required,notblank,max=100"`
	Description   string `json:"description" form:"description" validate:"max=500"`
	AllowsOther   bool   `json:"allows_other" form:"allows_other"`
	ForInquiries  *bool  `json:"for_inquiries" form:"for_inquiries"`
	ForCounseling *bool  `json:"for_counseling" form:"for_counseling"`
}

func (ec EditConcern) Validate(validate *validator.Validate) error {
	return validate.Struct(ec)
}

type AutoReply struct {
	Enabled bool   `json:"enabled" form:"enabled"`
	Message string `json:"message" form:"message" validate:"max=2000"`
}
