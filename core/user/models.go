package user

import (
	"time"
)

// Roles
const (
	RoleStudent     = "student"
	RoleOfficeAdmin = "office_admin"
	RoleSuperAdmin  = "super_admin"

	// RoleSystem is the role of the scheduler and other unattended actors.
	RoleSystem = "system"
)

var AllRoles = []string{RoleStudent, RoleOfficeAdmin, RoleSuperAdmin}

type Campus struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Office struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	CampusID      string `json:"campus_id"`
	SupportsVideo bool   `json:"supports_video"`
}

type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	CampusID     string     `json:"campus_id,omitempty"`
	ProfilePic   string     `json:"profile_pic,omitempty"`
	IsOnline     bool       `json:"is_online"`
	LastActivity *time.Time `json:"last_activity,omitempty"` // UTC
	CreatedAt    time.Time  `json:"created_at"`              // UTC
}

// OnlineAt reports whether the user counts as online at `now`:
// flagged online and active within `staleAfter`.
func (u User) OnlineAt(now time.Time, staleAfter time.Duration) bool {
	if !u.IsOnline || u.LastActivity == nil {
		return false
	}
	return !u.LastActivity.Before(now.Add(-staleAfter))
}

// OfficeAdmin links a User to the Office they manage.
type OfficeAdmin struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	OfficeID string `json:"office_id"`
}

type Student struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	StudentNumber string `json:"student_number"`
	Program       string `json:"program,omitempty"`
	YearLevel     int    `json:"year_level,omitempty"`
}

// Principal is the authenticated actor of a request.
type Principal struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	OfficeID string `json:"office_id,omitempty"`
	CampusID string `json:"campus_id,omitempty"`
}

// System is the principal used for scheduler-driven changes.
var System = Principal{Name: "System", Role: RoleSystem}

func (p Principal) IsOfficeAdmin() bool {
	return p.Role == RoleOfficeAdmin && p.OfficeID != ""
}

func (p Principal) IsOfficeAdminOf(officeID string) bool {
	return p.IsOfficeAdmin() && p.OfficeID == officeID
}

func (p Principal) IsSystem() bool {
	return p.Role == RoleSystem
}

// TeamMember is an office admin with their presence resolved at a given instant.
type TeamMember struct {
	User
	Online bool `json:"online"`
}
