package user

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("user")
	ErrOfficeNotFound = core.NewNotFoundError("office")
	ErrCampusNotFound = core.NewNotFoundError("campus")
	ErrNotOfficeAdmin = core.NewAuthorizationError("you are not an admin of this office")
	ErrVideoDisabled  = core.NewAuthorizationError("video counseling is not enabled for this office")

	errEmailExists = errors.New("a user with this email already exists")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// QueryUsers returns users with any of `roles` (all when empty) in `campusID` (all when empty).
		QueryUsers(ctx context.Context, campusID string, roles ...string) ([]User, error)
		SetPresence(ctx context.Context, id string, online bool, at time.Time) error
		// MarkStaleOffline flags offline every online user inactive since `before`.
		MarkStaleOffline(ctx context.Context, before time.Time) (int, error)

		CreateCampus(ctx context.Context, cmp Campus) (Campus, error)
		GetCampus(ctx context.Context, id string) (Campus, error)
		CreateOffice(ctx context.Context, off Office) (Office, error)
		GetOffice(ctx context.Context, id string) (Office, error)

		AddOfficeAdmin(ctx context.Context, userID, officeID string) (OfficeAdmin, error)
		GetOfficeAdminByUser(ctx context.Context, userID string) (OfficeAdmin, error)
		QueryOfficeAdmins(ctx context.Context, officeID string) ([]User, error)
		AddStudent(ctx context.Context, st Student) (Student, error)
	}

	Service struct {
		repo  Repository
		clock core.Clock
		conf  *core.Config
	}
)

func NewService(repo Repository, conf *core.Config, clock core.Clock) *Service {
	return &Service{repo: repo, conf: conf, clock: clock}
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	email := core.CleanString(nu.Email, true /* lower */)
	if _, err := svc.repo.GetUserByEmail(ctx, email); err == nil {
		return User{}, core.NewValidationError(errEmailExists, core.FieldError{Field: "email", Error: errEmailExists.Error()})
	} else if !core.IsNotFound(err) {
		return User{}, pkgerrors.Wrap(err, "checking email uniqueness")
	}
	return svc.repo.CreateUser(ctx, User{
		Name:      core.CleanString(nu.Name),
		Email:     email,
		Role:      nu.Role,
		CampusID:  nu.CampusID,
		CreatedAt: svc.clock.Now(),
	})
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) GetOffice(ctx context.Context, id string) (Office, error) {
	return svc.repo.GetOffice(ctx, id)
}

func (svc *Service) GetCampus(ctx context.Context, id string) (Campus, error) {
	return svc.repo.GetCampus(ctx, id)
}

// Principal builds the request principal of `userID`, resolving the office they manage.
func (svc *Service) Principal(ctx context.Context, userID string) (Principal, error) {
	usr, err := svc.repo.GetUserByID(ctx, userID)
	if err != nil {
		return Principal{}, err
	}
	p := Principal{
		UserID:   usr.ID,
		Name:     usr.Name,
		Email:    usr.Email,
		Role:     usr.Role,
		CampusID: usr.CampusID,
	}
	if usr.Role == RoleOfficeAdmin {
		oa, err := svc.repo.GetOfficeAdminByUser(ctx, usr.ID)
		if err != nil && !core.IsNotFound(err) {
			return Principal{}, pkgerrors.Wrap(err, "getting office admin")
		}
		p.OfficeID = oa.OfficeID
	}
	return p, nil
}

// RequireOfficeAdmin fails unless `p` manages `officeID`.
func (svc *Service) RequireOfficeAdmin(p Principal, officeID string) error {
	if !p.IsOfficeAdminOf(officeID) {
		return ErrNotOfficeAdmin
	}
	return nil
}

// RequireVideoOffice fails unless the office exists and supports video counseling.
func (svc *Service) RequireVideoOffice(ctx context.Context, officeID string) error {
	off, err := svc.repo.GetOffice(ctx, officeID)
	if err != nil {
		return err
	}
	if !off.SupportsVideo {
		return ErrVideoDisabled
	}
	return nil
}

func (svc *Service) AddOfficeAdmin(ctx context.Context, userID, officeID string) (OfficeAdmin, error) {
	return svc.repo.AddOfficeAdmin(ctx, userID, officeID)
}

// Heartbeat marks the user active now.
func (svc *Service) Heartbeat(ctx context.Context, userID string) error {
	return svc.repo.SetPresence(ctx, userID, true, svc.clock.Now())
}

// SetOffline is called on logout.
func (svc *Service) SetOffline(ctx context.Context, userID string) error {
	return svc.repo.SetPresence(ctx, userID, false, svc.clock.Now())
}

// SweepPresence flags offline the users whose last activity is older than the stale window.
func (svc *Service) SweepPresence(ctx context.Context) (int, error) {
	return svc.repo.MarkStaleOffline(ctx, svc.clock.Now().Add(-svc.conf.Presence.StaleAfter))
}

// Team lists the admins of the principal's office with their presence.
func (svc *Service) Team(ctx context.Context, p Principal) ([]TeamMember, error) {
	admins, err := svc.repo.QueryOfficeAdmins(ctx, p.OfficeID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying office admins")
	}
	now := svc.clock.Now()
	team := make([]TeamMember, 0, len(admins))
	for _, a := range admins {
		team = append(team, TeamMember{User: a, Online: a.OnlineAt(now, svc.conf.Presence.StaleAfter)})
	}
	return team, nil
}

// OfficeAdmins, CampusAdmins and Students expand notification audiences.

func (svc *Service) OfficeAdmins(ctx context.Context, officeID string) ([]User, error) {
	return svc.repo.QueryOfficeAdmins(ctx, officeID)
}

// CampusAdmins returns every admin on the campus: the office admins of all its offices
// and its super admins.
func (svc *Service) CampusAdmins(ctx context.Context, campusID string) ([]User, error) {
	return svc.repo.QueryUsers(ctx, campusID, RoleOfficeAdmin, RoleSuperAdmin)
}

func (svc *Service) Students(ctx context.Context, campusID string) ([]User, error) {
	return svc.repo.QueryUsers(ctx, campusID, RoleStudent)
}
