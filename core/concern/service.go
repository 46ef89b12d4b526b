package concern

import (
	"context"
	"errors"
	"sort"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/user"
)

var (
	// errors
	ErrNotFound            = core.NewNotFoundError("concern type")
	ErrAssociationNotFound = core.NewNotFoundError("office concern type")
	ErrNotAssociated       = core.NewAuthorizationError("only offices using this concern type may change it")

	errAlreadyAssociated = errors.New("this concern type is already configured for your office")
	errNameTaken         = errors.New("another concern type already has this name")
	errNoDomain          = errors.New("select at least one of inquiries or counseling")
	errMessageRequired   = errors.New("a message is required to enable the auto-reply")
	errUnknownDomain     = errors.New("unknown domain")
)

type (
	Repository interface {
		GetTypeByID(ctx context.Context, id string) (ConcernType, error)
		// GetTypeByName matches `name` case-insensitively.
		GetTypeByName(ctx context.Context, name string) (ConcernType, error)
		CreateType(ctx context.Context, ct ConcernType) (ConcernType, error)
		UpdateType(ctx context.Context, ct ConcernType) (ConcernType, error)
		DeleteType(ctx context.Context, id string) error

		GetAssociation(ctx context.Context, officeID, typeID string) (OfficeConcernType, error)
		CreateAssociation(ctx context.Context, oct OfficeConcernType) (OfficeConcernType, error)
		UpdateAssociation(ctx context.Context, oct OfficeConcernType) (OfficeConcernType, error)
		DeleteAssociation(ctx context.Context, id string) error
		QueryAssociations(ctx context.Context, filter QueryFilter) ([]OfficeConcernType, error)
		CountAssociations(ctx context.Context, typeID string) (int, error)
	}

	// SessionUsage and InquiryUsage count the records referencing a concern type.
	// An empty officeID counts across all offices.
	SessionUsage interface {
		CountSessionsByConcern(ctx context.Context, officeID, typeID string) (int, error)
	}
	InquiryUsage interface {
		CountInquiriesByConcern(ctx context.Context, officeID, typeID string) (int, error)
	}

	Service struct {
		db        core.Transactor
		repo      Repository
		sessions  SessionUsage
		inquiries InquiryUsage
		audit     *audit.Recorder
		clock     core.Clock
	}
)

func NewService(
	db core.Transactor,
	repo Repository,
	sessions SessionUsage,
	inquiries InquiryUsage,
	recorder *audit.Recorder,
	clock core.Clock,
) *Service {
	return &Service{
		db:        db,
		repo:      repo,
		sessions:  sessions,
		inquiries: inquiries,
		audit:     recorder,
		clock:     clock,
	}
}

func checkDomain(domain string) error {
	if domain != DomainInquiries && domain != DomainCounseling {
		return core.NewValidationError(errUnknownDomain)
	}
	return nil
}

// List returns the office's concern types active for `domain`, by name.
func (svc *Service) List(ctx context.Context, p user.Principal, domain string) ([]OfficeConcernType, error) {
	if !p.IsOfficeAdmin() {
		return nil, user.ErrNotOfficeAdmin
	}
	if err := checkDomain(domain); err != nil {
		return nil, err
	}
	filter := QueryFilter{OfficeID: p.OfficeID}
	if domain == DomainCounseling {
		filter.ForCounseling = core.BoolPtr(true)
	} else {
		filter.ForInquiries = core.BoolPtr(true)
	}
	octs, err := svc.repo.QueryAssociations(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying office concern types")
	}
	sort.SliceStable(octs, func(i, j int) bool {
		return strings.ToLower(octs[i].ConcernType.Name) < strings.ToLower(octs[j].ConcernType.Name)
	})
	return octs, nil
}

// Get returns the office's view of a concern type, archived or not.
func (svc *Service) Get(ctx context.Context, p user.Principal, typeID string) (Detail, error) {
	if !p.IsOfficeAdmin() {
		return Detail{}, user.ErrNotOfficeAdmin
	}
	oct, err := svc.repo.GetAssociation(ctx, p.OfficeID, typeID)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{OfficeConcernType: oct}
	if d.CounselingUsage, err = svc.sessions.CountSessionsByConcern(ctx, p.OfficeID, typeID); err != nil {
		return Detail{}, pkgerrors.Wrap(err, "counting sessions")
	}
	if d.InquiryUsage, err = svc.inquiries.CountInquiriesByConcern(ctx, p.OfficeID, typeID); err != nil {
		return Detail{}, pkgerrors.Wrap(err, "counting inquiries")
	}
	return d, nil
}

// Add subscribes the office to a concern type, creating the type unless one with the same
// name (ignoring case) exists. An archived subscription is re-activated.
func (svc *Service) Add(ctx context.Context, p user.Principal, nc NewConcern) (OfficeConcernType, error) {
	if !p.IsOfficeAdmin() {
		return OfficeConcernType{}, user.ErrNotOfficeAdmin
	}
	if !nc.ForInquiries && !nc.ForCounseling {
		return OfficeConcernType{}, core.NewValidationError(errNoDomain)
	}
	name := core.CleanName(nc.Name)

	var oct OfficeConcernType
	err := svc.db.InTx(ctx, func(ctx context.Context) error {
		ct, err := svc.repo.GetTypeByName(ctx, name)
		if core.IsNotFound(err) {
			ct, err = svc.repo.CreateType(ctx, ConcernType{
				Name:        name,
				Description: core.CleanString(nc.Description),
				AllowsOther: nc.AllowsOther,
				CreatedAt:   svc.clock.Now(),
			})
		}
		if err != nil {
			return pkgerrors.Wrap(err, "getting or creating concern type")
		}

		existing, err := svc.repo.GetAssociation(ctx, p.OfficeID, ct.ID)
		switch {
		case err == nil:
			if (!nc.ForInquiries || existing.ForInquiries) && (!nc.ForCounseling || existing.ForCounseling) {
				return core.NewValidationError(errAlreadyAssociated, core.FieldError{Field: "name", Error: errAlreadyAssociated.Error()})
			}
			existing.ForInquiries = existing.ForInquiries || nc.ForInquiries
			existing.ForCounseling = existing.ForCounseling || nc.ForCounseling
			oct, err = svc.repo.UpdateAssociation(ctx, existing)
		case core.IsNotFound(err):
			oct, err = svc.repo.CreateAssociation(ctx, OfficeConcernType{
				OfficeID:      p.OfficeID,
				ConcernTypeID: ct.ID,
				ForInquiries:  nc.ForInquiries,
				ForCounseling: nc.ForCounseling,
			})
		}
		if err != nil {
			return pkgerrors.Wrap(err, "saving office concern type")
		}
		oct.ConcernType = ct

		svc.audit.Record(ctx, audit.New(p, audit.ActionConcernAdded, audit.TargetConcernType, audit.Target(ct.ID), audit.Details(ct.Name)))
		return nil
	})
	return oct, err
}

// Edit changes a concern type used by the principal's office.
func (svc *Service) Edit(ctx context.Context, p user.Principal, typeID string, ec EditConcern) (OfficeConcernType, error) {
	if !p.IsOfficeAdmin() {
		return OfficeConcernType{}, user.ErrNotOfficeAdmin
	}
	name := core.CleanName(ec.Name)

	var oct OfficeConcernType
	err := svc.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		oct, err = svc.repo.GetAssociation(ctx, p.OfficeID, typeID)
		if core.IsNotFound(err) {
			if _, tErr := svc.repo.GetTypeByID(ctx, typeID); tErr != nil {
				return tErr
			}
			return ErrNotAssociated
		} else if err != nil {
			return pkgerrors.Wrap(err, "getting office concern type")
		}

		other, err := svc.repo.GetTypeByName(ctx, name)
		if err == nil && other.ID != typeID {
			return core.NewValidationError(errNameTaken, core.FieldError{Field: "name", Error: errNameTaken.Error()})
		} else if err != nil && !core.IsNotFound(err) {
			return pkgerrors.Wrap(err, "checking name uniqueness")
		}

		ct := oct.ConcernType
		ct.Name = name
		ct.Description = core.CleanString(ec.Description)
		ct.AllowsOther = ec.AllowsOther
		if ct, err = svc.repo.UpdateType(ctx, ct); err != nil {
			return pkgerrors.Wrap(err, "updating concern type")
		}

		if ec.ForInquiries != nil || ec.ForCounseling != nil {
			if ec.ForInquiries != nil {
				oct.ForInquiries = *ec.ForInquiries
			}
			if ec.ForCounseling != nil {
				oct.ForCounseling = *ec.ForCounseling
			}
			if !oct.Active() {
				return core.NewValidationError(errNoDomain)
			}
			if oct, err = svc.repo.UpdateAssociation(ctx, oct); err != nil {
				return pkgerrors.Wrap(err, "updating office concern type")
			}
		}
		oct.ConcernType = ct

		svc.audit.Record(ctx, audit.New(p, audit.ActionConcernEdited, audit.TargetConcernType, audit.Target(ct.ID), audit.Details(ct.Name)))
		return nil
	})
	return oct, err
}

// RemoveResult tells what Remove did.
type RemoveResult struct {
	Archived    bool `json:"archived"`
	Deleted     bool `json:"deleted"`
	TypeDeleted bool `json:"type_deleted"`
}

// Remove drops the concern type from `domain` for the office. The subscription row is
// deleted only once it is inactive everywhere and nothing references it; otherwise the
// flag is switched off and historical references stay valid.
func (svc *Service) Remove(ctx context.Context, p user.Principal, typeID, domain string) (RemoveResult, error) {
	if !p.IsOfficeAdmin() {
		return RemoveResult{}, user.ErrNotOfficeAdmin
	}
	if err := checkDomain(domain); err != nil {
		return RemoveResult{}, err
	}

	var res RemoveResult
	err := svc.db.InTx(ctx, func(ctx context.Context) error {
		oct, err := svc.repo.GetAssociation(ctx, p.OfficeID, typeID)
		if err != nil {
			return err
		}
		if !oct.ActiveFor(domain) {
			return ErrAssociationNotFound
		}
		if domain == DomainCounseling {
			oct.ForCounseling = false
		} else {
			oct.ForInquiries = false
		}

		used, err := svc.inUse(ctx, p.OfficeID, typeID)
		if err != nil {
			return err
		}

		if oct.Active() || used {
			if _, err = svc.repo.UpdateAssociation(ctx, oct); err != nil {
				return pkgerrors.Wrap(err, "archiving office concern type")
			}
			res.Archived = true
			svc.audit.Record(ctx, audit.New(p, audit.ActionConcernArchived, audit.TargetConcernType, audit.Target(typeID), audit.Details(domain)))
			return nil
		}

		if err = svc.repo.DeleteAssociation(ctx, oct.ID); err != nil {
			return pkgerrors.Wrap(err, "deleting office concern type")
		}
		res.Deleted = true

		// drop the type itself once no office uses it and nothing references it
		n, err := svc.repo.CountAssociations(ctx, typeID)
		if err != nil {
			return pkgerrors.Wrap(err, "counting associations")
		}
		if n == 0 {
			if used, err = svc.inUse(ctx, "", typeID); err != nil {
				return err
			}
			if !used {
				if err = svc.repo.DeleteType(ctx, typeID); err != nil {
					return pkgerrors.Wrap(err, "deleting concern type")
				}
				res.TypeDeleted = true
			}
		}
		svc.audit.Record(ctx, audit.New(p, audit.ActionConcernRemoved, audit.TargetConcernType, audit.Target(typeID), audit.Details(domain)))
		return nil
	})
	return res, err
}

func (svc *Service) inUse(ctx context.Context, officeID, typeID string) (bool, error) {
	n, err := svc.sessions.CountSessionsByConcern(ctx, officeID, typeID)
	if err != nil {
		return false, pkgerrors.Wrap(err, "counting sessions")
	}
	if n > 0 {
		return true, nil
	}
	if n, err = svc.inquiries.CountInquiriesByConcern(ctx, officeID, typeID); err != nil {
		return false, pkgerrors.Wrap(err, "counting inquiries")
	}
	return n > 0, nil
}

// SetAutoReply turns the office's auto-reply for a concern type on or off.
func (svc *Service) SetAutoReply(ctx context.Context, p user.Principal, typeID string, ar AutoReply) (OfficeConcernType, error) {
	if !p.IsOfficeAdmin() {
		return OfficeConcernType{}, user.ErrNotOfficeAdmin
	}
	msg := core.CleanString(ar.Message)
	if ar.Enabled && msg == "" {
		return OfficeConcernType{}, core.NewValidationError(errMessageRequired, core.FieldError{Field: "message", Error: errMessageRequired.Error()})
	}

	var oct OfficeConcernType
	err := svc.db.InTx(ctx, func(ctx context.Context) error {
		var err error
		if oct, err = svc.repo.GetAssociation(ctx, p.OfficeID, typeID); err != nil {
			return err
		}
		ct := oct.ConcernType
		oct.AutoReplyEnabled = ar.Enabled
		if msg != "" {
			oct.AutoReplyMessage = msg
		}
		if oct, err = svc.repo.UpdateAssociation(ctx, oct); err != nil {
			return pkgerrors.Wrap(err, "updating auto-reply")
		}
		oct.ConcernType = ct

		svc.audit.Record(ctx, audit.New(p, audit.ActionConcernAutoReply, audit.TargetConcernType, audit.Target(typeID)))
		return nil
	})
	return oct, err
}
