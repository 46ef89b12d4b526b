package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/concern"
)

var errTypeExists = errors.New("a concern type with this name already exists")

type concernTypeRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Description string    `db:"description"`
	AllowsOther bool      `db:"allows_other"`
	CreatedAt   time.Time `db:"created_at"`
}

func (r concernTypeRow) concernType() concern.ConcernType {
	ct := concern.ConcernType(r)
	ct.CreatedAt = ct.CreatedAt.UTC()
	return ct
}

// associationRow is an office_concern_type row joined with its concern type.
type associationRow struct {
	ID               string         `db:"id"`
	OfficeID         string         `db:"office_id"`
	ConcernTypeID    string         `db:"concern_type_id"`
	ForInquiries     bool           `db:"for_inquiries"`
	ForCounseling    bool           `db:"for_counseling"`
	AutoReplyEnabled bool           `db:"auto_reply_enabled"`
	AutoReplyMessage string         `db:"auto_reply_message"`
	ConcernType      concernTypeRow `db:"ct"`
}

func (r associationRow) association() concern.OfficeConcernType {
	return concern.OfficeConcernType{
		ID:               r.ID,
		OfficeID:         r.OfficeID,
		ConcernTypeID:    r.ConcernTypeID,
		ForInquiries:     r.ForInquiries,
		ForCounseling:    r.ForCounseling,
		AutoReplyEnabled: r.AutoReplyEnabled,
		AutoReplyMessage: r.AutoReplyMessage,
		ConcernType:      r.ConcernType.concernType(),
	}
}

var (
	concernTypeColumns = []string{"id", "name", "description", "allows_other", "created_at"}

	associationSelect = psql.Select(
		"oct.id", "oct.office_id", "oct.concern_type_id", "oct.for_inquiries", "oct.for_counseling",
		"oct.auto_reply_enabled", "oct.auto_reply_message",
		`ct.id AS "ct.id"`, `ct.name AS "ct.name"`, `ct.description AS "ct.description"`,
		`ct.allows_other AS "ct.allows_other"`, `ct.created_at AS "ct.created_at"`,
	).From("office_concern_type oct").Join("concern_type ct ON ct.id = oct.concern_type_id")
)

type concernRepository struct {
	db *DB
}

var _ concern.Repository = (*concernRepository)(nil) // interface compliance check

func NewConcernRepository(db *DB) *concernRepository {
	return &concernRepository{db: db}
}

func (repo *concernRepository) getType(ctx context.Context, where sq.Sqlizer) (concern.ConcernType, error) {
	var row concernTypeRow
	if err := repo.db.get(ctx, &row, psql.Select(concernTypeColumns...).From("concern_type").Where(where)); err != nil {
		return concern.ConcernType{}, notFound(err, concern.ErrNotFound)
	}
	return row.concernType(), nil
}

func (repo *concernRepository) GetTypeByID(ctx context.Context, id string) (concern.ConcernType, error) {
	if !isUUID(id) {
		return concern.ConcernType{}, concern.ErrNotFound
	}
	return repo.getType(ctx, sq.Eq{"id": id})
}

func (repo *concernRepository) GetTypeByName(ctx context.Context, name string) (concern.ConcernType, error) {
	return repo.getType(ctx, sq.Expr("lower(name) = lower(?)", name))
}

func (repo *concernRepository) CreateType(ctx context.Context, ct concern.ConcernType) (concern.ConcernType, error) {
	ct.ID = newID()
	_, err := repo.db.exec(ctx, psql.Insert("concern_type").
		Columns(concernTypeColumns...).
		Values(ct.ID, ct.Name, ct.Description, ct.AllowsOther, ct.CreatedAt))
	if isUniqueViolation(err) {
		return concern.ConcernType{}, core.NewValidationError(errTypeExists, core.FieldError{Field: "name", Error: errTypeExists.Error()})
	}
	if err != nil {
		return concern.ConcernType{}, errors.Wrap(err, "inserting concern type")
	}
	return ct, nil
}

func (repo *concernRepository) UpdateType(ctx context.Context, ct concern.ConcernType) (concern.ConcernType, error) {
	if !isUUID(ct.ID) {
		return concern.ConcernType{}, concern.ErrNotFound
	}
	n, err := repo.db.exec(ctx, psql.Update("concern_type").
		Set("name", ct.Name).
		Set("description", ct.Description).
		Set("allows_other", ct.AllowsOther).
		Where(sq.Eq{"id": ct.ID}))
	if isUniqueViolation(err) {
		return concern.ConcernType{}, core.NewValidationError(errTypeExists, core.FieldError{Field: "name", Error: errTypeExists.Error()})
	}
	if err != nil {
		return concern.ConcernType{}, errors.Wrap(err, "updating concern type")
	}
	if n == 0 {
		return concern.ConcernType{}, concern.ErrNotFound
	}
	return ct, nil
}

func (repo *concernRepository) DeleteType(ctx context.Context, id string) error {
	if !isUUID(id) {
		return concern.ErrNotFound
	}
	n, err := repo.db.exec(ctx, psql.Delete("concern_type").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting concern type")
	}
	if n == 0 {
		return concern.ErrNotFound
	}
	return nil
}

func (repo *concernRepository) getAssociation(ctx context.Context, where sq.Sqlizer) (concern.OfficeConcernType, error) {
	var row associationRow
	if err := repo.db.get(ctx, &row, associationSelect.Where(where)); err != nil {
		return concern.OfficeConcernType{}, notFound(err, concern.ErrAssociationNotFound)
	}
	return row.association(), nil
}

func (repo *concernRepository) GetAssociation(ctx context.Context, officeID, typeID string) (concern.OfficeConcernType, error) {
	if !isUUID(officeID) || !isUUID(typeID) {
		return concern.OfficeConcernType{}, concern.ErrAssociationNotFound
	}
	return repo.getAssociation(ctx, sq.Eq{"oct.office_id": officeID, "oct.concern_type_id": typeID})
}

func (repo *concernRepository) CreateAssociation(ctx context.Context, oct concern.OfficeConcernType) (concern.OfficeConcernType, error) {
	oct.ID = newID()
	if _, err := repo.db.exec(ctx, psql.Insert("office_concern_type").
		Columns("id", "office_id", "concern_type_id", "for_inquiries", "for_counseling", "auto_reply_enabled", "auto_reply_message").
		Values(oct.ID, oct.OfficeID, oct.ConcernTypeID, oct.ForInquiries, oct.ForCounseling, oct.AutoReplyEnabled, oct.AutoReplyMessage)); err != nil {
		return concern.OfficeConcernType{}, errors.Wrap(err, "inserting office concern type")
	}
	return repo.getAssociation(ctx, sq.Eq{"oct.id": oct.ID})
}

func (repo *concernRepository) UpdateAssociation(ctx context.Context, oct concern.OfficeConcernType) (concern.OfficeConcernType, error) {
	if !isUUID(oct.ID) {
		return concern.OfficeConcernType{}, concern.ErrAssociationNotFound
	}
	n, err := repo.db.exec(ctx, psql.Update("office_concern_type").
		Set("for_inquiries", oct.ForInquiries).
		Set("for_counseling", oct.ForCounseling).
		Set("auto_reply_enabled", oct.AutoReplyEnabled).
		Set("auto_reply_message", oct.AutoReplyMessage).
		Where(sq.Eq{"id": oct.ID}))
	if err != nil {
		return concern.OfficeConcernType{}, errors.Wrap(err, "updating office concern type")
	}
	if n == 0 {
		return concern.OfficeConcernType{}, concern.ErrAssociationNotFound
	}
	return repo.getAssociation(ctx, sq.Eq{"oct.id": oct.ID})
}

func (repo *concernRepository) DeleteAssociation(ctx context.Context, id string) error {
	if !isUUID(id) {
		return concern.ErrAssociationNotFound
	}
	n, err := repo.db.exec(ctx, psql.Delete("office_concern_type").Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "deleting office concern type")
	}
	if n == 0 {
		return concern.ErrAssociationNotFound
	}
	return nil
}

func (repo *concernRepository) QueryAssociations(ctx context.Context, filter concern.QueryFilter) ([]concern.OfficeConcernType, error) {
	q := associationSelect.OrderBy("lower(ct.name)", "ct.id")
	if filter.OfficeID != "" {
		if !isUUID(filter.OfficeID) {
			return []concern.OfficeConcernType{}, nil
		}
		q = q.Where(sq.Eq{"oct.office_id": filter.OfficeID})
	}
	if filter.ForInquiries != nil {
		q = q.Where(sq.Eq{"oct.for_inquiries": *filter.ForInquiries})
	}
	if filter.ForCounseling != nil {
		q = q.Where(sq.Eq{"oct.for_counseling": *filter.ForCounseling})
	}

	var rows []associationRow
	if err := repo.db.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying office concern types")
	}
	octs := make([]concern.OfficeConcernType, 0, len(rows))
	for _, r := range rows {
		octs = append(octs, r.association())
	}
	return octs, nil
}

func (repo *concernRepository) CountAssociations(ctx context.Context, typeID string) (int, error) {
	if !isUUID(typeID) {
		return 0, nil
	}
	n, err := repo.db.count(ctx, psql.Select("count(*)").From("office_concern_type").Where(sq.Eq{"concern_type_id": typeID}))
	return n, errors.Wrap(err, "counting office concern types")
}
