package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/piyuguide/core/inquiry"
)

type inquiryRow struct {
	ID              string      `db:"id"`
	OfficeID        string      `db:"office_id"`
	StudentID       string      `db:"student_id"`
	ConcernTypeID   null.String `db:"concern_type_id"`
	Subject         string      `db:"subject"`
	Status          string      `db:"status"`
	CreatedAt       time.Time   `db:"created_at"`
	FirstResponseAt null.Time   `db:"first_response_at"`
	ResolvedAt      null.Time   `db:"resolved_at"`
}

func (r inquiryRow) inquiry() inquiry.Inquiry {
	return inquiry.Inquiry{
		ID:              r.ID,
		OfficeID:        r.OfficeID,
		StudentID:       r.StudentID,
		ConcernTypeID:   r.ConcernTypeID.Ptr(),
		Subject:         r.Subject,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt.UTC(),
		FirstResponseAt: utcPtr(r.FirstResponseAt),
		ResolvedAt:      utcPtr(r.ResolvedAt),
	}
}

var inquiryColumns = []string{
	"id", "office_id", "student_id", "concern_type_id", "subject", "status", "created_at", "first_response_at", "resolved_at",
}

type inquiryRepository struct {
	db *DB
}

var _ inquiry.Repository = (*inquiryRepository)(nil) // interface compliance check

func NewInquiryRepository(db *DB) *inquiryRepository {
	return &inquiryRepository{db: db}
}

func (repo *inquiryRepository) CreateInquiry(ctx context.Context, inq inquiry.Inquiry) (inquiry.Inquiry, error) {
	inq.ID = newID()
	if _, err := repo.db.exec(ctx, psql.Insert("inquiry").
		Columns(inquiryColumns...).
		Values(inq.ID, inq.OfficeID, inq.StudentID, null.StringFromPtr(inq.ConcernTypeID), inq.Subject, inq.Status,
			inq.CreatedAt, null.TimeFromPtr(inq.FirstResponseAt), null.TimeFromPtr(inq.ResolvedAt))); err != nil {
		return inquiry.Inquiry{}, errors.Wrap(err, "inserting inquiry")
	}
	return inq, nil
}

func (repo *inquiryRepository) QueryInquiries(ctx context.Context, filter inquiry.QueryFilter) ([]inquiry.Inquiry, error) {
	q := psql.Select(inquiryColumns...).From("inquiry").OrderBy("created_at DESC", "id")
	if filter.OfficeID != "" {
		if !isUUID(filter.OfficeID) {
			return []inquiry.Inquiry{}, nil
		}
		q = q.Where(sq.Eq{"office_id": filter.OfficeID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": filter.Status})
	}
	if filter.ConcernTypeID != "" {
		if !isUUID(filter.ConcernTypeID) {
			return []inquiry.Inquiry{}, nil
		}
		q = q.Where(sq.Eq{"concern_type_id": filter.ConcernTypeID})
	}
	if !filter.From.IsZero() {
		q = q.Where(sq.GtOrEq{"created_at": filter.From})
	}
	if !filter.To.IsZero() {
		q = q.Where(sq.Lt{"created_at": filter.To})
	}

	var rows []inquiryRow
	if err := repo.db.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying inquiries")
	}
	inqs := make([]inquiry.Inquiry, 0, len(rows))
	for _, r := range rows {
		inqs = append(inqs, r.inquiry())
	}
	return inqs, nil
}

func (repo *inquiryRepository) CountInquiriesByStatus(ctx context.Context, officeID string) (map[string]int, error) {
	counts := make(map[string]int, len(inquiry.Statuses))
	if !isUUID(officeID) {
		return counts, nil
	}
	err := countBy(ctx, repo.db, counts, psql.Select("status AS key", "count(*) AS n").
		From("inquiry").
		Where(sq.Eq{"office_id": officeID}).
		GroupBy("status"))
	return counts, errors.Wrap(err, "counting inquiries by status")
}

func (repo *inquiryRepository) CountInquiriesByConcern(ctx context.Context, officeID, typeID string) (int, error) {
	if !isUUID(typeID) || (officeID != "" && !isUUID(officeID)) {
		return 0, nil
	}
	q := psql.Select("count(*)").From("inquiry").Where(sq.Eq{"concern_type_id": typeID})
	if officeID != "" {
		q = q.Where(sq.Eq{"office_id": officeID})
	}
	n, err := repo.db.count(ctx, q)
	return n, errors.Wrap(err, "counting inquiries by concern")
}
