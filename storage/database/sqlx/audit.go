package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/piyuguide/core/audit"
)

type auditRow struct {
	ID         string      `db:"id"`
	ActorID    null.String `db:"actor_id"`
	ActorRole  string      `db:"actor_role"`
	ActorName  string      `db:"actor_name"`
	Action     string      `db:"action"`
	TargetType string      `db:"target_type"`
	TargetID   string      `db:"target_id"`
	OfficeID   null.String `db:"office_id"`
	InquiryID  null.String `db:"inquiry_id"`
	Status     string      `db:"status"`
	Details    string      `db:"details"`
	Success    bool        `db:"success"`
	IPAddress  string      `db:"ip_address"`
	UserAgent  string      `db:"user_agent"`
	CreatedAt  time.Time   `db:"created_at"`
}

var auditColumns = []string{
	"id", "actor_id", "actor_role", "actor_name", "action", "target_type", "target_id", "office_id",
	"inquiry_id", "status", "details", "success", "ip_address", "user_agent", "created_at",
}

// auditRepository only ever inserts: the table rejects updates and deletes.
type auditRepository struct {
	db *DB
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) *auditRepository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) CreateEntry(ctx context.Context, e audit.Entry) (audit.Entry, error) {
	e.ID = newID()
	if _, err := repo.db.exec(ctx, psql.Insert("audit_log").
		Columns(auditColumns...).
		Values(e.ID, nullString(e.ActorID), e.ActorRole, e.ActorName, e.Action, e.TargetType, e.TargetID,
			null.StringFromPtr(e.OfficeID), null.StringFromPtr(e.InquiryID), e.Status, e.Details, e.Success,
			e.IPAddress, e.UserAgent, e.CreatedAt)); err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting audit entry")
	}
	return e, nil
}

func (repo *auditRepository) QueryEntries(ctx context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	q := psql.Select(auditColumns...).From("audit_log").OrderBy("seq DESC")
	if filter.OfficeID != "" {
		if !isUUID(filter.OfficeID) {
			return []audit.Entry{}, nil
		}
		q = q.Where(sq.Eq{"office_id": filter.OfficeID})
	}
	if filter.Action != "" {
		q = q.Where(sq.Eq{"action": filter.Action})
	}
	if !filter.From.IsZero() {
		q = q.Where(sq.GtOrEq{"created_at": filter.From})
	}
	if !filter.To.IsZero() {
		q = q.Where(sq.Lt{"created_at": filter.To})
	}

	var rows []auditRow
	if err := repo.db.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying audit entries")
	}
	entries := make([]audit.Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, audit.Entry{
			ID:         r.ID,
			ActorID:    r.ActorID.String,
			ActorRole:  r.ActorRole,
			ActorName:  r.ActorName,
			Action:     r.Action,
			TargetType: r.TargetType,
			TargetID:   r.TargetID,
			OfficeID:   r.OfficeID.Ptr(),
			InquiryID:  r.InquiryID.Ptr(),
			Status:     r.Status,
			Details:    r.Details,
			Success:    r.Success,
			IPAddress:  r.IPAddress,
			UserAgent:  r.UserAgent,
			CreatedAt:  r.CreatedAt.UTC(),
		})
	}
	return entries, nil
}
