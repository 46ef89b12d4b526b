package inmemdb

import (
	"context"

	"github.com/trezcool/piyuguide/core/audit"
)

type auditRepository struct {
	db *DB
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) *auditRepository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) CreateEntry(_ context.Context, e audit.Entry) (audit.Entry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	e.ID = newID()
	repo.db.t.audit = append(repo.db.t.audit, e)
	return e, nil
}

func (repo *auditRepository) QueryEntries(_ context.Context, filter audit.QueryFilter) ([]audit.Entry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	entries := make([]audit.Entry, 0)
	for i := len(repo.db.t.audit) - 1; i >= 0; i-- {
		e := repo.db.t.audit[i]
		if filter.OfficeID != "" && (e.OfficeID == nil || *e.OfficeID != filter.OfficeID) {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.CreatedAt.Before(filter.To) {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
