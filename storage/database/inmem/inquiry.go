package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/piyuguide/core/inquiry"
)

type inquiryRepository struct {
	db *DB
}

var _ inquiry.Repository = (*inquiryRepository)(nil) // interface compliance check

func NewInquiryRepository(db *DB) *inquiryRepository {
	return &inquiryRepository{db: db}
}

func (repo *inquiryRepository) CreateInquiry(_ context.Context, inq inquiry.Inquiry) (inquiry.Inquiry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	inq.ID = newID()
	repo.db.t.inquiries = append(repo.db.t.inquiries, inq)
	return inq, nil
}

func (repo *inquiryRepository) QueryInquiries(_ context.Context, filter inquiry.QueryFilter) ([]inquiry.Inquiry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	inqs := make([]inquiry.Inquiry, 0)
	for _, inq := range repo.db.t.inquiries {
		if filter.OfficeID != "" && inq.OfficeID != filter.OfficeID {
			continue
		}
		if filter.Status != "" && inq.Status != filter.Status {
			continue
		}
		if filter.ConcernTypeID != "" && (inq.ConcernTypeID == nil || *inq.ConcernTypeID != filter.ConcernTypeID) {
			continue
		}
		if !filter.From.IsZero() && inq.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !inq.CreatedAt.Before(filter.To) {
			continue
		}
		inqs = append(inqs, inq)
	}
	sort.SliceStable(inqs, func(i, j int) bool { return inqs[i].CreatedAt.After(inqs[j].CreatedAt) })
	return inqs, nil
}

func (repo *inquiryRepository) CountInquiriesByStatus(_ context.Context, officeID string) (map[string]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	counts := make(map[string]int, len(inquiry.Statuses))
	for _, inq := range repo.db.t.inquiries {
		if inq.OfficeID == officeID {
			counts[inq.Status]++
		}
	}
	return counts, nil
}

func (repo *inquiryRepository) CountInquiriesByConcern(_ context.Context, officeID, typeID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	n := 0
	for _, inq := range repo.db.t.inquiries {
		if (officeID == "" || inq.OfficeID == officeID) && inq.ConcernTypeID != nil && *inq.ConcernTypeID == typeID {
			n++
		}
	}
	return n, nil
}
