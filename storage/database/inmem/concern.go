package inmemdb

import (
	"context"
	"strings"

	"github.com/trezcool/piyuguide/core/concern"
)

type concernRepository struct {
	db *DB
}

var _ concern.Repository = (*concernRepository)(nil) // interface compliance check

func NewConcernRepository(db *DB) *concernRepository {
	return &concernRepository{db: db}
}

func (repo *concernRepository) GetTypeByID(_ context.Context, id string) (concern.ConcernType, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if ct, ok := repo.db.t.concernTypes[id]; ok {
		return ct, nil
	}
	return concern.ConcernType{}, concern.ErrNotFound
}

func (repo *concernRepository) GetTypeByName(_ context.Context, name string) (concern.ConcernType, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, ct := range repo.db.t.concernTypes {
		if strings.EqualFold(ct.Name, name) {
			return ct, nil
		}
	}
	return concern.ConcernType{}, concern.ErrNotFound
}

func (repo *concernRepository) CreateType(_ context.Context, ct concern.ConcernType) (concern.ConcernType, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	ct.ID = newID()
	repo.db.t.concernTypes[ct.ID] = ct
	return ct, nil
}

func (repo *concernRepository) UpdateType(_ context.Context, ct concern.ConcernType) (concern.ConcernType, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.concernTypes[ct.ID]; !ok {
		return concern.ConcernType{}, concern.ErrNotFound
	}
	repo.db.t.concernTypes[ct.ID] = ct
	return ct, nil
}

func (repo *concernRepository) DeleteType(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.concernTypes[id]; !ok {
		return concern.ErrNotFound
	}
	delete(repo.db.t.concernTypes, id)
	return nil
}

// withType fills in the association's concern type. Callers hold the lock.
func (repo *concernRepository) withType(oct concern.OfficeConcernType) concern.OfficeConcernType {
	oct.ConcernType = repo.db.t.concernTypes[oct.ConcernTypeID]
	return oct
}

func (repo *concernRepository) GetAssociation(_ context.Context, officeID, typeID string) (concern.OfficeConcernType, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, oct := range repo.db.t.associations {
		if oct.OfficeID == officeID && oct.ConcernTypeID == typeID {
			return repo.withType(oct), nil
		}
	}
	return concern.OfficeConcernType{}, concern.ErrAssociationNotFound
}

func (repo *concernRepository) CreateAssociation(_ context.Context, oct concern.OfficeConcernType) (concern.OfficeConcernType, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	oct.ID = newID()
	oct.ConcernType = concern.ConcernType{}
	repo.db.t.associations[oct.ID] = oct
	return repo.withType(oct), nil
}

func (repo *concernRepository) UpdateAssociation(_ context.Context, oct concern.OfficeConcernType) (concern.OfficeConcernType, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.associations[oct.ID]; !ok {
		return concern.OfficeConcernType{}, concern.ErrAssociationNotFound
	}
	oct.ConcernType = concern.ConcernType{}
	repo.db.t.associations[oct.ID] = oct
	return repo.withType(oct), nil
}

func (repo *concernRepository) DeleteAssociation(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.associations[id]; !ok {
		return concern.ErrAssociationNotFound
	}
	delete(repo.db.t.associations, id)
	return nil
}

func (repo *concernRepository) QueryAssociations(_ context.Context, filter concern.QueryFilter) ([]concern.OfficeConcernType, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	octs := make([]concern.OfficeConcernType, 0)
	for _, oct := range repo.db.t.associations {
		if filter.OfficeID != "" && oct.OfficeID != filter.OfficeID {
			continue
		}
		if filter.ForInquiries != nil && oct.ForInquiries != *filter.ForInquiries {
			continue
		}
		if filter.ForCounseling != nil && oct.ForCounseling != *filter.ForCounseling {
			continue
		}
		octs = append(octs, repo.withType(oct))
	}
	return octs, nil
}

func (repo *concernRepository) CountAssociations(_ context.Context, typeID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	n := 0
	for _, oct := range repo.db.t.associations {
		if oct.ConcernTypeID == typeID {
			n++
		}
	}
	return n, nil
}
