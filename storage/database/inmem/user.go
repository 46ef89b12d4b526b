package inmemdb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/piyuguide/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func sortUsers(users []user.User) {
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = newID()
	usr.Email = strings.ToLower(usr.Email)
	repo.db.t.users[usr.ID] = usr
	return usr, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if usr, ok := repo.db.t.users[id]; ok {
		return usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.t.users {
		if strings.EqualFold(usr.Email, email) {
			return usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) QueryUsers(_ context.Context, campusID string, roles ...string) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0)
	for _, usr := range repo.db.t.users {
		if campusID != "" && usr.CampusID != campusID {
			continue
		}
		if len(roles) > 0 && !contains(roles, usr.Role) {
			continue
		}
		users = append(users, usr)
	}
	sortUsers(users)
	return users, nil
}

func (repo *userRepository) SetPresence(_ context.Context, id string, online bool, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr, ok := repo.db.t.users[id]
	if !ok {
		return user.ErrNotFound
	}
	usr.IsOnline = online
	usr.LastActivity = &at
	repo.db.t.users[id] = usr
	return nil
}

func (repo *userRepository) MarkStaleOffline(_ context.Context, before time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n := 0
	for id, usr := range repo.db.t.users {
		if usr.IsOnline && (usr.LastActivity == nil || usr.LastActivity.Before(before)) {
			usr.IsOnline = false
			repo.db.t.users[id] = usr
			n++
		}
	}
	return n, nil
}

func (repo *userRepository) CreateCampus(_ context.Context, cmp user.Campus) (user.Campus, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cmp.ID = newID()
	repo.db.t.campuses[cmp.ID] = cmp
	return cmp, nil
}

func (repo *userRepository) GetCampus(_ context.Context, id string) (user.Campus, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cmp, ok := repo.db.t.campuses[id]; ok {
		return cmp, nil
	}
	return user.Campus{}, user.ErrCampusNotFound
}

func (repo *userRepository) CreateOffice(_ context.Context, off user.Office) (user.Office, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	off.ID = newID()
	repo.db.t.offices[off.ID] = off
	return off, nil
}

func (repo *userRepository) GetOffice(_ context.Context, id string) (user.Office, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if off, ok := repo.db.t.offices[id]; ok {
		return off, nil
	}
	return user.Office{}, user.ErrOfficeNotFound
}

func (repo *userRepository) AddOfficeAdmin(_ context.Context, userID, officeID string) (user.OfficeAdmin, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.users[userID]; !ok {
		return user.OfficeAdmin{}, user.ErrNotFound
	}
	if _, ok := repo.db.t.offices[officeID]; !ok {
		return user.OfficeAdmin{}, user.ErrOfficeNotFound
	}
	for id, oa := range repo.db.t.officeAdmins {
		if oa.UserID == userID {
			oa.OfficeID = officeID
			repo.db.t.officeAdmins[id] = oa
			return oa, nil
		}
	}
	oa := user.OfficeAdmin{ID: newID(), UserID: userID, OfficeID: officeID}
	repo.db.t.officeAdmins[oa.ID] = oa
	return oa, nil
}

func (repo *userRepository) GetOfficeAdminByUser(_ context.Context, userID string) (user.OfficeAdmin, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, oa := range repo.db.t.officeAdmins {
		if oa.UserID == userID {
			return oa, nil
		}
	}
	return user.OfficeAdmin{}, user.ErrNotFound
}

func (repo *userRepository) QueryOfficeAdmins(_ context.Context, officeID string) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0)
	for _, oa := range repo.db.t.officeAdmins {
		if oa.OfficeID != officeID {
			continue
		}
		if usr, ok := repo.db.t.users[oa.UserID]; ok {
			users = append(users, usr)
		}
	}
	sortUsers(users)
	return users, nil
}

func (repo *userRepository) AddStudent(_ context.Context, st user.Student) (user.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.users[st.UserID]; !ok {
		return user.Student{}, user.ErrNotFound
	}
	st.ID = newID()
	repo.db.t.students[st.ID] = st
	return st, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
