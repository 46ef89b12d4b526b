package sqlxrepos

import (
	"context"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/user"
)

var userColumns = []string{
	`"user".id`, `"user".name`, `"user".email`, `"user".role`, `"user".campus_id`,
	`"user".profile_pic`, `"user".is_online`, `"user".last_activity`, `"user".created_at`,
}

type userRow struct {
	ID           string      `db:"id"`
	Name         string      `db:"name"`
	Email        string      `db:"email"`
	Role         string      `db:"role"`
	CampusID     null.String `db:"campus_id"`
	ProfilePic   string      `db:"profile_pic"`
	IsOnline     bool        `db:"is_online"`
	LastActivity null.Time   `db:"last_activity"`
	CreatedAt    time.Time   `db:"created_at"`
}

func (r userRow) user() user.User {
	return user.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Role:         r.Role,
		CampusID:     r.CampusID.String,
		ProfilePic:   r.ProfilePic,
		IsOnline:     r.IsOnline,
		LastActivity: utcPtr(r.LastActivity),
		CreatedAt:    r.CreatedAt.UTC(),
	}
}

func usersOf(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.user())
	}
	return users
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	usr.ID = newID()
	usr.Email = strings.ToLower(usr.Email)
	_, err := repo.db.exec(ctx, psql.Insert(`"user"`).
		Columns("id", "name", "email", "role", "campus_id", "profile_pic", "is_online", "last_activity", "created_at").
		Values(usr.ID, usr.Name, usr.Email, usr.Role, nullString(usr.CampusID), usr.ProfilePic, usr.IsOnline,
			null.TimeFromPtr(usr.LastActivity), usr.CreatedAt))
	if isUniqueViolation(err) {
		return user.User{}, core.NewValidationError(err, core.FieldError{Field: "email", Error: "a user with this email already exists"})
	}
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) getUser(ctx context.Context, where sq.Sqlizer) (user.User, error) {
	var row userRow
	if err := repo.db.get(ctx, &row, psql.Select(userColumns...).From(`"user"`).Where(where)); err != nil {
		return user.User{}, notFound(err, user.ErrNotFound)
	}
	return row.user(), nil
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string) (user.User, error) {
	if !isUUID(id) {
		return user.User{}, user.ErrNotFound
	}
	return repo.getUser(ctx, sq.Eq{"id": id})
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return repo.getUser(ctx, sq.Expr("lower(email) = lower(?)", email))
}

func (repo *userRepository) QueryUsers(ctx context.Context, campusID string, roles ...string) ([]user.User, error) {
	q := psql.Select(userColumns...).From(`"user"`).OrderBy("name", "id")
	if campusID != "" {
		if !isUUID(campusID) {
			return []user.User{}, nil
		}
		q = q.Where(sq.Eq{"campus_id": campusID})
	}
	if len(roles) > 0 {
		q = q.Where(sq.Eq{"role": roles})
	}
	var rows []userRow
	if err := repo.db.selectAll(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return usersOf(rows), nil
}

func (repo *userRepository) SetPresence(ctx context.Context, id string, online bool, at time.Time) error {
	if !isUUID(id) {
		return user.ErrNotFound
	}
	n, err := repo.db.exec(ctx, psql.Update(`"user"`).
		Set("is_online", online).
		Set("last_activity", at).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return errors.Wrap(err, "updating presence")
	}
	if n == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (repo *userRepository) MarkStaleOffline(ctx context.Context, before time.Time) (int, error) {
	n, err := repo.db.exec(ctx, psql.Update(`"user"`).
		Set("is_online", false).
		Where(sq.Eq{"is_online": true}).
		Where(sq.Or{sq.Eq{"last_activity": nil}, sq.Lt{"last_activity": before}}))
	return n, errors.Wrap(err, "marking stale users offline")
}

func (repo *userRepository) CreateCampus(ctx context.Context, cmp user.Campus) (user.Campus, error) {
	cmp.ID = newID()
	if _, err := repo.db.exec(ctx, psql.Insert("campus").Columns("id", "name").Values(cmp.ID, cmp.Name)); err != nil {
		return user.Campus{}, errors.Wrap(err, "inserting campus")
	}
	return cmp, nil
}

func (repo *userRepository) GetCampus(ctx context.Context, id string) (user.Campus, error) {
	if !isUUID(id) {
		return user.Campus{}, user.ErrCampusNotFound
	}
	var cmp user.Campus
	err := repo.db.get(ctx, &cmp, psql.Select("id", "name").From("campus").Where(sq.Eq{"id": id}))
	return cmp, notFound(err, user.ErrCampusNotFound)
}

type officeRow struct {
	ID            string `db:"id"`
	Name          string `db:"name"`
	CampusID      string `db:"campus_id"`
	SupportsVideo bool   `db:"supports_video"`
}

func (repo *userRepository) CreateOffice(ctx context.Context, off user.Office) (user.Office, error) {
	off.ID = newID()
	if _, err := repo.db.exec(ctx, psql.Insert("office").
		Columns("id", "name", "campus_id", "supports_video").
		Values(off.ID, off.Name, off.CampusID, off.SupportsVideo)); err != nil {
		return user.Office{}, errors.Wrap(err, "inserting office")
	}
	return off, nil
}

func (repo *userRepository) GetOffice(ctx context.Context, id string) (user.Office, error) {
	if !isUUID(id) {
		return user.Office{}, user.ErrOfficeNotFound
	}
	var row officeRow
	if err := repo.db.get(ctx, &row, psql.Select("id", "name", "campus_id", "supports_video").From("office").Where(sq.Eq{"id": id})); err != nil {
		return user.Office{}, notFound(err, user.ErrOfficeNotFound)
	}
	return user.Office(row), nil
}

// AddOfficeAdmin assigns the user to the office, moving them if they already manage another one.
func (repo *userRepository) AddOfficeAdmin(ctx context.Context, userID, officeID string) (user.OfficeAdmin, error) {
	if _, err := repo.GetUserByID(ctx, userID); err != nil {
		return user.OfficeAdmin{}, err
	}
	if _, err := repo.GetOffice(ctx, officeID); err != nil {
		return user.OfficeAdmin{}, err
	}
	oa := user.OfficeAdmin{ID: newID(), UserID: userID, OfficeID: officeID}
	err := repo.db.get(ctx, &oa.ID, psql.Insert("office_admin").
		Columns("id", "user_id", "office_id").
		Values(oa.ID, userID, officeID).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET office_id = EXCLUDED.office_id RETURNING id"))
	if err != nil {
		return user.OfficeAdmin{}, errors.Wrap(err, "upserting office admin")
	}
	return oa, nil
}

func (repo *userRepository) GetOfficeAdminByUser(ctx context.Context, userID string) (user.OfficeAdmin, error) {
	if !isUUID(userID) {
		return user.OfficeAdmin{}, user.ErrNotFound
	}
	var oa struct {
		ID       string `db:"id"`
		UserID   string `db:"user_id"`
		OfficeID string `db:"office_id"`
	}
	if err := repo.db.get(ctx, &oa, psql.Select("id", "user_id", "office_id").From("office_admin").Where(sq.Eq{"user_id": userID})); err != nil {
		return user.OfficeAdmin{}, notFound(err, user.ErrNotFound)
	}
	return user.OfficeAdmin(oa), nil
}

func (repo *userRepository) QueryOfficeAdmins(ctx context.Context, officeID string) ([]user.User, error) {
	if !isUUID(officeID) {
		return []user.User{}, nil
	}
	var rows []userRow
	err := repo.db.selectAll(ctx, &rows, psql.Select(userColumns...).
		From(`"user"`).
		Join(`office_admin oa ON oa.user_id = "user".id`).
		Where(sq.Eq{"oa.office_id": officeID}).
		OrderBy(`"user".name`, `"user".id`))
	if err != nil {
		return nil, errors.Wrap(err, "querying office admins")
	}
	return usersOf(rows), nil
}

func (repo *userRepository) AddStudent(ctx context.Context, st user.Student) (user.Student, error) {
	if _, err := repo.GetUserByID(ctx, st.UserID); err != nil {
		return user.Student{}, err
	}
	st.ID = newID()
	if _, err := repo.db.exec(ctx, psql.Insert("student").
		Columns("id", "user_id", "student_number", "program", "year_level").
		Values(st.ID, st.UserID, st.StudentNumber, st.Program, st.YearLevel)); err != nil {
		return user.Student{}, errors.Wrap(err, "inserting student")
	}
	return st, nil
}
