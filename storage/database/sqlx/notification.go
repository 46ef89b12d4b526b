package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/notification"
)

type notificationRow struct {
	ID             string      `db:"id"`
	UserID         string      `db:"user_id"`
	Title          string      `db:"title"`
	Message        string      `db:"message"`
	Type           string      `db:"notification_type"`
	SourceOfficeID null.String `db:"source_office_id"`
	AnnouncementID null.String `db:"announcement_id"`
	Link           string      `db:"link"`
	CorrelationKey string      `db:"correlation_key"`
	IsRead         bool        `db:"is_read"`
	CreatedAt      time.Time   `db:"created_at"`
}

func (r notificationRow) notification() notification.Notification {
	return notification.Notification{
		ID:             r.ID,
		UserID:         r.UserID,
		Title:          r.Title,
		Message:        r.Message,
		Type:           r.Type,
		SourceOfficeID: r.SourceOfficeID.Ptr(),
		AnnouncementID: r.AnnouncementID.Ptr(),
		Link:           r.Link,
		CorrelationKey: r.CorrelationKey,
		IsRead:         r.IsRead,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

var notificationColumns = []string{
	"id", "user_id", "title", "message", "notification_type", "source_office_id", "announcement_id",
	"link", "correlation_key", "is_read", "created_at",
}

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

// CreateNotifications inserts all rows in one statement, in order.
func (repo *notificationRepository) CreateNotifications(ctx context.Context, ns []notification.Notification) ([]notification.Notification, error) {
	if len(ns) == 0 {
		return []notification.Notification{}, nil
	}
	q := psql.Insert("notification").Columns(notificationColumns...)
	created := make([]notification.Notification, 0, len(ns))
	for _, n := range ns {
		n.ID = newID()
		q = q.Values(n.ID, n.UserID, n.Title, n.Message, n.Type, null.StringFromPtr(n.SourceOfficeID),
			null.StringFromPtr(n.AnnouncementID), n.Link, n.CorrelationKey, n.IsRead, n.CreatedAt)
		created = append(created, n)
	}
	if _, err := repo.db.exec(ctx, q); err != nil {
		return nil, errors.Wrap(err, "inserting notifications")
	}
	return created, nil
}

func (repo *notificationRepository) ExistsSince(ctx context.Context, key notification.DedupKey, since time.Time) (bool, error) {
	if !isUUID(key.UserID) {
		return false, nil
	}
	var exists bool
	err := repo.db.get(ctx, &exists, psql.Select().Column(sq.Expr("EXISTS (?)",
		psql.Select("1").From("notification").Where(sq.Eq{
			"user_id":           key.UserID,
			"notification_type": key.Type,
			"correlation_key":   key.CorrelationKey,
		}).Where(sq.GtOrEq{"created_at": since}))))
	return exists, errors.Wrap(err, "checking notification dedup key")
}

func (repo *notificationRepository) GetNotification(ctx context.Context, userID, id string) (notification.Notification, error) {
	if !isUUID(userID) || !isUUID(id) {
		return notification.Notification{}, notification.ErrNotFound
	}
	var row notificationRow
	if err := repo.db.get(ctx, &row, psql.Select(notificationColumns...).From("notification").
		Where(sq.Eq{"id": id, "user_id": userID})); err != nil {
		return notification.Notification{}, notFound(err, notification.ErrNotFound)
	}
	return row.notification(), nil
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID string, filter notification.QueryFilter, page core.Page) ([]notification.Notification, int, error) {
	if !isUUID(userID) {
		return []notification.Notification{}, 0, nil
	}
	where := sq.And{sq.Eq{"user_id": userID}}
	if filter.IsRead != nil {
		where = append(where, sq.Eq{"is_read": *filter.IsRead})
	}
	if filter.Type != "" {
		where = append(where, sq.Eq{"notification_type": filter.Type})
	}

	total, err := repo.db.count(ctx, psql.Select("count(*)").From("notification").Where(where))
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting notifications")
	}
	var rows []notificationRow
	if err = repo.db.selectAll(ctx, &rows, paged(psql.Select(notificationColumns...).
		From("notification").
		Where(where).
		OrderBy("created_at DESC", "seq DESC"), page)); err != nil {
		return nil, 0, errors.Wrap(err, "querying notifications")
	}
	ns := make([]notification.Notification, 0, len(rows))
	for _, r := range rows {
		ns = append(ns, r.notification())
	}
	return ns, total, nil
}

func (repo *notificationRepository) MarkRead(ctx context.Context, userID, id string) error {
	if !isUUID(userID) || !isUUID(id) {
		return notification.ErrNotFound
	}
	n, err := repo.db.exec(ctx, psql.Update("notification").Set("is_read", true).Where(sq.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return errors.Wrap(err, "marking notification read")
	}
	if n == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (repo *notificationRepository) MarkAllRead(ctx context.Context, userID string) (int, error) {
	if !isUUID(userID) {
		return 0, nil
	}
	n, err := repo.db.exec(ctx, psql.Update("notification").Set("is_read", true).Where(sq.Eq{"user_id": userID, "is_read": false}))
	return n, errors.Wrap(err, "marking notifications read")
}

func (repo *notificationRepository) DeleteNotification(ctx context.Context, userID, id string) error {
	if !isUUID(userID) || !isUUID(id) {
		return notification.ErrNotFound
	}
	n, err := repo.db.exec(ctx, psql.Delete("notification").Where(sq.Eq{"id": id, "user_id": userID}))
	if err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	if n == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (repo *notificationRepository) DeleteRead(ctx context.Context, userID string) (int, error) {
	if !isUUID(userID) {
		return 0, nil
	}
	n, err := repo.db.exec(ctx, psql.Delete("notification").Where(sq.Eq{"user_id": userID, "is_read": true}))
	return n, errors.Wrap(err, "deleting read notifications")
}

func (repo *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	if !isUUID(userID) {
		return 0, nil
	}
	n, err := repo.db.count(ctx, psql.Select("count(*)").From("notification").Where(sq.Eq{"user_id": userID, "is_read": false}))
	return n, errors.Wrap(err, "counting unread notifications")
}
