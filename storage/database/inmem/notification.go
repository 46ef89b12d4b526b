package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil) // interface compliance check

func NewNotificationRepository(db *DB) *notificationRepository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotifications(_ context.Context, ns []notification.Notification) ([]notification.Notification, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	created := make([]notification.Notification, 0, len(ns))
	for _, n := range ns {
		n.ID = newID()
		repo.db.t.notifications = append(repo.db.t.notifications, n)
		created = append(created, n)
	}
	return created, nil
}

func (repo *notificationRepository) ExistsSince(_ context.Context, key notification.DedupKey, since time.Time) (bool, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, n := range repo.db.t.notifications {
		if n.UserID == key.UserID && n.Type == key.Type && n.CorrelationKey == key.CorrelationKey && !n.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (repo *notificationRepository) GetNotification(_ context.Context, userID, id string) (notification.Notification, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, n := range repo.db.t.notifications {
		if n.ID == id && n.UserID == userID {
			return n, nil
		}
	}
	return notification.Notification{}, notification.ErrNotFound
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, userID string, filter notification.QueryFilter, page core.Page) ([]notification.Notification, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	matched := make([]notification.Notification, 0)
	for i := len(repo.db.t.notifications) - 1; i >= 0; i-- {
		n := repo.db.t.notifications[i]
		if n.UserID != userID {
			continue
		}
		if filter.IsRead != nil && n.IsRead != *filter.IsRead {
			continue
		}
		if filter.Type != "" && n.Type != filter.Type {
			continue
		}
		matched = append(matched, n)
	}
	// newest first; insertion order breaks ties
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, page), len(matched), nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, userID, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i, n := range repo.db.t.notifications {
		if n.ID == id && n.UserID == userID {
			repo.db.t.notifications[i].IsRead = true
			return nil
		}
	}
	return notification.ErrNotFound
}

func (repo *notificationRepository) MarkAllRead(_ context.Context, userID string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	count := 0
	for i, n := range repo.db.t.notifications {
		if n.UserID == userID && !n.IsRead {
			repo.db.t.notifications[i].IsRead = true
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) DeleteNotification(_ context.Context, userID, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i, n := range repo.db.t.notifications {
		if n.ID == id && n.UserID == userID {
			repo.db.t.notifications = append(repo.db.t.notifications[:i:i], repo.db.t.notifications[i+1:]...)
			return nil
		}
	}
	return notification.ErrNotFound
}

func (repo *notificationRepository) DeleteRead(_ context.Context, userID string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	kept := make([]notification.Notification, 0, len(repo.db.t.notifications))
	for _, n := range repo.db.t.notifications {
		if n.UserID != userID || !n.IsRead {
			kept = append(kept, n)
		}
	}
	count := len(repo.db.t.notifications) - len(kept)
	repo.db.t.notifications = kept
	return count, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, userID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	count := 0
	for _, n := range repo.db.t.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// paginate slices a page out of items. A zero page returns everything.
func paginate[T any](items []T, page core.Page) []T {
	if page.PerPage <= 0 {
		return items
	}
	start := page.Offset()
	if start >= len(items) {
		return []T{}
	}
	end := start + page.PerPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
