package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/counseling"
)

type counselingRepository struct {
	db *DB
}

var _ counseling.Repository = (*counselingRepository)(nil) // interface compliance check

func NewCounselingRepository(db *DB) *counselingRepository {
	return &counselingRepository{db: db}
}

func (repo *counselingRepository) CreateSession(_ context.Context, s counseling.Session) (counseling.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	s.ID = newID()
	repo.db.t.sessions[s.ID] = s
	return s, nil
}

func (repo *counselingRepository) GetSession(_ context.Context, id string) (counseling.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.t.sessions[id]; ok {
		return s, nil
	}
	return counseling.Session{}, counseling.ErrNotFound
}

// LockSession reads the session. Transactions are serialized already, so no row lock is needed.
func (repo *counselingRepository) LockSession(ctx context.Context, id string) (counseling.Session, error) {
	return repo.GetSession(ctx, id)
}

func (repo *counselingRepository) UpdateSession(_ context.Context, s counseling.Session) (counseling.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.t.sessions[s.ID]; !ok {
		return counseling.Session{}, counseling.ErrNotFound
	}
	repo.db.t.sessions[s.ID] = s
	return s, nil
}

// sortedSessions returns the sessions matching keep, by schedule. Callers hold the lock.
func (repo *counselingRepository) sortedSessions(keep func(s counseling.Session) bool, descending bool) []counseling.Session {
	sessions := make([]counseling.Session, 0)
	for _, s := range repo.db.t.sessions {
		if keep(s) {
			sessions = append(sessions, s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			if descending {
				return a.ScheduledAt.After(b.ScheduledAt)
			}
			return a.ScheduledAt.Before(b.ScheduledAt)
		}
		return a.ID < b.ID
	})
	return sessions
}

func (repo *counselingRepository) QuerySessions(_ context.Context, filter counseling.QueryFilter, page core.Page) ([]counseling.Session, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	matched := repo.sortedSessions(func(s counseling.Session) bool {
		switch {
		case filter.OfficeID != "" && s.OfficeID != filter.OfficeID:
			return false
		case filter.Status != "" && s.Status != filter.Status:
			return false
		case filter.CounselorID != "" && !s.IsCounselor(filter.CounselorID):
			return false
		case filter.ConcernTypeID != "" && (s.NatureOfConcernID == nil || *s.NatureOfConcernID != filter.ConcernTypeID):
			return false
		case filter.VideoOnly && !s.IsVideoSession:
			return false
		case filter.From != nil && s.ScheduledAt.Before(*filter.From):
			return false
		case filter.To != nil && !s.ScheduledAt.Before(*filter.To):
			return false
		}
		return true
	}, filter.Descending)
	return paginate(matched, page), len(matched), nil
}

func (repo *counselingRepository) QueryDueSessions(_ context.Context, from, to time.Time) ([]counseling.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.sortedSessions(func(s counseling.Session) bool {
		return s.IsVideoSession &&
			(s.Status == counseling.StatusPending || s.Status == counseling.StatusConfirmed) &&
			!s.ScheduledAt.Before(from) && !s.ScheduledAt.After(to)
	}, false), nil
}

func (repo *counselingRepository) QueryNoShowCandidates(_ context.Context, before time.Time) ([]counseling.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	return repo.sortedSessions(func(s counseling.Session) bool {
		return s.Status == counseling.StatusConfirmed && s.CounselorJoinedAt == nil && !s.ScheduledAt.After(before)
	}, false), nil
}

func (repo *counselingRepository) CountSessionsByStatus(_ context.Context, officeID string) (map[string]int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	counts := make(map[string]int, len(counseling.Statuses))
	for _, s := range repo.db.t.sessions {
		if s.OfficeID == officeID && s.IsVideoSession {
			counts[s.Status]++
		}
	}
	return counts, nil
}

func (repo *counselingRepository) CountSessionsBetween(_ context.Context, officeID string, from, to time.Time) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	n := 0
	for _, s := range repo.db.t.sessions {
		if s.OfficeID == officeID && s.IsVideoSession && !s.ScheduledAt.Before(from) && s.ScheduledAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (repo *counselingRepository) CountSessionsByConcern(_ context.Context, officeID, typeID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	n := 0
	for _, s := range repo.db.t.sessions {
		if (officeID == "" || s.OfficeID == officeID) && s.NatureOfConcernID != nil && *s.NatureOfConcernID == typeID {
			n++
		}
	}
	return n, nil
}

func (repo *counselingRepository) CreateParticipation(_ context.Context, p counseling.Participation) (counseling.Participation, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	p.ID = newID()
	repo.db.t.participations = append(repo.db.t.participations, p)
	return p, nil
}

func (repo *counselingRepository) QueryParticipations(_ context.Context, sessionID string) ([]counseling.Participation, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	parts := make([]counseling.Participation, 0)
	for _, p := range repo.db.t.participations {
		if p.SessionID == sessionID {
			parts = append(parts, p)
		}
	}
	return parts, nil
}

func (repo *counselingRepository) CloseParticipations(_ context.Context, sessionID string, at time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n := 0
	for i, p := range repo.db.t.participations {
		if p.SessionID == sessionID && p.LeftAt == nil {
			left := at
			repo.db.t.participations[i].LeftAt = &left
			n++
		}
	}
	return n, nil
}

func (repo *counselingRepository) CreateRecording(_ context.Context, r counseling.Recording) (counseling.Recording, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	r.ID = newID()
	repo.db.t.recordings = append(repo.db.t.recordings, r)
	return r, nil
}

func (repo *counselingRepository) QueryRecordings(_ context.Context, sessionID string) ([]counseling.Recording, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	recs := make([]counseling.Recording, 0)
	for _, r := range repo.db.t.recordings {
		if r.SessionID == sessionID {
			recs = append(recs, r)
		}
	}
	return recs, nil
}

func (repo *counselingRepository) CreateReminder(_ context.Context, r counseling.Reminder) (counseling.Reminder, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	r.ID = newID()
	repo.db.t.reminders = append(repo.db.t.reminders, r)
	return r, nil
}

func (repo *counselingRepository) QueryReminders(_ context.Context, sessionID string) ([]counseling.Reminder, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rems := make([]counseling.Reminder, 0)
	for _, r := range repo.db.t.reminders {
		if r.SessionID == sessionID {
			rems = append(rems, r)
		}
	}
	return rems, nil
}

func (repo *counselingRepository) QueryDueReminders(_ context.Context, typ string, before time.Time) ([]counseling.Reminder, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	rems := make([]counseling.Reminder, 0)
	for _, r := range repo.db.t.reminders {
		if r.Type == typ && r.Status == counseling.ReminderScheduled && !r.ScheduledFor.After(before) {
			rems = append(rems, r)
		}
	}
	sort.SliceStable(rems, func(i, j int) bool { return rems[i].ScheduledFor.Before(rems[j].ScheduledFor) })
	return rems, nil
}

func (repo *counselingRepository) SetReminderStatus(_ context.Context, id, from, to string, sentAt *time.Time) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for i, r := range repo.db.t.reminders {
		if r.ID != id {
			continue
		}
		if r.Status != from {
			return false, nil
		}
		repo.db.t.reminders[i].Status = to
		if sentAt != nil {
			at := *sentAt
			repo.db.t.reminders[i].SentAt = &at
		}
		return true, nil
	}
	return false, nil
}

func (repo *counselingRepository) CancelReminders(_ context.Context, sessionID, typ string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n := 0
	for i, r := range repo.db.t.reminders {
		if r.SessionID == sessionID && r.Type == typ && r.Status == counseling.ReminderScheduled {
			repo.db.t.reminders[i].Status = counseling.ReminderCancelled
			n++
		}
	}
	return n, nil
}
