package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/user"
)

var ErrNotFound = core.NewNotFoundError("notification")

type (
	Repository interface {
		CreateNotifications(ctx context.Context, ns []Notification) ([]Notification, error)
		// ExistsSince reports whether a notification matching key was created at or after `since`.
		ExistsSince(ctx context.Context, key DedupKey, since time.Time) (bool, error)
		GetNotification(ctx context.Context, userID, id string) (Notification, error)
		// QueryNotifications returns a page of the user's notifications, newest first, and the total count.
		QueryNotifications(ctx context.Context, userID string, filter QueryFilter, page core.Page) ([]Notification, int, error)
		MarkRead(ctx context.Context, userID, id string) error
		MarkAllRead(ctx context.Context, userID string) (int, error)
		DeleteNotification(ctx context.Context, userID, id string) error
		DeleteRead(ctx context.Context, userID string) (int, error)
		CountUnread(ctx context.Context, userID string) (int, error)
	}

	// Pusher delivers real-time events. Implementations must honour ctx's deadline.
	Pusher interface {
		Push(ctx context.Context, userID string, event Event) error
	}

	// Audience expands offices and campuses into their members.
	Audience interface {
		OfficeAdmins(ctx context.Context, officeID string) ([]user.User, error)
		CampusAdmins(ctx context.Context, campusID string) ([]user.User, error)
		Students(ctx context.Context, campusID string) ([]user.User, error)
	}

	Gateway struct {
		repo        Repository
		audience    Audience
		pusher      Pusher
		audit       *audit.Recorder
		logger      core.Logger
		clock       core.Clock
		pushTimeout time.Duration
		maxPerPage  int
	}
)

func NewGateway(
	repo Repository,
	audience Audience,
	pusher Pusher,
	recorder *audit.Recorder,
	logger core.Logger,
	clock core.Clock,
	conf *core.Config,
) *Gateway {
	return &Gateway{
		repo:        repo,
		audience:    audience,
		pusher:      pusher,
		audit:       recorder,
		logger:      logger,
		clock:       clock,
		pushTimeout: conf.Notification.PushTimeout,
		maxPerPage:  conf.Notification.MaxPerPage,
	}
}

// Notify persists one notification per distinct recipient and pushes each of them
// once the surrounding transaction (if any) commits. Push failures never fail the call.
func (g *Gateway) Notify(ctx context.Context, recipients []string, p Payload) (int, error) {
	now := g.clock.Now()
	seen := make(map[string]bool, len(recipients))
	ns := make([]Notification, 0, len(recipients))
	for _, r := range recipients {
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		ns = append(ns, p.toNotification(r, now))
	}
	if len(ns) == 0 {
		return 0, nil
	}

	var persisted []Notification
	err := core.BestEffort(ctx, func(ctx context.Context) error {
		var err error
		persisted, err = g.repo.CreateNotifications(ctx, ns)
		return err
	})
	if err != nil {
		return 0, errors.Wrap(err, "creating notifications")
	}

	core.AfterCommit(ctx, func(ctx context.Context) {
		for _, n := range persisted {
			g.push(ctx, n, p.Extra)
		}
	})
	return len(persisted), nil
}

func (g *Gateway) push(ctx context.Context, n Notification, extra map[string]interface{}) {
	if g.pusher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, g.pushTimeout)
	defer cancel()

	if err := g.pusher.Push(pctx, n.UserID, Event{Kind: EventNotification, Notification: n, Extra: extra}); err != nil {
		g.logger.Warn(fmt.Sprintf("pushing notification %s to %s: %v", n.ID, n.UserID, err), err)
		g.audit.Record(ctx, audit.New(
			user.System, audit.ActionPushFailed, audit.TargetNotification,
			audit.Target(n.ID), audit.Failed(err),
		))
	}
}

// Dedup reports whether a notification for key may be emitted, i.e. none was emitted within `horizon`.
func (g *Gateway) Dedup(ctx context.Context, key DedupKey, horizon time.Duration) (bool, error) {
	var exists bool
	err := core.BestEffort(ctx, func(ctx context.Context) error {
		var err error
		exists, err = g.repo.ExistsSince(ctx, key, g.clock.Now().Add(-horizon))
		return err
	})
	if err != nil {
		return false, errors.Wrap(err, "checking recent notifications")
	}
	return !exists, nil
}

// NotifyOnce notifies `recipient` unless an equivalent notification went out within `horizon`.
func (g *Gateway) NotifyOnce(ctx context.Context, recipient string, p Payload, horizon time.Duration) (bool, error) {
	ok, err := g.Dedup(ctx, DedupKey{UserID: recipient, Type: p.Type, CorrelationKey: p.CorrelationKey}, horizon)
	if err != nil || !ok {
		return false, err
	}
	if _, err = g.Notify(ctx, []string{recipient}, p); err != nil {
		return false, err
	}
	return true, nil
}

func (g *Gateway) broadcast(ctx context.Context, members []user.User, actorID string, p Payload) (int, error) {
	recipients := make([]string, 0, len(members))
	for _, m := range members {
		if m.ID != actorID {
			recipients = append(recipients, m.ID)
		}
	}
	return g.Notify(ctx, recipients, p)
}

// BroadcastOffice notifies every admin of the office except the actor.
func (g *Gateway) BroadcastOffice(ctx context.Context, officeID, actorID string, p Payload) (int, error) {
	members, err := g.audience.OfficeAdmins(ctx, officeID)
	if err != nil {
		return 0, errors.Wrap(err, "listing office admins")
	}
	return g.broadcast(ctx, members, actorID, p)
}

// BroadcastCampus notifies every campus admin except the actor.
func (g *Gateway) BroadcastCampus(ctx context.Context, campusID, actorID string, p Payload) (int, error) {
	members, err := g.audience.CampusAdmins(ctx, campusID)
	if err != nil {
		return 0, errors.Wrap(err, "listing campus admins")
	}
	return g.broadcast(ctx, members, actorID, p)
}

// BroadcastStudents notifies every student of the campus except the actor.
func (g *Gateway) BroadcastStudents(ctx context.Context, campusID, actorID string, p Payload) (int, error) {
	members, err := g.audience.Students(ctx, campusID)
	if err != nil {
		return 0, errors.Wrap(err, "listing students")
	}
	return g.broadcast(ctx, members, actorID, p)
}

func (g *Gateway) List(ctx context.Context, userID string, filter QueryFilter, pageNum, perPage int) (core.Paginated, error) {
	page := core.NewPage(pageNum, perPage, g.maxPerPage)
	ns, total, err := g.repo.QueryNotifications(ctx, userID, filter, page)
	if err != nil {
		return core.Paginated{}, errors.Wrap(err, "querying notifications")
	}
	return core.NewPaginated(page, total, ns), nil
}

func (g *Gateway) MarkRead(ctx context.Context, userID, id string) error {
	return g.repo.MarkRead(ctx, userID, id)
}

// MarkAllRead returns the number of notifications that changed; a second call returns 0.
func (g *Gateway) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return g.repo.MarkAllRead(ctx, userID)
}

func (g *Gateway) Delete(ctx context.Context, userID, id string) error {
	return g.repo.DeleteNotification(ctx, userID, id)
}

func (g *Gateway) DeleteAllRead(ctx context.Context, userID string) (int, error) {
	return g.repo.DeleteRead(ctx, userID)
}

func (g *Gateway) UnreadCount(ctx context.Context, userID string) (int, error) {
	return g.repo.CountUnread(ctx, userID)
}
