package inmemdb

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/audit"
	"github.com/trezcool/piyuguide/core/concern"
	"github.com/trezcool/piyuguide/core/counseling"
	"github.com/trezcool/piyuguide/core/inquiry"
	"github.com/trezcool/piyuguide/core/notification"
	"github.com/trezcool/piyuguide/core/user"
)

type (
	// DB keeps every table in memory. Transactions are serialized and roll back
	// by restoring the snapshot taken when they began.
	DB struct {
		mutex sync.RWMutex
		txMu  sync.Mutex
		t     *tables
	}

	tables struct {
		users        map[string]user.User
		campuses     map[string]user.Campus
		offices      map[string]user.Office
		officeAdmins map[string]user.OfficeAdmin
		students     map[string]user.Student

		concernTypes map[string]concern.ConcernType
		associations map[string]concern.OfficeConcernType

		sessions       map[string]counseling.Session
		participations []counseling.Participation
		recordings     []counseling.Recording
		reminders      []counseling.Reminder

		notifications []notification.Notification // insertion order
		inquiries     []inquiry.Inquiry
		audit         []audit.Entry
	}
)

var _ core.Transactor = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{t: &tables{
		users:        make(map[string]user.User),
		campuses:     make(map[string]user.Campus),
		offices:      make(map[string]user.Office),
		officeAdmins: make(map[string]user.OfficeAdmin),
		students:     make(map[string]user.Student),
		concernTypes: make(map[string]concern.ConcernType),
		associations: make(map[string]concern.OfficeConcernType),
		sessions:     make(map[string]counseling.Session),
	}}
}

func (t *tables) clone() *tables {
	return &tables{
		users:          maps.Clone(t.users),
		campuses:       maps.Clone(t.campuses),
		offices:        maps.Clone(t.offices),
		officeAdmins:   maps.Clone(t.officeAdmins),
		students:       maps.Clone(t.students),
		concernTypes:   maps.Clone(t.concernTypes),
		associations:   maps.Clone(t.associations),
		sessions:       maps.Clone(t.sessions),
		participations: slices.Clone(t.participations),
		recordings:     slices.Clone(t.recordings),
		reminders:      slices.Clone(t.reminders),
		notifications:  slices.Clone(t.notifications),
		inquiries:      slices.Clone(t.inquiries),
		audit:          slices.Clone(t.audit),
	}
}

// InTx runs fn in a transaction. A ctx already inside one joins it.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if core.InTx(ctx) {
		return fn(ctx)
	}

	hooks, err := db.inTx(ctx, fn)
	if err != nil {
		return err
	}
	hooks.Run(ctx)
	return nil
}

func (db *DB) inTx(ctx context.Context, fn func(ctx context.Context) error) (*core.TxHooks, error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mutex.RLock()
	snapshot := db.t.clone()
	db.mutex.RUnlock()

	txCtx, hooks := core.WithTxHooks(ctx)
	txCtx = core.WithSavepointer(txCtx, db.savepoint)
	if err := fn(txCtx); err != nil {
		db.mutex.Lock()
		db.t = snapshot
		db.mutex.Unlock()
		return nil, err
	}
	return hooks, nil
}

// savepoint undoes the writes of a failed fn while the transaction goes on.
func (db *DB) savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	db.mutex.RLock()
	snapshot := db.t.clone()
	db.mutex.RUnlock()

	if err := fn(ctx); err != nil {
		db.mutex.Lock()
		db.t = snapshot
		db.mutex.Unlock()
		return err
	}
	return nil
}

func newID() string {
	return uuid.New().String()
}
