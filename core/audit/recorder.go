package audit

import (
	"context"
	"fmt"

	"github.com/trezcool/piyuguide/core"
)

type Repository interface {
	CreateEntry(ctx context.Context, e Entry) (Entry, error)
	// QueryEntries returns matching entries, newest first.
	QueryEntries(ctx context.Context, filter QueryFilter) ([]Entry, error)
}

// Recorder appends audit entries. Recording never fails the caller.
type Recorder struct {
	repo   Repository
	logger core.Logger
	clock  core.Clock
}

func NewRecorder(repo Repository, logger core.Logger, clock core.Clock) *Recorder {
	return &Recorder{repo: repo, logger: logger, clock: clock}
}

func (r *Recorder) Record(ctx context.Context, e Entry) {
	if ri, ok := requestInfoFrom(ctx); ok {
		if e.IPAddress == "" {
			e.IPAddress = ri.ip
		}
		if e.UserAgent == "" {
			e.UserAgent = ri.userAgent
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.clock.Now()
	}
	err := core.BestEffort(ctx, func(ctx context.Context) error {
		_, err := r.repo.CreateEntry(ctx, e)
		return err
	})
	if err != nil {
		r.logger.Error(fmt.Sprintf("recording audit entry %q: %v", e.Action, err), err)
	}
}

func (r *Recorder) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	return r.repo.QueryEntries(ctx, filter)
}
