package dashboard

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/counseling"
	"github.com/trezcool/piyuguide/core/inquiry"
	"github.com/trezcool/piyuguide/core/user"
)

type (
	InquiryCounter interface {
		CountInquiriesByStatus(ctx context.Context, officeID string) (map[string]int, error)
	}

	SessionStats interface {
		Stats(ctx context.Context, officeID string) (counseling.Stats, error)
	}

	Unread interface {
		UnreadCount(ctx context.Context, userID string) (int, error)
	}

	Team interface {
		Team(ctx context.Context, p user.Principal) ([]user.TeamMember, error)
	}

	Service struct {
		inquiries InquiryCounter
		sessions  SessionStats
		notifs    Unread
		team      Team
		clock     core.Clock
	}
)

// Stats is what an office admin sees on their dashboard.
type Stats struct {
	Inquiries           map[string]int    `json:"inquiries"`
	PendingInquiries    int               `json:"pending_inquiries"`
	Sessions            counseling.Stats  `json:"sessions"`
	UnreadNotifications int               `json:"unread_notifications"`
	OnlineTeam          int               `json:"online_team"`
	Team                []user.TeamMember `json:"team"`
	GeneratedAt         time.Time         `json:"generated_at"`
}

func NewService(inquiries InquiryCounter, sessions SessionStats, notifs Unread, team Team, clock core.Clock) *Service {
	return &Service{inquiries: inquiries, sessions: sessions, notifs: notifs, team: team, clock: clock}
}

func (svc *Service) Stats(ctx context.Context, p user.Principal) (Stats, error) {
	if !p.IsOfficeAdmin() {
		return Stats{}, user.ErrNotOfficeAdmin
	}

	inqs, err := svc.inquiries.CountInquiriesByStatus(ctx, p.OfficeID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "counting inquiries")
	}
	for _, s := range inquiry.Statuses {
		if _, ok := inqs[s]; !ok {
			inqs[s] = 0
		}
	}
	st := Stats{
		Inquiries:        inqs,
		PendingInquiries: inqs[inquiry.StatusPending],
		GeneratedAt:      svc.clock.Now(),
	}

	if st.Sessions, err = svc.sessions.Stats(ctx, p.OfficeID); err != nil {
		return Stats{}, err
	}
	if st.UnreadNotifications, err = svc.notifs.UnreadCount(ctx, p.UserID); err != nil {
		return Stats{}, errors.Wrap(err, "counting unread notifications")
	}
	if st.Team, err = svc.team.Team(ctx, p); err != nil {
		return Stats{}, err
	}
	for _, m := range st.Team {
		if m.Online {
			st.OnlineTeam++
		}
	}
	return st, nil
}
