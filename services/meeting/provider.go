package meetingsvc

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/counseling"
)

const passwordLen = 10

// Provider issues meeting rooms under the configured base URL.
// Credentials are random, so every call yields a new room.
type Provider struct {
	baseURL string
}

var _ counseling.MeetingProvider = (*Provider)(nil) // interface compliance check

func NewProvider(conf *core.Config) *Provider {
	return &Provider{baseURL: strings.TrimRight(conf.Meeting.BaseURL, "/")}
}

func (p *Provider) Generate(ctx context.Context, sessionID string) (counseling.Meeting, error) {
	if err := ctx.Err(); err != nil {
		return counseling.Meeting{}, err
	}
	id := uuid.New().String()
	return counseling.Meeting{
		ID:       id,
		URL:      p.baseURL + "/" + id,
		Password: strings.ReplaceAll(uuid.New().String(), "-", "")[:passwordLen],
	}, nil
}
