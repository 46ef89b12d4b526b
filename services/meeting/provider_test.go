package meetingsvc

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/piyuguide/core"
)

func TestProvider_Generate(t *testing.T) {
	conf := &core.Config{Meeting: core.MeetingConfig{BaseURL: "https://meet.test/"}}
	p := NewProvider(conf)

	m1, err := p.Generate(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(m1.URL, "https://meet.test/"+m1.ID))
	assert.Len(t, m1.Password, passwordLen)

	m2, err := p.Generate(context.Background(), "s1")
	require.NoError(t, err)
	assert.NotEqual(t, m1.ID, m2.ID)
	assert.NotEqual(t, m1.Password, m2.Password)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Generate(ctx, "s1")
	assert.ErrorIs(t, err, context.Canceled)
}
