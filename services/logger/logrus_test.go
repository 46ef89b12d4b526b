package logsvc

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/user"
)

func TestLogrusLogger(t *testing.T) {
	var buf bytes.Buffer
	conf := &core.Config{Env: "PROD", LogLevel: "warn"}
	l := NewLogrusLogger(NewLogrus(conf, &buf))

	l.Info("skipped")
	assert.Empty(t, buf.String())

	p := user.Principal{UserID: "u1", Role: user.RoleOfficeAdmin}
	l.Error("tick failed", errors.New("boom"), map[string]interface{}{"session_id": "s1"}, p)

	out := buf.String()
	assert.Contains(t, out, `"msg":"tick failed"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"session_id":"s1"`)
	assert.Contains(t, out, `"user_id":"u1"`)
}

func TestNewLogrus_BadLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogrus(&core.Config{Env: "DEV", LogLevel: "loud"}, &buf)
	assert.Equal(t, "info", log.GetLevel().String())
}
