package pushsvc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/piyuguide/core/notification"
	logsvc "github.com/trezcool/piyuguide/services/logger"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	hub := NewHub(logsvc.NewNopLogger())
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(r.URL.Query().Get("user"), conn)
	}))
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_Push(t *testing.T) {
	hub, srv := newTestHub(t)
	conn := dial(t, srv, "u1")
	require.Eventually(t, func() bool { return hub.Connected("u1") == 1 }, time.Second, 10*time.Millisecond)

	ev := notification.Event{
		Kind:         notification.EventNotification,
		Notification: notification.Notification{ID: "n1", UserID: "u1", Title: "Hello"},
	}
	require.NoError(t, hub.Push(context.Background(), "u1", ev))

	var got notification.Event
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "n1", got.Notification.ID)
	assert.Equal(t, "Hello", got.Notification.Title)

	// offline users are skipped
	assert.NoError(t, hub.Push(context.Background(), "u2", ev))

	_ = conn.Close()
	assert.Eventually(t, func() bool { return hub.Connected("u1") == 0 }, time.Second, 10*time.Millisecond)
}
