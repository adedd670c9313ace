package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/cah-client/internal/feed"
	"github.com/DoyleJ11/cah-client/internal/notify"
)

func clients(f *feed.Feed) int {
	reply := make(chan feed.View, 1)
	f.Inbox() <- feed.GetView{Reply: reply}
	return (<-reply).NumClients
}

func TestEvents_PushesNotifications(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := feed.New(ctx)
	s := newSetup()
	srv := httptest.NewServer(SetupRoutes(Deps{Conn: s.conn, Auth: s.auth, Decks: s.decks, Notifications: s.notes, Feed: f}))
	defer srv.Close()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	require.Eventually(t, func() bool { return clients(f) == 1 }, time.Second, 5*time.Millisecond)

	f.Notify(notify.New(notify.LevelWarn, "Disconnected", "You have been disconnected from the gameserver"))

	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var ev event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, "Notification", ev.Type)
	require.NotNil(t, ev.Notification)
	assert.Equal(t, "Disconnected", ev.Notification.Title)

	_ = c.Close(websocket.StatusNormalClosure, "")
	require.Eventually(t, func() bool { return clients(f) == 0 }, time.Second, 5*time.Millisecond)
}

func TestEvents_DisabledWithoutFeed(t *testing.T) {
	rec := newSetup().do(t, "GET", "/events", "")
	assert.Equal(t, 404, rec.Code)
}
