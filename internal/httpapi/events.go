package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cah-client/internal/notify"
)

const (
	eventsBuffer  = 16
	eventsTimeout = 3 * time.Second
)

// Feed streams notifications to websocket clients of the control API.
type Feed interface {
	Subscribe(clientID string, buffer int) (<-chan notify.Notification, func())
}

type event struct {
	Type         string               `json:"type"`
	Notification *notify.Notification `json:"notification,omitempty"`
}

// Events upgrades to a websocket and pushes every notification as it happens.
// Anything the client sends is ignored.
func (d Deps) Events(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	clientID := uuid.NewString()
	out, leave := d.Feed.Subscribe(clientID, eventsBuffer)
	defer leave()

	log := d.Log.With(zap.String("client", clientID))
	log.Debug("events client joined")

	// CloseRead keeps control frames flowing; ctx ends when the client goes away.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-out:
			if !ok {
				conn.Close(websocket.StatusTryAgainLater, "fell behind")
				return
			}
			payload, err := json.Marshal(event{Type: "Notification", Notification: &n})
			if err != nil {
				log.Warn("encode event", zap.Error(err))
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, eventsTimeout)
			err = conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				log.Debug("events client gone", zap.Error(err))
				return
			}
		}
	}
}
