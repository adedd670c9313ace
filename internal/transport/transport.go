package transport

import (
	"context"
	"errors"
)

var ErrDial = errors.New("websocket dial failed")
var ErrHandshake = errors.New("stomp handshake failed")
var ErrClosed = errors.New("connection closed")

// Frame is one message delivered on a subscription. Err is set instead of Body
// when the connection failed underneath the subscription.
type Frame struct {
	Destination string
	Body        []byte
	Err         error
}

// Credentials are the per-connection secrets obtained from the REST collaborators.
// Both are empty for an anonymous connection.
type Credentials struct {
	WebsocketToken string
	CSRFToken      string
}

type Subscription interface {
	Unsubscribe() error
}

// Conn is a connected, handshaken session with the message broker.
type Conn interface {
	Publish(destination string, body []byte) error
	// Subscribe calls deliver for every frame on destination. Calls for all of a
	// connection's subscriptions are made one at a time, in the order the frames
	// arrived on the wire, so events on different destinations never overtake
	// each other.
	Subscribe(destination string, deliver func(Frame)) (Subscription, error)
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context, creds Credentials) (Conn, error)
}
