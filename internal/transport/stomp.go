package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-stomp/stomp/v3/frame"
	"go.uber.org/zap"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultPingInterval     = 30 * time.Second
	readLimit               = 1 << 20

	csrfHeader = "X-CSRF-TOKEN"
)

var stompSubprotocols = []string{"v12.stomp", "v11.stomp", "v10.stomp"}

// StompDialer opens STOMP sessions over a websocket.
type StompDialer struct {
	URL              string
	HandshakeTimeout time.Duration
	// PingInterval is how often the websocket is pinged to detect a dead peer.
	PingInterval time.Duration
	HTTPClient   *http.Client
	Log          *zap.Logger
}

func (d *StompDialer) Dial(ctx context.Context, creds Credentials) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	ping := d.PingInterval
	if ping <= 0 {
		ping = defaultPingInterval
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDial, err)
	}

	protocols := stompSubprotocols
	if creds.WebsocketToken != "" {
		protocols = append(protocols[:len(protocols):len(protocols)], "Access."+creds.WebsocketToken)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ws, _, err := websocket.Dial(dialCtx, d.URL, &websocket.DialOptions{
		HTTPClient:   d.HTTPClient,
		Subprotocols: protocols,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDial, err)
	}
	ws.SetReadLimit(readLimit)

	// The net.Conn outlives the dial context; it is cancelled by Close.
	life, stop := context.WithCancel(context.Background())
	nc := websocket.NetConn(life, ws, websocket.MessageText)
	c := &stompConn{
		ws:     ws,
		nc:     nc,
		r:      frame.NewReader(nc),
		w:      frame.NewWriter(nc),
		stop:   stop,
		log:    log,
		subs:   make(map[string]*stompSub),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}

	deadline, _ := dialCtx.Deadline()
	_ = nc.SetDeadline(deadline)
	version, err := c.handshake(u.Hostname(), creds.CSRFToken)
	if err != nil {
		stop()
		_ = nc.Close()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	_ = nc.SetDeadline(time.Time{})

	log.Debug("stomp connected", zap.String("url", d.URL), zap.String("version", version))
	go c.readLoop()
	go c.keepAlive(life, ping)
	return c, nil
}

// stompConn reads every frame of the connection on one goroutine, so frames
// from different subscriptions are delivered in the order the broker sent them.
type stompConn struct {
	ws   *websocket.Conn
	nc   net.Conn
	r    *frame.Reader
	stop context.CancelFunc
	log  *zap.Logger

	wmu sync.Mutex
	w   *frame.Writer

	mu     sync.Mutex
	subs   map[string]*stompSub
	nextID int

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

func (c *stompConn) handshake(host, csrf string) (string, error) {
	connect := frame.New(frame.CONNECT,
		frame.AcceptVersion, "1.0,1.1,1.2",
		frame.Host, host,
		frame.HeartBeat, "0,0",
	)
	if csrf != "" {
		connect.Header.Add(csrfHeader, csrf)
	}
	if err := c.write(connect); err != nil {
		return "", err
	}
	for {
		f, err := c.r.Read()
		if err != nil {
			return "", err
		}
		if f == nil {
			continue // heart-beat
		}
		switch f.Command {
		case frame.CONNECTED:
			version := f.Header.Get(frame.Version)
			if version == "" {
				version = "1.0"
			}
			return version, nil
		case frame.ERROR:
			return "", brokerError(f)
		default:
			return "", fmt.Errorf("unexpected %s before CONNECTED", f.Command)
		}
	}
}

func brokerError(f *frame.Frame) error {
	msg := f.Header.Get(frame.Message)
	if msg == "" {
		msg = string(f.Body)
	}
	return fmt.Errorf("broker error: %s", msg)
}

func (c *stompConn) write(f *frame.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return c.w.Write(f)
}

func (c *stompConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *stompConn) readLoop() {
	defer close(c.done)
	for {
		f, err := c.r.Read()
		if err != nil {
			c.failAll(err)
			return
		}
		if f == nil {
			continue
		}
		switch f.Command {
		case frame.MESSAGE:
			c.mu.Lock()
			sub := c.subs[f.Header.Get(frame.Subscription)]
			c.mu.Unlock()
			if sub == nil {
				c.log.Debug("message for unknown subscription",
					zap.String("subscription", f.Header.Get(frame.Subscription)),
					zap.String("destination", f.Header.Get(frame.Destination)))
				continue
			}
			sub.deliver(Frame{Destination: sub.destination, Body: f.Body})
		case frame.ERROR:
			c.failAll(brokerError(f))
			return
		case frame.RECEIPT:
		default:
			c.log.Debug("ignoring frame", zap.String("command", f.Command))
		}
	}
}

// failAll tells every subscriber the connection is gone, unless Close did it.
func (c *stompConn) failAll(err error) {
	if c.isClosed() {
		return
	}
	c.log.Debug("connection failed", zap.Error(err))
	c.mu.Lock()
	subs := make([]*stompSub, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	for _, s := range subs {
		s.deliver(Frame{Destination: s.destination, Err: err})
	}
}

func (c *stompConn) keepAlive(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, every)
			err := c.ws.Ping(pctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				c.log.Debug("ping failed", zap.Error(err))
				_ = c.nc.Close()
				return
			}
		}
	}
}

func (c *stompConn) Publish(destination string, body []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	f := frame.New(frame.SEND,
		frame.Destination, destination,
		frame.ContentType, "text/plain;charset=UTF-8",
	)
	f.Body = body
	if err := c.write(f); err != nil {
		return fmt.Errorf("send %s: %w", destination, err)
	}
	return nil
}

// Subscribe registers deliver for destination. Deliveries for all of the
// connection's subscriptions come from one goroutine, in wire order, so deliver
// must not call back into the connection's read side.
func (c *stompConn) Subscribe(destination string, deliver func(Frame)) (Subscription, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	c.mu.Lock()
	c.nextID++
	sub := &stompSub{conn: c, id: strconv.Itoa(c.nextID), destination: destination, deliver: deliver}
	c.subs[sub.id] = sub
	c.mu.Unlock()

	err := c.write(frame.New(frame.SUBSCRIBE,
		frame.Id, sub.id,
		frame.Destination, destination,
		frame.Ack, "auto",
	))
	if err != nil {
		c.forget(sub.id)
		return nil, fmt.Errorf("subscribe %s: %w", destination, err)
	}
	return sub, nil
}

func (c *stompConn) forget(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[id]; !ok {
		return false
	}
	delete(c.subs, id)
	return true
}

type stompSub struct {
	conn        *stompConn
	id          string
	destination string
	deliver     func(Frame)
}

// Unsubscribe stops delivery at once; frames already on the wire are dropped.
func (s *stompSub) Unsubscribe() error {
	if !s.conn.forget(s.id) || s.conn.isClosed() {
		return nil
	}
	return s.conn.write(frame.New(frame.UNSUBSCRIBE, frame.Id, s.id))
}

func (c *stompConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.nc.SetWriteDeadline(time.Now().Add(time.Second))
		if werr := c.write(frame.New(frame.DISCONNECT)); werr != nil && !errors.Is(werr, net.ErrClosed) {
			err = fmt.Errorf("disconnect: %w", werr)
		}
		// The broker may already have dropped the socket after DISCONNECT.
		c.stop()
		_ = c.nc.Close()
		<-c.done
	})
	return err
}
