// Package transporttest provides an in-memory transport.Conn for tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/DoyleJ11/cah-client/internal/transport"
)

type Published struct {
	Destination string
	Body        string
}

// Conn records publishes and lets a test push frames into subscriptions.
// Like a real connection it has a single delivery path: frames pushed from
// several goroutines reach subscribers one at a time, never interleaved.
type Conn struct {
	// rd is held for the length of a delivery.
	rd sync.Mutex

	mu        sync.Mutex
	subs      map[string]func(transport.Frame)
	published []Published
	closed    bool
	closes    int

	// PublishErr, when set, is returned by every Publish.
	PublishErr error
	// Sent receives a copy of every publish, if non-nil.
	Sent chan Published
}

func NewConn() *Conn {
	return &Conn{subs: make(map[string]func(transport.Frame))}
}

func (c *Conn) Publish(destination string, body []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrClosed
	}
	if c.PublishErr != nil {
		c.mu.Unlock()
		return c.PublishErr
	}
	p := Published{Destination: destination, Body: string(body)}
	c.published = append(c.published, p)
	sent := c.Sent
	c.mu.Unlock()

	if sent != nil {
		sent <- p
	}
	return nil
}

func (c *Conn) Subscribe(destination string, deliver func(transport.Frame)) (transport.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, transport.ErrClosed
	}
	c.subs[destination] = deliver
	return sub{c: c, dest: destination}, nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closes++
	clear(c.subs)
	return nil
}

// Deliver pushes body to the subscriber of destination and reports whether one existed.
func (c *Conn) Deliver(destination string, body []byte) bool {
	return c.deliver(transport.Frame{Destination: destination, Body: body})
}

// Fail simulates the connection dropping underneath the subscription on destination.
func (c *Conn) Fail(destination string, err error) bool {
	return c.deliver(transport.Frame{Destination: destination, Err: err})
}

func (c *Conn) deliver(f transport.Frame) bool {
	c.rd.Lock()
	defer c.rd.Unlock()
	c.mu.Lock()
	fn := c.subs[f.Destination]
	c.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(f)
	return true
}

func (c *Conn) Subscribed(destination string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[destination]
	return ok
}

func (c *Conn) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) CloseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type sub struct {
	c    *Conn
	dest string
}

func (s sub) Unsubscribe() error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	delete(s.c.subs, s.dest)
	return nil
}

// Dialer hands out Conns in order and records the credentials it was given.
type Dialer struct {
	mu    sync.Mutex
	conns []*Conn
	creds []transport.Credentials

	// Err, when set, fails every Dial.
	Err error
}

func (d *Dialer) Dial(ctx context.Context, creds transport.Credentials) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.creds = append(d.creds, creds)
	if d.Err != nil {
		return nil, d.Err
	}
	c := NewConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Conn(nil), d.conns...)
}

func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *Dialer) Credentials() []transport.Credentials {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transport.Credentials(nil), d.creds...)
}
