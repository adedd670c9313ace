package feed

import (
	"context"

	"github.com/DoyleJ11/cah-client/internal/notify"
)

type Msg interface{ isFeedMsg() }

type Join struct {
	ClientID string
	Outbox   chan notify.Notification // where this client wants to receive notifications
}

type Leave struct{ ClientID string }

type Publish struct{ Notification notify.Notification }

type GetView struct {
	Reply chan View
}

type Shutdown struct{}

func (Join) isFeedMsg()     {}
func (Leave) isFeedMsg()    {}
func (Publish) isFeedMsg()  {}
func (GetView) isFeedMsg()  {}
func (Shutdown) isFeedMsg() {}

type View struct {
	Published  int
	Dropped    int
	NumClients int
}

// Feed fans notifications out to live subscribers, such as websocket clients of
// the control API. Subscribers that fall behind are dropped.
type Feed struct {
	inbox     chan Msg
	clients   map[string]chan notify.Notification
	published int
	dropped   int
	ctx       context.Context
	cancel    context.CancelFunc
}

func New(parent context.Context) *Feed {
	ctx, cancel := context.WithCancel(parent)
	f := &Feed{
		inbox:   make(chan Msg, 64),
		clients: make(map[string]chan notify.Notification),
		ctx:     ctx,
		cancel:  cancel,
	}
	go f.loop()
	return f
}

func (f *Feed) Inbox() chan<- Msg { return f.inbox }

// Notify makes the feed usable as a notify.Notifier.
func (f *Feed) Notify(n notify.Notification) {
	f.send(Publish{Notification: n})
}

// Subscribe joins a client and returns its outbox with a func that leaves.
// The outbox is closed on leave, when the client falls behind, or on shutdown.
func (f *Feed) Subscribe(clientID string, buffer int) (<-chan notify.Notification, func()) {
	out := make(chan notify.Notification, buffer)
	if !f.send(Join{ClientID: clientID, Outbox: out}) {
		close(out)
		return out, func() {}
	}
	return out, func() { f.send(Leave{ClientID: clientID}) }
}

func (f *Feed) send(m Msg) bool {
	if f.ctx.Err() != nil {
		return false
	}
	select {
	case f.inbox <- m:
		return true
	case <-f.ctx.Done():
		return false
	}
}

func (f *Feed) loop() {
	defer f.cancel()
	defer f.closeAll()
	for {
		select {
		case <-f.ctx.Done():
			return
		case m := <-f.inbox:
			if !f.handle(m) {
				return
			}
		}
	}
}

// handle applies one message and reports whether the loop should keep going.
func (f *Feed) handle(m Msg) bool {
	switch msg := m.(type) {
	case Join:
		f.remove(msg.ClientID) // a reused id replaces the old outbox
		f.clients[msg.ClientID] = msg.Outbox
	case Leave:
		f.remove(msg.ClientID)
	case Publish:
		f.published++
		f.fanOut(msg.Notification)
	case GetView:
		msg.Reply <- View{Published: f.published, Dropped: f.dropped, NumClients: len(f.clients)}
	case Shutdown:
		return false
	}
	return true
}

// remove closes and forgets a client. Unknown ids are ignored, so a client
// that was already cut off can still leave.
func (f *Feed) remove(id string) bool {
	ch, ok := f.clients[id]
	if ok {
		delete(f.clients, id)
		close(ch)
	}
	return ok
}

func (f *Feed) closeAll() {
	for id := range f.clients {
		f.remove(id)
	}
}

// fanOut never blocks on a client. Whoever has no room left in their outbox
// misses this notification and is disconnected.
func (f *Feed) fanOut(n notify.Notification) {
	var lagging []string
	for id, ch := range f.clients {
		select {
		case ch <- n:
		default:
			lagging = append(lagging, id)
		}
	}
	for _, id := range lagging {
		if f.remove(id) {
			f.dropped++
		}
	}
}
