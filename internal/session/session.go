package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cah-client/internal/dispatch"
	"github.com/DoyleJ11/cah-client/internal/notify"
	"github.com/DoyleJ11/cah-client/internal/protocol"
	"github.com/DoyleJ11/cah-client/internal/router"
	"github.com/DoyleJ11/cah-client/internal/store"
	"github.com/DoyleJ11/cah-client/internal/transport"
)

var ErrClosed = fmt.Errorf("session closed: %w", dispatch.ErrNotReady)
var ErrReauthUnavailable = errors.New("server asked to reauthenticate but no token source is configured")
var ErrReauthFailed = errors.New("reauthentication failed")

const (
	defaultTickInterval = time.Second
	reauthTimeout       = 10 * time.Second
)

type Msg interface{ isSessionMsg() }

// Inbound is a frame from any of the session's subscriptions.
type Inbound struct {
	Frame transport.Frame
}

// Intent runs an outbound action. Reply must be buffered.
type Intent struct {
	Action dispatch.Action
	Reply  chan error
}

type GetState struct {
	Reply chan View
}

// Tick is one second of countdown from the ticker started for generation Gen.
type Tick struct {
	Gen int
}

type Shutdown struct{}

type reauthenticated struct {
	token string
	err   error
}

func (Inbound) isSessionMsg()         {}
func (Intent) isSessionMsg()          {}
func (GetState) isSessionMsg()        {}
func (Tick) isSessionMsg()            {}
func (Shutdown) isSessionMsg()        {}
func (reauthenticated) isSessionMsg() {}

// View is a copy of the session's state, safe to keep.
type View struct {
	Epoch  string      `json:"epoch"`
	UserID string      `json:"userId,omitempty"`
	State  store.State `json:"state"`
}

type Config struct {
	Conn     transport.Conn
	Epoch    string
	UserID   string // "" for anonymous
	Router   *router.Router
	Notifier notify.Notifier
	Log      *zap.Logger
	// RefreshToken gets a fresh websocket token when the server asks the
	// connection to reauthenticate. Nil for anonymous sessions.
	RefreshToken func(ctx context.Context) (string, error)
	// OnDrop is called at most once, from the session goroutine, when the
	// transport fails. It must not block.
	OnDrop       func(err error)
	TickInterval time.Duration
}

// Session owns the store for one connection epoch. Every inbound frame, intent
// and timer tick is applied on its goroutine, one at a time.
type Session struct {
	inbox    chan Msg
	conn     transport.Conn
	epoch    string
	rctx     router.Context
	router   *router.Router
	notifier notify.Notifier
	log      *zap.Logger
	refresh  func(ctx context.Context) (string, error)
	onDrop   func(err error)

	st store.State

	gameTopic string
	gameSub   transport.Subscription

	tickEvery time.Duration
	tickGen   int
	tickStop  chan struct{}

	dropped bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New subscribes the per-user and lobby destinations, asks for the game list
// and starts the session loop.
func New(parent context.Context, cfg Config) (*Session, error) {
	ctx, cancel := context.WithCancel(parent)

	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	rt := cfg.Router
	if rt == nil {
		rt = router.New(log)
	}
	n := cfg.Notifier
	if n == nil {
		n = notify.Func(func(notify.Notification) {})
	}
	every := cfg.TickInterval
	if every <= 0 {
		every = defaultTickInterval
	}

	s := &Session{
		inbox:     make(chan Msg, 64),
		conn:      cfg.Conn,
		epoch:     cfg.Epoch,
		rctx:      router.Context{UserID: cfg.UserID},
		router:    rt,
		notifier:  n,
		log:       log.Named("session").With(zap.String("epoch", cfg.Epoch)),
		refresh:   cfg.RefreshToken,
		onDrop:    cfg.OnDrop,
		tickEvery: every,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	dests := []string{protocol.QueueReply, protocol.QueueErrors}
	if cfg.UserID != "" {
		dests = append(dests, protocol.QueueReauthenticate)
	}
	dests = append(dests, protocol.TopicGameBrowser)
	for _, dest := range dests {
		if _, err := s.conn.Subscribe(dest, s.deliver); err != nil {
			cancel()
			return nil, err
		}
	}
	if err := s.publish(dispatch.ListGames{}); err != nil {
		cancel()
		return nil, err
	}

	go s.loop()
	return s, nil
}

func (s *Session) Inbox() chan<- Msg     { return s.inbox }
func (s *Session) Done() <-chan struct{} { return s.done }
func (s *Session) Epoch() string         { return s.epoch }

// Do runs a on the session goroutine and returns its validation or publish error.
func (s *Session) Do(ctx context.Context, a dispatch.Action) error {
	reply := make(chan error, 1)
	if err := s.request(ctx, Intent{Action: a, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-s.done:
		select {
		case err := <-reply:
			return err
		default:
			return ErrClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := s.request(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-s.done:
		select {
		case v := <-reply:
			return v, nil
		default:
			return View{}, ErrClosed
		}
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Close stops the loop and waits for it. The transport is left to its owner.
func (s *Session) Close() {
	s.cancel()
	<-s.done
}

func (s *Session) request(ctx context.Context, m Msg) error {
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) send(m Msg) bool {
	select {
	case s.inbox <- m:
		return true
	case <-s.ctx.Done():
		return false
	}
}

func (s *Session) deliver(f transport.Frame) { s.send(Inbound{Frame: f}) }

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.shutdown()
			return

		case m := <-s.inbox:
			if s.ctx.Err() != nil {
				s.shutdown()
				return
			}
			switch msg := m.(type) {
			case Inbound:
				s.handleFrame(msg.Frame)

			case Intent:
				msg.Reply <- s.publish(msg.Action)

			case GetState:
				msg.Reply <- View{Epoch: s.epoch, UserID: s.rctx.UserID, State: s.st.Clone()}

			case Tick:
				s.tick(msg.Gen)

			case reauthenticated:
				s.finishReauth(msg)

			case Shutdown:
				s.shutdown()
				return
			}

			if s.dropped {
				s.shutdown()
				return
			}
			s.syncTicker()
		}
	}
}

func (s *Session) shutdown() {
	s.stopTicker()
	s.cancel()
}

func (s *Session) handleFrame(f transport.Frame) {
	if f.Err != nil {
		s.fail(f.Err)
		return
	}

	switch f.Destination {
	case protocol.QueueReply:
		rep, err := protocol.DecodeReply(f.Body)
		if err != nil {
			s.log.Warn("dropping reply", zap.Error(err))
			return
		}
		s.apply(s.router.Reply(&s.st, s.rctx, rep))

	case protocol.QueueErrors:
		s.serverError(f.Body)

	case protocol.QueueReauthenticate:
		s.reauthenticate()

	case protocol.TopicGameBrowser:
		s.route(protocol.SourceGlobal, f)

	default:
		if s.gameTopic == "" || f.Destination != s.gameTopic {
			s.log.Debug("dropping frame for stale subscription", zap.String("destination", f.Destination))
			return
		}
		s.route(protocol.SourceGame, f)
	}
}

func (s *Session) route(src protocol.Source, f transport.Frame) {
	ev, err := protocol.DecodePacket(f.Body)
	if err != nil {
		s.log.Warn("dropping packet",
			zap.String("destination", f.Destination),
			zap.Stringer("source", src),
			zap.Error(err))
		return
	}
	s.apply(s.router.Route(&s.st, s.rctx, src, ev))
}

func (s *Session) apply(effects []router.Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case router.Notify:
			s.notifier.Notify(e.Notification)
		case router.Dispatch:
			if err := s.publish(e.Action); err != nil {
				s.log.Warn("follow-up action failed", zap.String("action", e.Action.Name()), zap.Error(err))
			}
		case router.SubscribeGame:
			s.subscribeGame(e.GameID)
		case router.UnsubscribeGame:
			s.unsubscribeGame()
		case router.StartTicker:
			s.startTicker()
		case router.StopTicker:
			s.stopTicker()
		}
	}
}

func (s *Session) publish(a dispatch.Action) error {
	out, err := dispatch.Prepare(&s.st, s.rctx.UserID, a)
	if err != nil {
		return err
	}
	if out.UnsubscribeGame {
		s.unsubscribeGame()
	}
	if err := s.conn.Publish(out.Destination, out.Body); err != nil {
		return fmt.Errorf("%s: %w", a.Name(), err)
	}
	s.log.Debug("published", zap.String("action", a.Name()), zap.String("destination", out.Destination))
	return nil
}

func (s *Session) subscribeGame(gameID string) {
	topic := protocol.GameTopic(gameID)
	if topic == s.gameTopic {
		return
	}
	s.unsubscribeGame()
	sub, err := s.conn.Subscribe(topic, s.deliver)
	if err != nil {
		s.log.Warn("game subscription failed", zap.String("game_id", gameID), zap.Error(err))
		s.notifier.Notify(notify.New(notify.LevelError, "Connection error", "Could not follow the game. Try joining it again."))
		return
	}
	s.gameTopic, s.gameSub = topic, sub
}

func (s *Session) unsubscribeGame() {
	if s.gameSub == nil {
		return
	}
	if err := s.gameSub.Unsubscribe(); err != nil {
		s.log.Warn("game unsubscribe failed", zap.String("destination", s.gameTopic), zap.Error(err))
	}
	s.gameSub, s.gameTopic = nil, ""
}

// serverError surfaces /user/queue/errors. Structured bodies keep their own title.
func (s *Session) serverError(body []byte) {
	var e protocol.ReplyError
	if err := json.Unmarshal(body, &e); err != nil || e.Title == "" {
		e = protocol.ReplyError{Title: "Gameserver error", Message: string(body)}
	}
	s.notifier.Notify(notify.New(notify.LevelError, e.Title, e.Message))
}

func (s *Session) reauthenticate() {
	if s.refresh == nil {
		s.fail(ErrReauthUnavailable)
		return
	}
	refresh := s.refresh
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, reauthTimeout)
		defer cancel()
		token, err := refresh(ctx)
		s.send(reauthenticated{token: token, err: err})
	}()
}

func (s *Session) finishReauth(r reauthenticated) {
	if r.err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrReauthFailed, r.err))
		return
	}
	if err := s.publish(dispatch.Reauthenticate{Token: r.token}); err != nil {
		s.fail(fmt.Errorf("%w: %w", ErrReauthFailed, err))
	}
}

func (s *Session) fail(err error) {
	if s.dropped {
		return
	}
	s.dropped = true
	s.log.Warn("connection lost", zap.Error(err))
	if s.onDrop != nil {
		s.onDrop(err)
	}
}

// startTicker arms a fresh countdown. Ticks from any earlier ticker carry an
// older generation and are ignored.
func (s *Session) startTicker() {
	s.stopTicker()
	stop := make(chan struct{})
	s.tickStop = stop
	gen := s.tickGen
	every := s.tickEvery
	go func() {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if !s.send(Tick{Gen: gen}) {
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

func (s *Session) stopTicker() {
	s.tickGen++
	if s.tickStop != nil {
		close(s.tickStop)
		s.tickStop = nil
	}
}

func (s *Session) tick(gen int) {
	if gen != s.tickGen || s.tickStop == nil {
		return
	}
	if !s.st.Active.Tick() {
		s.stopTicker()
	}
}

// syncTicker stops the countdown once the timer it drives is gone.
func (s *Session) syncTicker() {
	if s.tickStop != nil && !s.st.Active.Timer.Running {
		s.stopTicker()
	}
}
