package conn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cah-client/internal/dispatch"
	"github.com/DoyleJ11/cah-client/internal/notify"
	"github.com/DoyleJ11/cah-client/internal/router"
	"github.com/DoyleJ11/cah-client/internal/session"
	"github.com/DoyleJ11/cah-client/internal/transport"
)

var ErrNoTokenSource = errors.New("no websocket token source configured")
var ErrShutdown = errors.New("connection manager stopped")

const defaultEstablishTimeout = 15 * time.Second

// Identity is the signed-in user a connection is opened for.
type Identity struct {
	UserID   string `json:"id"`
	Nickname string `json:"nickname"`
}

// TokenSource issues short-lived websocket credentials for the signed-in user.
type TokenSource interface {
	WebsocketToken(ctx context.Context) (string, error)
}

type CSRFSource interface {
	CSRFToken(ctx context.Context) (string, error)
}

type Status struct {
	Ready     bool      `json:"ready"`
	Epoch     string    `json:"epoch,omitempty"`
	Identity  *Identity `json:"identity,omitempty"`
	Since     time.Time `json:"since,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

type Msg interface{ isManagerMsg() }

// SetIdentity tears down the current connection and opens one for Identity
// (nil for anonymous). It is the only path that reconnects.
type SetIdentity struct {
	Identity *Identity
	Reply    chan error
}

type Teardown struct {
	Reply chan error
}

type Current struct {
	Reply chan *session.Session
}

type GetStatus struct {
	Reply chan Status
}

type Shutdown struct {
	Reply chan error
}

type dropped struct {
	epoch string
	err   error
}

func (SetIdentity) isManagerMsg() {}
func (Teardown) isManagerMsg()    {}
func (Current) isManagerMsg()     {}
func (GetStatus) isManagerMsg()   {}
func (Shutdown) isManagerMsg()    {}
func (dropped) isManagerMsg()     {}

type Config struct {
	Dialer           transport.Dialer
	Tokens           TokenSource
	CSRF             CSRFSource
	Notifier         notify.Notifier
	Log              *zap.Logger
	EstablishTimeout time.Duration
	TickInterval     time.Duration
}

type connection struct {
	epoch    string
	identity *Identity
	conn     transport.Conn
	sess     *session.Session
	since    time.Time
}

// Manager holds at most one live connection and serializes every change to it.
type Manager struct {
	inbox  chan Msg
	cfg    Config
	log    *zap.Logger
	router *router.Router

	cur     *connection
	lastErr string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewManager(parent context.Context, cfg Config) *Manager {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewLogger(cfg.Log)
	}
	if cfg.EstablishTimeout <= 0 {
		cfg.EstablishTimeout = defaultEstablishTimeout
	}
	m := &Manager{
		inbox:  make(chan Msg, 64),
		cfg:    cfg,
		log:    cfg.Log.Named("conn"),
		router: router.New(cfg.Log),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go m.loop()
	return m
}

func (m *Manager) Inbox() chan<- Msg { return m.inbox }

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			_ = m.teardown()
			return

		case msg := <-m.inbox:
			switch msg := msg.(type) {
			case SetIdentity:
				msg.Reply <- m.setIdentity(msg.Identity)

			case Teardown:
				msg.Reply <- m.teardown()

			case Current:
				if m.cur == nil {
					msg.Reply <- nil
					break
				}
				msg.Reply <- m.cur.sess

			case GetStatus:
				msg.Reply <- m.status()

			case dropped:
				m.handleDrop(msg)

			case Shutdown:
				err := m.teardown()
				m.cancel()
				msg.Reply <- err
				return
			}
		}
	}
}

func (m *Manager) setIdentity(id *Identity) error {
	err := m.teardown()
	if estErr := m.establish(id); estErr != nil {
		m.lastErr = estErr.Error()
		return multierr.Append(err, estErr)
	}
	m.lastErr = ""
	if err != nil {
		m.log.Warn("previous connection did not close cleanly", zap.Error(err))
	}
	return nil
}

func (m *Manager) establish(id *Identity) error {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.EstablishTimeout)
	defer cancel()

	var creds transport.Credentials
	var refresh func(context.Context) (string, error)
	userID := ""
	if id != nil {
		if m.cfg.Tokens == nil {
			return ErrNoTokenSource
		}
		tok, err := m.cfg.Tokens.WebsocketToken(ctx)
		if err != nil {
			m.connectionError()
			return fmt.Errorf("websocket token: %w", err)
		}
		creds.WebsocketToken = tok
		refresh = m.cfg.Tokens.WebsocketToken
		userID = id.UserID
	}
	if m.cfg.CSRF != nil {
		csrf, err := m.cfg.CSRF.CSRFToken(ctx)
		if err != nil {
			m.connectionError()
			return fmt.Errorf("csrf token: %w", err)
		}
		creds.CSRFToken = csrf
	}

	c, err := m.cfg.Dialer.Dial(ctx, creds)
	if err != nil {
		m.connectionError()
		return err
	}

	epoch := uuid.NewString()
	sess, err := session.New(m.ctx, session.Config{
		Conn:         c,
		Epoch:        epoch,
		UserID:       userID,
		Router:       m.router,
		Notifier:     m.cfg.Notifier,
		Log:          m.cfg.Log,
		RefreshToken: refresh,
		OnDrop:       func(err error) { go m.send(dropped{epoch: epoch, err: err}) },
		TickInterval: m.cfg.TickInterval,
	})
	if err != nil {
		m.connectionError()
		return multierr.Append(err, c.Close())
	}

	m.cur = &connection{epoch: epoch, identity: id, conn: c, sess: sess, since: time.Now()}
	m.log.Info("connected", zap.String("epoch", epoch), zap.Bool("anonymous", id == nil))

	welcome := "Welcome to the gameserver"
	if id != nil && id.Nickname != "" {
		welcome += " " + id.Nickname
	}
	m.cfg.Notifier.Notify(notify.New(notify.LevelSuccess, welcome, ""))
	return nil
}

// teardown is idempotent: with no live connection it does nothing.
func (m *Manager) teardown() error {
	if m.cur == nil {
		return nil
	}
	cur := m.cur
	m.cur = nil
	cur.sess.Close()
	err := cur.conn.Close()
	m.log.Info("connection closed", zap.String("epoch", cur.epoch), zap.Error(err))
	return err
}

func (m *Manager) handleDrop(d dropped) {
	if m.cur == nil || m.cur.epoch != d.epoch {
		m.log.Debug("ignoring drop from stale epoch", zap.String("epoch", d.epoch))
		return
	}
	signedIn := m.cur.identity != nil
	if err := m.teardown(); err != nil {
		m.log.Debug("close after drop", zap.Error(err))
	}
	m.lastErr = d.err.Error()
	if signedIn {
		m.cfg.Notifier.Notify(notify.New(notify.LevelWarn, "You have been disconnected from the gameserver", closeReason(d.err)))
	}
}

func closeReason(err error) string {
	if err == nil || err.Error() == "" {
		return "Unknown reason"
	}
	return err.Error()
}

func (m *Manager) connectionError() {
	m.cfg.Notifier.Notify(notify.New(notify.LevelError, "Connection error", "Please reload the page to attempt reconnection"))
}

func (m *Manager) status() Status {
	st := Status{LastError: m.lastErr}
	if m.cur != nil {
		st.Ready = true
		st.Epoch = m.cur.epoch
		st.Identity = m.cur.identity
		st.Since = m.cur.since
	}
	return st
}

func (m *Manager) send(msg Msg) bool {
	select {
	case m.inbox <- msg:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func (m *Manager) request(ctx context.Context, msg Msg) error {
	select {
	case m.inbox <- msg:
		return nil
	case <-m.done:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, m *Manager, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-m.done:
		return zero, ErrShutdown
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (m *Manager) SetIdentity(ctx context.Context, id *Identity) error {
	reply := make(chan error, 1)
	if err := m.request(ctx, SetIdentity{Identity: id, Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, m, reply)
	return multierr.Append(waitErr, err)
}

func (m *Manager) Teardown(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := m.request(ctx, Teardown{Reply: reply}); err != nil {
		return err
	}
	err, waitErr := await(ctx, m, reply)
	return multierr.Append(waitErr, err)
}

func (m *Manager) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	if err := m.request(ctx, GetStatus{Reply: reply}); err != nil {
		return Status{}, err
	}
	return await(ctx, m, reply)
}

// Session returns the live session, or nil when not ready.
func (m *Manager) Session(ctx context.Context) (*session.Session, error) {
	reply := make(chan *session.Session, 1)
	if err := m.request(ctx, Current{Reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, m, reply)
}

// Do runs an intent on the live session. Without one it fails with dispatch.ErrNotReady.
func (m *Manager) Do(ctx context.Context, a dispatch.Action) error {
	s, err := m.Session(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		return dispatch.ErrNotReady
	}
	return s.Do(ctx, a)
}

func (m *Manager) State(ctx context.Context) (session.View, error) {
	s, err := m.Session(ctx)
	if err != nil {
		return session.View{}, err
	}
	if s == nil {
		return session.View{}, dispatch.ErrNotReady
	}
	return s.State(ctx)
}

// Shutdown closes the live connection and stops the manager.
func (m *Manager) Shutdown(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := m.request(ctx, Shutdown{Reply: reply}); err != nil {
		if errors.Is(err, ErrShutdown) {
			return nil
		}
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		select {
		case err := <-reply:
			return err
		default:
			return nil
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}
