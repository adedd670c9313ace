package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cah-client/internal/dispatch"
	"github.com/DoyleJ11/cah-client/internal/game"
	"github.com/DoyleJ11/cah-client/internal/notify"
	"github.com/DoyleJ11/cah-client/internal/protocol"
	"github.com/DoyleJ11/cah-client/internal/transport/transporttest"
)

// helper: receive one publish with a timeout so tests never hang
func recvPublished(t *testing.T, ch <-chan transporttest.Published, within time.Duration) transporttest.Published {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(within):
		t.Fatalf("timed out waiting for publish")
		return transporttest.Published{}
	}
}

func recvNoPublished(t *testing.T, ch <-chan transporttest.Published, within time.Duration) {
	t.Helper()
	select {
	case p := <-ch:
		t.Fatalf("expected no publish within %v, got %+v", within, p)
	case <-time.After(within):
	}
}

func view(t *testing.T, s *Session) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := s.State(ctx)
	require.NoError(t, err)
	return v
}

func packet(t *testing.T, ev protocol.Event) []byte {
	t.Helper()
	b, err := protocol.EncodePacket(ev)
	require.NoError(t, err)
	return b
}

func reply(t *testing.T, typ protocol.ReplyType, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	b, err := json.Marshal(protocol.Reply{Type: typ, Data: raw})
	require.NoError(t, err)
	return b
}

type harness struct {
	conn  *transporttest.Conn
	sent  chan transporttest.Published
	rec   *notify.Recorder
	drops chan error
	s     *Session
}

func start(t *testing.T, userID string, tweak func(*Config)) *harness {
	t.Helper()
	h := &harness{
		conn:  transporttest.NewConn(),
		sent:  make(chan transporttest.Published, 16),
		rec:   notify.NewRecorder(16),
		drops: make(chan error, 4),
	}
	h.conn.Sent = h.sent

	cfg := Config{
		Conn:     h.conn,
		Epoch:    "epoch-1",
		UserID:   userID,
		Notifier: h.rec,
		Log:      zap.NewNop(),
		OnDrop:   func(err error) { h.drops <- err },
	}
	if tweak != nil {
		tweak(&cfg)
	}

	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	h.s = s

	first := recvPublished(t, h.sent, 100*time.Millisecond)
	require.Equal(t, protocol.DestListGames, first.Destination)
	return h
}

// joinGame drives a JOIN_GAME reply so the session holds an active game.
func (h *harness) joinGame(t *testing.T, g game.Game) {
	t.Helper()
	require.True(t, h.conn.Deliver(protocol.QueueReply, reply(t, protocol.ReplyJoinGame, g)))
	require.Eventually(t, func() bool { return h.conn.Subscribed(protocol.GameTopic(g.ID)) }, time.Second, 5*time.Millisecond)
}

func TestSession_StartSubscribesAndListsGames(t *testing.T) {
	h := start(t, "", nil)

	for _, dest := range []string{protocol.TopicGameBrowser, protocol.QueueReply, protocol.QueueErrors} {
		assert.True(t, h.conn.Subscribed(dest), dest)
	}
	assert.False(t, h.conn.Subscribed(protocol.QueueReauthenticate), "anonymous connections are never asked to reauthenticate")

	h.conn.Deliver(protocol.QueueReply, reply(t, protocol.ReplyListGames, []game.Game{{ID: "g1"}, {ID: "g2", State: game.StateAbandoned}}))

	v := view(t, h.s)
	assert.Equal(t, "epoch-1", v.Epoch)
	assert.Len(t, v.State.Lobby.Games, 2)
	assert.Len(t, v.State.Lobby.Visible(), 1)
}

func TestSession_JoinFollowsGameTopic(t *testing.T) {
	h := start(t, "p1", nil)
	h.joinGame(t, game.Game{ID: "g1", HostID: "p2", Players: []game.Player{{ID: "p2"}}})

	h.conn.Deliver(protocol.GameTopic("g1"), packet(t, protocol.PlayerJoined{GameRef: protocol.GameRef{GameID: "g1"}, Player: game.Player{ID: "p1"}}))
	h.conn.Deliver(protocol.GameTopic("g1"), packet(t, protocol.Chat{GameRef: protocol.GameRef{GameID: "g1"}, Message: "hi", Sender: protocol.Sender{ID: "p2", Nickname: "bob"}}))

	v := view(t, h.s)
	require.NotNil(t, v.State.Active.Game)
	assert.Len(t, v.State.Active.Game.Players, 2)
	require.Len(t, v.State.Active.Chat, 1)
	assert.Equal(t, "bob: hi", v.State.Active.Chat[0].Line())
	assert.Empty(t, v.State.Lobby.Chat)
}

func TestSession_LeaveUnsubscribesAndDropsLateFrames(t *testing.T) {
	h := start(t, "p1", nil)
	h.joinGame(t, game.Game{ID: "g1", Players: []game.Player{{ID: "p1"}}})

	require.NoError(t, h.s.Do(context.Background(), dispatch.LeaveGame{}))
	p := recvPublished(t, h.sent, 100*time.Millisecond)
	assert.Equal(t, protocol.DestLeaveGame, p.Destination)
	assert.False(t, h.conn.Subscribed(protocol.GameTopic("g1")))

	// a late frame for the old topic has nowhere to go
	assert.False(t, h.conn.Deliver(protocol.GameTopic("g1"), packet(t, protocol.DealCard{Card: game.WhiteCard{ID: "w1"}})))
	assert.Nil(t, view(t, h.s).State.Active.Game)
}

func TestSession_AbandonedGameRemovesNonHost(t *testing.T) {
	h := start(t, "p2", nil)
	h.joinGame(t, game.Game{ID: "g1", HostID: "p1", State: game.StatePlaying, Players: []game.Player{{ID: "p1"}, {ID: "p2"}}})

	h.conn.Deliver(protocol.GameTopic("g1"), packet(t, protocol.StateChange{GameRef: protocol.GameRef{GameID: "g1"}, State: game.StateAbandoned}))

	p := recvPublished(t, h.sent, 200*time.Millisecond)
	assert.Equal(t, protocol.DestLeaveGame, p.Destination)
	recvNoPublished(t, h.sent, 50*time.Millisecond)

	assert.Nil(t, view(t, h.s).State.Active.Game)
	assert.False(t, h.conn.Subscribed(protocol.GameTopic("g1")))
	recent := h.rec.Recent()
	require.NotEmpty(t, recent)
	assert.Equal(t, "Game closed", recent[0].Title)
}

func TestSession_IntentErrors(t *testing.T) {
	h := start(t, "", nil)

	err := h.s.Do(context.Background(), dispatch.StartGame{})
	assert.ErrorIs(t, err, dispatch.ErrNoActiveGame)

	err = h.s.Do(context.Background(), dispatch.SendGlobalChat{Text: "hi"})
	assert.ErrorIs(t, err, dispatch.ErrAnonymous)

	h.conn.PublishErr = errors.New("broken pipe")
	err = h.s.Do(context.Background(), dispatch.ListGames{})
	assert.ErrorContains(t, err, "broken pipe")
}

func TestSession_TimerCountsDown(t *testing.T) {
	h := start(t, "p1", func(c *Config) { c.TickInterval = 10 * time.Millisecond })
	h.joinGame(t, game.Game{ID: "g1"})

	h.conn.Deliver(protocol.GameTopic("g1"), packet(t, protocol.StartTimer{GameRef: protocol.GameRef{GameID: "g1"}, Seconds: 3}))

	require.Eventually(t, func() bool {
		tm := view(t, h.s).State.Active.Timer
		return !tm.Running && tm.Remaining == 0
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 3, view(t, h.s).State.Active.Timer.Initial)
}

func TestSession_ClearTimerDropsPendingTicks(t *testing.T) {
	h := start(t, "p1", func(c *Config) { c.TickInterval = 20 * time.Millisecond })
	h.joinGame(t, game.Game{ID: "g1"})
	topic := protocol.GameTopic("g1")

	h.conn.Deliver(topic, packet(t, protocol.StartTimer{GameRef: protocol.GameRef{GameID: "g1"}, Seconds: 100}))
	h.conn.Deliver(topic, packet(t, protocol.ClearTimer{GameRef: protocol.GameRef{GameID: "g1"}}))
	h.conn.Deliver(topic, packet(t, protocol.StartTimer{GameRef: protocol.GameRef{GameID: "g1"}, Seconds: 100}))

	time.Sleep(70 * time.Millisecond)
	tm := view(t, h.s).State.Active.Timer
	assert.True(t, tm.Running)
	// one ticker only: roughly three ticks, never six
	assert.GreaterOrEqual(t, tm.Remaining, 95)
}

func TestSession_TransportFailureDropsOnce(t *testing.T) {
	h := start(t, "p1", nil)
	boom := errors.New("eof")

	h.conn.Fail(protocol.QueueReply, boom)
	h.conn.Fail(protocol.TopicGameBrowser, boom)

	select {
	case err := <-h.drops:
		assert.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatal("drop never reported")
	}
	select {
	case <-h.s.Done():
	case <-time.After(time.Second):
		t.Fatal("session kept running after the drop")
	}
	assert.Len(t, h.drops, 0)
}

func TestSession_NothingProcessedAfterClose(t *testing.T) {
	h := start(t, "p1", nil)
	h.s.Close()

	h.conn.Deliver(protocol.QueueReply, reply(t, protocol.ReplyListGames, []game.Game{{ID: "g1"}}))
	recvNoPublished(t, h.sent, 20*time.Millisecond)

	_, err := h.s.State(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, h.s.Do(context.Background(), dispatch.ListGames{}), dispatch.ErrNotReady)
}

func TestSession_Reauthenticate(t *testing.T) {
	h := start(t, "p1", func(c *Config) {
		c.RefreshToken = func(context.Context) (string, error) { return "fresh-token", nil }
	})

	h.conn.Deliver(protocol.QueueReauthenticate, []byte(""))

	p := recvPublished(t, h.sent, 500*time.Millisecond)
	assert.Equal(t, protocol.DestReauthenticate, p.Destination)
	assert.Equal(t, "fresh-token", p.Body)
}

func TestSession_ReauthenticateWithoutTokenSourceDrops(t *testing.T) {
	h := start(t, "p1", nil)

	h.conn.Deliver(protocol.QueueReauthenticate, []byte(""))

	select {
	case err := <-h.drops:
		assert.ErrorIs(t, err, ErrReauthUnavailable)
	case <-time.After(time.Second):
		t.Fatal("expected the connection to be dropped")
	}
}

func TestSession_ServerErrorsAndMalformedFrames(t *testing.T) {
	h := start(t, "p1", nil)

	h.conn.Deliver(protocol.TopicGameBrowser, []byte(`{"type":"NOPE"}`))
	h.conn.Deliver(protocol.TopicGameBrowser, []byte(`not json`))
	h.conn.Deliver(protocol.QueueErrors, []byte(`{"title":"Bad request","message":"deck limit reached"}`))
	h.conn.Deliver(protocol.QueueErrors, []byte(`plain failure`))

	require.Eventually(t, func() bool { return len(h.rec.Recent()) == 2 }, time.Second, 5*time.Millisecond)
	recent := h.rec.Recent()
	assert.Equal(t, "Gameserver error", recent[0].Title)
	assert.Equal(t, "plain failure", recent[0].Message)
	assert.Equal(t, "Bad request", recent[1].Title)

	// still alive
	assert.Equal(t, "epoch-1", view(t, h.s).Epoch)
}

func TestSession_AppliesFramesAcrossDestinationsInDeliveryOrder(t *testing.T) {
	h := start(t, "p1", nil)

	// the list reply is answered before the server announces the new game
	h.conn.Deliver(protocol.QueueReply, reply(t, protocol.ReplyListGames, []game.Game{{ID: "g1"}}))
	h.conn.Deliver(protocol.TopicGameBrowser, packet(t, protocol.GameCreated{Created: game.Game{ID: "g2"}}))

	v := view(t, h.s)
	assert.True(t, v.State.Lobby.Has("g1"))
	assert.True(t, v.State.Lobby.Has("g2"), "a newer announcement survives the older list")

	h.joinGame(t, game.Game{ID: "g1", HostID: "p1", State: game.StateDealing, Players: []game.Player{
		{ID: "p1", State: game.PlayerStatePlayer},
		{ID: "p2", State: game.PlayerStatePlayer},
		{ID: "p3", State: game.PlayerStateJudge},
	}})

	g1 := protocol.GameRef{GameID: "g1"}
	h.conn.Deliver(protocol.TopicGameBrowser, packet(t, protocol.StateChange{GameRef: g1, State: game.StatePlaying}))
	h.conn.Deliver(protocol.GameTopic("g1"), packet(t, protocol.StateChange{GameRef: g1, State: game.StatePlaying}))
	h.conn.Deliver(protocol.GameTopic("g1"), packet(t, protocol.CardsPlayed{GameRef: g1, PlayerID: "p2"}))

	v = view(t, h.s)
	require.NotNil(t, v.State.Active.Game)
	assert.True(t, v.State.Active.Game.Player("p1").NeedsToPlay)
	assert.False(t, v.State.Active.Game.Player("p2").NeedsToPlay, "a player who already played stays done")
	assert.False(t, v.State.Active.Game.Player("p3").NeedsToPlay)
}
