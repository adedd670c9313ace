package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/cah-client/internal/conn"
	"github.com/DoyleJ11/cah-client/internal/dispatch"
	"github.com/DoyleJ11/cah-client/internal/game"
	"github.com/DoyleJ11/cah-client/internal/notify"
	"github.com/DoyleJ11/cah-client/internal/rest"
	"github.com/DoyleJ11/cah-client/internal/session"
)

type fakeConn struct {
	view       session.View
	stateErr   error
	doErr      error
	did        []dispatch.Action
	identities []*conn.Identity
}

func (f *fakeConn) SetIdentity(_ context.Context, id *conn.Identity) error {
	f.identities = append(f.identities, id)
	return nil
}

func (f *fakeConn) Status(context.Context) (conn.Status, error) {
	return conn.Status{Ready: f.stateErr == nil, Epoch: f.view.Epoch}, nil
}

func (f *fakeConn) State(context.Context) (session.View, error) {
	return f.view, f.stateErr
}

func (f *fakeConn) Do(_ context.Context, a dispatch.Action) error {
	if f.doErr != nil {
		return f.doErr
	}
	f.did = append(f.did, a)
	return nil
}

type fakeAuth struct {
	loginErr error
	user     *game.User
	loggedIn bool
}

func (f *fakeAuth) Login(context.Context, rest.LogInRequest) error {
	if f.loginErr != nil {
		return f.loginErr
	}
	f.loggedIn = true
	return nil
}

func (f *fakeAuth) Logout(context.Context) error {
	f.loggedIn = false
	return nil
}

func (f *fakeAuth) CurrentUser(context.Context) (*game.User, error) {
	if !f.loggedIn {
		return nil, nil
	}
	return f.user, nil
}

type fakeDecks struct {
	decks []game.Deck
	cards map[string]game.DeckWithCards
	err   error
}

func (f fakeDecks) Decks(context.Context) ([]game.Deck, error) { return f.decks, f.err }

func (f fakeDecks) DecksWithCards(_ context.Context, ids []string) ([]game.DeckWithCards, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]game.DeckWithCards, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.cards[id])
	}
	return out, nil
}

type setup struct {
	conn  *fakeConn
	auth  *fakeAuth
	decks fakeDecks
	notes *notify.Recorder
}

func newSetup() *setup {
	return &setup{
		conn:  &fakeConn{},
		auth:  &fakeAuth{user: &game.User{ID: "u1", Nickname: "ann"}},
		notes: notify.NewRecorder(10),
	}
}

func (s *setup) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := SetupRoutes(Deps{Conn: s.conn, Auth: s.auth, Decks: s.decks, Notifications: s.notes})
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out struct{ Error string }
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Error
}

func TestHealthz(t *testing.T) {
	rec := newSetup().do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestIntents(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   dispatch.Action
	}{
		{"refresh games", http.MethodPost, "/games/refresh", "", dispatch.ListGames{}},
		{"create", http.MethodPost, "/games", "", dispatch.CreateGame{}},
		{"join", http.MethodPost, "/games/g7/join", "", dispatch.JoinGame{GameID: "g7"}},
		{"spectate", http.MethodPost, "/games/g7/join?spectate=true", "", dispatch.JoinGame{GameID: "g7", AsSpectator: true}},
		{"leave", http.MethodPost, "/game/leave", "", dispatch.LeaveGame{}},
		{"global chat", http.MethodPost, "/chat", `{"message":"hi all"}`, dispatch.SendGlobalChat{Text: "hi all"}},
		{"game chat", http.MethodPost, "/game/chat", `{"message":"hi"}`, dispatch.SendLocalChat{Text: "hi"}},
		{"settings", http.MethodPatch, "/game/settings", `{"maxScore":5}`, dispatch.UpdateSettings{Patch: game.SettingsPatch{MaxScore: ptr(5)}}},
		{"deck on", http.MethodPut, "/game/decks/d3", `{"active":true}`, dispatch.UpdateDeckMembership{DeckID: "d3", Active: true}},
		{"play", http.MethodPost, "/game/play", `{"cardIds":["w1","w2"]}`, dispatch.PlayCards{CardIDs: []string{"w1", "w2"}}},
		{"judge", http.MethodPost, "/game/judge", `{"cardIds":["w4"]}`, dispatch.JudgeCards{CardIDs: []string{"w4"}}},
		{"start", http.MethodPost, "/game/start", "", dispatch.StartGame{}},
		{"stop", http.MethodPost, "/game/stop", "", dispatch.StopGame{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSetup()
			rec := s.do(t, tc.method, tc.path, tc.body)
			require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
			require.Len(t, s.conn.did, 1)
			assert.Equal(t, tc.want, s.conn.did[0])
		})
	}
}

func ptr[T any](v T) *T { return &v }

func TestIntentErrors(t *testing.T) {
	cases := []struct {
		name   string
		path   string
		body   string
		doErr  error
		status int
	}{
		{"not connected", "/games", "", dispatch.ErrNotReady, http.StatusConflict},
		{"session closed", "/games", "", session.ErrClosed, http.StatusConflict},
		{"anonymous", "/games", "", dispatch.ErrAnonymous, http.StatusUnauthorized},
		{"no game", "/game/start", "", dispatch.ErrNoActiveGame, http.StatusBadRequest},
		{"empty chat", "/chat", `{"message":" "}`, dispatch.ErrEmptyMessage, http.StatusBadRequest},
		{"malformed body", "/game/play", `{"cardIds":`, nil, http.StatusBadRequest},
		{"bad spectate flag", "/games/g1/join?spectate=maybe", "", nil, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSetup()
			s.conn.doErr = tc.doErr
			rec := s.do(t, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code)
			assert.NotEmpty(t, errorBody(t, rec))
		})
	}
}

func TestLoginSwitchesIdentity(t *testing.T) {
	s := newSetup()

	rec := s.do(t, http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, s.conn.identities, 1)
	assert.Equal(t, &conn.Identity{UserID: "u1", Nickname: "ann"}, s.conn.identities[0])

	rec = s.do(t, http.MethodPost, "/auth/logout", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, s.conn.identities, 2)
	assert.Nil(t, s.conn.identities[1], "logout reconnects anonymously")
}

func TestLoginRejected(t *testing.T) {
	s := newSetup()
	s.auth.loginErr = &rest.APIError{Status: http.StatusUnauthorized, Message: "Invalid email or password"}

	rec := s.do(t, http.MethodPost, "/auth/login", `{"email":"ann@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid email or password", errorBody(t, rec))
	assert.Empty(t, s.conn.identities)
}

func TestReadEndpoints(t *testing.T) {
	s := newSetup()
	s.conn.view = session.View{Epoch: "e1", UserID: "p1"}
	s.conn.view.State.Lobby.SetGames([]game.Game{{ID: "g1", State: game.StateLobby}})

	t.Run("lobby", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/lobby", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var out struct{ Games []game.Game }
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		require.Len(t, out.Games, 1)
		assert.Equal(t, "g1", out.Games[0].ID)
	})

	t.Run("no game joined", func(t *testing.T) {
		rec := s.do(t, http.MethodGet, "/game", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("joined game", func(t *testing.T) {
		s.conn.view.State.Active.Set(game.Game{ID: "g1", HostID: "p1", Players: []game.Player{{ID: "p1"}}})
		rec := s.do(t, http.MethodGet, "/game", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var out struct {
			IsHost      bool
			IsSpectator bool
			Active      struct{ Game game.Game }
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.True(t, out.IsHost)
		assert.False(t, out.IsSpectator)
		assert.Equal(t, "g1", out.Active.Game.ID)
	})

	t.Run("spectating", func(t *testing.T) {
		s.conn.view.State.Active.Set(game.Game{ID: "g1", HostID: "p2", Spectators: []game.Spectator{{ID: "p1"}}})
		rec := s.do(t, http.MethodGet, "/game", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var out struct{ IsHost, IsSpectator bool }
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.False(t, out.IsHost)
		assert.True(t, out.IsSpectator)
	})

	t.Run("not connected", func(t *testing.T) {
		s.conn.stateErr = dispatch.ErrNotReady
		defer func() { s.conn.stateErr = nil }()
		rec := s.do(t, http.MethodGet, "/lobby", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("notifications", func(t *testing.T) {
		s.notes.Notify(notify.New(notify.LevelWarn, "Game closed", "bye"))
		rec := s.do(t, http.MethodGet, "/notifications", "")
		require.Equal(t, http.StatusOK, rec.Code)
		var out []notify.Notification
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		require.Len(t, out, 1)
		assert.Equal(t, "Game closed", out[0].Title)
	})
}

func TestDecks(t *testing.T) {
	s := newSetup()
	s.decks = fakeDecks{decks: []game.Deck{{ID: "d1", Name: "Base"}}}
	rec := s.do(t, http.MethodGet, "/decks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Base"`)

	s.decks = fakeDecks{err: rest.ErrUnavailable}
	rec = s.do(t, http.MethodGet, "/decks", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestReadiness(t *testing.T) {
	whites := func(n int) []game.WhiteCard { return make([]game.WhiteCard, n) }
	blacks := func(n int) []game.BlackCard { return make([]game.BlackCard, n) }

	s := newSetup()
	s.decks = fakeDecks{cards: map[string]game.DeckWithCards{
		"base":  {Deck: game.Deck{ID: "base"}, BlackCards: blacks(40), WhiteCards: whites(40)},
		"extra": {Deck: game.Deck{ID: "extra"}, BlackCards: blacks(10), WhiteCards: whites(20)},
	}}

	rec := s.do(t, http.MethodGet, "/game/readiness", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "no game joined")

	s.conn.view = session.View{UserID: "p1"}
	s.conn.view.State.Active.Set(game.Game{
		ID:      "g1",
		HostID:  "p1",
		State:   game.StateLobby,
		Players: []game.Player{{ID: "p1"}, {ID: "p2"}, {ID: "p3"}},
		Decks:   []game.Deck{{ID: "base"}},
	})

	type readiness struct {
		Ready      bool
		BlackCards int
		WhiteCards int
		Problems   []string
	}
	rec = s.do(t, http.MethodGet, "/game/readiness", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out readiness
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.False(t, out.Ready)
	assert.Equal(t, 40, out.BlackCards)
	assert.Len(t, out.Problems, 2)

	s.conn.view.State.Active.Game.Decks = append(s.conn.view.State.Active.Game.Decks, game.Deck{ID: "extra"})
	rec = s.do(t, http.MethodGet, "/game/readiness", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out = readiness{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.Ready, "problems: %v", out.Problems)
	assert.Equal(t, 60, out.WhiteCards)

	s.decks.err = rest.ErrUnavailable
	rec = s.do(t, http.MethodGet, "/game/readiness", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
