package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/cah-client/internal/catalog"
	"github.com/DoyleJ11/cah-client/internal/conn"
	"github.com/DoyleJ11/cah-client/internal/dispatch"
	"github.com/DoyleJ11/cah-client/internal/game"
	"github.com/DoyleJ11/cah-client/internal/notify"
	"github.com/DoyleJ11/cah-client/internal/rest"
	"github.com/DoyleJ11/cah-client/internal/session"
	"github.com/DoyleJ11/cah-client/internal/store"
)

// Connection is the slice of the connection manager the API drives.
type Connection interface {
	SetIdentity(ctx context.Context, id *conn.Identity) error
	Status(ctx context.Context) (conn.Status, error)
	State(ctx context.Context) (session.View, error)
	Do(ctx context.Context, a dispatch.Action) error
}

type Auth interface {
	Login(ctx context.Context, in rest.LogInRequest) error
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*game.User, error)
}

type Decks interface {
	Decks(ctx context.Context) ([]game.Deck, error)
	DecksWithCards(ctx context.Context, ids []string) ([]game.DeckWithCards, error)
}

type Notifications interface {
	Recent() []notify.Notification
}

type Deps struct {
	Conn          Connection
	Auth          Auth
	Decks         Decks
	Notifications Notifications
	Feed          Feed
	Log           *zap.Logger
}

var errBadRequest = errors.New("malformed request body")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	var apiErr *rest.APIError
	switch {
	case errors.Is(err, dispatch.ErrNotReady), errors.Is(err, conn.ErrShutdown):
		return http.StatusConflict
	case errors.Is(err, dispatch.ErrAnonymous):
		return http.StatusUnauthorized
	case errors.Is(err, errBadRequest),
		errors.Is(err, dispatch.ErrNoActiveGame),
		errors.Is(err, dispatch.ErrWrongGame),
		errors.Is(err, dispatch.ErrEmptyMessage),
		errors.Is(err, dispatch.ErrNoCards),
		errors.Is(err, game.ErrInvalidSettings):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status
		}
		return http.StatusBadGateway
	case errors.Is(err, rest.ErrUnavailable), errors.Is(err, catalog.ErrNoDecks):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (d Deps) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		d.Log.Warn("request failed", zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

// intent runs the action built from the request and answers 202 once it is published.
func (d Deps) intent(build func(r *http.Request) (dispatch.Action, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := build(r)
		if err != nil {
			d.fail(w, r, err)
			return
		}
		if err := d.Conn.Do(r.Context(), a); err != nil {
			d.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func fixed(a dispatch.Action) func(*http.Request) (dispatch.Action, error) {
	return func(*http.Request) (dispatch.Action, error) { return a, nil }
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (d Deps) Status(w http.ResponseWriter, r *http.Request) {
	st, err := d.Conn.Status(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (d Deps) Lobby(w http.ResponseWriter, r *http.Request) {
	v, err := d.Conn.State(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Games []game.Game         `json:"games"`
		Chat  []store.ChatMessage `json:"chat"`
	}{Games: v.State.Lobby.Visible(), Chat: v.State.Lobby.Chat})
}

func (d Deps) Game(w http.ResponseWriter, r *http.Request) {
	v, err := d.Conn.State(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	if !v.State.Active.Exists() {
		d.fail(w, r, dispatch.ErrNoActiveGame)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Active       store.ActiveGame `json:"active"`
		IsHost       bool             `json:"isHost"`
		IsJudge      bool             `json:"isJudge"`
		IsSpectator  bool             `json:"isSpectator"`
		TimerPercent int              `json:"timerPercent"`
	}{
		Active:       v.State.Active,
		IsHost:       v.State.Active.IsHost(v.UserID),
		IsJudge:      v.State.Active.IsJudge(v.UserID),
		IsSpectator:  v.State.Active.IsSpectator(v.UserID),
		TimerPercent: v.State.Active.TimerPercentLeft(),
	})
}

// Readiness loads the joined game's decks and reports whether it can start.
func (d Deps) Readiness(w http.ResponseWriter, r *http.Request) {
	v, err := d.Conn.State(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	if !v.State.Active.Exists() {
		d.fail(w, r, dispatch.ErrNoActiveGame)
		return
	}
	g := *v.State.Active.Game
	decks, err := d.Decks.DecksWithCards(r.Context(), g.DeckIDs())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	ready := game.CheckStart(g, decks)
	writeJSON(w, http.StatusOK, struct {
		game.Readiness
		Ready bool `json:"ready"`
	}{Readiness: ready, Ready: ready.Ready()})
}

func (d Deps) ListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Notifications.Recent())
}

func (d Deps) ListDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := d.Decks.Decks(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, decks)
}

// Login signs in and reopens the game server connection as the new user.
func (d Deps) Login(w http.ResponseWriter, r *http.Request) {
	var in rest.LogInRequest
	if err := decode(r, &in); err != nil {
		d.fail(w, r, err)
		return
	}
	if err := d.Auth.Login(r.Context(), in); err != nil {
		d.fail(w, r, err)
		return
	}
	u, err := d.Auth.CurrentUser(r.Context())
	if err != nil {
		d.fail(w, r, err)
		return
	}
	if u == nil {
		d.fail(w, r, &rest.APIError{Status: http.StatusUnauthorized, Message: "You are not logged in"})
		return
	}
	if err := d.Conn.SetIdentity(r.Context(), &conn.Identity{UserID: u.ID, Nickname: u.Nickname}); err != nil {
		d.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (d Deps) Logout(w http.ResponseWriter, r *http.Request) {
	if err := d.Auth.Logout(r.Context()); err != nil {
		d.fail(w, r, err)
		return
	}
	if err := d.Conn.SetIdentity(r.Context(), nil); err != nil {
		d.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func joinGame(r *http.Request) (dispatch.Action, error) {
	spectate := false
	if v := r.URL.Query().Get("spectate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.Join(errBadRequest, err)
		}
		spectate = b
	}
	return dispatch.JoinGame{GameID: chi.URLParam(r, "id"), AsSpectator: spectate}, nil
}

type chatBody struct {
	Message string `json:"message"`
}

func globalChat(r *http.Request) (dispatch.Action, error) {
	var in chatBody
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	return dispatch.SendGlobalChat{Text: in.Message}, nil
}

func gameChat(r *http.Request) (dispatch.Action, error) {
	var in chatBody
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	return dispatch.SendLocalChat{Text: in.Message}, nil
}

func updateSettings(r *http.Request) (dispatch.Action, error) {
	var patch game.SettingsPatch
	if err := decode(r, &patch); err != nil {
		return nil, err
	}
	return dispatch.UpdateSettings{Patch: patch}, nil
}

func updateDeck(r *http.Request) (dispatch.Action, error) {
	var in struct {
		Active bool `json:"active"`
	}
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	return dispatch.UpdateDeckMembership{DeckID: chi.URLParam(r, "deckID"), Active: in.Active}, nil
}

type cardsBody struct {
	CardIDs []string `json:"cardIds"`
}

func playCards(r *http.Request) (dispatch.Action, error) {
	var in cardsBody
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	return dispatch.PlayCards{CardIDs: in.CardIDs}, nil
}

func judgeCards(r *http.Request) (dispatch.Action, error) {
	var in cardsBody
	if err := decode(r, &in); err != nil {
		return nil, err
	}
	return dispatch.JudgeCards{CardIDs: in.CardIDs}, nil
}
