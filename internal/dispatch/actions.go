package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/DoyleJ11/cah-client/internal/game"
	"github.com/DoyleJ11/cah-client/internal/protocol"
	"github.com/DoyleJ11/cah-client/internal/store"
)

var ErrNotReady = errors.New("not connected to the game server")
var ErrAnonymous = errors.New("sign in to do that")
var ErrNoActiveGame = errors.New("not in a game")
var ErrWrongGame = errors.New("action targets a game you are not in")
var ErrEmptyMessage = errors.New("message is empty")
var ErrNoCards = errors.New("no cards selected")

// Action is one outbound intent. The set is closed.
type Action interface {
	isAction()
	Name() string
}

type ListGames struct{}

type CreateGame struct{}

type JoinGame struct {
	GameID      string `json:"gameId"`
	AsSpectator bool   `json:"asObserver"`
}

type LeaveGame struct{}

type SendGlobalChat struct{ Text string }

type SendLocalChat struct {
	GameID string
	Text   string
}

type UpdateSettings struct {
	GameID string
	Patch  game.SettingsPatch
}

type UpdateDeckMembership struct {
	GameID string
	DeckID string
	Active bool
}

type PlayCards struct{ CardIDs []string }

type JudgeCards struct{ CardIDs []string }

type StartGame struct{}

type StopGame struct{}

// Reauthenticate answers the server's /user/queue/reauthenticate prompt.
type Reauthenticate struct{ Token string }

func (ListGames) isAction()            {}
func (CreateGame) isAction()           {}
func (JoinGame) isAction()             {}
func (LeaveGame) isAction()            {}
func (SendGlobalChat) isAction()       {}
func (SendLocalChat) isAction()        {}
func (UpdateSettings) isAction()       {}
func (UpdateDeckMembership) isAction() {}
func (PlayCards) isAction()            {}
func (JudgeCards) isAction()           {}
func (StartGame) isAction()            {}
func (StopGame) isAction()             {}
func (Reauthenticate) isAction()       {}

func (ListGames) Name() string            { return "listGames" }
func (CreateGame) Name() string           { return "createGame" }
func (JoinGame) Name() string             { return "joinGame" }
func (LeaveGame) Name() string            { return "leaveGame" }
func (SendGlobalChat) Name() string       { return "sendGlobalChat" }
func (SendLocalChat) Name() string        { return "sendLocalChat" }
func (UpdateSettings) Name() string       { return "updateSettings" }
func (UpdateDeckMembership) Name() string { return "updateDeckMembership" }
func (PlayCards) Name() string            { return "playCards" }
func (JudgeCards) Name() string           { return "judgeCards" }
func (StartGame) Name() string            { return "startGame" }
func (StopGame) Name() string             { return "stopGame" }
func (Reauthenticate) Name() string       { return "reauthenticate" }

// Outbound is what the session publishes for an action.
type Outbound struct {
	Destination string
	Body        []byte
	// UnsubscribeGame asks the session to drop the per-game topic subscription.
	UnsubscribeGame bool
}

// Prepare validates a against the current state, applies the optimistic local
// edits the action implies and returns the frame to publish. userID is "" for
// anonymous connections.
func Prepare(st *store.State, userID string, a Action) (Outbound, error) {
	switch act := a.(type) {
	case ListGames:
		return Outbound{Destination: protocol.DestListGames}, nil

	case CreateGame:
		if userID == "" {
			return Outbound{}, ErrAnonymous
		}
		return Outbound{Destination: protocol.DestCreateGame}, nil

	case JoinGame:
		if userID == "" {
			return Outbound{}, ErrAnonymous
		}
		if act.GameID == "" {
			return Outbound{}, fmt.Errorf("join: %w", ErrWrongGame)
		}
		return withJSON(protocol.DestJoinGame, act)

	case LeaveGame:
		// Optimistic: the server's acknowledgement is not awaited.
		st.Active.Reset()
		return Outbound{Destination: protocol.DestLeaveGame, UnsubscribeGame: true}, nil

	case SendGlobalChat:
		if userID == "" {
			return Outbound{}, ErrAnonymous
		}
		text := strings.TrimSpace(act.Text)
		if text == "" {
			return Outbound{}, ErrEmptyMessage
		}
		return Outbound{Destination: protocol.DestGlobalChat, Body: []byte(text)}, nil

	case SendLocalChat:
		if userID == "" {
			return Outbound{}, ErrAnonymous
		}
		if err := requireGame(st, act.GameID); err != nil {
			return Outbound{}, err
		}
		text := strings.TrimSpace(act.Text)
		if text == "" {
			return Outbound{}, ErrEmptyMessage
		}
		return Outbound{Destination: protocol.GameDestination(orActive(st, act.GameID), "chat"), Body: []byte(text)}, nil

	case UpdateSettings:
		if err := requireGame(st, act.GameID); err != nil {
			return Outbound{}, err
		}
		if err := act.Patch.Validate(); err != nil {
			return Outbound{}, err
		}
		out, err := withJSON(protocol.GameDestination(orActive(st, act.GameID), "updateSettings"), act.Patch)
		if err == nil {
			st.Active.AwaitingSettingsAck = true
		}
		return out, err

	case UpdateDeckMembership:
		if err := requireGame(st, act.GameID); err != nil {
			return Outbound{}, err
		}
		deckIDs := st.Active.Game.DeckIDs()
		if act.Active && !slices.Contains(deckIDs, act.DeckID) {
			deckIDs = append(deckIDs, act.DeckID)
		}
		if !act.Active {
			deckIDs = slices.DeleteFunc(deckIDs, func(id string) bool { return id == act.DeckID })
		}
		out, err := withJSON(protocol.GameDestination(orActive(st, act.GameID), "updateDecks"), struct {
			DeckIDs []string `json:"deckIds"`
		}{DeckIDs: deckIDs})
		if err == nil {
			st.Active.AwaitingDecksAck = true
		}
		return out, err

	case PlayCards:
		if err := requireGame(st, ""); err != nil {
			return Outbound{}, err
		}
		if len(act.CardIDs) == 0 {
			return Outbound{}, ErrNoCards
		}
		out, err := withJSON(protocol.GameDestination(st.Active.ID(), "play"), cardIDs{act.CardIDs})
		if err == nil {
			st.Active.PendingPlay = slices.Clone(act.CardIDs)
		}
		return out, err

	case JudgeCards:
		if err := requireGame(st, ""); err != nil {
			return Outbound{}, err
		}
		if len(act.CardIDs) == 0 {
			return Outbound{}, ErrNoCards
		}
		return withJSON(protocol.GameDestination(st.Active.ID(), "judge"), cardIDs{act.CardIDs})

	case StartGame:
		if err := requireGame(st, ""); err != nil {
			return Outbound{}, err
		}
		return Outbound{Destination: protocol.GameDestination(st.Active.ID(), "start")}, nil

	case StopGame:
		if err := requireGame(st, ""); err != nil {
			return Outbound{}, err
		}
		return Outbound{Destination: protocol.GameDestination(st.Active.ID(), "stop")}, nil

	case Reauthenticate:
		return Outbound{Destination: protocol.DestReauthenticate, Body: []byte(act.Token)}, nil

	default:
		return Outbound{}, fmt.Errorf("unsupported action %T", a)
	}
}

type cardIDs struct {
	CardIDs []string `json:"cardIds"`
}

func withJSON(dest string, v any) (Outbound, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Outbound{}, err
	}
	return Outbound{Destination: dest, Body: body}, nil
}

// orActive defaults an empty game id to the joined game.
func orActive(st *store.State, gameID string) string {
	if gameID == "" {
		return st.Active.ID()
	}
	return gameID
}

// requireGame checks that a game is joined and, when gameID is set, that it is that game.
func requireGame(st *store.State, gameID string) error {
	if !st.Active.Exists() {
		return ErrNoActiveGame
	}
	if gameID != "" && gameID != st.Active.ID() {
		return ErrWrongGame
	}
	return nil
}
