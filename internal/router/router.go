package router

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/cah-client/internal/dispatch"
	"github.com/DoyleJ11/cah-client/internal/game"
	"github.com/DoyleJ11/cah-client/internal/notify"
	"github.com/DoyleJ11/cah-client/internal/protocol"
	"github.com/DoyleJ11/cah-client/internal/store"
)

// Target is the store an event for a given game id mutates.
type Target int

const (
	TargetNone Target = iota
	TargetActive
	TargetLobby
)

func (t Target) String() string {
	switch t {
	case TargetActive:
		return "active"
	case TargetLobby:
		return "lobby"
	default:
		return "none"
	}
}

// Resolve picks exactly one target: the joined game when ids match, otherwise
// the lobby entry with that id, otherwise nothing.
func Resolve(activeID, eventGameID string, lobbyHas bool) Target {
	switch {
	case eventGameID == "":
		return TargetNone
	case activeID != "" && activeID == eventGameID:
		return TargetActive
	case lobbyHas:
		return TargetLobby
	default:
		return TargetNone
	}
}

func target(st *store.State, gameID string) Target {
	return Resolve(st.Active.ID(), gameID, st.Lobby.Has(gameID))
}

// activeMatches is for events only ever sent to a game's own subscribers; some
// of them carry no game id.
func activeMatches(st *store.State, gameID string) bool {
	return st.Active.Exists() && (gameID == "" || gameID == st.Active.ID())
}

// Context is what the router knows about the connection besides the stores.
type Context struct {
	UserID string // "" when anonymous
}

type Router struct {
	log *zap.Logger
	now func() time.Time
}

func New(log *zap.Logger) *Router {
	return &Router{log: log.Named("router"), now: time.Now}
}

// Route applies one inbound event to st and returns the follow-up effects.
// It never blocks and never performs I/O.
func (r *Router) Route(st *store.State, c Context, src protocol.Source, ev protocol.Event) []Effect {
	switch e := ev.(type) {
	case protocol.Chat:
		msg := store.ChatMessage{Sender: e.Sender.Nickname, Text: e.Message, At: r.now()}
		if src == protocol.SourceGame {
			if activeMatches(st, e.GameID) {
				msg.Channel = store.ChannelLocal
				st.Active.AddChat(msg)
			}
			return nil
		}
		msg.Channel = store.ChannelGlobal
		st.Lobby.AddChat(msg)

	case protocol.SystemMessage:
		msg := store.ChatMessage{Channel: store.ChannelSystem, Text: e.Message, At: r.now()}
		if activeMatches(st, e.GameID) {
			st.Active.AddChat(msg)
		} else if src == protocol.SourceGlobal {
			st.Lobby.AddChat(msg)
		}

	case protocol.StateChange:
		return r.stateChange(st, c, e)

	case protocol.IllegalStateTransition:
		return []Effect{notice(notify.LevelError, "Oh noes! The game is resetting.",
			"The game experienced an illegal state change and is now resetting. Sorry.")}

	case protocol.GameCreated:
		st.Lobby.AddGame(e.Created)

	case protocol.GameRemoved:
		st.Lobby.RemoveGame(e.GameID)

	case protocol.PlayerJoined:
		switch target(st, e.GameID) {
		case TargetActive:
			st.Active.AddPlayer(e.Player)
		case TargetLobby:
			st.Lobby.AddPlayer(e.GameID, e.Player)
		}

	case protocol.PlayerLeft:
		switch target(st, e.GameID) {
		case TargetActive:
			if st.Active.RemovePlayer(e.PlayerID, c.UserID) {
				return removedFromGame()
			}
		case TargetLobby:
			st.Lobby.RemovePlayer(e.GameID, e.PlayerID)
		}

	case protocol.ObserverJoined:
		switch target(st, e.GameID) {
		case TargetActive:
			st.Active.AddSpectator(e.Observer)
		case TargetLobby:
			st.Lobby.AddSpectator(e.GameID, e.Observer)
		}

	case protocol.ObserverLeft:
		switch target(st, e.GameID) {
		case TargetActive:
			if st.Active.RemoveSpectator(e.ObserverID, c.UserID) {
				return removedFromGame()
			}
		case TargetLobby:
			st.Lobby.RemoveSpectator(e.GameID, e.ObserverID)
		}

	case protocol.SettingsUpdated:
		switch target(st, e.GameID) {
		case TargetActive:
			st.Active.SetSettings(e.Settings)
		case TargetLobby:
			st.Lobby.SetSettings(e.GameID, e.Settings)
		}

	case protocol.DecksUpdated:
		switch target(st, e.GameID) {
		case TargetActive:
			st.Active.SetDecks(e.Decks)
		case TargetLobby:
			st.Lobby.SetDecks(e.GameID, e.Decks)
		}

	case protocol.BeginNextRound:
		switch target(st, e.GameID) {
		case TargetActive:
			st.Active.BeginRound(e.JudgeID, e.RoundNumber)
		case TargetLobby:
			st.Lobby.AdvanceRound(e.GameID, e.RoundNumber)
		}

	case protocol.CardsPlayed:
		if activeMatches(st, e.GameID) {
			st.Active.MarkPlayed(e.PlayerID)
		}

	case protocol.DealCard:
		if activeMatches(st, e.GameID) {
			st.Active.DealCard(e.Card)
		}

	case protocol.DealBlackCard:
		if activeMatches(st, e.GameID) {
			st.Active.SetBlackCard(e.Card)
		}

	case protocol.CardsToJudge:
		if activeMatches(st, e.GameID) {
			st.Active.SetCardsToJudge(e.Matrix)
		}

	case protocol.RoundWinner:
		if activeMatches(st, e.GameID) {
			st.Active.RoundWinner(e.PlayerID, e.Cards)
		}

	case protocol.StartTimer:
		if activeMatches(st, e.GameID) {
			st.Active.StartTimer(e.Seconds)
			return []Effect{StartTicker{}}
		}

	case protocol.ClearTimer:
		if activeMatches(st, e.GameID) {
			st.Active.ClearTimer()
			return []Effect{StopTicker{}}
		}

	case protocol.Unauthorized:
		msg := e.Message
		if msg == "" {
			msg = "Unknown"
		}
		return []Effect{notice(notify.LevelError, "You can't do that", msg)}

	default:
		r.log.Warn("no handler for event", zap.String("type", string(ev.Type())))
	}
	return nil
}

func removedFromGame() []Effect {
	return []Effect{
		UnsubscribeGame{},
		StopTicker{},
		notice(notify.LevelWarn, "Removed from game", "You are no longer part of that game."),
	}
}

func (r *Router) stateChange(st *store.State, c Context, e protocol.StateChange) []Effect {
	t := target(st, e.GameID)
	var current game.State
	switch t {
	case TargetActive:
		current = st.Active.Game.State
	case TargetLobby:
		current = st.Lobby.Game(e.GameID).State
	default:
		return nil
	}
	if current == "" {
		current = game.StateLobby
	}

	if !game.CanTransition(current, e.State) {
		r.log.Warn("dropping out-of-order state change",
			zap.String("game_id", e.GameID),
			zap.String("from", string(current)),
			zap.String("to", string(e.State)),
			zap.Stringer("target", t))
		return []Effect{notice(notify.LevelError, "Out-of-order game state",
			"The server reported "+string(current)+" → "+string(e.State)+"; waiting for it to resync.")}
	}

	if t == TargetLobby {
		st.Lobby.SetState(e.GameID, e.State)
		return nil
	}

	st.Active.SetState(e.State)
	switch e.State {
	case game.StatePlaying:
		st.Active.RecomputeNeedsToPlay(game.PlayerStatePlayer)
	case game.StateJudging:
		st.Active.RecomputeNeedsToPlay(game.PlayerStateJudge)
	case game.StateReset:
		st.Active.ResetGameData()
	case game.StateAbandoned:
		// The host's own client is left alone; the server is expected to drop it.
		if st.Active.IsHost(c.UserID) {
			return nil
		}
		st.Active.Reset()
		return []Effect{
			Dispatch{Action: dispatch.LeaveGame{}},
			StopTicker{},
			notice(notify.LevelWarn, "Game closed", "The host left the game, so you were removed."),
		}
	}
	return nil
}

// Reply applies an acknowledgement from /user/queue/reply.
func (r *Router) Reply(st *store.State, c Context, rep protocol.Reply) []Effect {
	if rep.IsError {
		switch rep.Type {
		case protocol.ReplyUpdateSettings:
			st.Active.AwaitingSettingsAck = false
		case protocol.ReplyUpdateDecks:
			st.Active.AwaitingDecksAck = false
		case protocol.ReplyPlayCards:
			st.Active.PendingPlay = nil
		}
		return []Effect{notice(notify.LevelError, rep.Error.Title, rep.Error.Message)}
	}

	switch rep.Type {
	case protocol.ReplyListGames:
		var games []game.Game
		if !r.decode(rep, &games) {
			return nil
		}
		st.Lobby.SetGames(games)

	case protocol.ReplyCreateGame:
		var g game.Game
		if !r.decode(rep, &g) || g.ID == "" {
			return nil
		}
		st.Active.Set(g)
		return []Effect{SubscribeGame{GameID: g.ID}}

	case protocol.ReplyJoinGame:
		g, ok := r.joinedGame(st, rep)
		if !ok {
			return nil
		}
		st.Active.Set(g)
		return []Effect{SubscribeGame{GameID: g.ID}}

	case protocol.ReplyUpdateSettings:
		st.Active.AwaitingSettingsAck = false

	case protocol.ReplyUpdateDecks:
		st.Active.AwaitingDecksAck = false

	case protocol.ReplyPlayCards:
		st.Active.Discard(st.Active.PendingPlay)
		st.Active.PendingPlay = nil
		st.Active.MarkPlayed(c.UserID)

	case protocol.ReplyLeaveGame, protocol.ReplyJudgeCards, protocol.ReplyStartGame, protocol.ReplyStopGame:
		// acknowledged; the broadcasts that follow carry the state changes

	default:
		r.log.Warn("unknown reply type", zap.String("type", string(rep.Type)))
	}
	return nil
}

// joinedGame accepts either the joined game itself or just its id, in which
// case the lobby projection is promoted.
func (r *Router) joinedGame(st *store.State, rep protocol.Reply) (game.Game, bool) {
	var id string
	if err := json.Unmarshal(rep.Data, &id); err == nil {
		g := st.Lobby.Game(id)
		if g == nil {
			r.log.Warn("joined game not in lobby list", zap.String("game_id", id))
			return game.Game{}, false
		}
		return *g, true
	}
	var g game.Game
	if !r.decode(rep, &g) || g.ID == "" {
		return game.Game{}, false
	}
	return g, true
}

func (r *Router) decode(rep protocol.Reply, v any) bool {
	if err := json.Unmarshal(rep.Data, v); err != nil {
		r.log.Warn("dropping malformed reply", zap.String("type", string(rep.Type)), zap.Error(err))
		return false
	}
	return true
}
