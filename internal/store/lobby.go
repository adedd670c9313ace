package store

import (
	"slices"
	"time"

	"github.com/DoyleJ11/cah-client/internal/game"
)

type Channel string

const (
	ChannelGlobal Channel = "global"
	ChannelLocal  Channel = "local"
	ChannelSystem Channel = "system"
)

type ChatMessage struct {
	Channel Channel   `json:"channel"`
	Sender  string    `json:"sender,omitempty"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Line renders the message the way chat boxes show it: "nick: text".
func (m ChatMessage) Line() string {
	if m.Sender == "" {
		return m.Text
	}
	return m.Sender + ": " + m.Text
}

// State is the whole client-side view of the server, owned by one session.
type State struct {
	Lobby  Lobby      `json:"lobby"`
	Active ActiveGame `json:"active"`
}

// Clone returns a deep copy that can be handed to other goroutines.
func (s *State) Clone() State {
	out := State{
		Lobby: Lobby{
			Games: make([]game.Game, len(s.Lobby.Games)),
			Chat:  slices.Clone(s.Lobby.Chat),
		},
		Active: s.Active,
	}
	for i, g := range s.Lobby.Games {
		out.Lobby.Games[i] = g.Clone()
	}

	a := &out.Active
	if s.Active.Game != nil {
		g := s.Active.Game.Clone()
		a.Game = &g
	}
	if s.Active.BlackCard != nil {
		bc := *s.Active.BlackCard
		a.BlackCard = &bc
	}
	a.Chat = slices.Clone(s.Active.Chat)
	a.Hand = slices.Clone(s.Active.Hand)
	a.WinningCards = slices.Clone(s.Active.WinningCards)
	a.PendingPlay = slices.Clone(s.Active.PendingPlay)
	a.CardsToJudge = nil
	for _, group := range s.Active.CardsToJudge {
		a.CardsToJudge = append(a.CardsToJudge, slices.Clone(group))
	}
	return out
}

// Lobby holds the browsable game list and the global chat (most recent first).
type Lobby struct {
	Games []game.Game   `json:"games"`
	Chat  []ChatMessage `json:"chat"`
}

func (l *Lobby) SetGames(games []game.Game) {
	l.Games = make([]game.Game, 0, len(games))
	for _, g := range games {
		l.AddGame(g)
	}
}

// AddGame inserts g, replacing a stale entry with the same id.
func (l *Lobby) AddGame(g game.Game) {
	g = g.Clone()
	if idx := l.index(g.ID); idx != -1 {
		l.Games[idx] = g
		return
	}
	l.Games = append(l.Games, g)
}

func (l *Lobby) RemoveGame(id string) {
	if idx := l.index(id); idx != -1 {
		l.Games = slices.Delete(l.Games, idx, idx+1)
	}
}

func (l *Lobby) Game(id string) *game.Game {
	if idx := l.index(id); idx != -1 {
		return &l.Games[idx]
	}
	return nil
}

func (l *Lobby) Has(id string) bool { return l.index(id) != -1 }

// UpdateGame runs fn on the entry for id; unknown ids are ignored.
func (l *Lobby) UpdateGame(id string, fn func(g *game.Game)) bool {
	g := l.Game(id)
	if g == nil {
		return false
	}
	fn(g)
	return true
}

func (l *Lobby) SetState(id string, s game.State) {
	l.UpdateGame(id, func(g *game.Game) { g.State = s })
}

func (l *Lobby) AddPlayer(id string, p game.Player) {
	l.UpdateGame(id, func(g *game.Game) { g.AddPlayer(p) })
}

func (l *Lobby) RemovePlayer(id, playerID string) {
	l.UpdateGame(id, func(g *game.Game) { g.RemovePlayer(playerID) })
}

func (l *Lobby) AddSpectator(id string, s game.Spectator) {
	l.UpdateGame(id, func(g *game.Game) { g.AddSpectator(s) })
}

func (l *Lobby) RemoveSpectator(id, spectatorID string) {
	l.UpdateGame(id, func(g *game.Game) { g.RemoveSpectator(spectatorID) })
}

func (l *Lobby) SetSettings(id string, s game.Settings) {
	l.UpdateGame(id, func(g *game.Game) { g.Settings = s })
}

func (l *Lobby) SetDecks(id string, decks []game.Deck) {
	l.UpdateGame(id, func(g *game.Game) { g.Decks = slices.Clone(decks) })
}

// AdvanceRound sets the round number, or increments it when the server sent none.
func (l *Lobby) AdvanceRound(id string, round int) {
	l.UpdateGame(id, func(g *game.Game) { g.RoundNumber = nextRound(g.RoundNumber, round) })
}

func (l *Lobby) AddChat(m ChatMessage) {
	l.Chat = slices.Insert(l.Chat, 0, m)
}

// Visible is the list shown to a browsing user: abandoned games are hidden.
func (l *Lobby) Visible() []game.Game {
	out := make([]game.Game, 0, len(l.Games))
	for _, g := range l.Games {
		if g.State != game.StateAbandoned {
			out = append(out, g)
		}
	}
	return out
}

func (l *Lobby) index(id string) int {
	return slices.IndexFunc(l.Games, func(g game.Game) bool { return g.ID == id })
}

func nextRound(current, announced int) int {
	if announced > 0 {
		return announced
	}
	return current + 1
}
