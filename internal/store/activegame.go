package store

import (
	"math"
	"slices"

	"github.com/DoyleJ11/cah-client/internal/game"
)

type Timer struct {
	Initial   int  `json:"initial"`
	Remaining int  `json:"remaining"`
	Running   bool `json:"running"`
}

// ActiveGame is the single game this connection participates in, if any.
// Every mutator is a no-op when no game is joined: late events after a leave are expected.
type ActiveGame struct {
	Game                *game.Game         `json:"game"`
	Chat                []ChatMessage      `json:"chat"`
	Hand                []game.WhiteCard   `json:"hand"`
	BlackCard           *game.BlackCard    `json:"blackCard"`
	CardsToJudge        [][]game.WhiteCard `json:"cardsToJudge"`
	WinningCards        []game.WhiteCard   `json:"winningCards"`
	Timer               Timer              `json:"timer"`
	AwaitingSettingsAck bool               `json:"awaitingSettingsAck"`
	AwaitingDecksAck    bool               `json:"awaitingDecksAck"`
	PendingPlay         []string           `json:"pendingPlay"`
}

// Set replaces the active game. Everything belonging to a previous game is dropped first.
func (a *ActiveGame) Set(g game.Game) {
	a.Reset()
	c := g.Clone()
	a.Game = &c
}

func (a *ActiveGame) Reset() {
	*a = ActiveGame{}
}

func (a *ActiveGame) Exists() bool { return a.Game != nil }

func (a *ActiveGame) ID() string {
	if a.Game == nil {
		return ""
	}
	return a.Game.ID
}

func (a *ActiveGame) IsHost(userID string) bool {
	return a.Game != nil && userID != "" && a.Game.HostID == userID
}

func (a *ActiveGame) Me(userID string) *game.Player {
	if a.Game == nil {
		return nil
	}
	return a.Game.Player(userID)
}

func (a *ActiveGame) IsSpectator(userID string) bool {
	return a.Game != nil && a.Game.Spectator(userID) != nil
}

func (a *ActiveGame) IsJudge(userID string) bool {
	p := a.Me(userID)
	return p != nil && p.State == game.PlayerStateJudge
}

func (a *ActiveGame) CurrentJudge() *game.Player {
	if a.Game == nil {
		return nil
	}
	for i := range a.Game.Players {
		if a.Game.Players[i].State == game.PlayerStateJudge {
			return &a.Game.Players[i]
		}
	}
	return nil
}

func (a *ActiveGame) AddPlayer(p game.Player) {
	if a.Game == nil {
		return
	}
	a.Game.AddPlayer(p)
}

// RemovePlayer drops id from the roster. Removing the local user clears the whole store.
func (a *ActiveGame) RemovePlayer(id, localUserID string) (removedSelf bool) {
	if a.Game == nil {
		return false
	}
	if localUserID != "" && id == localUserID {
		a.Reset()
		return true
	}
	a.Game.RemovePlayer(id)
	return false
}

func (a *ActiveGame) AddSpectator(s game.Spectator) {
	if a.Game == nil {
		return
	}
	a.Game.AddSpectator(s)
}

func (a *ActiveGame) RemoveSpectator(id, localUserID string) (removedSelf bool) {
	if a.Game == nil {
		return false
	}
	if localUserID != "" && id == localUserID {
		a.Reset()
		return true
	}
	a.Game.RemoveSpectator(id)
	return false
}

func (a *ActiveGame) SetSettings(s game.Settings) {
	if a.Game == nil {
		return
	}
	a.Game.Settings = s
	a.AwaitingSettingsAck = false
}

func (a *ActiveGame) SetDecks(decks []game.Deck) {
	if a.Game == nil {
		return
	}
	a.Game.Decks = slices.Clone(decks)
	a.AwaitingDecksAck = false
}

func (a *ActiveGame) SetState(s game.State) {
	if a.Game == nil {
		return
	}
	a.Game.State = s
}

func (a *ActiveGame) eachPlayer(fn func(p *game.Player)) {
	if a.Game == nil {
		return
	}
	for i := range a.Game.Players {
		fn(&a.Game.Players[i])
	}
}

// BeginRound sets the round number, demotes everyone to player and promotes the judge.
func (a *ActiveGame) BeginRound(judgeID string, round int) {
	if a.Game == nil {
		return
	}
	a.Game.RoundNumber = nextRound(a.Game.RoundNumber, round)
	a.eachPlayer(func(p *game.Player) {
		p.State = game.PlayerStatePlayer
		if p.ID == judgeID {
			p.State = game.PlayerStateJudge
		}
	})
}

// RecomputeNeedsToPlay flags every player whose role matches the phase's acting role.
func (a *ActiveGame) RecomputeNeedsToPlay(acting game.PlayerState) {
	a.eachPlayer(func(p *game.Player) { p.NeedsToPlay = p.State == acting })
}

func (a *ActiveGame) MarkPlayed(playerID string) {
	if a.Game == nil {
		return
	}
	if p := a.Game.Player(playerID); p != nil {
		p.NeedsToPlay = false
	}
}

func (a *ActiveGame) DealCard(c game.WhiteCard) {
	if a.Game == nil {
		return
	}
	if slices.ContainsFunc(a.Hand, func(h game.WhiteCard) bool { return h.ID == c.ID }) {
		return
	}
	a.Hand = append(a.Hand, c)
}

func (a *ActiveGame) SetBlackCard(c game.BlackCard) {
	if a.Game == nil {
		return
	}
	a.BlackCard = &c
}

func (a *ActiveGame) SetCardsToJudge(matrix [][]game.WhiteCard) {
	if a.Game == nil {
		return
	}
	a.CardsToJudge = make([][]game.WhiteCard, len(matrix))
	for i, group := range matrix {
		a.CardsToJudge[i] = slices.Clone(group)
	}
}

func (a *ActiveGame) RoundWinner(playerID string, cards []game.WhiteCard) {
	if a.Game == nil {
		return
	}
	if p := a.Game.Player(playerID); p != nil {
		p.Score++
	}
	a.WinningCards = slices.Clone(cards)
}

func (a *ActiveGame) Discard(ids []string) {
	a.Hand = slices.DeleteFunc(a.Hand, func(c game.WhiteCard) bool { return slices.Contains(ids, c.ID) })
}

// ResetGameData returns the joined game to a fresh lobby: round zero, no judge,
// zero scores and no round artifacts. Roster, settings and chat are kept.
func (a *ActiveGame) ResetGameData() {
	if a.Game == nil {
		return
	}
	a.Game.State = game.StateLobby
	a.Game.RoundNumber = 0
	a.eachPlayer(func(p *game.Player) {
		p.State = game.PlayerStatePlayer
		p.Score = 0
		p.NeedsToPlay = false
	})
	a.Hand = nil
	a.BlackCard = nil
	a.CardsToJudge = nil
	a.WinningCards = nil
	a.PendingPlay = nil
}

func (a *ActiveGame) AddChat(m ChatMessage) {
	if a.Game == nil {
		return
	}
	a.Chat = slices.Insert(a.Chat, 0, m)
}

func (a *ActiveGame) StartTimer(seconds int) {
	a.Timer = Timer{Initial: seconds, Remaining: seconds, Running: seconds > 0}
}

// Tick counts the timer down by one second and reports whether it is still running.
func (a *ActiveGame) Tick() bool {
	if !a.Timer.Running {
		return false
	}
	if a.Timer.Remaining > 0 {
		a.Timer.Remaining--
	}
	if a.Timer.Remaining == 0 {
		a.Timer.Running = false
	}
	return a.Timer.Running
}

func (a *ActiveGame) ClearTimer() {
	a.Timer = Timer{}
}

func (a *ActiveGame) TimerPercentLeft() int {
	if a.Timer.Initial == 0 {
		return 0
	}
	return int(math.Ceil(float64(a.Timer.Remaining) / float64(a.Timer.Initial) * 100))
}
