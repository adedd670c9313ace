package game

import (
	"errors"
	"fmt"
	"slices"
)

var ErrInvalidSettings = errors.New("invalid game settings")

const (
	MinimumPlayers             = 3
	MinimumBlackCards          = 50
	MinimumWhiteCardsPerPlayer = 20
	MaxTimerValue              = 2147483
)

type PlayerState string

const (
	PlayerStatePlayer PlayerState = "PLAYER"
	PlayerStateJudge  PlayerState = "JUDGE"
)

type User struct {
	ID       string   `json:"id"`
	Nickname string   `json:"nickname"`
	Roles    []string `json:"roles,omitempty"`
}

type Player struct {
	ID          string      `json:"id"`
	Nickname    string      `json:"nickname"`
	Roles       []string    `json:"roles,omitempty"`
	State       PlayerState `json:"state"`
	Score       int         `json:"score"`
	NeedsToPlay bool        `json:"needsToPlay"`
}

type Spectator struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

type WhiteCard struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	DeckID string `json:"deckId,omitempty"`
}

type BlackCard struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Pick   int    `json:"pick"`
	DeckID string `json:"deckId,omitempty"`
}

type Deck struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Weight      int    `json:"weight"`
}

type DeckWithCards struct {
	Deck       Deck        `json:"deck"`
	BlackCards []BlackCard `json:"blackCards"`
	WhiteCards []WhiteCard `json:"whiteCards"`
}

type Settings struct {
	MaxPlayers               int  `json:"maxPlayers"`
	MaxSpectators            int  `json:"maxObservers"`
	MaxScore                 int  `json:"maxScore"`
	RoundIntermissionTimer   int  `json:"roundIntermissionTimer"`
	GameWinIntermissionTimer int  `json:"gameWinIntermissionTimer"`
	PlayingTimer             int  `json:"playingTimer"`
	JudgingTimer             int  `json:"judgingTimer"`
	AllowJoinMidGame         bool `json:"allowPlayersToJoinMidGame"`
}

// SettingsPatch is a partial settings update; nil fields are left untouched.
type SettingsPatch struct {
	MaxPlayers               *int  `json:"maxPlayers,omitempty"`
	MaxSpectators            *int  `json:"maxObservers,omitempty"`
	MaxScore                 *int  `json:"maxScore,omitempty"`
	RoundIntermissionTimer   *int  `json:"roundIntermissionTimer,omitempty"`
	GameWinIntermissionTimer *int  `json:"gameWinIntermissionTimer,omitempty"`
	PlayingTimer             *int  `json:"playingTimer,omitempty"`
	JudgingTimer             *int  `json:"judgingTimer,omitempty"`
	AllowJoinMidGame         *bool `json:"allowPlayersToJoinMidGame,omitempty"`
}

type Game struct {
	ID          string      `json:"id"`
	HostID      string      `json:"hostId"`
	Settings    Settings    `json:"settings"`
	State       State       `json:"state"`
	RoundNumber int         `json:"roundNumber"`
	Players     []Player    `json:"players"`
	Spectators  []Spectator `json:"observers"`
	Decks       []Deck      `json:"decks"`
}

func (s Settings) Validate() error {
	return validateSettings(s)
}

func (p SettingsPatch) Validate() error {
	merged := Settings{MaxPlayers: MinimumPlayers, MaxScore: 1}
	return validateSettings(p.ApplyTo(merged))
}

// ApplyTo returns s with every non-nil field of p applied.
func (p SettingsPatch) ApplyTo(s Settings) Settings {
	if p.MaxPlayers != nil {
		s.MaxPlayers = *p.MaxPlayers
	}
	if p.MaxSpectators != nil {
		s.MaxSpectators = *p.MaxSpectators
	}
	if p.MaxScore != nil {
		s.MaxScore = *p.MaxScore
	}
	if p.RoundIntermissionTimer != nil {
		s.RoundIntermissionTimer = *p.RoundIntermissionTimer
	}
	if p.GameWinIntermissionTimer != nil {
		s.GameWinIntermissionTimer = *p.GameWinIntermissionTimer
	}
	if p.PlayingTimer != nil {
		s.PlayingTimer = *p.PlayingTimer
	}
	if p.JudgingTimer != nil {
		s.JudgingTimer = *p.JudgingTimer
	}
	if p.AllowJoinMidGame != nil {
		s.AllowJoinMidGame = *p.AllowJoinMidGame
	}
	return s
}

func validateSettings(s Settings) error {
	if s.MaxPlayers < MinimumPlayers {
		return fmt.Errorf("%w: there must be at least %d players", ErrInvalidSettings, MinimumPlayers)
	}
	if s.MaxSpectators < 0 {
		return fmt.Errorf("%w: you cannot have negative observers", ErrInvalidSettings)
	}
	if s.MaxScore < 1 {
		return fmt.Errorf("%w: maximum score must be at least 1", ErrInvalidSettings)
	}
	timers := map[string]int{
		"roundIntermissionTimer":   s.RoundIntermissionTimer,
		"gameWinIntermissionTimer": s.GameWinIntermissionTimer,
		"playingTimer":             s.PlayingTimer,
		"judgingTimer":             s.JudgingTimer,
	}
	for name, v := range timers {
		if v < 0 || v > MaxTimerValue {
			return fmt.Errorf("%w: %s must be between 0 and %d seconds", ErrInvalidSettings, name, MaxTimerValue)
		}
	}
	return nil
}

// Clone returns a deep copy so that lobby projections and the joined game never share slices.
func (g Game) Clone() Game {
	c := g
	c.Players = make([]Player, len(g.Players))
	for i, p := range g.Players {
		p.Roles = slices.Clone(p.Roles)
		c.Players[i] = p
	}
	c.Spectators = slices.Clone(g.Spectators)
	if c.Spectators == nil {
		c.Spectators = []Spectator{}
	}
	c.Decks = slices.Clone(g.Decks)
	if c.Decks == nil {
		c.Decks = []Deck{}
	}
	return c
}

func (g *Game) Player(id string) *Player {
	for i := range g.Players {
		if g.Players[i].ID == id {
			return &g.Players[i]
		}
	}
	return nil
}

func (g *Game) Spectator(id string) *Spectator {
	for i := range g.Spectators {
		if g.Spectators[i].ID == id {
			return &g.Spectators[i]
		}
	}
	return nil
}

// Host may be nil if the host is not in the player list (yet).
func (g *Game) Host() *Player {
	return g.Player(g.HostID)
}

// AddPlayer appends p unless a player with the same id is already seated.
func (g *Game) AddPlayer(p Player) bool {
	if g.Player(p.ID) != nil {
		return false
	}
	g.Players = append(g.Players, p)
	return true
}

func (g *Game) RemovePlayer(id string) bool {
	idx := slices.IndexFunc(g.Players, func(p Player) bool { return p.ID == id })
	if idx == -1 {
		return false
	}
	g.Players = slices.Delete(g.Players, idx, idx+1)
	return true
}

func (g *Game) AddSpectator(s Spectator) bool {
	if g.Spectator(s.ID) != nil {
		return false
	}
	g.Spectators = append(g.Spectators, s)
	return true
}

func (g *Game) RemoveSpectator(id string) bool {
	idx := slices.IndexFunc(g.Spectators, func(s Spectator) bool { return s.ID == id })
	if idx == -1 {
		return false
	}
	g.Spectators = slices.Delete(g.Spectators, idx, idx+1)
	return true
}

func (g *Game) DeckIDs() []string {
	ids := make([]string, 0, len(g.Decks))
	for _, d := range g.Decks {
		ids = append(ids, d.ID)
	}
	return ids
}
