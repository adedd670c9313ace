package protocol

import (
	"fmt"

	"github.com/DoyleJ11/cah-client/internal/game"
)

// Event is a decoded, validated packet payload.
type Event interface {
	Type() PacketType
	// Game returns the id of the game the event is about, or "" for unscoped events.
	Game() string
	Validate() error
}

type GameRef struct {
	GameID string `json:"gameId"`
}

func (r GameRef) Game() string { return r.GameID }

func (r GameRef) requireGame() error {
	if r.GameID == "" {
		return fmt.Errorf("%w: missing gameId", ErrMalformedPayload)
	}
	return nil
}

func missing(field string) error {
	return fmt.Errorf("%w: missing %s", ErrMalformedPayload, field)
}

type Sender struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
}

type Chat struct {
	GameRef
	Message string `json:"message"`
	Sender  Sender `json:"sender"`
}

func (Chat) Type() PacketType { return PacketChat }
func (c Chat) Validate() error {
	if c.Message == "" {
		return missing("message")
	}
	return nil
}

type SystemMessage struct {
	GameRef
	Message string `json:"message"`
}

func (SystemMessage) Type() PacketType { return PacketSystemMessage }
func (m SystemMessage) Validate() error {
	if m.Message == "" {
		return missing("message")
	}
	return nil
}

type StateChange struct {
	GameRef
	State game.State `json:"state"`
}

func (StateChange) Type() PacketType { return PacketStateChange }
func (s StateChange) Validate() error {
	if err := s.requireGame(); err != nil {
		return err
	}
	if !s.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrMalformedPayload, s.State)
	}
	return nil
}

type IllegalStateTransition struct {
	GameRef
	From game.State `json:"from"`
	To   game.State `json:"to"`
}

func (IllegalStateTransition) Type() PacketType  { return PacketIllegalStateTransition }
func (i IllegalStateTransition) Validate() error { return i.requireGame() }

type GameCreated struct {
	Created game.Game `json:"game"`
}

func (GameCreated) Type() PacketType { return PacketGameCreated }
func (g GameCreated) Game() string   { return g.Created.ID }
func (g GameCreated) Validate() error {
	if g.Created.ID == "" {
		return missing("game.id")
	}
	return nil
}

type GameRemoved struct {
	GameRef
}

func (GameRemoved) Type() PacketType  { return PacketGameRemoved }
func (g GameRemoved) Validate() error { return g.requireGame() }

type PlayerJoined struct {
	GameRef
	Player game.Player `json:"player"`
}

func (PlayerJoined) Type() PacketType { return PacketPlayerJoined }
func (p PlayerJoined) Validate() error {
	if err := p.requireGame(); err != nil {
		return err
	}
	if p.Player.ID == "" {
		return missing("player.id")
	}
	return nil
}

type PlayerLeft struct {
	GameRef
	PlayerID string `json:"playerId"`
}

func (PlayerLeft) Type() PacketType { return PacketPlayerLeft }
func (p PlayerLeft) Validate() error {
	if err := p.requireGame(); err != nil {
		return err
	}
	if p.PlayerID == "" {
		return missing("playerId")
	}
	return nil
}

type ObserverJoined struct {
	GameRef
	Observer game.Spectator `json:"observer"`
}

func (ObserverJoined) Type() PacketType { return PacketObserverJoined }
func (o ObserverJoined) Validate() error {
	if err := o.requireGame(); err != nil {
		return err
	}
	if o.Observer.ID == "" {
		return missing("observer.id")
	}
	return nil
}

type ObserverLeft struct {
	GameRef
	ObserverID string `json:"observerId"`
}

func (ObserverLeft) Type() PacketType { return PacketObserverLeft }
func (o ObserverLeft) Validate() error {
	if err := o.requireGame(); err != nil {
		return err
	}
	if o.ObserverID == "" {
		return missing("observerId")
	}
	return nil
}

type SettingsUpdated struct {
	GameRef
	Settings game.Settings `json:"settings"`
}

func (SettingsUpdated) Type() PacketType  { return PacketSettingsUpdated }
func (s SettingsUpdated) Validate() error { return s.requireGame() }

type DecksUpdated struct {
	GameRef
	Decks []game.Deck `json:"decks"`
}

func (DecksUpdated) Type() PacketType  { return PacketDecksUpdated }
func (d DecksUpdated) Validate() error { return d.requireGame() }

type BeginNextRound struct {
	GameRef
	JudgeID     string `json:"judgeId"`
	RoundNumber int    `json:"roundNumber"`
}

func (BeginNextRound) Type() PacketType { return PacketBeginNextRound }
func (b BeginNextRound) Validate() error {
	if err := b.requireGame(); err != nil {
		return err
	}
	if b.JudgeID == "" {
		return missing("judgeId")
	}
	if b.RoundNumber < 0 {
		return fmt.Errorf("%w: negative roundNumber", ErrMalformedPayload)
	}
	return nil
}

type CardsPlayed struct {
	GameRef
	PlayerID string `json:"playerId"`
}

func (CardsPlayed) Type() PacketType { return PacketCardsPlayed }
func (c CardsPlayed) Validate() error {
	if c.PlayerID == "" {
		return missing("playerId")
	}
	return nil
}

type DealCard struct {
	GameRef
	Card game.WhiteCard `json:"card"`
}

func (DealCard) Type() PacketType { return PacketDealCard }
func (d DealCard) Validate() error {
	if d.Card.ID == "" {
		return missing("card.id")
	}
	return nil
}

type DealBlackCard struct {
	GameRef
	Card game.BlackCard `json:"card"`
}

func (DealBlackCard) Type() PacketType { return PacketDealBlackCard }
func (d DealBlackCard) Validate() error {
	if d.Card.ID == "" {
		return missing("card.id")
	}
	return nil
}

type CardsToJudge struct {
	GameRef
	Matrix [][]game.WhiteCard `json:"matrix"`
}

func (CardsToJudge) Type() PacketType  { return PacketCardsToJudge }
func (c CardsToJudge) Validate() error { return nil }

type RoundWinner struct {
	GameRef
	PlayerID string           `json:"playerId"`
	Cards    []game.WhiteCard `json:"cards"`
}

func (RoundWinner) Type() PacketType { return PacketRoundWinner }
func (r RoundWinner) Validate() error {
	if r.PlayerID == "" {
		return missing("playerId")
	}
	return nil
}

type StartTimer struct {
	GameRef
	Seconds int `json:"seconds"`
}

func (StartTimer) Type() PacketType { return PacketStartTimer }
func (s StartTimer) Validate() error {
	if s.Seconds < 0 || s.Seconds > game.MaxTimerValue {
		return fmt.Errorf("%w: seconds out of range", ErrMalformedPayload)
	}
	return nil
}

type ClearTimer struct {
	GameRef
}

func (ClearTimer) Type() PacketType { return PacketClearTimer }
func (ClearTimer) Validate() error  { return nil }

type Unauthorized struct {
	Message string `json:"message"`
}

func (Unauthorized) Type() PacketType { return PacketUnauthorized }
func (Unauthorized) Game() string     { return "" }
func (Unauthorized) Validate() error  { return nil }
