package game

import "fmt"

// Readiness is what the lobby screen needs to enable the start button.
type Readiness struct {
	Players    int      `json:"players"`
	BlackCards int      `json:"blackCards"`
	WhiteCards int      `json:"whiteCards"`
	Problems   []string `json:"problems"`
}

func (r Readiness) Ready() bool { return len(r.Problems) == 0 }

// CheckStart counts the cards in decks against g's roster. The server has the
// last word; this only mirrors its minimums.
func CheckStart(g Game, decks []DeckWithCards) Readiness {
	r := Readiness{Players: len(g.Players), Problems: []string{}}
	for _, d := range decks {
		r.BlackCards += len(d.BlackCards)
		r.WhiteCards += len(d.WhiteCards)
	}

	if g.State != StateLobby {
		r.Problems = append(r.Problems, "The game has already started")
	}
	if g.Host() == nil {
		r.Problems = append(r.Problems, "The host is not seated")
	}
	if r.Players < MinimumPlayers {
		r.Problems = append(r.Problems, fmt.Sprintf("At least %d players are needed", MinimumPlayers))
	}
	if r.BlackCards < MinimumBlackCards {
		r.Problems = append(r.Problems, fmt.Sprintf("The selected decks need at least %d black cards", MinimumBlackCards))
	}
	// a short roster still needs enough white cards for a full table
	need := MinimumWhiteCardsPerPlayer * max(r.Players, MinimumPlayers)
	if r.WhiteCards < need {
		r.Problems = append(r.Problems, fmt.Sprintf("The selected decks need at least %d white cards", need))
	}
	return r
}
