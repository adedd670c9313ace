package game

type State string

const (
	StateLobby     State = "LOBBY"
	StateDealing   State = "DEALING"
	StatePlaying   State = "PLAYING"
	StateJudging   State = "JUDGING"
	StateWin       State = "WIN"
	StateReset     State = "RESET"
	StateAbandoned State = "ABANDONED"
)

// Transitions lists the forward edges of the lifecycle. Reset and Abandoned are
// reachable from everywhere and are handled in CanTransition.
var Transitions = map[State][]State{
	StateLobby:   {StateDealing},
	StateDealing: {StatePlaying},
	StatePlaying: {StateJudging},
	// Judging ends the round: a win, back to the lobby, or straight into the next deal.
	StateJudging: {StateWin, StateLobby, StateDealing},
	StateWin:     {StateLobby},
	StateReset:   {StateLobby},
}

func (s State) Valid() bool {
	switch s {
	case StateLobby, StateDealing, StatePlaying, StateJudging, StateWin, StateReset, StateAbandoned:
		return true
	}
	return false
}

func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == StateAbandoned {
		return to == StateAbandoned
	}
	if from == to || to == StateReset || to == StateAbandoned {
		return true
	}
	for _, next := range Transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
