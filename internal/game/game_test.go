package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{name: "lobby to dealing", from: StateLobby, to: StateDealing, want: true},
		{name: "dealing to playing", from: StateDealing, to: StatePlaying, want: true},
		{name: "playing to judging", from: StatePlaying, to: StateJudging, want: true},
		{name: "judging to win", from: StateJudging, to: StateWin, want: true},
		{name: "judging to lobby", from: StateJudging, to: StateLobby, want: true},
		{name: "judging to next deal", from: StateJudging, to: StateDealing, want: true},
		{name: "win to lobby", from: StateWin, to: StateLobby, want: true},
		{name: "anything to reset", from: StatePlaying, to: StateReset, want: true},
		{name: "reset to lobby", from: StateReset, to: StateLobby, want: true},
		{name: "anything to abandoned", from: StateJudging, to: StateAbandoned, want: true},
		{name: "duplicate broadcast", from: StatePlaying, to: StatePlaying, want: true},
		{name: "lobby cannot skip to judging", from: StateLobby, to: StateJudging, want: false},
		{name: "playing cannot go back to dealing", from: StatePlaying, to: StateDealing, want: false},
		{name: "abandoned is terminal", from: StateAbandoned, to: StateLobby, want: false},
		{name: "abandoned cannot reset", from: StateAbandoned, to: StateReset, want: false},
		{name: "unknown state", from: StateLobby, to: State("PAUSED"), want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s): got %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestRosterRejectsDuplicatesAndIgnoresUnknownRemovals(t *testing.T) {
	g := Game{ID: "g1"}

	assert.True(t, g.AddPlayer(Player{ID: "p1"}))
	assert.False(t, g.AddPlayer(Player{ID: "p1", Nickname: "again"}))
	assert.True(t, g.AddSpectator(Spectator{ID: "s1"}))
	assert.False(t, g.AddSpectator(Spectator{ID: "s1"}))

	assert.False(t, g.RemovePlayer("nobody"))
	assert.False(t, g.RemoveSpectator("nobody"))
	require.Len(t, g.Players, 1)
	require.Len(t, g.Spectators, 1)

	assert.True(t, g.RemovePlayer("p1"))
	assert.Empty(t, g.Players)
}

func TestCloneDoesNotShareRoster(t *testing.T) {
	orig := Game{
		ID:      "g1",
		Players: []Player{{ID: "p1", Roles: []string{"USER"}}},
		Decks:   []Deck{{ID: "d1"}},
	}

	c := orig.Clone()
	c.Players[0].Score = 5
	c.Players[0].Roles[0] = "ADMIN"
	c.Decks[0].Name = "changed"

	assert.Equal(t, 0, orig.Players[0].Score)
	assert.Equal(t, "USER", orig.Players[0].Roles[0])
	assert.Empty(t, orig.Decks[0].Name)
	assert.NotNil(t, c.Spectators)
}

func TestSettingsValidate(t *testing.T) {
	valid := Settings{MaxPlayers: 3, MaxSpectators: 0, MaxScore: 1, PlayingTimer: MaxTimerValue}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name  string
		patch SettingsPatch
	}{
		{name: "too few players", patch: SettingsPatch{MaxPlayers: intPtr(2)}},
		{name: "negative spectators", patch: SettingsPatch{MaxSpectators: intPtr(-1)}},
		{name: "zero score", patch: SettingsPatch{MaxScore: intPtr(0)}},
		{name: "negative timer", patch: SettingsPatch{JudgingTimer: intPtr(-1)}},
		{name: "timer overflow", patch: SettingsPatch{RoundIntermissionTimer: intPtr(MaxTimerValue + 1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.patch.Validate()
			if err == nil || !errors.Is(err, ErrInvalidSettings) {
				t.Fatalf("want ErrInvalidSettings, got %v", err)
			}
		})
	}

	assert.NoError(t, SettingsPatch{MaxScore: intPtr(10)}.Validate())
}

func TestSettingsPatchApplyTo(t *testing.T) {
	allow := true
	s := SettingsPatch{MaxScore: intPtr(7), AllowJoinMidGame: &allow}.ApplyTo(Settings{MaxPlayers: 6, MaxScore: 3})

	assert.Equal(t, 6, s.MaxPlayers)
	assert.Equal(t, 7, s.MaxScore)
	assert.True(t, s.AllowJoinMidGame)
}
