package protocol

import (
	"encoding/json"
	"fmt"
)

// Source tells the router which audience a packet was broadcast to.
type Source int

const (
	SourceGlobal Source = iota // /topic/gameBrowser
	SourceGame                 // /topic/game/{id}
)

func (s Source) String() string {
	if s == SourceGame {
		return "game"
	}
	return "global"
}

type PacketType string

const (
	PacketChat                   PacketType = "CHAT"
	PacketSystemMessage          PacketType = "SYSTEM_MESSAGE"
	PacketStateChange            PacketType = "STATE_CHANGE"
	PacketIllegalStateTransition PacketType = "ILLEGAL_STATE_TRANSITION"
	PacketGameCreated            PacketType = "GAME_CREATED"
	PacketGameRemoved            PacketType = "GAME_REMOVED"
	PacketPlayerJoined           PacketType = "PLAYER_JOINED_GAME"
	PacketPlayerLeft             PacketType = "PLAYER_LEFT_GAME"
	PacketObserverJoined         PacketType = "OBSERVER_JOINED_GAME"
	PacketObserverLeft           PacketType = "OBSERVER_LEFT_GAME"
	PacketSettingsUpdated        PacketType = "GAME_SETTINGS_UPDATED"
	PacketDecksUpdated           PacketType = "GAME_DECKS_UPDATED"
	PacketBeginNextRound         PacketType = "BEGIN_NEXT_ROUND"
	PacketCardsPlayed            PacketType = "CARDS_PLAYED"
	PacketDealCard               PacketType = "DEAL_CARD"
	PacketDealBlackCard          PacketType = "DEAL_BLACK_CARD"
	PacketCardsToJudge           PacketType = "CARDS_TO_JUDGE"
	PacketRoundWinner            PacketType = "ROUND_WINNER"
	PacketStartTimer             PacketType = "START_TIMER"
	PacketClearTimer             PacketType = "CLEAR_TIMER"
	PacketUnauthorized           PacketType = "UNAUTHORIZED"
)

type ReplyType string

const (
	ReplyListGames      ReplyType = "LIST_GAMES"
	ReplyCreateGame     ReplyType = "CREATE_GAME"
	ReplyJoinGame       ReplyType = "JOIN_GAME"
	ReplyLeaveGame      ReplyType = "LEAVE_GAME"
	ReplyUpdateSettings ReplyType = "UPDATE_SETTINGS"
	ReplyUpdateDecks    ReplyType = "UPDATE_DECKS"
	ReplyPlayCards      ReplyType = "PLAY_CARDS"
	ReplyJudgeCards     ReplyType = "JUDGE_CARDS"
	ReplyStartGame      ReplyType = "START_GAME"
	ReplyStopGame       ReplyType = "STOP_GAME"
)

// Packet is the envelope of every broadcast on a topic.
type Packet struct {
	Type    PacketType      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ReplyError struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Reply is the envelope pushed on /user/queue/reply in answer to an outbound action.
type Reply struct {
	Type    ReplyType       `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	IsError bool            `json:"isError"`
	Error   ReplyError      `json:"error"`
}

func (r Reply) Err() error {
	if !r.IsError {
		return nil
	}
	return fmt.Errorf("%s: %s", r.Error.Title, r.Error.Message)
}

const (
	TopicGameBrowser     = "/topic/gameBrowser"
	QueueReply           = "/user/queue/reply"
	QueueErrors          = "/user/queue/errors"
	QueueReauthenticate  = "/user/queue/reauthenticate"
	DestGlobalChat       = "/app/globalChat"
	DestListGames        = "/app/game/list"
	DestCreateGame       = "/app/game/create"
	DestJoinGame         = "/app/game/join"
	DestLeaveGame        = "/app/game/leave"
	DestReauthenticate   = "/app/reauthenticate"
	gameTopicPrefix      = "/topic/game/"
	gameDestinationStart = "/app/game/"
)

func GameTopic(gameID string) string {
	return gameTopicPrefix + gameID
}

// GameDestination builds /app/game/{id}/{action}.
func GameDestination(gameID, action string) string {
	return gameDestinationStart + gameID + "/" + action
}
