package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownPacketType = errors.New("unknown packet type")
var ErrMalformedPayload = errors.New("malformed payload")
var ErrMalformedReply = errors.New("malformed reply")

var decoders = map[PacketType]func(json.RawMessage) (Event, error){
	PacketChat:                   decodeAs[Chat],
	PacketSystemMessage:          decodeAs[SystemMessage],
	PacketStateChange:            decodeAs[StateChange],
	PacketIllegalStateTransition: decodeAs[IllegalStateTransition],
	PacketGameCreated:            decodeAs[GameCreated],
	PacketGameRemoved:            decodeAs[GameRemoved],
	PacketPlayerJoined:           decodeAs[PlayerJoined],
	PacketPlayerLeft:             decodeAs[PlayerLeft],
	PacketObserverJoined:         decodeAs[ObserverJoined],
	PacketObserverLeft:           decodeAs[ObserverLeft],
	PacketSettingsUpdated:        decodeAs[SettingsUpdated],
	PacketDecksUpdated:           decodeAs[DecksUpdated],
	PacketBeginNextRound:         decodeAs[BeginNextRound],
	PacketCardsPlayed:            decodeAs[CardsPlayed],
	PacketDealCard:               decodeAs[DealCard],
	PacketDealBlackCard:          decodeAs[DealBlackCard],
	PacketCardsToJudge:           decodeAs[CardsToJudge],
	PacketRoundWinner:            decodeAs[RoundWinner],
	PacketStartTimer:             decodeAs[StartTimer],
	PacketClearTimer:             decodeAs[ClearTimer],
	PacketUnauthorized:           decodeAs[Unauthorized],
}

func decodeAs[T Event](raw json.RawMessage) (Event, error) {
	var ev T
	if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// DecodePacket decodes a topic frame into the payload type selected by its tag.
// Unknown tags and payloads that do not match their tag's schema are rejected.
func DecodePacket(body []byte) (Event, error) {
	var p Packet
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	decode, ok := decoders[p.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPacketType, p.Type)
	}
	ev, err := decode(p.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.Type, err)
	}
	return ev, nil
}

func DecodeReply(body []byte) (Reply, error) {
	var r Reply
	if err := json.Unmarshal(body, &r); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	if r.Type == "" && !r.IsError {
		return Reply{}, fmt.Errorf("%w: missing type", ErrMalformedReply)
	}
	return r, nil
}

// EncodePacket is the inverse of DecodePacket; the fake server in tests uses it.
func EncodePacket(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Packet{Type: ev.Type(), Payload: payload})
}
