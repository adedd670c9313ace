package router

import (
	"github.com/DoyleJ11/cah-client/internal/dispatch"
	"github.com/DoyleJ11/cah-client/internal/notify"
)

// Effect is work the router asks the session to perform after a state mutation.
type Effect interface{ isEffect() }

type Notify struct {
	Notification notify.Notification
}

// Dispatch issues an outbound action on the router's behalf.
type Dispatch struct {
	Action dispatch.Action
}

type SubscribeGame struct {
	GameID string
}

type UnsubscribeGame struct{}

// StartTicker (re)arms the one-second countdown for the active game's timer.
type StartTicker struct{}

type StopTicker struct{}

func (Notify) isEffect()          {}
func (Dispatch) isEffect()        {}
func (SubscribeGame) isEffect()   {}
func (UnsubscribeGame) isEffect() {}
func (StartTicker) isEffect()     {}
func (StopTicker) isEffect()      {}

func notice(level notify.Level, title, message string) Notify {
	return Notify{Notification: notify.New(level, title, message)}
}
