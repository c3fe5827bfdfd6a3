// Copyright 2025 PulseGrid Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package subscribe

import (
	internalfsm "github.com/pulsegrid/pulsegrid-go/internal/fsm"
	"github.com/pulsegrid/pulsegrid-go/pkg/models"
)

// States of the subscribe loop.
const (
	StateUnsubscribed     = "unsubscribed"
	StateHandshaking      = "handshaking"
	StateHandshakeFailed  = "handshake_failed"
	StateHandshakeStopped = "handshake_stopped"
	StateReceiving        = "receiving"
	StateReceiveFailed    = "receive_failed"
	StateReceiveStopped   = "receive_stopped"
)

// Event names. The give-up and retry events are internal: the engine
// produces them itself while resolving a failure.
const (
	EventSubscriptionChange = "subscription_change"
	EventRestore            = "restore"
	EventUnsubscribeAll     = "unsubscribe_all"
	EventHandshakeSuccess   = "handshake_success"
	EventHandshakeFailure   = "handshake_failure"
	EventHandshakeGiveUp    = "handshake_give_up"
	EventReceiveSuccess     = "receive_success"
	EventReceiveFailure     = "receive_failure"
	EventReceiveGiveUp      = "receive_give_up"
	EventDisconnect         = "disconnect"
	EventReconnect          = "reconnect"
	EventRetry              = "retry"
)

// Context is the engine's per-instance state, mutated only on the event
// lane.
type Context struct {
	Channels models.ChannelSet
	Groups   models.ChannelSet
	Cursor   models.Cursor
	Attempt  int
	Reason   error
}

// SubscriptionChange replaces the desired channel/group set. An empty
// resulting set is an unsubscribe-all; use NewSubscriptionChange so the
// distinction is made once, at construction.
type SubscriptionChange struct {
	Channels models.ChannelSet
	Groups   models.ChannelSet
}

func (SubscriptionChange) Name() string { return EventSubscriptionChange }

// NewSubscriptionChange builds the set-change event, collapsing an empty
// set into UnsubscribeAll.
func NewSubscriptionChange(channels, groups models.ChannelSet) internalfsm.Event {
	if channels.IsEmpty() && groups.IsEmpty() {
		return UnsubscribeAll{}
	}
	return SubscriptionChange{Channels: channels, Groups: groups}
}

// Restore replaces the set and resumes from a caller-supplied cursor.
type Restore struct {
	Channels models.ChannelSet
	Groups   models.ChannelSet
	Cursor   models.Cursor
}

func (Restore) Name() string { return EventRestore }

// UnsubscribeAll tears the subscribe loop down and clears all state.
type UnsubscribeAll struct{}

func (UnsubscribeAll) Name() string { return EventUnsubscribeAll }

// HandshakeSuccess carries the cursor the server assigned.
type HandshakeSuccess struct {
	Cursor models.Cursor
}

func (HandshakeSuccess) Name() string { return EventHandshakeSuccess }

// HandshakeFailure carries the categorized handshake error.
type HandshakeFailure struct {
	Err error
}

func (HandshakeFailure) Name() string { return EventHandshakeFailure }

type handshakeGiveUp struct {
	Err error
}

func (handshakeGiveUp) Name() string { return EventHandshakeGiveUp }

// ReceiveSuccess carries the advanced cursor and the delivered messages.
type ReceiveSuccess struct {
	Cursor   models.Cursor
	Messages []models.Message
}

func (ReceiveSuccess) Name() string { return EventReceiveSuccess }

// ReceiveFailure carries the categorized receive error.
type ReceiveFailure struct {
	Err error
}

func (ReceiveFailure) Name() string { return EventReceiveFailure }

type receiveGiveUp struct {
	Err error
}

func (receiveGiveUp) Name() string { return EventReceiveGiveUp }

// Disconnect pauses the loop, keeping the set and cursor for a later
// Reconnect.
type Disconnect struct{}

func (Disconnect) Name() string { return EventDisconnect }

// Reconnect resumes a stopped or failed loop from the held cursor.
type Reconnect struct{}

func (Reconnect) Name() string { return EventReconnect }

type retry struct{}

func (retry) Name() string { return EventRetry }
