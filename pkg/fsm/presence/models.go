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

package presence

import (
	internalfsm "github.com/pulsegrid/pulsegrid-go/internal/fsm"
	"github.com/pulsegrid/pulsegrid-go/pkg/models"
)

// States of the heartbeat loop.
const (
	StateInactive = "heartbeat_inactive"
	StateActive   = "heartbeating"
	StateCooldown = "heartbeat_cooldown"
	StateFailed   = "heartbeat_failed"
	StateStopped  = "heartbeat_stopped"
)

// Event names. Give-up and retry are internal.
const (
	EventJoined           = "joined"
	EventLeft             = "left"
	EventLeftAll          = "left_all"
	EventHeartbeatSuccess = "heartbeat_success"
	EventHeartbeatFailure = "heartbeat_failure"
	EventHeartbeatGiveUp  = "heartbeat_give_up"
	EventDisconnect       = "disconnect"
	EventReconnect        = "reconnect"
	EventTimesUp          = "times_up"
	EventRetry            = "retry"
)

// Context is the engine's per-instance state, mutated only on the event
// lane.
type Context struct {
	Channels models.ChannelSet
	Groups   models.ChannelSet
	Attempt  int
	Reason   error
}

// Joined announces the full channel/group set to heartbeat for. The
// caller computes the union; the event carries the result.
type Joined struct {
	Channels models.ChannelSet
	Groups   models.ChannelSet
}

func (Joined) Name() string { return EventJoined }

// Left announces departure from some channels. Remaining is the set still
// heartbeated; Departed is what the leave call announces. An empty
// Remaining set is a LeftAll; use NewLeft so the distinction is made at
// construction.
type Left struct {
	Remaining      models.ChannelSet
	RemainingGroup models.ChannelSet
	Departed       models.ChannelSet
	DepartedGroup  models.ChannelSet
}

func (Left) Name() string { return EventLeft }

// NewLeft builds the departure event, collapsing an empty remaining set
// into LeftAll.
func NewLeft(remaining, remainingGroups, departed, departedGroups models.ChannelSet) internalfsm.Event {
	if remaining.IsEmpty() && remainingGroups.IsEmpty() {
		return LeftAll{}
	}
	return Left{
		Remaining:      remaining,
		RemainingGroup: remainingGroups,
		Departed:       departed,
		DepartedGroup:  departedGroups,
	}
}

// LeftAll stops heartbeating entirely and announces departure from
// everything.
type LeftAll struct{}

func (LeftAll) Name() string { return EventLeftAll }

// HeartbeatSuccess acknowledges one heartbeat round-trip.
type HeartbeatSuccess struct{}

func (HeartbeatSuccess) Name() string { return EventHeartbeatSuccess }

// HeartbeatFailure carries the categorized heartbeat error.
type HeartbeatFailure struct {
	Err error
}

func (HeartbeatFailure) Name() string { return EventHeartbeatFailure }

type heartbeatGiveUp struct {
	Err error
}

func (heartbeatGiveUp) Name() string { return EventHeartbeatGiveUp }

// Disconnect pauses the heartbeat loop. With Offline set, no leave is
// announced: the caller intends to silently drop off.
type Disconnect struct {
	Offline bool
}

func (Disconnect) Name() string { return EventDisconnect }

// Reconnect resumes a stopped or failed heartbeat loop.
type Reconnect struct{}

func (Reconnect) Name() string { return EventReconnect }

type timesUp struct{}

func (timesUp) Name() string { return EventTimesUp }

type retry struct{}

func (retry) Name() string { return EventRetry }
