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

// Package presence implements the presence event engine: periodic
// heartbeats for the announced channel set, leave announcements on
// departure, and retry escalation on failures.
package presence

import (
	"sync"
	"time"

	looplabfsm "github.com/looplab/fsm"
	"go.uber.org/zap"

	internalfsm "github.com/pulsegrid/pulsegrid-go/internal/fsm"
	"github.com/pulsegrid/pulsegrid-go/pkg/backoff"
	pubfsm "github.com/pulsegrid/pulsegrid-go/pkg/fsm"
	"github.com/pulsegrid/pulsegrid-go/pkg/logger"
	"github.com/pulsegrid/pulsegrid-go/pkg/models"
	"github.com/pulsegrid/pulsegrid-go/pkg/transport"
)

// Config wires one presence engine instance.
type Config struct {
	ID        string
	Transport transport.Transport
	Retry     *backoff.RetryPolicy
	// HeartbeatInterval is the cooldown between successful heartbeats.
	HeartbeatInterval time.Duration
	// PresenceTimeout is announced on heartbeat calls, in seconds.
	PresenceTimeout int
	// SuppressLeave disables all leave announcements.
	SuppressLeave bool
	// OnStatus is invoked off the event lane.
	OnStatus  func(models.Status)
	QueueSize int
}

var _ pubfsm.EventEngine = (*Instance)(nil)

// Instance is one running presence engine.
type Instance struct {
	cfg    Config
	engine *internalfsm.Engine
	logger *zap.SugaredLogger

	mu  sync.Mutex
	ctx Context
}

func transitions() []looplabfsm.EventDesc {
	return []looplabfsm.EventDesc{
		{Name: EventJoined, Src: []string{StateInactive, StateActive, StateCooldown, StateFailed}, Dst: StateActive},
		{Name: EventJoined, Src: []string{StateStopped}, Dst: StateStopped},

		{Name: EventLeft, Src: []string{StateActive, StateCooldown, StateFailed}, Dst: StateActive},
		{Name: EventLeft, Src: []string{StateStopped}, Dst: StateStopped},

		{Name: EventLeftAll, Src: []string{StateActive, StateCooldown, StateFailed, StateStopped}, Dst: StateInactive},

		{Name: EventHeartbeatSuccess, Src: []string{StateActive}, Dst: StateCooldown},
		{Name: EventHeartbeatFailure, Src: []string{StateActive}, Dst: StateActive},
		{Name: EventHeartbeatGiveUp, Src: []string{StateActive}, Dst: StateFailed},

		{Name: EventTimesUp, Src: []string{StateCooldown}, Dst: StateActive},
		{Name: EventRetry, Src: []string{StateActive}, Dst: StateActive},

		{Name: EventDisconnect, Src: []string{StateActive, StateCooldown, StateFailed}, Dst: StateStopped},
		{Name: EventReconnect, Src: []string{StateStopped, StateFailed}, Dst: StateActive},
	}
}

// NewInstance builds and starts a presence engine in StateInactive.
func NewInstance(cfg Config) *Instance {
	i := &Instance{
		cfg:    cfg,
		logger: logger.For(logger.ComponentPresenceEngine).With("instance", cfg.ID),
	}
	i.engine = internalfsm.NewEngine(internalfsm.EngineConfig{
		ID:           cfg.ID,
		InitialState: StateInactive,
		Transitions:  transitions(),
		QueueSize:    cfg.QueueSize,
	})
	i.register()
	i.engine.Start()
	return i
}

func (i *Instance) register() {
	e := i.engine

	for _, state := range []string{StateInactive, StateActive, StateCooldown, StateFailed} {
		e.OnEvent(state, EventJoined, i.applyJoined)
	}
	e.OnEvent(StateStopped, EventJoined, i.applyJoinedWhileStopped)

	for _, state := range []string{StateActive, StateCooldown, StateFailed} {
		e.OnEvent(state, EventLeft, i.applyLeft)
	}
	e.OnEvent(StateStopped, EventLeft, i.applyLeftWhileStopped)

	for _, state := range []string{StateActive, StateCooldown, StateFailed} {
		e.OnEvent(state, EventLeftAll, i.applyLeftAll)
	}
	e.OnEvent(StateStopped, EventLeftAll, i.applyLeftAllWhileStopped)

	e.OnEvent(StateActive, EventHeartbeatSuccess, i.applyHeartbeatSuccess)
	e.OnEvent(StateActive, EventHeartbeatFailure, i.applyHeartbeatFailure)
	e.OnEvent(StateActive, EventHeartbeatGiveUp, i.applyHeartbeatGiveUp)
	e.OnEvent(StateActive, EventRetry, i.applyRetry)
	e.OnEvent(StateCooldown, EventTimesUp, i.applyTimesUp)

	for _, state := range []string{StateActive, StateCooldown, StateFailed} {
		e.OnEvent(state, EventDisconnect, i.applyDisconnect)
	}
	for _, state := range []string{StateStopped, StateFailed} {
		e.OnEvent(state, EventReconnect, i.applyReconnect)
	}
}

// Send enqueues an event.
func (i *Instance) Send(ev internalfsm.Event) { i.engine.Send(ev) }

// CurrentState reports the engine's state name.
func (i *Instance) CurrentState() string { return i.engine.CurrentState() }

// Snapshot captures the engine's observable state.
func (i *Instance) Snapshot() pubfsm.Snapshot {
	// Read the engine state before taking i.mu: apply funcs hold i.mu
	// while the event lane runs, and must stay free to query the engine.
	state := i.engine.CurrentState()
	i.mu.Lock()
	defer i.mu.Unlock()
	return pubfsm.NewSnapshot(i.cfg.ID, state,
		i.ctx.Channels.Names(), i.ctx.Groups.Names(), models.ZeroCursor, i.ctx.Attempt)
}

// Close stops the lane and aborts in-flight calls.
func (i *Instance) Close() { i.engine.Close() }

// applyJoined replaces the announced set and heartbeats immediately so
// the server learns about the new channels without waiting a cooldown.
func (i *Instance) applyJoined(ev internalfsm.Event) []internalfsm.Effect {
	joined := ev.(Joined)
	i.mu.Lock()
	i.ctx.Channels = joined.Channels
	i.ctx.Groups = joined.Groups
	i.ctx.Attempt = 0
	i.ctx.Reason = nil
	i.mu.Unlock()

	i.engine.Dispatcher().Cancel(internalfsm.ChannelWait)
	return []internalfsm.Effect{i.heartbeatEffect()}
}

func (i *Instance) applyJoinedWhileStopped(ev internalfsm.Event) []internalfsm.Effect {
	joined := ev.(Joined)
	i.mu.Lock()
	i.ctx.Channels = joined.Channels
	i.ctx.Groups = joined.Groups
	i.mu.Unlock()
	return nil
}

func (i *Instance) applyLeft(ev internalfsm.Event) []internalfsm.Effect {
	left := ev.(Left)
	i.mu.Lock()
	i.ctx.Channels = left.Remaining
	i.ctx.Groups = left.RemainingGroup
	i.ctx.Attempt = 0
	i.ctx.Reason = nil
	i.mu.Unlock()

	i.engine.Dispatcher().Cancel(internalfsm.ChannelWait)
	effects := make([]internalfsm.Effect, 0, 2)
	if !i.cfg.SuppressLeave {
		effects = append(effects, i.leaveEffect(left.Departed, left.DepartedGroup))
	}
	return append(effects, i.heartbeatEffect())
}

func (i *Instance) applyLeftWhileStopped(ev internalfsm.Event) []internalfsm.Effect {
	left := ev.(Left)
	i.mu.Lock()
	i.ctx.Channels = left.Remaining
	i.ctx.Groups = left.RemainingGroup
	i.mu.Unlock()

	if i.cfg.SuppressLeave {
		return nil
	}
	return []internalfsm.Effect{i.leaveEffect(left.Departed, left.DepartedGroup)}
}

func (i *Instance) applyLeftAll(internalfsm.Event) []internalfsm.Effect {
	channels, groups := i.resetContext()

	d := i.engine.Dispatcher()
	d.Cancel(internalfsm.ChannelHeartbeat)
	d.Cancel(internalfsm.ChannelWait)
	if i.cfg.SuppressLeave {
		return nil
	}
	return []internalfsm.Effect{i.leaveEffect(channels, groups)}
}

// applyLeftAllWhileStopped clears state without a leave call: a stopped
// engine already went through its disconnect announcement.
func (i *Instance) applyLeftAllWhileStopped(internalfsm.Event) []internalfsm.Effect {
	i.resetContext()
	return nil
}

func (i *Instance) resetContext() (channels, groups models.ChannelSet) {
	i.mu.Lock()
	defer i.mu.Unlock()
	channels = i.ctx.Channels
	groups = i.ctx.Groups
	i.ctx = Context{}
	return channels, groups
}

func (i *Instance) applyHeartbeatSuccess(internalfsm.Event) []internalfsm.Effect {
	i.mu.Lock()
	i.ctx.Attempt = 0
	i.ctx.Reason = nil
	i.mu.Unlock()

	return []internalfsm.Effect{
		i.statusEffect(models.StatusHeartbeatSuccess, nil),
		internalfsm.Wait(i.cfg.HeartbeatInterval, timesUp{}),
	}
}

func (i *Instance) applyTimesUp(internalfsm.Event) []internalfsm.Effect {
	return []internalfsm.Effect{i.heartbeatEffect()}
}

func (i *Instance) applyRetry(internalfsm.Event) []internalfsm.Effect {
	return []internalfsm.Effect{i.heartbeatEffect()}
}

func (i *Instance) applyHeartbeatFailure(ev internalfsm.Event) []internalfsm.Effect {
	failure := ev.(HeartbeatFailure)
	i.mu.Lock()
	i.ctx.Reason = failure.Err
	attempt := i.ctx.Attempt
	i.ctx.Attempt++
	i.mu.Unlock()

	if backoff.IsPermanentError(failure.Err) {
		i.logger.Warnf("permanent heartbeat failure, giving up: %v", failure.Err)
		return []internalfsm.Effect{internalfsm.Feedback(heartbeatGiveUp{Err: failure.Err})}
	}
	decision := i.cfg.Retry.ShouldRetry(attempt, backoff.EndpointPresence)
	if !decision.Retry {
		i.logger.Warnf("heartbeat retries exhausted after %d attempts: %v", attempt, failure.Err)
		return []internalfsm.Effect{internalfsm.Feedback(heartbeatGiveUp{Err: backoff.ErrRetryExhausted})}
	}
	i.logger.Infof("retrying heartbeat in %s (attempt %d): %v", decision.Delay, attempt+1, failure.Err)
	return []internalfsm.Effect{internalfsm.Wait(decision.Delay, retry{})}
}

func (i *Instance) applyHeartbeatGiveUp(ev internalfsm.Event) []internalfsm.Effect {
	giveUp := ev.(heartbeatGiveUp)
	i.mu.Lock()
	i.ctx.Reason = giveUp.Err
	i.mu.Unlock()
	return []internalfsm.Effect{i.statusEffect(models.StatusHeartbeatFailed, giveUp.Err)}
}

func (i *Instance) applyDisconnect(ev internalfsm.Event) []internalfsm.Effect {
	disconnect := ev.(Disconnect)
	i.mu.Lock()
	channels := i.ctx.Channels
	groups := i.ctx.Groups
	i.mu.Unlock()

	d := i.engine.Dispatcher()
	d.Cancel(internalfsm.ChannelHeartbeat)
	d.Cancel(internalfsm.ChannelWait)
	if disconnect.Offline || i.cfg.SuppressLeave {
		return nil
	}
	return []internalfsm.Effect{i.leaveEffect(channels, groups)}
}

func (i *Instance) applyReconnect(internalfsm.Event) []internalfsm.Effect {
	i.mu.Lock()
	i.ctx.Attempt = 0
	i.ctx.Reason = nil
	i.mu.Unlock()
	return []internalfsm.Effect{i.heartbeatEffect()}
}
