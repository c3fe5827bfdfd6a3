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

// Package subscribe implements the subscription event engine: the state
// machine that owns the handshake/receive long-poll loop, its retry
// escalation, and message delivery.
package subscribe

import (
	"sync"

	looplabfsm "github.com/looplab/fsm"
	"go.uber.org/zap"

	internalfsm "github.com/pulsegrid/pulsegrid-go/internal/fsm"
	"github.com/pulsegrid/pulsegrid-go/pkg/backoff"
	"github.com/pulsegrid/pulsegrid-go/pkg/dedup"
	pubfsm "github.com/pulsegrid/pulsegrid-go/pkg/fsm"
	"github.com/pulsegrid/pulsegrid-go/pkg/logger"
	"github.com/pulsegrid/pulsegrid-go/pkg/models"
	"github.com/pulsegrid/pulsegrid-go/pkg/transport"
)

// Config wires one subscribe engine instance.
type Config struct {
	ID        string
	Transport transport.Transport
	Retry     *backoff.RetryPolicy
	// Dedup is optional; nil disables duplicate suppression.
	Dedup *dedup.Cache
	// PresenceTimeout is announced on subscribe calls, in seconds.
	PresenceTimeout int
	// OnStatus and OnMessages are invoked off the event lane. They must
	// not block for long; slow consumers should buffer.
	OnStatus   func(models.Status)
	OnMessages func([]models.Message)
	QueueSize  int
}

var _ pubfsm.EventEngine = (*Instance)(nil)

// Instance is one running subscribe engine.
type Instance struct {
	cfg    Config
	engine *internalfsm.Engine
	logger *zap.SugaredLogger

	mu  sync.Mutex
	ctx Context
}

func transitions() []looplabfsm.EventDesc {
	return []looplabfsm.EventDesc{
		{Name: EventSubscriptionChange, Src: []string{StateUnsubscribed, StateHandshaking, StateHandshakeFailed, StateReceiveFailed}, Dst: StateHandshaking},
		{Name: EventSubscriptionChange, Src: []string{StateReceiving}, Dst: StateReceiving},
		{Name: EventSubscriptionChange, Src: []string{StateHandshakeStopped}, Dst: StateHandshakeStopped},
		{Name: EventSubscriptionChange, Src: []string{StateReceiveStopped}, Dst: StateReceiveStopped},

		{Name: EventRestore, Src: []string{StateUnsubscribed, StateHandshaking, StateHandshakeFailed, StateReceiveFailed}, Dst: StateHandshaking},
		{Name: EventRestore, Src: []string{StateReceiving}, Dst: StateReceiving},
		{Name: EventRestore, Src: []string{StateHandshakeStopped}, Dst: StateHandshakeStopped},
		{Name: EventRestore, Src: []string{StateReceiveStopped}, Dst: StateReceiveStopped},

		{Name: EventUnsubscribeAll, Src: []string{StateHandshaking, StateHandshakeFailed, StateHandshakeStopped, StateReceiving, StateReceiveFailed, StateReceiveStopped}, Dst: StateUnsubscribed},

		{Name: EventHandshakeSuccess, Src: []string{StateHandshaking}, Dst: StateReceiving},
		{Name: EventHandshakeFailure, Src: []string{StateHandshaking}, Dst: StateHandshaking},
		{Name: EventHandshakeGiveUp, Src: []string{StateHandshaking}, Dst: StateHandshakeFailed},

		{Name: EventReceiveSuccess, Src: []string{StateReceiving}, Dst: StateReceiving},
		{Name: EventReceiveFailure, Src: []string{StateReceiving}, Dst: StateReceiving},
		{Name: EventReceiveGiveUp, Src: []string{StateReceiving}, Dst: StateReceiveFailed},

		{Name: EventDisconnect, Src: []string{StateHandshaking, StateHandshakeFailed}, Dst: StateHandshakeStopped},
		{Name: EventDisconnect, Src: []string{StateReceiving, StateReceiveFailed}, Dst: StateReceiveStopped},

		{Name: EventReconnect, Src: []string{StateHandshakeStopped, StateHandshakeFailed}, Dst: StateHandshaking},
		{Name: EventReconnect, Src: []string{StateReceiveStopped, StateReceiveFailed}, Dst: StateReceiving},

		{Name: EventRetry, Src: []string{StateHandshaking}, Dst: StateHandshaking},
		{Name: EventRetry, Src: []string{StateReceiving}, Dst: StateReceiving},
	}
}

// NewInstance builds and starts a subscribe engine in StateUnsubscribed.
func NewInstance(cfg Config) *Instance {
	i := &Instance{
		cfg:    cfg,
		logger: logger.For(logger.ComponentSubscribeEngine).With("instance", cfg.ID),
	}
	i.engine = internalfsm.NewEngine(internalfsm.EngineConfig{
		ID:           cfg.ID,
		InitialState: StateUnsubscribed,
		Transitions:  transitions(),
		QueueSize:    cfg.QueueSize,
	})
	i.register()
	i.engine.Start()
	return i
}

func (i *Instance) register() {
	e := i.engine

	for _, state := range []string{StateUnsubscribed, StateHandshaking, StateHandshakeFailed, StateReceiveFailed} {
		e.OnEvent(state, EventSubscriptionChange, i.applyChangeToHandshaking)
		e.OnEvent(state, EventRestore, i.applyRestoreToHandshaking)
	}
	e.OnEvent(StateReceiving, EventSubscriptionChange, i.applyChangeWhileReceiving)
	e.OnEvent(StateReceiving, EventRestore, i.applyRestoreWhileReceiving)
	for _, state := range []string{StateHandshakeStopped, StateReceiveStopped} {
		e.OnEvent(state, EventSubscriptionChange, i.applyChangeWhileStopped)
		e.OnEvent(state, EventRestore, i.applyRestoreWhileStopped)
	}

	for _, state := range []string{StateHandshaking, StateHandshakeFailed, StateHandshakeStopped, StateReceiving, StateReceiveFailed, StateReceiveStopped} {
		e.OnEvent(state, EventUnsubscribeAll, i.applyUnsubscribeAll)
	}

	e.OnEvent(StateHandshaking, EventHandshakeSuccess, i.applyHandshakeSuccess)
	e.OnEvent(StateHandshaking, EventHandshakeFailure, i.applyHandshakeFailure)
	e.OnEvent(StateHandshaking, EventHandshakeGiveUp, i.applyHandshakeGiveUp)
	e.OnEvent(StateHandshaking, EventRetry, i.applyHandshakeRetry)

	e.OnEvent(StateReceiving, EventReceiveSuccess, i.applyReceiveSuccess)
	e.OnEvent(StateReceiving, EventReceiveFailure, i.applyReceiveFailure)
	e.OnEvent(StateReceiving, EventReceiveGiveUp, i.applyReceiveGiveUp)
	e.OnEvent(StateReceiving, EventRetry, i.applyReceiveRetry)

	for _, state := range []string{StateHandshaking, StateHandshakeFailed, StateReceiving, StateReceiveFailed} {
		e.OnEvent(state, EventDisconnect, i.applyDisconnect)
	}

	for _, state := range []string{StateHandshakeStopped, StateHandshakeFailed} {
		e.OnEvent(state, EventReconnect, i.applyReconnectHandshake)
	}
	for _, state := range []string{StateReceiveStopped, StateReceiveFailed} {
		e.OnEvent(state, EventReconnect, i.applyReconnectReceive)
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
		i.ctx.Channels.Names(), i.ctx.Groups.Names(), i.ctx.Cursor, i.ctx.Attempt)
}

// Close stops the lane and aborts in-flight calls.
func (i *Instance) Close() { i.engine.Close() }

// applyChangeToHandshaking handles a set change from any state that must
// (re-)handshake: the new set replaces the old and the handshake starts
// from whatever cursor is held, so rejoining clients catch up.
func (i *Instance) applyChangeToHandshaking(ev internalfsm.Event) []internalfsm.Effect {
	change := ev.(SubscriptionChange)
	i.mu.Lock()
	i.ctx.Channels = change.Channels
	i.ctx.Groups = change.Groups
	i.ctx.Attempt = 0
	i.ctx.Reason = nil
	i.mu.Unlock()

	i.engine.Dispatcher().Cancel(internalfsm.ChannelWait)
	return []internalfsm.Effect{
		i.handshakeEffect(),
		i.statusEffect(models.StatusSubscriptionChanged),
	}
}

func (i *Instance) applyChangeWhileReceiving(ev internalfsm.Event) []internalfsm.Effect {
	change := ev.(SubscriptionChange)
	i.mu.Lock()
	i.ctx.Channels = change.Channels
	i.ctx.Groups = change.Groups
	i.mu.Unlock()

	i.engine.Dispatcher().Cancel(internalfsm.ChannelWait)
	return []internalfsm.Effect{
		i.receiveEffect(),
		i.statusEffect(models.StatusSubscriptionChanged),
	}
}

// applyChangeWhileStopped only updates the desired set; the loop stays
// down until Reconnect.
func (i *Instance) applyChangeWhileStopped(ev internalfsm.Event) []internalfsm.Effect {
	change := ev.(SubscriptionChange)
	i.mu.Lock()
	i.ctx.Channels = change.Channels
	i.ctx.Groups = change.Groups
	i.mu.Unlock()
	return nil
}

func (i *Instance) applyRestoreToHandshaking(ev internalfsm.Event) []internalfsm.Effect {
	restore := ev.(Restore)
	i.mu.Lock()
	i.ctx.Channels = restore.Channels
	i.ctx.Groups = restore.Groups
	i.ctx.Cursor = restore.Cursor
	i.ctx.Attempt = 0
	i.ctx.Reason = nil
	i.mu.Unlock()

	i.engine.Dispatcher().Cancel(internalfsm.ChannelWait)
	return []internalfsm.Effect{
		i.handshakeEffect(),
		i.statusEffect(models.StatusSubscriptionChanged),
	}
}

func (i *Instance) applyRestoreWhileReceiving(ev internalfsm.Event) []internalfsm.Effect {
	restore := ev.(Restore)
	i.mu.Lock()
	i.ctx.Channels = restore.Channels
	i.ctx.Groups = restore.Groups
	i.ctx.Cursor = restore.Cursor
	i.mu.Unlock()

	i.engine.Dispatcher().Cancel(internalfsm.ChannelWait)
	return []internalfsm.Effect{
		i.receiveEffect(),
		i.statusEffect(models.StatusSubscriptionChanged),
	}
}

func (i *Instance) applyRestoreWhileStopped(ev internalfsm.Event) []internalfsm.Effect {
	restore := ev.(Restore)
	i.mu.Lock()
	i.ctx.Channels = restore.Channels
	i.ctx.Groups = restore.Groups
	i.ctx.Cursor = restore.Cursor
	i.mu.Unlock()
	return nil
}

func (i *Instance) applyUnsubscribeAll(internalfsm.Event) []internalfsm.Effect {
	i.mu.Lock()
	i.ctx = Context{}
	i.mu.Unlock()

	d := i.engine.Dispatcher()
	d.Cancel(internalfsm.ChannelHandshake)
	d.Cancel(internalfsm.ChannelReceive)
	d.Cancel(internalfsm.ChannelWait)
	return []internalfsm.Effect{i.statusEffect(models.StatusDisconnected)}
}

// applyHandshakeSuccess switches into the receive loop. A cursor held
// from a restore keeps its timetoken so no history is skipped, but takes
// the server-assigned region.
func (i *Instance) applyHandshakeSuccess(ev internalfsm.Event) []internalfsm.Effect {
	success := ev.(HandshakeSuccess)
	i.mu.Lock()
	if !i.ctx.Cursor.IsZero() {
		i.ctx.Cursor.Region = success.Cursor.Region
	} else {
		i.ctx.Cursor = success.Cursor
	}
	i.ctx.Attempt = 0
	i.ctx.Reason = nil
	i.mu.Unlock()

	return []internalfsm.Effect{
		i.statusEffect(models.StatusConnected),
		i.receiveEffect(),
	}
}

func (i *Instance) applyHandshakeFailure(ev internalfsm.Event) []internalfsm.Effect {
	failure := ev.(HandshakeFailure)
	return i.applyFailure(failure.Err, backoff.EndpointSubscribe, func(err error) internalfsm.Event {
		return handshakeGiveUp{Err: err}
	})
}

func (i *Instance) applyReceiveFailure(ev internalfsm.Event) []internalfsm.Effect {
	failure := ev.(ReceiveFailure)
	return i.applyFailure(failure.Err, backoff.EndpointSubscribe, func(err error) internalfsm.Event {
		return receiveGiveUp{Err: err}
	})
}

// applyFailure decides between a delayed retry and giving up. Permanent
// errors never retry; otherwise the retry policy rules.
func (i *Instance) applyFailure(err error, endpoint backoff.Endpoint, giveUp func(error) internalfsm.Event) []internalfsm.Effect {
	i.mu.Lock()
	i.ctx.Reason = err
	attempt := i.ctx.Attempt
	i.ctx.Attempt++
	i.mu.Unlock()

	if backoff.IsPermanentError(err) {
		i.logger.Warnf("permanent failure, giving up: %v", err)
		return []internalfsm.Effect{internalfsm.Feedback(giveUp(err))}
	}
	decision := i.cfg.Retry.ShouldRetry(attempt, endpoint)
	if !decision.Retry {
		i.logger.Warnf("retries exhausted after %d attempts: %v", attempt, err)
		return []internalfsm.Effect{internalfsm.Feedback(giveUp(backoff.ErrRetryExhausted))}
	}
	i.logger.Infof("retrying in %s (attempt %d): %v", decision.Delay, attempt+1, err)
	return []internalfsm.Effect{
		internalfsm.Wait(decision.Delay, retry{}),
		i.statusEffectErr(models.StatusReconnecting, err),
	}
}

func (i *Instance) applyHandshakeGiveUp(ev internalfsm.Event) []internalfsm.Effect {
	giveUp := ev.(handshakeGiveUp)
	i.mu.Lock()
	i.ctx.Reason = giveUp.Err
	i.mu.Unlock()
	return []internalfsm.Effect{i.statusEffectErr(models.StatusDisconnectedUnexpectedly, giveUp.Err)}
}

func (i *Instance) applyReceiveGiveUp(ev internalfsm.Event) []internalfsm.Effect {
	giveUp := ev.(receiveGiveUp)
	i.mu.Lock()
	i.ctx.Reason = giveUp.Err
	i.mu.Unlock()
	return []internalfsm.Effect{i.statusEffectErr(models.StatusDisconnectedUnexpectedly, giveUp.Err)}
}

func (i *Instance) applyHandshakeRetry(internalfsm.Event) []internalfsm.Effect {
	return []internalfsm.Effect{i.handshakeEffect()}
}

func (i *Instance) applyReceiveRetry(internalfsm.Event) []internalfsm.Effect {
	return []internalfsm.Effect{i.receiveEffect()}
}

// applyReceiveSuccess advances the cursor, filters duplicates, delivers
// what remains, and immediately polls again.
func (i *Instance) applyReceiveSuccess(ev internalfsm.Event) []internalfsm.Effect {
	success := ev.(ReceiveSuccess)
	i.mu.Lock()
	i.ctx.Cursor = success.Cursor
	i.ctx.Attempt = 0
	i.ctx.Reason = nil
	i.mu.Unlock()

	messages := success.Messages
	if i.cfg.Dedup != nil {
		messages = i.cfg.Dedup.Filter(messages)
	}
	effects := make([]internalfsm.Effect, 0, 2)
	if len(messages) > 0 {
		effects = append(effects, i.messagesEffect(messages))
	}
	return append(effects, i.receiveEffect())
}

func (i *Instance) applyDisconnect(internalfsm.Event) []internalfsm.Effect {
	d := i.engine.Dispatcher()
	d.Cancel(internalfsm.ChannelHandshake)
	d.Cancel(internalfsm.ChannelReceive)
	d.Cancel(internalfsm.ChannelWait)
	return []internalfsm.Effect{i.statusEffect(models.StatusDisconnected)}
}

func (i *Instance) applyReconnectHandshake(internalfsm.Event) []internalfsm.Effect {
	i.mu.Lock()
	i.ctx.Attempt = 0
	i.ctx.Reason = nil
	i.mu.Unlock()
	return []internalfsm.Effect{i.handshakeEffect()}
}

func (i *Instance) applyReconnectReceive(internalfsm.Event) []internalfsm.Effect {
	i.mu.Lock()
	i.ctx.Attempt = 0
	i.ctx.Reason = nil
	i.mu.Unlock()
	return []internalfsm.Effect{i.receiveEffect()}
}
