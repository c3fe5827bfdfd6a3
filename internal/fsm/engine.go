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

// Package fsm provides the shared event engine runtime: a single-lane
// event queue driving a looplab state machine, with asynchronous effects
// executed and cancelled through a Dispatcher.
package fsm

import (
	"context"
	"errors"
	"sync"
	"time"

	looplabfsm "github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/pulsegrid/pulsegrid-go/pkg/logger"
	"github.com/pulsegrid/pulsegrid-go/pkg/metrics"
	"github.com/pulsegrid/pulsegrid-go/pkg/sentry"
)

// Event is anything that can be sent to an engine. Events carry their own
// payload; Name selects the transition.
type Event interface {
	Name() string
}

// ApplyFunc mutates the instance context for an event accepted in a given
// state and returns the effects to dispatch. It runs on the engine's
// single lane, after legality has been checked and before the state
// switches.
type ApplyFunc func(ev Event) []Effect

// EngineConfig describes one engine instance.
type EngineConfig struct {
	// ID identifies the instance in logs and metrics.
	ID string
	// InitialState the machine starts in.
	InitialState string
	// Transitions is the full legality table.
	Transitions []looplabfsm.EventDesc
	// QueueSize bounds the event lane; zero means a default of 64.
	QueueSize int
}

const defaultQueueSize = 64

// Engine processes events strictly one at a time in arrival order. An
// event that is not legal in the current state, or has no registered
// apply function there, is a no-op: no state change, no effects.
type Engine struct {
	cfg        EngineConfig
	mu         sync.RWMutex
	machine    *looplabfsm.FSM
	apply      map[string]map[string]ApplyFunc
	queue      chan Event
	dispatcher *Dispatcher
	logger     *zap.SugaredLogger
	done       chan struct{}
	closeOnce  sync.Once
}

// NewEngine builds an engine from its transition table. Apply functions
// are registered with OnEvent before Start.
func NewEngine(cfg EngineConfig) *Engine {
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	e := &Engine{
		cfg:    cfg,
		apply:  make(map[string]map[string]ApplyFunc),
		queue:  make(chan Event, queueSize),
		logger: logger.For(logger.ComponentEngineCore).With("instance", cfg.ID),
		done:   make(chan struct{}),
	}
	e.machine = looplabfsm.NewFSM(cfg.InitialState, cfg.Transitions, looplabfsm.Callbacks{})
	e.dispatcher = NewDispatcher(cfg.ID, e.Send, logger.For(logger.ComponentDispatcher).With("instance", cfg.ID))
	return e
}

// OnEvent registers the apply function for an event name in a state.
func (e *Engine) OnEvent(state, event string, fn ApplyFunc) {
	if e.apply[state] == nil {
		e.apply[state] = make(map[string]ApplyFunc)
	}
	e.apply[state][event] = fn
}

// Start launches the event lane.
func (e *Engine) Start() {
	go e.run()
}

// Send enqueues an event; it is discarded after Close.
func (e *Engine) Send(ev Event) {
	select {
	case <-e.done:
		e.logger.Debugf("dropping event %s: engine closed", ev.Name())
	case e.queue <- ev:
	}
}

// CurrentState returns the machine's state.
func (e *Engine) CurrentState() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.machine.Current()
}

// Dispatcher exposes effect cancellation to the machine's apply functions.
func (e *Engine) Dispatcher() *Dispatcher {
	return e.dispatcher
}

// SetState forces the machine into a state. Test helper only.
func (e *Engine) SetState(state string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.machine.SetState(state)
}

// Close stops the lane and aborts all in-flight effects. Events still
// queued are dropped.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.dispatcher.Close()
	})
}

func (e *Engine) run() {
	for {
		select {
		case <-e.done:
			return
		case ev := <-e.queue:
			e.process(ev)
		}
	}
}

func (e *Engine) process(ev Event) {
	start := time.Now()
	defer func() {
		metrics.ObserveTransitionTime(logger.ComponentEngineCore, e.cfg.ID, time.Since(start))
	}()

	e.mu.RLock()
	current := e.machine.Current()
	canFire := e.machine.Can(ev.Name())
	e.mu.RUnlock()

	fn := e.apply[current][ev.Name()]
	if fn == nil || !canFire {
		e.logger.Debugf("event %s ignored in state %s", ev.Name(), current)
		return
	}

	// The event lane is the machine's sole writer, so current stays valid
	// while the apply func runs unlocked. Apply funcs take their own locks
	// and may call CurrentState, so e.mu must not be held here.
	effects := fn(ev)

	e.mu.Lock()
	if err := e.machine.Event(context.Background(), ev.Name()); err != nil {
		var noTransition looplabfsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			e.mu.Unlock()
			metrics.IncErrorCount(logger.ComponentEngineCore, e.cfg.ID)
			sentry.ReportEngineError(e.logger, e.cfg.ID, logger.ComponentEngineCore, ev.Name(), err)
			return
		}
	}
	next := e.machine.Current()
	e.mu.Unlock()

	if next != current {
		e.logger.Debugf("%s: %s -> %s", ev.Name(), current, next)
	}
	for _, eff := range effects {
		e.dispatcher.Dispatch(eff)
	}
}
