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

package fsm

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/pulsegrid/pulsegrid-go/pkg/metrics"
)

// EffectChannel tags effects that are mutually exclusive: starting an
// effect on a channel invalidates any prior in-flight effect on the same
// channel.
type EffectChannel string

const (
	ChannelHandshake EffectChannel = "handshake"
	ChannelReceive   EffectChannel = "receive"
	ChannelHeartbeat EffectChannel = "heartbeat"
	ChannelWait      EffectChannel = "wait"
	ChannelLeave     EffectChannel = "leave"
	ChannelEmit      EffectChannel = "emit"
)

// exclusive channels track one active cancellation handle each. Leave and
// emit effects are fire-and-forget: a new leave must not abort a previous
// one still in flight.
func (c EffectChannel) exclusive() bool {
	switch c {
	case ChannelHandshake, ChannelReceive, ChannelHeartbeat, ChannelWait:
		return true
	}
	return false
}

// Effect describes one asynchronous action emitted by a state transition:
// a network call or a timer. Execute runs until completion or until ctx is
// cancelled; the events it returns are fed back into the engine unless the
// effect was cancelled first.
type Effect interface {
	Channel() EffectChannel
	Execute(ctx context.Context) []Event
}

type effectHandle struct {
	cancel context.CancelFunc
}

// Dispatcher executes effects asynchronously and owns their cancellation
// handles, one per exclusive channel. Completion events of a cancelled
// effect are dropped, never translated into failure events: the
// completion checkpoint and Cancel both run under the dispatcher lock, so
// a cancellation observed there wins.
type Dispatcher struct {
	id         string
	mu         sync.Mutex
	root       context.Context
	cancelRoot context.CancelFunc
	active     map[EffectChannel]*effectHandle
	sink       func(Event)
	logger     *zap.SugaredLogger
}

// NewDispatcher creates a dispatcher feeding completion events into sink.
func NewDispatcher(id string, sink func(Event), logger *zap.SugaredLogger) *Dispatcher {
	root, cancelRoot := context.WithCancel(context.Background())
	return &Dispatcher{
		id:         id,
		root:       root,
		cancelRoot: cancelRoot,
		active:     make(map[EffectChannel]*effectHandle),
		sink:       sink,
		logger:     logger,
	}
}

// Dispatch starts the effect, first cancelling any outstanding effect on
// the same exclusive channel.
func (d *Dispatcher) Dispatch(e Effect) {
	ch := e.Channel()
	metrics.IncEffectCount(d.id, string(ch))

	if !ch.exclusive() {
		go func() {
			events := e.Execute(d.root)
			if d.root.Err() != nil {
				return
			}
			for _, ev := range events {
				d.sink(ev)
			}
		}()
		return
	}

	d.mu.Lock()
	if prev := d.active[ch]; prev != nil {
		prev.cancel()
		metrics.IncEffectCancelled(d.id, string(ch))
		d.logger.Debugf("superseding in-flight %s effect", ch)
	}
	ctx, cancel := context.WithCancel(d.root)
	handle := &effectHandle{cancel: cancel}
	d.active[ch] = handle
	d.mu.Unlock()

	go func() {
		events := e.Execute(ctx)
		d.mu.Lock()
		if ctx.Err() != nil {
			// Cancelled while running; the transport call may still be
			// winding down but its result is discarded here.
			d.mu.Unlock()
			return
		}
		if d.active[ch] == handle {
			delete(d.active, ch)
		}
		d.mu.Unlock()
		for _, ev := range events {
			d.sink(ev)
		}
	}()
}

// Cancel aborts the outstanding effect on the given channel, if any.
func (d *Dispatcher) Cancel(ch EffectChannel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if handle := d.active[ch]; handle != nil {
		handle.cancel()
		delete(d.active, ch)
		metrics.IncEffectCancelled(d.id, string(ch))
	}
}

// CancelAll aborts every outstanding effect.
func (d *Dispatcher) CancelAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch, handle := range d.active {
		handle.cancel()
		delete(d.active, ch)
		metrics.IncEffectCancelled(d.id, string(ch))
	}
}

// Close aborts everything, including fire-and-forget effects.
func (d *Dispatcher) Close() {
	d.cancelRoot()
	d.CancelAll()
}
