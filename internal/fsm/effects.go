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
	"time"
)

type funcEffect struct {
	channel EffectChannel
	run     func(ctx context.Context) []Event
}

// NewEffect wraps a function as an Effect on the given channel.
func NewEffect(channel EffectChannel, run func(ctx context.Context) []Event) Effect {
	return funcEffect{channel: channel, run: run}
}

func (f funcEffect) Channel() EffectChannel { return f.channel }

func (f funcEffect) Execute(ctx context.Context) []Event { return f.run(ctx) }

// Wait produces timesUp after delay, or nothing if cancelled first. It
// occupies the wait channel, so dispatching a new Wait resets the timer.
func Wait(delay time.Duration, timesUp Event) Effect {
	return NewEffect(ChannelWait, func(ctx context.Context) []Event {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return []Event{timesUp}
		case <-ctx.Done():
			return nil
		}
	})
}

// Feedback re-enqueues an internal event on the engine's lane, behind any
// events already queued.
func Feedback(ev Event) Effect {
	return NewEffect(ChannelEmit, func(context.Context) []Event {
		return []Event{ev}
	})
}

// Emit runs a notification callback off the engine's lane.
func Emit(fn func()) Effect {
	return NewEffect(ChannelEmit, func(context.Context) []Event {
		fn()
		return nil
	})
}
