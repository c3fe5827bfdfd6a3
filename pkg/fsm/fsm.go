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

// Package fsm defines the public surface of the event engines: the common
// interface both engines satisfy and observable state snapshots.
package fsm

import (
	internalfsm "github.com/pulsegrid/pulsegrid-go/internal/fsm"
)

// EventEngine is the surface the client layer drives. Events are applied
// strictly in the order they are sent; an event not accepted by the
// current state is silently ignored.
type EventEngine interface {
	// Send enqueues an event for processing.
	Send(ev internalfsm.Event)
	// CurrentState reports the engine's state name.
	CurrentState() string
	// Snapshot captures the engine's observable state.
	Snapshot() Snapshot
	// Close stops the engine and aborts all in-flight effects.
	Close()
}
