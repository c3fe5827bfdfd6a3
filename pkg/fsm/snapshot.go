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
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/pulsegrid/pulsegrid-go/pkg/models"
)

// Snapshot is a point-in-time copy of an engine's observable state. It
// shares no memory with the engine, so callers may inspect it without
// racing the event lane.
type Snapshot struct {
	ID       string
	State    string
	Channels []string
	Groups   []string
	Cursor   models.Cursor
	Attempt  int
	TakenAt  time.Time
}

// NewSnapshot deep-copies the channel and group slices into a Snapshot.
func NewSnapshot(id, state string, channels, groups []string, cursor models.Cursor, attempt int) Snapshot {
	s := Snapshot{
		ID:      id,
		State:   state,
		Cursor:  cursor,
		Attempt: attempt,
		TakenAt: time.Now(),
	}
	// deepcopy keeps the snapshot detached even if callers later grow
	// the source slices.
	_ = deepcopy.Copy(&s.Channels, channels)
	_ = deepcopy.Copy(&s.Groups, groups)
	return s
}
