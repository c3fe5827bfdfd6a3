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

package transport

import (
	"context"

	"github.com/pulsegrid/pulsegrid-go/pkg/models"
)

// Kind identifies the request class an engine is executing.
type Kind string

const (
	// KindHandshake opens a subscribe loop and obtains the initial cursor.
	KindHandshake Kind = "handshake"
	// KindReceive long-polls for updates past the request cursor.
	KindReceive Kind = "receive"
	// KindHeartbeat announces presence for the request channels/groups.
	KindHeartbeat Kind = "heartbeat"
	// KindLeave announces departure from the request channels/groups.
	KindLeave Kind = "leave"
)

// Request describes one call the engines want executed. Engines never
// touch URLs or wire encodings; that is this package's concern.
type Request struct {
	Kind     Kind
	Channels []string
	Groups   []string
	// Cursor is the resume position for KindReceive, and the replay
	// position for a KindHandshake that follows a restore or a
	// channel-set merge.
	Cursor models.Cursor
	// PresenceTimeout is announced on subscribe and heartbeat calls, in
	// seconds.
	PresenceTimeout int
}

// Response is the decoded result of a successful request.
type Response struct {
	// Cursor is the next resume position, for subscribe-loop requests.
	Cursor models.Cursor
	// Messages delivered by a receive, in arrival order.
	Messages []models.Message
	// StatusCode is the transport-level status, for diagnostics.
	StatusCode int
}

// Transport executes requests against the server. Execute honors ctx
// cancellation by aborting the underlying call; a cancelled call returns a
// CategoryCancelled error. Failures come back categorized (see
// pkg/backoff) so that engines can decide on retries without inspecting
// transport internals.
type Transport interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}
