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

package models

// StatusCategory classifies a connection status change surfaced to the
// caller.
type StatusCategory string

const (
	// StatusConnected is emitted once the subscribe loop is established.
	StatusConnected StatusCategory = "connected"
	// StatusReconnecting is emitted while a failed operation is being
	// retried per policy.
	StatusReconnecting StatusCategory = "reconnecting"
	// StatusDisconnected is emitted after an expected disconnect.
	StatusDisconnected StatusCategory = "disconnected"
	// StatusDisconnectedUnexpectedly is emitted when retries are exhausted
	// and the engine gives up.
	StatusDisconnectedUnexpectedly StatusCategory = "disconnected_unexpectedly"
	// StatusSubscriptionChanged is emitted when the channel/group set of
	// the subscribe loop changes.
	StatusSubscriptionChanged StatusCategory = "subscription_changed"
	// StatusHeartbeatSuccess is emitted after a successful presence
	// heartbeat.
	StatusHeartbeatSuccess StatusCategory = "heartbeat_success"
	// StatusHeartbeatFailed is emitted when the presence engine gives up
	// heartbeating.
	StatusHeartbeatFailed StatusCategory = "heartbeat_failed"
)

// Status is one entry of the status stream.
type Status struct {
	Category StatusCategory
	// Channels and Groups the status applies to.
	Channels []string
	Groups   []string
	// Cursor at the time of the status change, when meaningful.
	Cursor Cursor
	// Attempt is the retry attempt that produced this status, for
	// StatusReconnecting.
	Attempt int
	// Err carries the failure cause for failure categories.
	Err error
}
