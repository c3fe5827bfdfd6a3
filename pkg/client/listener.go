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

package client

import (
	"github.com/pulsegrid/pulsegrid-go/pkg/models"
)

const defaultListenerBuffer = 64

// Listener receives the client's status and message streams. Channels
// are buffered; when a consumer falls behind, new entries are dropped
// rather than stalling the engines.
type Listener struct {
	Status   chan models.Status
	Messages chan models.Message
}

// NewListener allocates a listener. A non-positive buffer gets the
// default of 64.
func NewListener(buffer int) *Listener {
	if buffer <= 0 {
		buffer = defaultListenerBuffer
	}
	return &Listener{
		Status:   make(chan models.Status, buffer),
		Messages: make(chan models.Message, buffer),
	}
}
