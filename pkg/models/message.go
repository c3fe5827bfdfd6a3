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

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Message is one update delivered through the subscribe loop. The payload
// is opaque to the core; decryption happens above it.
type Message struct {
	// Channel the message was published on.
	Channel string
	// SubscriptionMatch is the channel or group pattern that matched, if
	// it differs from Channel (e.g. a group subscription).
	SubscriptionMatch string
	// Publisher is the user ID of the sender, when the server provides it.
	Publisher string
	// Timetoken is the publish position of this message.
	Timetoken Cursor
	// Payload is the raw (already decrypted) message body.
	Payload []byte
}

// Identity returns the dedup identity of the message: an xxhash64 digest
// over channel, publish position and payload.
func (m Message) Identity() uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(m.Channel)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(m.Timetoken.Timetoken)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(strconv.Itoa(m.Timetoken.Region))
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(m.Payload)
	return d.Sum64()
}
