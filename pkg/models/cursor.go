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

// Cursor marks a resume point in the server's update stream. The timetoken
// is a server-assigned monotonically increasing position marker, kept as a
// decimal string because its value exceeds float64 precision on the wire.
type Cursor struct {
	Timetoken string `json:"t"`
	Region    int    `json:"r"`
}

// ZeroCursor is the cursor used for an initial handshake.
var ZeroCursor = Cursor{Timetoken: "0"}

// IsZero reports whether the cursor holds no position.
func (c Cursor) IsZero() bool {
	return (c.Timetoken == "" || c.Timetoken == "0") && c.Region == 0
}

// AtLeast reports whether c is at the same position as other or past it.
// Timetokens are decimal strings of equal sign, so a longer string is
// always the larger value.
func (c Cursor) AtLeast(other Cursor) bool {
	a, b := normalizeTimetoken(c.Timetoken), normalizeTimetoken(other.Timetoken)
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a >= b
}

func normalizeTimetoken(tt string) string {
	if tt == "" {
		return "0"
	}
	i := 0
	for i < len(tt)-1 && tt[i] == '0' {
		i++
	}
	return tt[i:]
}

func (c Cursor) String() string {
	if c.Timetoken == "" {
		return "0"
	}
	return c.Timetoken
}
