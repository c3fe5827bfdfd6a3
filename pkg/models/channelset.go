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

import "strings"

// ChannelSet is an ordered set of channel or group identifiers. Membership
// is unique; insertion order is preserved so that request construction is
// deterministic. All operations return a new set, the receiver is never
// mutated in place.
type ChannelSet struct {
	names []string
}

// NewChannelSet builds a set from the given names, dropping duplicates and
// empty strings while keeping first-seen order.
func NewChannelSet(names ...string) ChannelSet {
	s := ChannelSet{}
	return s.Union(names...)
}

// Union returns a new set with the given names added. Adding an already
// present member is a no-op.
func (s ChannelSet) Union(names ...string) ChannelSet {
	out := make([]string, len(s.names), len(s.names)+len(names))
	copy(out, s.names)
	seen := make(map[string]struct{}, len(out)+len(names))
	for _, n := range out {
		seen[n] = struct{}{}
	}
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return ChannelSet{names: out}
}

// Difference returns a new set with the given names removed.
func (s ChannelSet) Difference(names ...string) ChannelSet {
	drop := make(map[string]struct{}, len(names))
	for _, n := range names {
		drop[n] = struct{}{}
	}
	out := make([]string, 0, len(s.names))
	for _, n := range s.names {
		if _, ok := drop[n]; !ok {
			out = append(out, n)
		}
	}
	return ChannelSet{names: out}
}

// Contains reports membership.
func (s ChannelSet) Contains(name string) bool {
	for _, n := range s.names {
		if n == name {
			return true
		}
	}
	return false
}

// Names returns the members in insertion order. The returned slice is a
// copy.
func (s ChannelSet) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of members.
func (s ChannelSet) Len() int { return len(s.names) }

// IsEmpty reports whether the set has no members.
func (s ChannelSet) IsEmpty() bool { return len(s.names) == 0 }

// Equal reports whether both sets hold the same members in the same order.
func (s ChannelSet) Equal(other ChannelSet) bool {
	if len(s.names) != len(other.names) {
		return false
	}
	for i, n := range s.names {
		if other.names[i] != n {
			return false
		}
	}
	return true
}

// String joins the members with commas, the form used on the wire.
func (s ChannelSet) String() string {
	return strings.Join(s.names, ",")
}
