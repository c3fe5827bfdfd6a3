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

package dedup

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pulsegrid/pulsegrid-go/pkg/metrics"
	"github.com/pulsegrid/pulsegrid-go/pkg/models"
)

// Cache is a bounded cache of recently delivered message identities. It is
// owned by a single subscribe engine and only touched from that engine's
// sequential processing lane, so it carries no lock of its own.
//
// Identities are never re-inserted and never looked up in a way that would
// promote them, so the underlying LRU evicts in pure insertion order: FIFO
// over the retained window, as delivery dedup requires.
type Cache struct {
	entries  *lru.Cache[uint64, struct{}]
	instance string
}

// New creates a cache retaining at most maximumCacheSize identities.
func New(instance string, maximumCacheSize int) (*Cache, error) {
	if maximumCacheSize <= 0 {
		return nil, fmt.Errorf("dedup: maximumCacheSize must be positive, got %d", maximumCacheSize)
	}
	entries, err := lru.New[uint64, struct{}](maximumCacheSize)
	if err != nil {
		return nil, fmt.Errorf("dedup: %w", err)
	}
	return &Cache{entries: entries, instance: instance}, nil
}

// ShouldDeliver inserts-and-checks the message identity. It returns false
// when the identity is still inside the retained window, true otherwise.
// Admitting a new identity over capacity evicts the oldest one first.
func (c *Cache) ShouldDeliver(m models.Message) bool {
	id := m.Identity()
	if c.entries.Contains(id) {
		metrics.IncDedupDropped(c.instance)
		return false
	}
	c.entries.Add(id, struct{}{})
	return true
}

// Len returns the number of retained identities.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// Filter returns the subset of messages that should be delivered, in input
// order.
func (c *Cache) Filter(in []models.Message) []models.Message {
	out := make([]models.Message, 0, len(in))
	for _, m := range in {
		if c.ShouldDeliver(m) {
			out = append(out, m)
		}
	}
	return out
}
