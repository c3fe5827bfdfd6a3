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
	"sort"
	"time"

	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"
)

// Latency summarizes one sliding latency window.
type Latency struct {
	Min time.Duration
	Max time.Duration
	Avg time.Duration
	P95 time.Duration
}

// latencyWindows collects per-phase request timings into TTL-evicted maps,
// so the summaries always describe the recent past rather than process
// lifetime.
type latencyWindows struct {
	firstByte *expiremap.ExpireMap[time.Time, time.Duration]
	dns       *expiremap.ExpireMap[time.Time, time.Duration]
	tls       *expiremap.ExpireMap[time.Time, time.Duration]
	conn      *expiremap.ExpireMap[time.Time, time.Duration]
}

const latencyWindowTTL = 5 * time.Minute

func newLatencyWindows() *latencyWindows {
	return &latencyWindows{
		firstByte: expiremap.NewEx[time.Time, time.Duration](latencyWindowTTL, latencyWindowTTL),
		dns:       expiremap.NewEx[time.Time, time.Duration](latencyWindowTTL, latencyWindowTTL),
		tls:       expiremap.NewEx[time.Time, time.Duration](latencyWindowTTL, latencyWindowTTL),
		conn:      expiremap.NewEx[time.Time, time.Duration](latencyWindowTTL, latencyWindowTTL),
	}
}

func (w *latencyWindows) record(timings requestTimings) {
	now := time.Now()
	w.firstByte.Set(now, timings.firstByte)
	if timings.dns > 0 {
		w.dns.Set(now, timings.dns)
	}
	if timings.tls > 0 {
		w.tls.Set(now, timings.tls)
	}
	if timings.conn > 0 {
		w.conn.Set(now, timings.conn)
	}
}

func summarize(window *expiremap.ExpireMap[time.Time, time.Duration]) Latency {
	var out Latency
	var sum int64
	var durations []time.Duration

	window.Range(func(_ time.Time, value time.Duration) bool {
		if out.Min == 0 || value < out.Min {
			out.Min = value
		}
		if value > out.Max {
			out.Max = value
		}
		sum += value.Nanoseconds()
		durations = append(durations, value)
		return true
	})

	if len(durations) == 0 {
		return out
	}

	out.Avg = time.Duration(sum / int64(len(durations)))
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := int(float64(len(durations)) * 0.95)
	if p95 >= len(durations) {
		p95 = len(durations) - 1
	}
	out.P95 = durations[p95]
	return out
}
