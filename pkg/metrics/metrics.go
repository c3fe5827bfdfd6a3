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

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// Component labels.
	ComponentSubscribeEngine = "subscribe_engine"
	ComponentPresenceEngine  = "presence_engine"
	ComponentEngineCore      = "engine_core"
	ComponentDispatcher      = "effect_dispatcher"
	ComponentTransport       = "transport"
	ComponentDedup           = "dedup_cache"
	ComponentClient          = "client"
)

var (
	namespace = "pulsegrid"
	subsystem = "core"

	// Error counters.
	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	// Transition timing.
	transitionTime = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "transition_duration_milliseconds",
			Help:      "Time taken to process one event (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01,
				0.9:  0.01,
				0.95: 0.01,
				0.99: 0.01,
			},
		},
		[]string{"component", "instance"},
	)

	// Effects dispatched, by effect channel tag.
	effectCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "effects_total",
			Help:      "Total number of effects dispatched, by effect channel",
		},
		[]string{"instance", "channel"},
	)

	// Effects cancelled before completion.
	effectCancelCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "effects_cancelled_total",
			Help:      "Total number of in-flight effects cancelled by a replacement or a state exit",
		},
		[]string{"instance", "channel"},
	)

	// Messages suppressed by the dedup cache.
	dedupDropCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "dedup_dropped_total",
			Help:      "Total number of duplicate messages suppressed by the dedup cache",
		},
		[]string{"instance"},
	)
)

// InitErrorCounter initializes the error counter for a component and
// instance so that the series exists before the first increment.
func InitErrorCounter(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Add(0)
}

// IncErrorCount increments the error counter for a component and instance.
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// ObserveTransitionTime records the time taken to process one event.
func ObserveTransitionTime(component, instance string, duration time.Duration) {
	transitionTime.WithLabelValues(component, instance).Observe(float64(duration.Milliseconds()))
}

// IncEffectCount counts one dispatched effect.
func IncEffectCount(instance, channel string) {
	effectCounter.WithLabelValues(instance, channel).Inc()
}

// IncEffectCancelled counts one cancelled in-flight effect.
func IncEffectCancelled(instance, channel string) {
	effectCancelCounter.WithLabelValues(instance, channel).Inc()
}

// IncDedupDropped counts one suppressed duplicate message.
func IncDedupDropped(instance string) {
	dedupDropCounter.WithLabelValues(instance).Inc()
}

// Handler returns the prometheus scrape handler for embedding into an
// existing mux.
func Handler() http.Handler {
	return promhttp.Handler()
}
