// Copyright 2025 Tom Barlow
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

package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors the runtime updates on every
// invocation. A nil *Metrics is valid: every method is a no-op guard,
// so callers that don't want metrics (most tests) can simply omit it.
type Metrics struct {
	ActivityDuration *prometheus.HistogramVec
	ActionRetries    *prometheus.CounterVec
}

// NewMetrics registers the runtime's collectors against reg and returns
// the populated Metrics. Pass prometheus.NewRegistry() in tests to
// avoid colliding with the process-wide default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActivityDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "graphforge_activity_duration_seconds",
			Help:    "Duration of a single activity attempt, by component and outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"component_id", "outcome"}),
		ActionRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphforge_action_retries_total",
			Help: "Count of retried activity attempts, by component and error kind.",
		}, []string{"component_id", "error_kind"}),
	}
	reg.MustRegister(m.ActivityDuration, m.ActionRetries)
	return m
}

func (m *Metrics) observeDuration(componentID, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.ActivityDuration.WithLabelValues(componentID, outcome).Observe(seconds)
}

func (m *Metrics) countRetry(componentID, errorKind string) {
	if m == nil {
		return
	}
	m.ActionRetries.WithLabelValues(componentID, errorKind).Inc()
}
