// seehuhn.de/go/fontsubset - reduce fonts to the glyphs needed for a text
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package task

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics receives measurements from a [Runner].
// Implementations must be safe for concurrent use.
type Metrics interface {
	// TaskQueued is called when a request has been accepted.
	TaskQueued(t MessageType)

	// TaskFinished is called once for every accepted request, after the
	// terminal message has been sent.
	TaskFinished(t MessageType, state State, elapsed time.Duration)

	// StageCompleted records the time spent in one stage of a subset task.
	StageCompleted(stage Stage, elapsed time.Duration)

	// QueueDepth reports the number of tasks waiting for the worker.
	QueueDepth(n int)

	// OutputSize records the sizes of a successful subset task.
	OutputSize(format string, original, output int)
}

// NopMetrics is a [Metrics] implementation which discards everything.
type NopMetrics struct{}

var _ Metrics = (*NopMetrics)(nil)

// NewNop returns a metrics collector which does nothing.
func NewNop() *NopMetrics {
	return &NopMetrics{}
}

// TaskQueued implements the [Metrics] interface.
func (*NopMetrics) TaskQueued(MessageType) {
	// No-op
}

// TaskFinished implements the [Metrics] interface.
func (*NopMetrics) TaskFinished(MessageType, State, time.Duration) {
	// No-op
}

// StageCompleted implements the [Metrics] interface.
func (*NopMetrics) StageCompleted(Stage, time.Duration) {
	// No-op
}

// QueueDepth implements the [Metrics] interface.
func (*NopMetrics) QueueDepth(int) {
	// No-op
}

// OutputSize implements the [Metrics] interface.
func (*NopMetrics) OutputSize(string, int, int) {
	// No-op
}

// PrometheusCollector exports runner metrics to Prometheus.
// The metrics are registered on first use.
type PrometheusCollector struct {
	*NopMetrics

	reg       prometheus.Registerer
	namespace string
	once      sync.Once

	queued        *prometheus.CounterVec
	finished      *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	stageDuration *prometheus.HistogramVec
	queueDepth    prometheus.Gauge
	ratio         *prometheus.HistogramVec
	outputBytes   *prometheus.CounterVec
}

var _ Metrics = (*PrometheusCollector)(nil)

// NewPrometheus returns a collector which registers its metrics with reg.
// If reg is nil, prometheus.DefaultRegisterer is used.  The namespace
// defaults to "fontsubset".
func NewPrometheus(reg prometheus.Registerer, namespace string) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "fontsubset"
	}
	return &PrometheusCollector{NopMetrics: NewNop(), reg: reg, namespace: namespace}
}

func (p *PrometheusCollector) ensureRegistered() {
	p.once.Do(func() {
		p.queued = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "tasks_queued_total",
			Help:      "Total accepted requests by type.",
		}, []string{"type"})
		p.finished = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "tasks_finished_total",
			Help:      "Total finished tasks by type and terminal state.",
		}, []string{"type", "state"})
		p.taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "task_duration_seconds",
			Help:      "Time from acceptance to the terminal message, by type.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"type"})
		p.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "stage_duration_seconds",
			Help:      "Time spent in each stage of a subset task.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
		}, []string{"stage"})
		p.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "queue_depth",
			Help:      "Number of tasks waiting for the worker.",
		})
		p.ratio = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "output_ratio",
			Help:      "Output size as a fraction of the input size, by format.",
			Buckets:   prometheus.LinearBuckets(0.05, 0.1, 10),
		}, []string{"format"})
		p.outputBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "runner",
			Name:      "output_bytes_total",
			Help:      "Total bytes of generated fonts, by format.",
		}, []string{"format"})

		p.reg.MustRegister(
			p.queued,
			p.finished,
			p.taskDuration,
			p.stageDuration,
			p.queueDepth,
			p.ratio,
			p.outputBytes,
		)
	})
}

// TaskQueued implements the [Metrics] interface.
func (p *PrometheusCollector) TaskQueued(t MessageType) {
	p.ensureRegistered()
	p.queued.WithLabelValues(string(t)).Inc()
}

// TaskFinished implements the [Metrics] interface.
func (p *PrometheusCollector) TaskFinished(t MessageType, state State, elapsed time.Duration) {
	p.ensureRegistered()
	p.finished.WithLabelValues(string(t), state.String()).Inc()
	p.taskDuration.WithLabelValues(string(t)).Observe(elapsed.Seconds())
}

// StageCompleted implements the [Metrics] interface.
func (p *PrometheusCollector) StageCompleted(stage Stage, elapsed time.Duration) {
	p.ensureRegistered()
	p.stageDuration.WithLabelValues(string(stage)).Observe(elapsed.Seconds())
}

// QueueDepth implements the [Metrics] interface.
func (p *PrometheusCollector) QueueDepth(n int) {
	p.ensureRegistered()
	p.queueDepth.Set(float64(n))
}

// OutputSize implements the [Metrics] interface.
func (p *PrometheusCollector) OutputSize(format string, original, output int) {
	p.ensureRegistered()
	p.outputBytes.WithLabelValues(format).Add(float64(output))
	if original > 0 {
		p.ratio.WithLabelValues(format).Observe(float64(output) / float64(original))
	}
}
