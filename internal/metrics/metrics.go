// Package metrics exposes push cycle statistics in Prometheus format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the worker's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	reg *prometheus.Registry

	up             prometheus.Gauge
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	lastSuccess    prometheus.Gauge
	lastCycle      prometheus.Gauge
	payloadBytes   prometheus.Gauge
	moduleDuration *prometheus.HistogramVec
	moduleErrors   *prometheus.CounterVec
}

func New(workerID string) *Metrics {
	labels := prometheus.Labels{"worker": workerID}
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricUp, Help: "1 if the worker process is running.", ConstLabels: labels,
		}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCyclesTotal, Help: "Push cycles by result.", ConstLabels: labels,
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: MetricCycleDuration, Help: "Duration of a push cycle.", ConstLabels: labels,
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastSuccessTs, Help: "Unix timestamp of the last successful push.", ConstLabels: labels,
		}),
		lastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLastCycleTs, Help: "Unix timestamp of the last push cycle.", ConstLabels: labels,
		}),
		payloadBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricPayloadBytes, Help: "Size of the last aggregated document before encryption.", ConstLabels: labels,
		}),
		moduleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: MetricModuleDuration, Help: "Duration of a module command.", ConstLabels: labels,
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"module"}),
		moduleErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricModuleErrorsTotal, Help: "Failed module runs.", ConstLabels: labels,
		}, []string{"module"}),
	}

	m.reg.MustRegister(
		m.up, m.cycles, m.cycleDuration, m.lastSuccess, m.lastCycle,
		m.payloadBytes, m.moduleDuration, m.moduleErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)
	m.up.Set(1)
	m.cycles.WithLabelValues(ResultSuccess)
	m.cycles.WithLabelValues(ResultFailure)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) ObserveCycle(took time.Duration, err error) {
	if m == nil {
		return
	}
	now := float64(time.Now().Unix())
	m.cycleDuration.Observe(took.Seconds())
	m.lastCycle.Set(now)
	if err != nil {
		m.cycles.WithLabelValues(ResultFailure).Inc()
		return
	}
	m.cycles.WithLabelValues(ResultSuccess).Inc()
	m.lastSuccess.Set(now)
}

// ObserveModule matches modules.Observer.
func (m *Metrics) ObserveModule(module string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.moduleDuration.WithLabelValues(module).Observe(took.Seconds())
	if err != nil {
		m.moduleErrors.WithLabelValues(module).Inc()
	}
}

func (m *Metrics) ObservePayload(n int) {
	if m == nil {
		return
	}
	m.payloadBytes.Set(float64(n))
}
