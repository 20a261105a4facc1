// Package metrics defines the Prometheus collectors of the extension.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const namespace = "smzmq"

// Metrics holds the extension's collectors.
type Metrics struct {
	Polls        *prometheus.CounterVec
	Dropped      prometheus.Counter
	NativeErrors *prometheus.CounterVec
	gauges       []prometheus.Collector
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		Polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "poll",
				Name:      "completions_total",
				Help:      "Poll completions dispatched to host contexts, by result",
			},
			[]string{"result"},
		),

		Dropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "poll",
				Name:      "dropped_total",
				Help:      "Poll completions discarded because no context could receive them",
			},
		),

		NativeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "native",
				Name:      "errors_total",
				Help:      "Failed guest native calls",
			},
			[]string{"native"},
		),
	}
}

// Gauge adds a gauge sampled from fn at scrape time. Labels are constant.
// It must be called before Register.
func (m *Metrics) Gauge(subsystem, name, help string, labels prometheus.Labels, fn func() float64) {
	if m == nil {
		return
	}
	m.gauges = append(m.gauges, prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		},
		fn,
	))
}

func (m *Metrics) collectors() []prometheus.Collector {
	return append([]prometheus.Collector{m.Polls, m.Dropped, m.NativeErrors}, m.gauges...)
}

// Register registers every collector with reg. On failure the ones already
// registered are removed again.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	var (
		err  error
		done []prometheus.Collector
	)
	for _, c := range m.collectors() {
		if rerr := reg.Register(c); rerr != nil {
			err = multierr.Append(err, rerr)
			continue
		}
		done = append(done, c)
	}
	if err != nil {
		for _, c := range done {
			reg.Unregister(c)
		}
	}
	return err
}

// Unregister removes every collector from reg.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	if m == nil {
		return
	}
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}

// ObservePoll counts one dispatched completion.
func (m *Metrics) ObservePoll(ready bool) {
	if m == nil {
		return
	}
	result := "empty"
	if ready {
		result = "ready"
	}
	m.Polls.WithLabelValues(result).Inc()
}

// ObserveDrop counts one discarded completion.
func (m *Metrics) ObserveDrop() {
	if m == nil {
		return
	}
	m.Dropped.Inc()
}

// ObserveNativeError counts one failed native call.
func (m *Metrics) ObserveNativeError(native string) {
	if m == nil {
		return
	}
	m.NativeErrors.WithLabelValues(native).Inc()
}
