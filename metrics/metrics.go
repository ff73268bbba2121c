// Package metrics exports bridge activity as Prometheus metrics.
//
// A Collector is both a handle.Observer and a bridge.OutcomeObserver:
//
//	c := metrics.New(prometheus.DefaultRegisterer)
//	b := bridge.New(lib, bridge.WithHandleObserver(c), bridge.WithOutcomeObserver(c))
package metrics

import (
	stderrors "errors"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/wippyai/gpr-bridge/diag"
	"github.com/wippyai/gpr-bridge/errors"
	"github.com/wippyai/gpr-bridge/handle"
)

const namespace = "gpr_bridge"

// Collector counts native ownership traffic and call outcomes.
type Collector struct {
	liveHandles  *prometheus.GaugeVec
	wrapped      *prometheus.CounterVec
	released     *prometheus.CounterVec
	arraysFreed  prometheus.Counter
	stringsFreed prometheus.Counter
	calls        *prometheus.CounterVec
	diagnostics  *prometheus.CounterVec
}

// New creates a Collector and registers it with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		liveHandles: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_handles",
				Help:      "Native resources currently owned by a handle",
			},
			[]string{"kind"},
		),
		wrapped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handles_wrapped_total",
				Help:      "Native resources taken over by a handle",
			},
			[]string{"kind"},
		),
		released: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handles_released_total",
				Help:      "Native resources freed, by trigger",
			},
			[]string{"kind", "trigger"},
		),
		arraysFreed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "string_arrays_freed_total",
				Help:      "String arrays returned by the library and freed",
			},
		),
		stringsFreed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "strings_freed_total",
				Help:      "Strings returned by the library and freed",
			},
		),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calls_total",
				Help:      "Calls of operations with diagnostics, by outcome",
			},
			[]string{"op", "outcome"},
		),
		diagnostics: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "diagnostics_total",
				Help:      "Diagnostics reported by the library",
			},
			[]string{"op"},
		),
	}

	if reg != nil {
		reg.MustRegister(c)
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.liveHandles.Describe(ch)
	c.wrapped.Describe(ch)
	c.released.Describe(ch)
	c.arraysFreed.Describe(ch)
	c.stringsFreed.Describe(ch)
	c.calls.Describe(ch)
	c.diagnostics.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.liveHandles.Collect(ch)
	c.wrapped.Collect(ch)
	c.released.Collect(ch)
	c.arraysFreed.Collect(ch)
	c.stringsFreed.Collect(ch)
	c.calls.Collect(ch)
	c.diagnostics.Collect(ch)
}

// OnHandleEvent implements handle.Observer.
func (c *Collector) OnHandleEvent(e handle.Event) {
	switch e.Type {
	case handle.EventWrapped:
		c.wrapped.WithLabelValues(e.Kind.Name).Inc()
		c.liveHandles.WithLabelValues(e.Kind.Name).Inc()
	case handle.EventReleased:
		trigger := "manual"
		if e.Collected {
			trigger = "collect"
		}
		c.released.WithLabelValues(e.Kind.Name, trigger).Inc()
		c.liveHandles.WithLabelValues(e.Kind.Name).Dec()
	case handle.EventStringArrayFreed:
		c.arraysFreed.Inc()
	case handle.EventStringFreed:
		c.stringsFreed.Inc()
	}
}

// ObserveOutcome implements bridge.OutcomeObserver. The outcome label is
// hard_failure, rejected (diagnostics but no result), error or success.
func (c *Collector) ObserveOutcome(op string, o diag.Outcome, err error) {
	if n := len(diag.Diagnostics(o)); n > 0 {
		c.diagnostics.WithLabelValues(op).Add(float64(n))
	}

	var de *errors.DiagnosticsError
	switch {
	case diag.Failed(o):
		c.calls.WithLabelValues(op, "hard_failure").Inc()
	case stderrors.As(err, &de) && de.Rejected:
		c.calls.WithLabelValues(op, "rejected").Inc()
	case err != nil:
		c.calls.WithLabelValues(op, "error").Inc()
	default:
		c.calls.WithLabelValues(op, "success").Inc()
	}
}

// WriteText writes every metric family of g in the text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
