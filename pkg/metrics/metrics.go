// Package metrics exposes Prometheus collectors for conversation runs,
// tool calls and transport retries.
package metrics

import (
	"errors"

	"github.com/minhyannv/function-call-go/pkg/dispatch"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Runs         *prometheus.CounterVec
	Rounds       prometheus.Counter
	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec
	Retries      prometheus.Counter
}

// New creates the collectors and registers them with reg when non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funccall_runs_total",
				Help: "Conversation runs by terminal state",
			},
			[]string{"state"},
		),
		Rounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "funccall_rounds_total",
			Help: "Model request/response rounds",
		}),
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "funccall_tool_calls_total",
				Help: "Dispatched tool calls by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		ToolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "funccall_tool_duration_seconds",
				Help:    "Duration of tool executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "funccall_transport_retries_total",
			Help: "Chat completion requests retried after a retryable failure",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Rounds, m.ToolCalls, m.ToolDuration, m.Retries)
	}
	return m
}

// ObserveRound counts one model round.
func (m *Metrics) ObserveRound() {
	if m == nil {
		return
	}
	m.Rounds.Inc()
}

// ObserveRun counts a finished run by its terminal state.
func (m *Metrics) ObserveRun(state string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(state).Inc()
}

// ObserveToolCall records one dispatched call.
func (m *Metrics) ObserveToolCall(ev dispatch.Event) {
	if m == nil {
		return
	}
	outcome := string(ev.Kind)
	if ev.Kind == dispatch.KindOK {
		outcome = "ok"
	}
	if ev.Err != nil && ev.Kind == dispatch.KindHandler {
		var fatal *dispatch.FatalError
		if errors.As(ev.Err, &fatal) {
			outcome = "fatal"
		}
	}
	m.ToolCalls.WithLabelValues(ev.Tool, outcome).Inc()
	m.ToolDuration.WithLabelValues(ev.Tool).Observe(ev.Duration.Seconds())
}

// ObserveRetry counts a transport retry. Its signature matches
// transport.Config.OnRetry.
func (m *Metrics) ObserveRetry(int, error) {
	if m == nil {
		return
	}
	m.Retries.Inc()
}
