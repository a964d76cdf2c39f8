package observability

import (
	"context"
	"time"

	"github.com/aretw0/mobility/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mobility"

// Metrics counts the lifecycle events of one agent.
type Metrics struct {
	stepsCreated  prometheus.Counter
	stepsFinished *prometheus.CounterVec
	stepDuration  prometheus.Histogram
	procsFinished *prometheus.CounterVec
	loopGuards    prometheus.Counter
	envelopes     *prometheus.CounterVec
}

// NewMetrics creates the collectors for agent and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(agent domain.AgentID, reg prometheus.Registerer) *Metrics {
	labels := prometheus.Labels{"agent": string(agent)}
	m := &Metrics{
		stepsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "steps",
			Name:        "created_total",
			Help:        "Steps created by the engine.",
			ConstLabels: labels,
		}),
		stepsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "steps",
			Name:        "finished_total",
			Help:        "Steps that reached a terminal state.",
			ConstLabels: labels,
		}, []string{"state"}),
		stepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "steps",
			Name:        "run_duration_seconds",
			Help:        "Time between a step starting and ending.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		procsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "procs",
			Name:        "finished_total",
			Help:        "Procs that ran to completion, by the state of their last step.",
			ConstLabels: labels,
		}, []string{"state"}),
		loopGuards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "procs",
			Name:        "loop_guard_total",
			Help:        "Times a proc hit the consecutive jump limit.",
			ConstLabels: labels,
		}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "relay",
			Name:        "envelopes_total",
			Help:        "Replication envelopes sent and received.",
			ConstLabels: labels,
		}, []string{"direction", "type", "kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.stepsCreated, m.stepsFinished, m.stepDuration, m.procsFinished, m.loopGuards, m.envelopes)
	}
	return m
}

// Hooks returns lifecycle callbacks feeding the collectors.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStepCreated: func(context.Context, *domain.Step) {
			m.stepsCreated.Inc()
		},
		OnStepFinished: func(_ context.Context, s *domain.Step) {
			st := s.Status()
			m.stepsFinished.WithLabelValues(st.State.String()).Inc()
			if st.StartTime >= 0 && st.EndTime >= st.StartTime {
				m.stepDuration.Observe((time.Duration(st.EndTime-st.StartTime) * time.Millisecond).Seconds())
			}
		},
		OnProcFinished: func(_ context.Context, _ *domain.Proc, last domain.StepState) {
			m.procsFinished.WithLabelValues(last.String()).Inc()
		},
		OnLoopGuard: func(context.Context, *domain.Proc) {
			m.loopGuards.Inc()
		},
		OnRelay: func(_ context.Context, ev domain.RelayEvent) {
			m.envelopes.WithLabelValues(ev.Direction, string(ev.Envelope.Type), ev.Envelope.RelayKind).Inc()
		},
	}
}
