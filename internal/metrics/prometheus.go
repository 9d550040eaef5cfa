package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus implements Collector with Prometheus counters.
type Prometheus struct {
	assignments     prometheus.Counter
	softFailures    prometheus.Counter
	transitions     *prometheus.CounterVec
	acknowledgments *prometheus.CounterVec
}

var _ Collector = (*Prometheus)(nil)

// NewPrometheus registers the collectors on reg, falling back to
// prometheus.DefaultRegisterer when reg is nil and to the "oncall"
// namespace when namespace is empty.
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "oncall"
	}

	p := &Prometheus{
		assignments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rotation",
			Name:      "assignments_generated_total",
			Help:      "Total assignment rows written by rotation regeneration.",
		}),
		softFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rotation",
			Name:      "soft_failures_total",
			Help:      "Total regenerations that failed after the schedule change was saved.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incident",
			Name:      "transitions_total",
			Help:      "Total incident status transitions by from/to status.",
		}, []string{"from", "to"}),
		acknowledgments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "incident",
			Name:      "acknowledgments_total",
			Help:      "Total incident acknowledgments by channel.",
		}, []string{"channel"}),
	}

	for _, c := range []prometheus.Collector{p.assignments, p.softFailures, p.transitions, p.acknowledgments} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Prometheus) AssignmentsGenerated(count int) {
	p.assignments.Add(float64(count))
}

func (p *Prometheus) AssignmentSoftFailure() {
	p.softFailures.Inc()
}

func (p *Prometheus) IncidentTransition(from, to string) {
	p.transitions.WithLabelValues(from, to).Inc()
}

func (p *Prometheus) Acknowledgment(channel string) {
	p.acknowledgments.WithLabelValues(channel).Inc()
}
