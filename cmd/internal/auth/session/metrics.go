package session

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts session lifecycle events. A nil *Metrics is a no-op.
type Metrics struct {
	created     prometheus.Counter
	validations *prometheus.CounterVec
	invalidated prometheus.Counter
	swept       prometheus.Counter
}

// NewMetrics builds the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "todolist",
			Subsystem: "session",
			Name:      "created_total",
			Help:      "Sessions created by successful logins.",
		}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "todolist",
			Subsystem: "session",
			Name:      "validations_total",
			Help:      "Session token validations by result.",
		}, []string{"result"}),
		invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "todolist",
			Subsystem: "session",
			Name:      "invalidated_total",
			Help:      "Sessions ended by logout or logout-all.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "todolist",
			Subsystem: "session",
			Name:      "swept_total",
			Help:      "Expired sessions removed by the sweeper.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.created, m.validations, m.invalidated, m.swept)
	}
	return m
}

func (m *Metrics) incCreated() {
	if m != nil {
		m.created.Inc()
	}
}

func (m *Metrics) observeValidation(result string) {
	if m != nil {
		m.validations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) addInvalidated(n int) {
	if m != nil && n > 0 {
		m.invalidated.Add(float64(n))
	}
}

func (m *Metrics) addSwept(n int) {
	if m != nil && n > 0 {
		m.swept.Add(float64(n))
	}
}
