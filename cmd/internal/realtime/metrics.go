package realtime

import "github.com/prometheus/client_golang/prometheus"

// Metrics instruments the Hub and its transports. A nil *Metrics is a no-op.
type Metrics struct {
	subscribers prometheus.Gauge
	published   prometheus.Counter
	delivered   prometheus.Counter
	evicted     prometheus.Counter
	connections *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "todolist", Subsystem: "hub", Name: "subscribers",
			Help: "Currently registered change-stream subscribers.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "todolist", Subsystem: "hub", Name: "published_total",
			Help: "Change events published, repeats included.",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "todolist", Subsystem: "hub", Name: "delivered_total",
			Help: "Change events enqueued to subscribers.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "todolist", Subsystem: "hub", Name: "evicted_total",
			Help: "Subscribers dropped because their queue was full.",
		}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "todolist", Subsystem: "stream", Name: "connections_total",
			Help: "Change-stream connections accepted, by transport.",
		}, []string{"transport"}),
	}
	if reg != nil {
		reg.MustRegister(m.subscribers, m.published, m.delivered, m.evicted, m.connections)
	}
	return m
}

func (m *Metrics) setSubscribers(n int) {
	if m != nil {
		m.subscribers.Set(float64(n))
	}
}

func (m *Metrics) observePublish(delivered, evicted int) {
	if m == nil {
		return
	}
	m.published.Inc()
	m.delivered.Add(float64(delivered))
	m.evicted.Add(float64(evicted))
}

func (m *Metrics) incConnection(transport string) {
	if m != nil {
		m.connections.WithLabelValues(transport).Inc()
	}
}
