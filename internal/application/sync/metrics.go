package sync

import "github.com/prometheus/client_golang/prometheus"

// Metrics contadores Prometheus del motor. Un receptor nil desactiva la
// instrumentación (tests).
type Metrics struct {
	dispatched *prometheus.CounterVec
	confirmed  prometheus.Counter
	rolledBack prometheus.Counter
	resumed    prometheus.Counter
	pending    prometheus.Gauge
}

// NewMetrics registra las métricas del motor en el registerer dado.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_mutations_dispatched_total",
			Help: "Mutaciones enviadas al almacén, por tipo.",
		}, []string{"kind"}),
		confirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_mutations_confirmed_total",
			Help: "Mutaciones confirmadas por el almacén.",
		}),
		rolledBack: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_mutations_rolled_back_total",
			Help: "Mutaciones revertidas tras un rechazo terminal.",
		}),
		resumed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_mutations_resumed_total",
			Help: "Mutaciones reanudadas tras arranque o reconexión.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sync_mutations_pending",
			Help: "Mutaciones en buffering, en vuelo o pausadas.",
		}),
	}
	reg.MustRegister(m.dispatched, m.confirmed, m.rolledBack, m.resumed, m.pending)
	return m
}

func (m *Metrics) incDispatched(kind string) {
	if m == nil {
		return
	}
	m.dispatched.WithLabelValues(kind).Inc()
}

func (m *Metrics) incConfirmed() {
	if m == nil {
		return
	}
	m.confirmed.Inc()
}

func (m *Metrics) incRolledBack() {
	if m == nil {
		return
	}
	m.rolledBack.Inc()
}

func (m *Metrics) incResumed() {
	if m == nil {
		return
	}
	m.resumed.Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
