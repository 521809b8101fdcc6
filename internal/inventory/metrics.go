package inventory

import "github.com/prometheus/client_golang/prometheus"

const (
	resultOK    = "ok"
	resultError = "error"
)

type Metrics struct {
	Operations *prometheus.CounterVec
	LowStock   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "inventory_operations_total",
				Help: "Inventory operations by outcome",
			},
			[]string{"operation", "result"},
		),
		LowStock: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "inventory_low_stock_products",
				Help: "Products below the low-stock threshold at the last listing",
			},
		),
	}

	reg.MustRegister(m.Operations, m.LowStock)
	return m
}

func (m *Metrics) observe(op string, err error) {
	if m == nil {
		return
	}
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.Operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) setLowStock(n int) {
	if m == nil {
		return
	}
	m.LowStock.Set(float64(n))
}
