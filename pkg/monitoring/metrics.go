package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records the BigQuery work done on behalf of a command.
type Metrics struct {
	QueryDuration  *prometheus.HistogramVec
	QueryErrors    *prometheus.CounterVec
	RowsRead       *prometheus.CounterVec
	BytesEstimated *prometheus.CounterVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "cromwell_monitor",
				Name:      "bigquery_query_duration_seconds",
				Help:      "BigQuery query duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"query"},
		),
		QueryErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cromwell_monitor",
				Name:      "bigquery_query_errors_total",
				Help:      "number of failed BigQuery queries",
			},
			[]string{"query"},
		),
		RowsRead: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cromwell_monitor",
				Name:      "bigquery_rows_read_total",
				Help:      "number of rows read from BigQuery",
			},
			[]string{"query"},
		),
		BytesEstimated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cromwell_monitor",
				Name:      "bigquery_dry_run_bytes_total",
				Help:      "bytes BigQuery estimated to process in dry runs",
			},
			[]string{"query"},
		),
	}
	registerer.MustRegister(m.QueryDuration, m.QueryErrors, m.RowsRead, m.BytesEstimated)
	return m
}

// observe records a finished query. A nil Metrics records nothing.
func (m *Metrics) observe(query string, start time.Time, rows int, err error) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{"query": query}
	m.QueryDuration.With(labels).Observe(time.Since(start).Seconds())
	if err != nil {
		m.QueryErrors.With(labels).Inc()
		return
	}
	m.RowsRead.With(labels).Add(float64(rows))
}

func (m *Metrics) estimated(query string, bytes int64) {
	if m == nil {
		return
	}
	m.BytesEstimated.With(prometheus.Labels{"query": query}).Add(float64(bytes))
}
