package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tazhate/calbridge/internal/domain"
)

// MetricsService counts calendar operations by outcome.
// A nil *MetricsService is valid and records nothing.
type MetricsService struct {
	registry   *prometheus.Registry
	handler    http.Handler
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetricsService registers the calendar collectors on a private registry
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "calbridge_calendar_operations_total",
		Help: "Calendar operations by name and result",
	}, []string{"op", "result"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "calbridge_calendar_operation_duration_seconds",
		Help:    "Duration of calendar operations in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	registry.MustRegister(operations, duration)

	return &MetricsService{
		registry:   registry,
		handler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		operations: operations,
		duration:   duration,
	}
}

// Handler exposes the registry for /metrics
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// Observe records one operation. The result label is "ok" or the lower-cased error code.
func (m *MetricsService) Observe(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// Count returns the counter value for op/result
func (m *MetricsService) Count(op, result string) float64 {
	if m == nil {
		return 0
	}
	metrics, err := m.registry.Gather()
	if err != nil {
		return 0
	}
	for _, mf := range metrics {
		if mf.GetName() != "calbridge_calendar_operations_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["op"] == op && labels["result"] == result {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch domain.CodeOf(err) {
	case domain.ErrPermissionDenied.Code:
		return "permission_denied"
	case domain.ErrNotFound.Code:
		return "not_found"
	case domain.ErrConflict.Code:
		return "conflict"
	case domain.ErrNoDefaultSource.Code:
		return "no_default_source"
	case domain.ErrValidation.Code:
		return "validation_error"
	default:
		return "error"
	}
}
