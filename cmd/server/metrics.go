package main

import (
	"context"

	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/internal"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// prometheusEmitter turns field-core telemetry into Prometheus series.
type prometheusEmitter struct {
	categoryChanges *prometheus.CounterVec
	backups         *prometheus.CounterVec
	backupFields    prometheus.Histogram
	restoredValues  prometheus.Counter
	filterLatency   *prometheus.HistogramVec
	filterMatches   *prometheus.HistogramVec
}

func newPrometheusEmitter(namespace string) *prometheusEmitter {
	return newPrometheusEmitterWith(prometheus.DefaultRegisterer, namespace)
}

func newPrometheusEmitterWith(reg prometheus.Registerer, namespace string) *prometheusEmitter {
	factory := promauto.With(reg)
	return &prometheusEmitter{
		categoryChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      internal.MetricCategoryChanges,
				Help:      "Category transitions applied to items",
			},
			[]string{"transition"},
		),
		backups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      internal.MetricBackups,
				Help:      "Backup attempts, split by whether a snapshot was written",
			},
			[]string{"created"},
		),
		backupFields: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      internal.MetricBackupFields,
				Help:      "Values captured per backup",
				Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		restoredValues: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      internal.MetricRestoredValues,
				Help:      "Field values written back by restores",
			},
		),
		filterLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      internal.MetricFilterLatency,
				Help:      "Filter latency in milliseconds",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"path"},
		),
		filterMatches: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      internal.MetricFilterMatches,
				Help:      "Items matched per filter request",
				Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
			},
			[]string{"path"},
		),
	}
}

// Emit matches the signature accepted by internal.RegisterTelemetryEmitter.
func (e *prometheusEmitter) Emit(ctx context.Context, name string, labels map[string]string, value any) {
	v, ok := facet.ToFloat(value)
	if !ok {
		zap.S().Debugw("dropping telemetry with non-numeric value", "metric", name)
		return
	}

	switch name {
	case internal.MetricCategoryChanges:
		e.categoryChanges.WithLabelValues(labels["transition"]).Add(v)
	case internal.MetricBackups:
		e.backups.WithLabelValues(labels["created"]).Add(v)
	case internal.MetricBackupFields:
		e.backupFields.Observe(v)
	case internal.MetricRestoredValues:
		e.restoredValues.Add(v)
	case internal.MetricFilterLatency:
		e.filterLatency.WithLabelValues(labels["path"]).Observe(v)
	case internal.MetricFilterMatches:
		e.filterMatches.WithLabelValues(labels["path"]).Observe(v)
	default:
		zap.S().Debugw("dropping unknown telemetry", "metric", name)
	}
}
