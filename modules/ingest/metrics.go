package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer exports pipeline metrics to Prometheus. A nil Observer records nothing.
type Observer struct {
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	storedBytes prometheus.Counter
}

// NewObserver registers the pipeline metrics with reg, reusing collectors that are already registered.
func NewObserver(namespace string, reg prometheus.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = "file_ingestion"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Latency of ingestion pipeline operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "result"}))
	if err != nil {
		return nil, err
	}
	failures, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Count of per-item failures by operation.",
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}
	stored, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stored_bytes_total",
		Help:      "Cumulative payload size written to the blob store.",
	}))
	if err != nil {
		return nil, err
	}

	return &Observer{duration: duration, errors: failures, storedBytes: stored}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register ingestion metric: %w", err)
	}
	return c, nil
}

// observe records one pipeline run and the number of failed items in it.
func (o *Observer) observe(op string, start time.Time, failed int) {
	if o == nil {
		return
	}
	result := "success"
	if failed > 0 {
		result = "failure"
		o.errors.WithLabelValues(op).Add(float64(failed))
	}
	o.duration.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

func (o *Observer) stored(n int) {
	if o == nil {
		return
	}
	o.storedBytes.Add(float64(n))
}
