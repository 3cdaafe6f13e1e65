package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Backend labels used by RecordBackendError.
const (
	BackendDynamoDB = "dynamodb"
	BackendEC2      = "ec2"
	BackendSNS      = "sns"
)

// Recorder collects request and backend metrics into its own registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	backendErrors   *prometheus.CounterVec
	counterValue    prometheus.Gauge
	renewalTriggers *prometheus.CounterVec
}

// DefaultNamespace prefixes every series.
const DefaultNamespace = "visitorfn"

// Config represents metrics configuration
type Config struct {
	Namespace string
	// Labels are attached to every series as constant labels.
	Labels map[string]string
}

// NewRecorder creates a recorder with a fresh registry. A nil config uses
// DefaultNamespace and no constant labels.
func NewRecorder(config *Config) (*Recorder, error) {
	cfg := Config{Namespace: DefaultNamespace}
	if config != nil {
		cfg = *config
		if cfg.Namespace == "" {
			cfg.Namespace = DefaultNamespace
		}
	}

	r := &Recorder{registry: prometheus.NewRegistry()}
	r.initMetrics(&cfg)

	if err := r.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return r, nil
}

// ObserveRequest records one handled request.
func (r *Recorder) ObserveRequest(route, method string, statusCode int, duration time.Duration) {
	if r == nil {
		return
	}
	r.requestCounter.With(prometheus.Labels{
		"route":  route,
		"method": method,
		"code":   strconv.Itoa(statusCode),
	}).Inc()
	r.requestDuration.With(prometheus.Labels{"route": route}).Observe(duration.Seconds())
}

// RecordBackendError counts a failed backend call by its error code.
func (r *Recorder) RecordBackendError(backend, code string) {
	if r == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	r.backendErrors.With(prometheus.Labels{"backend": backend, "code": code}).Inc()
}

// SetCounterValue records the last count read from or written to the store.
func (r *Recorder) SetCounterValue(count int64) {
	if r == nil {
		return
	}
	r.counterValue.Set(float64(count))
}

// RecordRenewalTrigger counts renewal trigger outcomes: started,
// already_running, rejected or failed.
func (r *Recorder) RecordRenewalTrigger(result string) {
	if r == nil {
		return
	}
	r.renewalTriggers.With(prometheus.Labels{"result": result}).Inc()
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (r *Recorder) initMetrics(config *Config) {
	r.requestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "requests_total",
			Help:        "Total number of handled requests",
			ConstLabels: config.Labels,
		},
		[]string{"route", "method", "code"},
	)

	r.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Name:        "request_duration_seconds",
			Help:        "Duration of handled requests in seconds",
			Buckets:     prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~32s
			ConstLabels: config.Labels,
		},
		[]string{"route"},
	)

	r.backendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "backend_errors_total",
			Help:        "Total number of failed backend calls",
			ConstLabels: config.Labels,
		},
		[]string{"backend", "code"},
	)

	r.counterValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Name:        "counter_value",
			Help:        "Last observed visitor count",
			ConstLabels: config.Labels,
		},
	)

	r.renewalTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Name:        "renewal_triggers_total",
			Help:        "Total number of renewal trigger attempts by result",
			ConstLabels: config.Labels,
		},
		[]string{"result"},
	)
}

func (r *Recorder) registerMetrics() error {
	metrics := []prometheus.Collector{
		r.requestCounter,
		r.requestDuration,
		r.backendErrors,
		r.counterValue,
		r.renewalTriggers,
	}

	for _, metric := range metrics {
		if err := r.registry.Register(metric); err != nil {
			return err
		}
	}

	return nil
}
