// Package metrics exposes conversion counters and latencies to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insightdelivered/statement-converter/internal/models"
)

const namespace = "statement_converter"

// Collector records conversion outcomes on its own registry.
type Collector struct {
	registry     *prometheus.Registry
	conversions  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	transactions *prometheus.CounterVec
	ocrPages     *prometheus.CounterVec
}

// New returns a collector with Go runtime and process metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversions_total",
			Help:      "Conversions by final method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "conversion_duration_seconds",
			Help:      "Wall time of a conversion by final method.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"method"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_extracted_total",
			Help:      "Transactions produced by final method.",
		}, []string{"method"}),
		ocrPages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ocr_pages_total",
			Help:      "Pages sent through OCR by outcome.",
		}, []string{"outcome"}),
	}
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.conversions, c.duration, c.transactions, c.ocrPages,
	)
	return c
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ConversionFinished records one conversion. method is empty when it failed
// before a strategy was chosen.
func (c *Collector) ConversionFinished(method models.Method, elapsed time.Duration, transactions int, err error) {
	label := string(method)
	if label == "" {
		label = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.conversions.WithLabelValues(label, outcome).Inc()
	c.duration.WithLabelValues(label).Observe(elapsed.Seconds())
	if err == nil {
		c.transactions.WithLabelValues(label).Add(float64(transactions))
	}
}

// PageProcessed records one OCR page.
func (c *Collector) PageProcessed(page int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	c.ocrPages.WithLabelValues(outcome).Inc()
}
