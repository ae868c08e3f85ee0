// Package metrics exposes hub counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collectors on a private registry. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	plantsScraped    prometheus.Counter
	scrapeErrors     *prometheus.CounterVec
	plantsTracked    prometheus.Gauge
	lastRunTimestamp prometheus.Gauge
	geminiRequests   *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	mqttPublishes    *prometheus.CounterVec
}

// New registers all collectors plus the Go runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "plantcare_collect_runs_total",
			Help: "Collection runs by final status",
		}, []string{"status"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "plantcare_collect_run_duration_seconds",
			Help:    "Wall time of a collection run",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		plantsScraped: f.NewCounter(prometheus.CounterOpts{
			Name: "plantcare_plants_scraped_total",
			Help: "Plant pages scraped and stored",
		}),
		scrapeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "plantcare_scrape_errors_total",
			Help: "Scrape failures by stage",
		}, []string{"stage"}),
		plantsTracked: f.NewGauge(prometheus.GaugeOpts{
			Name: "plantcare_plants_tracked",
			Help: "Plants found on the profile in the last run",
		}),
		lastRunTimestamp: f.NewGauge(prometheus.GaugeOpts{
			Name: "plantcare_last_run_timestamp_seconds",
			Help: "Unix time the last collection run finished",
		}),
		geminiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "plantcare_gemini_requests_total",
			Help: "Gemini generateContent calls by outcome",
		}, []string{"status"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "plantcare_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "plantcare_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		mqttPublishes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "plantcare_mqtt_publishes_total",
			Help: "MQTT publishes by outcome",
		}, []string{"status"}),
	}
}

// Handler serves the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry underlying registry
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// RecordRun final status, duration and plant count of a run
func (m *Metrics) RecordRun(status string, d time.Duration, found int) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
	m.plantsTracked.Set(float64(found))
	m.lastRunTimestamp.SetToCurrentTime()
}

// PlantScraped one plant stored
func (m *Metrics) PlantScraped() {
	if m == nil {
		return
	}
	m.plantsScraped.Inc()
}

// ScrapeError stage is profile, plant, parse or store
func (m *Metrics) ScrapeError(stage string) {
	if m == nil {
		return
	}
	m.scrapeErrors.WithLabelValues(stage).Inc()
}

// GeminiRequest ok or error
func (m *Metrics) GeminiRequest(err error) {
	if m == nil {
		return
	}
	m.geminiRequests.WithLabelValues(outcome(err)).Inc()
}

// MQTTPublish ok or error
func (m *Metrics) MQTTPublish(err error) {
	if m == nil {
		return
	}
	m.mqttPublishes.WithLabelValues(outcome(err)).Inc()
}

// HTTPRequest route is the registered pattern, not the raw path
func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
