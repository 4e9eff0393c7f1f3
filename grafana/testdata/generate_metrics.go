// Package testdata provides utilities for generating sample metrics data
// to test Grafana dashboards without using real production data.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics for testing dashboards. Names and labels mirror what the daemon
// exports; the HTTP series match the OTEL instruments after the collector
// translates them to Prometheus form.
var (
	// HTTP server metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessiond_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"method", "endpoint", "status"},
	)
	httpResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sessiond_http_response_size_bytes",
			Help:    "HTTP response body size in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000, 50000000},
		},
		[]string{"method", "endpoint", "status"},
	)
	httpActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessiond_http_active_requests",
			Help: "Number of currently active HTTP requests",
		},
	)

	// Interchange metrics
	interchangeImports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_interchange_imports_total",
			Help: "Total session imports by format and outcome",
		},
		[]string{"format", "outcome"},
	)
	interchangeExports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_interchange_exports_total",
			Help: "Total session exports by format and outcome",
		},
		[]string{"format", "outcome"},
	)
	interchangeClears = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_interchange_clears_total",
			Help: "Total session clears by outcome",
		},
		[]string{"outcome"},
	)
	interchangeImportSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sessiond_interchange_import_size_bytes",
			Help:    "Size of uploaded documents",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
	)

	// Store metrics
	storeReplaces = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_store_replaces_total",
			Help: "Total number of session replacements",
		},
		[]string{"provider", "result"},
	)
	storeClears = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_store_clears_total",
			Help: "Total number of session wipes",
		},
		[]string{"provider", "result"},
	)
	storeRowsRemoved = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiond_store_rows_removed_total",
			Help: "Total number of rows displaced by replaces and wipes",
		},
		[]string{"kind"},
	)
	storeReplaceInstances = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sessiond_store_replace_instances",
			Help:    "Number of instances written per session replacement",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)
	storeReachable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessiond_store_reachable",
			Help: "Whether the last reachability probe succeeded",
		},
		[]string{"provider"},
	)
)

// routes lists the daemon's endpoints with their methods so the generated
// series carry label pairs that actually occur.
var routes = []struct {
	method   string
	endpoint string
}{
	{"POST", "/save_and_load/import"},
	{"GET", "/save_and_load/export"},
	{"DELETE", "/save_and_load/clear"},
	{"GET", "/health"},
	{"GET", "/status"},
}

var rowKinds = []string{"questions", "answers", "hints", "metrics", "entities", "candidates"}

func init() {
	prometheus.MustRegister(
		// HTTP
		httpRequestsTotal,
		httpRequestDuration,
		httpResponseSize,
		httpActiveRequests,
		// Interchange
		interchangeImports,
		interchangeExports,
		interchangeClears,
		interchangeImportSize,
		// Store
		storeReplaces,
		storeClears,
		storeRowsRemoved,
		storeReplaceInstances,
		storeReachable,
	)
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "9091"
	}

	// Generate initial sample data
	generateSampleData()

	// Start background goroutine to continuously generate data
	ctx, cancel := context.WithCancel(context.Background())
	go generateContinuousData(ctx)

	// Serve metrics
	http.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + port,
		Handler: nil,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		cancel()
		server.Shutdown(context.Background())
	}()

	fmt.Printf("Sample metrics server running on http://localhost:%s/metrics\n", port)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println("\nTo use with Prometheus, add this to prometheus.yml:")
	fmt.Printf("  - job_name: 'sessiond-test'\n    static_configs:\n      - targets: ['localhost:%s']\n", port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func generateSampleData() {
	providers := []string{"memory", "postgres"}
	formats := []string{"json", "csv", "full_json"}

	// HTTP traffic: mostly 200s with a scattering of client and server errors
	for i := 0; i < 300; i++ {
		observeRequest()
	}

	// Imports across formats, mostly succeeding
	for i := 0; i < 80; i++ {
		format := randomChoice(formats)
		outcome := "success"
		if rand.Float64() > 0.85 {
			outcome = randomChoice([]string{"invalid", "unsupported", "rejected", "store_error"})
		}
		interchangeImports.WithLabelValues(format, outcome).Inc()
		interchangeImportSize.Observe(float64(rand.Intn(2000000) + 500))
	}
	for i := 0; i < 120; i++ {
		interchangeExports.WithLabelValues(randomChoice(formats), "success").Inc()
	}
	for i := 0; i < 20; i++ {
		interchangeClears.WithLabelValues("success").Inc()
	}

	// Replaces with the row churn they cause
	for i := 0; i < 60; i++ {
		observeReplace(randomChoice(providers))
	}
	for i := 0; i < 15; i++ {
		provider := randomChoice(providers)
		storeClears.WithLabelValues(provider, "success").Inc()
		for _, kind := range rowKinds {
			storeRowsRemoved.WithLabelValues(kind).Add(float64(rand.Intn(20)))
		}
	}
	for i := 0; i < 4; i++ {
		storeReplaces.WithLabelValues("postgres", "error").Inc()
	}

	for _, provider := range providers {
		storeReachable.WithLabelValues(provider).Set(1)
	}
	httpActiveRequests.Set(float64(rand.Intn(5)))
}

func generateContinuousData(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	providers := []string{"memory", "postgres"}
	formats := []string{"json", "csv", "full_json"}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Add some random activity
			for i := 0; i < rand.Intn(10)+1; i++ {
				observeRequest()
			}
			if rand.Float64() > 0.5 {
				observeReplace(randomChoice(providers))
			}
			if rand.Float64() > 0.4 {
				interchangeImports.WithLabelValues(randomChoice(formats), "success").Inc()
				interchangeImportSize.Observe(float64(rand.Intn(2000000) + 500))
			}
			if rand.Float64() > 0.3 {
				interchangeExports.WithLabelValues(randomChoice(formats), "success").Inc()
			}
			if rand.Float64() > 0.8 {
				provider := randomChoice(providers)
				storeClears.WithLabelValues(provider, "success").Inc()
				for _, kind := range rowKinds {
					storeRowsRemoved.WithLabelValues(kind).Add(float64(rand.Intn(10)))
				}
			}
			// Occasional store blip
			if rand.Float64() > 0.95 {
				storeReachable.WithLabelValues("postgres").Set(0)
			} else {
				storeReachable.WithLabelValues("postgres").Set(1)
			}
			httpActiveRequests.Set(float64(rand.Intn(5)))
		}
	}
}

func observeRequest() {
	route := routes[rand.Intn(len(routes))]
	status := "200"
	if rand.Float64() > 0.9 {
		status = randomChoice([]string{"400", "413", "429", "503"})
	}
	httpRequestsTotal.WithLabelValues(route.method, route.endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(route.method, route.endpoint, status).Observe(rand.Float64() * 0.25)

	// Exports dominate response sizes; everything else is small
	size := float64(rand.Intn(500) + 100)
	if route.endpoint == "/save_and_load/export" {
		size = float64(rand.Intn(5000000) + 1000)
	}
	httpResponseSize.WithLabelValues(route.method, route.endpoint, status).Observe(size)
}

func observeReplace(provider string) {
	storeReplaces.WithLabelValues(provider, "success").Inc()
	storeReplaceInstances.Observe(float64(rand.Intn(200) + 1))
	for _, kind := range rowKinds {
		storeRowsRemoved.WithLabelValues(kind).Add(float64(rand.Intn(50)))
	}
}

func randomChoice(choices []string) string {
	return choices[rand.Intn(len(choices))]
}
