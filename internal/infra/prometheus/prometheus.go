package prometheus

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sifan077/PowerShare/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 10 * time.Second
	defaultPort       = 9090
)

// NewServer exposes reg on /metrics. Scrapes of the endpoint are themselves counted in
// reg (promhttp_metric_handler_*).
func NewServer(cfg config.PrometheusConfig, reg *prometheus.Registry) *http.Server {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           Handler(reg),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
}

// Handler returns the /metrics mux for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	metrics := promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	}))

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics)
	return mux
}
