// Package exporters exposes metrics over HTTP and the event bus.
package exporters

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler serves every panocam metric registered through promauto.
func HTTPHandler() http.Handler {
	return Handler(prometheus.DefaultGatherer)
}

// Handler serves the metrics of g. A failing collector is skipped and the
// rest of the scrape is still served.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorHandling:     promhttp.ContinueOnError,
		EnableOpenMetrics: true,
	})
}
