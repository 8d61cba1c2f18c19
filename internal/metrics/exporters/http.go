// Package exporters serves camfleet's metrics over HTTP.
package exporters

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/camfleet/internal/logging"
)

// HTTPHandler serves the session, health and hub series gathered from g,
// or from the default registry when g is nil. A failing collector is logged
// and skipped so the rest of the scrape still succeeds.
func HTTPHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{
		ErrorLog:      scrapeLog{logging.GetLogger("metrics")},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

type scrapeLog struct{ logger *slog.Logger }

func (l scrapeLog) Println(v ...any) {
	l.logger.Warn("Metrics scrape incomplete", "error", fmt.Sprint(v...))
}
