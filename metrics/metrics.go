package metrics

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline and worker metrics. Labels stay low-cardinality: content
// types are a fixed enum and outcomes are ok/degraded/error style
// constants.
var (
	LinksSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stash_links_saved_total",
		Help: "Number of links saved through the quick phase.",
	})

	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_fetch_total",
		Help: "Quick-phase fetch outcomes by content type.",
	}, []string{"content_type", "outcome"})

	EnrichmentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_enrichment_total",
		Help: "Background enrichment outcomes.",
	}, []string{"outcome"})

	EnrichmentDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stash_enrichment_duration_seconds",
		Help:    "Wall-clock duration of background enrichment runs.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	NewslettersSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stash_newsletters_sent_total",
		Help: "Newsletter send attempts by outcome.",
	}, []string{"outcome"})
)

// Fetch outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeError    = "error"
)

// Handler returns the HTTP handler serving the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RegisterDBStats exposes database/sql connection pool statistics.
func RegisterDBStats(db *sql.DB) {
	prometheus.MustRegister(collectors.NewDBStatsCollector(db, "stash"))
}
