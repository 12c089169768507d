package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LoadsIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodrill_loads_issued_total",
		Help: "Loads issued by the drill-down session, by kind",
	}, []string{"kind"})
	LoadsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodrill_loads_applied_total",
		Help: "Load results applied to session state, by kind",
	}, []string{"kind"})
	StaleDiscards = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodrill_stale_discards_total",
		Help: "Load results discarded because a newer load superseded them, by kind",
	}, []string{"kind"})
	LoadErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodrill_load_errors_total",
		Help: "Load results that carried a scoped error, by kind",
	}, []string{"kind"})
	SourceFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "geodrill_source_fallbacks_total",
		Help: "Times a secondary statistics source answered for the primary",
	}, []string{"source"})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodrill_kpi_cache_hits_total",
		Help: "KPI cache hits",
	})
	CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "geodrill_kpi_cache_misses_total",
		Help: "KPI cache misses",
	})
)

var registerOnce sync.Once

// Register adds all collectors to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(LoadsIssued, LoadsApplied, StaleDiscards, LoadErrors,
			SourceFallbacks, CacheHits, CacheMisses)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
