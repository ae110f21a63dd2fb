package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments the shared favorites/ratings stores. All store hooks are
// nil-safe so tests can run without a registry.
type Metrics struct {
	FavoriteToggles    prometheus.Counter
	FavoriteRollbacks  prometheus.Counter
	RatingsCacheHits   *prometheus.CounterVec
	RatingsCacheMisses *prometheus.CounterVec
	RatingsSubmitted   prometheus.Counter
	RatingsDeleted     prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		FavoriteToggles: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guia_favorite_toggles_total",
			Help: "Total number of optimistic favorite toggles applied",
		}),
		FavoriteRollbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guia_favorite_rollbacks_total",
			Help: "Total number of favorite toggles rolled back after a gateway failure",
		}),
		RatingsCacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guia_ratings_cache_hits_total",
			Help: "Total number of ratings cache hits",
		}, []string{"cache"}),
		RatingsCacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "guia_ratings_cache_misses_total",
			Help: "Total number of ratings cache misses",
		}, []string{"cache"}),
		RatingsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guia_ratings_submitted_total",
			Help: "Total number of ratings created or updated",
		}),
		RatingsDeleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "guia_ratings_deleted_total",
			Help: "Total number of ratings deleted",
		}),
	}
}

func (m *Metrics) IncFavoriteToggles() {
	if m != nil {
		m.FavoriteToggles.Inc()
	}
}

func (m *Metrics) IncFavoriteRollbacks() {
	if m != nil {
		m.FavoriteRollbacks.Inc()
	}
}

func (m *Metrics) IncCacheHit(cache string) {
	if m != nil {
		m.RatingsCacheHits.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) IncCacheMiss(cache string) {
	if m != nil {
		m.RatingsCacheMisses.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) IncRatingsSubmitted() {
	if m != nil {
		m.RatingsSubmitted.Inc()
	}
}

func (m *Metrics) IncRatingsDeleted() {
	if m != nil {
		m.RatingsDeleted.Inc()
	}
}
