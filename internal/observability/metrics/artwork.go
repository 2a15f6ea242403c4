package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ArtworkStats is the snapshot read on every scrape.
type ArtworkStats struct {
	Hits   uint64
	Misses uint64
	Errors uint64
	Items  int
}

// RegisterArtworkCache exposes an artwork cache's counters. stats is called
// on every scrape.
func RegisterArtworkCache(registry prometheus.Registerer, stats func() ArtworkStats) error {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "trackid_artwork_cache_hits_total",
			Help: "Artwork lookups answered from cache",
		}, func() float64 { return float64(stats().Hits) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "trackid_artwork_cache_misses_total",
			Help: "Artwork lookups that reached the provider",
		}, func() float64 { return float64(stats().Misses) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "trackid_artwork_errors_total",
			Help: "Artwork provider failures",
		}, func() float64 { return float64(stats().Errors) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "trackid_artwork_cache_items",
			Help: "Entries in the artwork cache",
		}, func() float64 { return float64(stats().Items) }),
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("failed to register artwork metrics: %w", err)
		}
	}
	return nil
}
