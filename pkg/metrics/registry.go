// Package metrics provides Prometheus metrics for share operations.
//
// Metrics are optional. Until InitRegistry is called every constructor returns
// a no-op implementation, so shares run the same with or without collection.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Wrap shares so every operation is counted and timed
//	s = metrics.Instrument(s, metrics.NewShareMetrics())
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is written once by InitRegistry and read afterwards
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// This must be called before creating any metrics instances. It's safe to call
// multiple times - subsequent calls are ignored.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
