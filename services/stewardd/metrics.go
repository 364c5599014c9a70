package stewardd

import "cronosquity/observability"

// Metrics exposes Prometheus collectors for stewardd instrumentation.
type Metrics = observability.StewardMetrics

// NewMetrics returns the lazily initialised metrics registry.
func NewMetrics() *Metrics { return observability.Steward() }
