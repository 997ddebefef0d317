package dag

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("dagstore.coordinator")

var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dagstore_mutations_total",
		Help: "Graph mutations by operation and outcome",
	}, []string{"op", "result"})

	validationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dagstore_validation_duration_seconds",
		Help:    "Time spent serializing and validating a dag during a mutation",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})
)

// resultLabel classifies a mutation outcome for metrics.
func resultLabel(err error) string {
	switch {
	case err == nil:
		return "committed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrSelfLoop):
		return "self_loop"
	case errors.Is(err, ErrCrossDagEdge):
		return "cross_dag"
	case errors.Is(err, ErrCycleDetected):
		return "cycle"
	case errors.Is(err, ErrNameTooLong):
		return "invalid_name"
	default:
		return "error"
	}
}
