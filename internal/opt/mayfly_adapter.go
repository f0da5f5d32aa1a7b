package opt

import (
	"log/slog"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// minPopulation is the smallest population the mayfly library accepts.
const minPopulation = 20

// MayflyAdapter wraps the Mayfly library to conform to the Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter. popSize is raised to
// the library minimum of 20.
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  max(popSize, minPopulation),
		seed:     seed,
	}
}

// Run executes the Mayfly optimization. The library takes scalar bounds, so
// every dimension is searched within [lower[0], upper[0]] and the result is
// clamped to the per-dimension bounds.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	// Create config for the mayfly library
	config := mayfly.NewDefaultConfig()

	// Configure the optimizer
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize

	// Scalar bounds taken from the first dimension
	config.LowerBound = lower[0]
	config.UpperBound = upper[0]

	// Seeded for reproducible calibrations
	config.Rand = rand.New(rand.NewSource(m.seed))

	// Run optimization
	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the lower corner of the box
		slog.Warn("Mayfly optimization failed, returning lower bounds", "error", err)
		fallback := append([]float64(nil), lower[:dim]...)
		return fallback, eval(fallback)
	}

	// Clamp to the per-dimension box and re-score the clamped point
	best := append([]float64(nil), result.GlobalBest.Position...)
	for i := range best {
		best[i] = min(max(best[i], lower[i]), upper[i])
	}
	return best, eval(best)
}
