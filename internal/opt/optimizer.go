package opt

// Optimizer minimizes a scalar cost over a bounded parameter box.
//
// eval receives a candidate of length dim and returns its cost. Run returns
// the best candidate seen and its cost; implementations keep the candidate
// inside [lower, upper].
type Optimizer interface {
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}
