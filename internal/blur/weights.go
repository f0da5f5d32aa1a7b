package blur

import "math"

const (
	// DefaultRadius is the kernel radius R; the kernel has 2R+1 taps.
	DefaultRadius = 8
	// DefaultSigma is the standard deviation of the Gaussian.
	DefaultSigma = 3.0
)

// Weights returns the 2R+1 Gaussian tap weights exp(-offset²/(2σ²)) for
// offset in [-R, R], indexed by offset+R. The weights are not normalized;
// the kernel divides by the running sum of the taps it uses.
func Weights(radius int, sigma float64) []float32 {
	weights := make([]float32, 2*radius+1)
	twoSigmaSq := 2 * sigma * sigma
	for offset := -radius; offset <= radius; offset++ {
		weights[offset+radius] = float32(math.Exp(-float64(offset*offset) / twoSigmaSq))
	}
	return weights
}

// Taps returns the number of weights for a radius.
func Taps(radius int) int {
	return 2*radius + 1
}
