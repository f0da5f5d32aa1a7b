package opt

import (
	"errors"
	"fmt"
	"log/slog"
)

// BlurFunc blurs an RGBA8 buffer with the given radius and sigma.
type BlurFunc func(pixels []byte, width, height, radius int, sigma float64) ([]byte, error)

// Calibration is the outcome of CalibrateSigma.
type Calibration struct {
	Sigma       float64
	MSE         float64
	Evaluations int
}

// ErrShapeMismatch is returned when source and target differ in size.
var ErrShapeMismatch = errors.New("source and target shapes differ")

// CalibrateSigma searches [lower, upper] for the sigma whose blur of source
// best matches target by mean squared error over all channels. Evaluations
// whose blur fails score as infinitely bad; if every evaluation fails, the
// first error is returned.
func CalibrateSigma(source, target []byte, width, height, radius int, lower, upper float64, optimizer Optimizer, blur BlurFunc) (*Calibration, error) {
	if len(source) != len(target) || len(source) != width*height*4 {
		return nil, fmt.Errorf("%w: %d and %d bytes for %dx%d", ErrShapeMismatch, len(source), len(target), width, height)
	}
	if !(lower > 0) || !(upper > lower) {
		return nil, fmt.Errorf("invalid sigma bounds [%v, %v]", lower, upper)
	}

	// Objective: MSE of blur(source, sigma) against target
	var (
		evals    int
		firstErr error
		ok       bool
	)
	eval := func(x []float64) float64 {
		evals++
		out, err := blur(source, width, height, radius, x[0])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return failedCost
		}
		ok = true
		return MSE(out, target)
	}

	// Search the single sigma dimension
	best, cost := optimizer.Run(eval, []float64{lower}, []float64{upper}, 1)
	if !ok {
		return nil, fmt.Errorf("calibration: every blur failed: %w", firstErr)
	}

	slog.Info("Calibrated sigma", "sigma", best[0], "mse", cost, "evaluations", evals)
	return &Calibration{Sigma: best[0], MSE: cost, Evaluations: evals}, nil
}

// failedCost scores an evaluation whose blur returned an error.
const failedCost = 1e300

// MSE returns the mean squared difference of two equal-length buffers.
func MSE(a, b []byte) float64 {
	if len(a) == 0 {
		return 0
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum / float64(len(a))
}
