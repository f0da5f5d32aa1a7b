package opt

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/cwbudde/clblur/internal/blur"
)

func referenceBlur(pixels []byte, width, height, radius int, sigma float64) ([]byte, error) {
	img := blur.Image{Pix: pixels, Width: width, Height: height}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return blur.ReferenceSeparable(img, blur.Weights(radius, sigma)).Pix, nil
}

func noise(width, height int) []byte {
	rng := rand.New(rand.NewPCG(1, 2))
	pix := make([]byte, width*height*4)
	for i := range pix {
		pix[i] = uint8(rng.IntN(256))
	}
	return pix
}

func TestCalibrateSigmaRecoversSigma(t *testing.T) {
	const width, height, radius, sigma = 24, 24, 6, 2.0

	source := noise(width, height)
	target, err := referenceBlur(source, width, height, radius, sigma)
	if err != nil {
		t.Fatal(err)
	}

	got, err := CalibrateSigma(source, target, width, height, radius, 0.5, 5, NewMayfly(40, 20, 42), referenceBlur)
	if err != nil {
		t.Fatalf("CalibrateSigma failed: %v", err)
	}
	if math.Abs(got.Sigma-sigma) > 0.25 {
		t.Errorf("sigma = %f, want about %f", got.Sigma, sigma)
	}
	if got.MSE > 1 {
		t.Errorf("MSE = %f, want < 1", got.MSE)
	}
	if got.Evaluations == 0 {
		t.Error("no evaluations recorded")
	}
}

func TestCalibrateSigmaErrors(t *testing.T) {
	pix := noise(4, 4)

	if _, err := CalibrateSigma(pix, pix[:8], 4, 4, 1, 0.5, 2, NewMayfly(5, 20, 1), referenceBlur); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("shape mismatch: err = %v", err)
	}
	if _, err := CalibrateSigma(pix, pix, 4, 4, 1, 2, 1, NewMayfly(5, 20, 1), referenceBlur); err == nil {
		t.Error("expected error for inverted bounds")
	}

	boom := errors.New("device lost")
	failing := func([]byte, int, int, int, float64) ([]byte, error) { return nil, boom }
	if _, err := CalibrateSigma(pix, pix, 4, 4, 1, 0.5, 2, NewMayfly(5, 20, 1), failing); !errors.Is(err, boom) {
		t.Errorf("failing blur: err = %v, want %v", err, boom)
	}
}

func TestMSE(t *testing.T) {
	if got := MSE([]byte{0, 10}, []byte{0, 10}); got != 0 {
		t.Errorf("identical MSE = %f", got)
	}
	if got := MSE([]byte{0, 10}, []byte{2, 6}); got != 10 {
		t.Errorf("MSE = %f, want 10", got)
	}
}
