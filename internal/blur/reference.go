package blur

import "math"

// ReferenceSeparable blurs img on the CPU with the same two-pass arithmetic
// as the device kernel. Results are byte-identical to a correct device run.
func ReferenceSeparable(img Image, weights []float32) Image {
	tmp := NewImage(img.Width, img.Height)
	out := NewImage(img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			convolvePixel(img.Pix, tmp.Pix, img.Width, img.Height, x, y, AxisHorizontal, weights)
		}
	}
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			convolvePixel(tmp.Pix, out.Pix, img.Width, img.Height, x, y, AxisVertical, weights)
		}
	}
	return out
}

// ReferenceDirect2D blurs img with the full 2D outer-product kernel in
// float64 and a single rounding step. It differs from the separable result
// by at most one level per channel.
func ReferenceDirect2D(img Image, weights []float32) Image {
	radius := len(weights) / 2
	out := NewImage(img.Width, img.Height)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			for c := 0; c < Channels; c++ {
				var sum, norm float64
				for dy := -radius; dy <= radius; dy++ {
					py := clampInt(y+dy, 0, img.Height-1)
					wy := float64(weights[dy+radius])
					for dx := -radius; dx <= radius; dx++ {
						px := clampInt(x+dx, 0, img.Width-1)
						w := wy * float64(weights[dx+radius])
						sum += w * float64(img.Pix[Channels*(py*img.Width+px)+c])
						norm += w
					}
				}
				v := math.Round(sum / norm)
				out.Pix[Channels*(y*img.Width+x)+c] = uint8(max(0, min(255, v)))
			}
		}
	}
	return out
}
