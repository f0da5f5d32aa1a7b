package blur

import "fmt"

// Channels is the number of 8-bit channels per pixel (RGBA).
const Channels = 4

// Image is a row-major RGBA8 pixel buffer.
type Image struct {
	Pix    []byte
	Width  int
	Height int
}

// NewImage allocates a zeroed image.
func NewImage(width, height int) Image {
	return Image{Pix: make([]byte, width*height*Channels), Width: width, Height: height}
}

// Validate checks the shape invariants.
func (im Image) Validate() error {
	if im.Width <= 0 || im.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidImage, im.Width, im.Height)
	}
	if want := im.Width * im.Height * Channels; len(im.Pix) != want {
		return fmt.Errorf("%w: %d bytes for %dx%d, want %d", ErrInvalidImage, len(im.Pix), im.Width, im.Height, want)
	}
	return nil
}

// At returns the four channels of pixel (x, y).
func (im Image) At(x, y int) [Channels]uint8 {
	i := (y*im.Width + x) * Channels
	return [Channels]uint8{im.Pix[i], im.Pix[i+1], im.Pix[i+2], im.Pix[i+3]}
}

// Set writes the four channels of pixel (x, y).
func (im Image) Set(x, y int, c [Channels]uint8) {
	i := (y*im.Width + x) * Channels
	copy(im.Pix[i:i+Channels], c[:])
}
