// Package imageio loads and stores RGBA8 pixel buffers in common image
// formats.
package imageio

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultQuality is the JPEG quality used when none is given.
const DefaultQuality = 90

var (
	// ErrDecode is wrapped by every *DecodeError.
	ErrDecode = errors.New("image decode failed")
	// ErrEncode is wrapped by every *EncodeError.
	ErrEncode = errors.New("image encode failed")
	// ErrUnsupportedFormat indicates an output extension with no encoder.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

// DecodeError reports a file that could not be read as an image.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Err} }

// EncodeError reports an image that could not be written.
type EncodeError struct {
	Path string
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Path, e.Err)
}

func (e *EncodeError) Unwrap() []error { return []error{ErrEncode, e.Err} }

// Decode reads a PNG, JPEG, GIF, BMP, TIFF or WebP file and returns its
// pixels as row-major non-premultiplied RGBA8.
func Decode(path string) ([]byte, int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, 0, 0, &DecodeError{Path: path, Err: err}
	}

	rgba := ToNRGBA(src)
	b := rgba.Bounds()
	return rgba.Pix, b.Dx(), b.Dy(), nil
}

// ToNRGBA returns img as a tightly packed *image.NRGBA with origin (0, 0).
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) && n.Stride == 4*n.Rect.Dx() {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, b.Min, xdraw.Src)
	return dst
}

// Encode writes pixels, row-major with the given number of channels
// (1, 3 or 4), to path. The format follows the extension: .png, .jpg/.jpeg,
// .bmp or .tif/.tiff. quality only applies to JPEG; zero means
// DefaultQuality.
func Encode(path string, pixels []byte, width, height, channels, quality int) error {
	img, err := fromPixels(pixels, width, height, channels)
	if err != nil {
		return &EncodeError{Path: path, Err: err}
	}

	ext := strings.ToLower(filepath.Ext(path))
	var encode func(f *os.File) error
	switch ext {
	case ".png":
		encode = func(f *os.File) error { return png.Encode(f, img) }
	case ".jpg", ".jpeg":
		if quality <= 0 {
			quality = DefaultQuality
		}
		q := min(quality, 100)
		opaque := dropAlpha(img)
		encode = func(f *os.File) error { return jpeg.Encode(f, opaque, &jpeg.Options{Quality: q}) }
	case ".bmp":
		encode = func(f *os.File) error { return bmp.Encode(f, img) }
	case ".tif", ".tiff":
		encode = func(f *os.File) error {
			return tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
		}
	default:
		return &EncodeError{Path: path, Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)}
	}

	f, err := os.Create(path)
	if err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	if err := encode(f); err != nil {
		f.Close()
		return &EncodeError{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &EncodeError{Path: path, Err: err}
	}
	return nil
}

// dropAlpha returns img with every alpha set to opaque and the color
// channels left as stored. JPEG has no alpha and jpeg.Encode would
// otherwise premultiply translucent pixels.
func dropAlpha(img image.Image) image.Image {
	src, ok := img.(*image.NRGBA)
	if !ok {
		return img
	}
	dst := image.NewRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

func fromPixels(pixels []byte, width, height, channels int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", width, height)
	}
	if len(pixels) != width*height*channels {
		return nil, fmt.Errorf("%d bytes for %dx%d with %d channels", len(pixels), width, height, channels)
	}

	rect := image.Rect(0, 0, width, height)
	switch channels {
	case 4:
		return &image.NRGBA{Pix: pixels, Stride: 4 * width, Rect: rect}, nil
	case 3:
		img := image.NewNRGBA(rect)
		for i, j := 0, 0; i < len(pixels); i, j = i+3, j+4 {
			copy(img.Pix[j:j+3], pixels[i:i+3])
			img.Pix[j+3] = 0xff
		}
		return img, nil
	case 1:
		return &image.Gray{Pix: pixels, Stride: width, Rect: rect}, nil
	default:
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
}
