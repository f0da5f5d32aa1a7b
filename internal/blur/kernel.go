package blur

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/compute/host"
)

// KernelEntry is the name of the program's single entry point.
const KernelEntry = "blur"

// kernelParams lists the entry point's parameters in declaration order.
var kernelParams = []string{"input", "output", "weights", "width", "height", "axis"}

//go:embed blur.cl
var kernelTemplateText string

var kernelTemplate = template.Must(template.New("blur.cl").Parse(kernelTemplateText))

// blurBody fingerprints the body of the blur entry point in blur.cl.
// convolvePixel implements that body for the host device, so the two are
// changed together and this value updated to match.
const blurBody = "0764227dc720fb4e"

// KernelSource renders the OpenCL C program for the given radius.
func KernelSource(radius int) (string, error) {
	if radius < 0 {
		return "", fmt.Errorf("kernel radius must be >= 0, got %d", radius)
	}
	var sb strings.Builder
	if err := kernelTemplate.Execute(&sb, struct{ Radius int }{radius}); err != nil {
		return "", fmt.Errorf("render kernel source: %w", err)
	}
	return sb.String(), nil
}

// HostKernels returns the Go implementations of the program's entry points
// for the host compute driver.
func HostKernels() []host.KernelDef {
	return []host.KernelDef{{
		Name: KernelEntry,
		Params: []host.Param{
			{Name: "input", Kind: host.ParamBufferIn},
			{Name: "output", Kind: host.ParamBufferOut},
			{Name: "weights", Kind: host.ParamBufferIn},
			{Name: "width", Kind: host.ParamInt},
			{Name: "height", Kind: host.ParamInt},
			{Name: "axis", Kind: host.ParamInt},
		},
		Body: blurBody,
		Bind: bindHostBlur,
	}}
}

func bindHostBlur(defines host.Defines, args []host.Arg) (host.WorkItem, error) {
	radius, err := defines.Int("KERNEL_RADIUS")
	if err != nil {
		return nil, err
	}

	in, out := args[0].Mem, args[1].Mem
	weights := compute.BytesFloat32(args[2].Mem)
	width, height := int(args[3].Int), int(args[4].Int)
	axis := Axis(args[5].Int)

	switch {
	case width <= 0 || height <= 0:
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	case axis != AxisHorizontal && axis != AxisVertical:
		return nil, fmt.Errorf("invalid axis %d", axis)
	case len(weights) < 2*radius+1:
		return nil, fmt.Errorf("weights buffer holds %d taps, radius %d needs %d", len(weights), radius, 2*radius+1)
	case len(in) < width*height*Channels || len(out) < width*height*Channels:
		return nil, fmt.Errorf("pixel buffers too small for %dx%d", width, height)
	}

	taps := weights[:2*radius+1]
	return func(x, y int) {
		if x >= width || y >= height {
			return
		}
		convolvePixel(in, out, width, height, x, y, axis, taps)
	}, nil
}

// convolvePixel computes one output pixel of a 1D pass. It is the host
// rendition of the blur entry point and shares its float32 arithmetic and
// rounding.
func convolvePixel(in, out []byte, width, height, x, y int, axis Axis, taps []float32) {
	radius := len(taps) / 2
	pixel := y*width + x
	for channel := 0; channel < Channels; channel++ {
		var sumWeight, ret float32
		for offset := -radius; offset <= radius; offset++ {
			px, py := x, y
			if axis == AxisHorizontal {
				px = clampInt(x+offset, 0, width-1)
			} else {
				py = clampInt(y+offset, 0, height-1)
			}
			weight := taps[offset+radius]
			ret += weight * float32(in[Channels*(py*width+px)+channel])
			sumWeight += weight
		}
		out[Channels*pixel+channel] = quantize(ret / sumWeight)
	}
}

func quantize(v float32) uint8 {
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint8(v + 0.5)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
