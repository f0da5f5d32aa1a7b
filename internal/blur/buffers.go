package blur

import (
	"fmt"

	"github.com/cwbudde/clblur/internal/compute"
)

// BufferSet holds the four device buffers of a run. The buffers are owned
// by the ComputeContext that allocated them.
type BufferSet struct {
	cc *ComputeContext

	Weights      compute.Buffer
	Input        compute.Buffer
	Intermediate compute.Buffer
	Output       compute.Buffer

	width, height, taps int
}

// NewBufferSet allocates weights (read-only, taps*4 bytes), input
// (read-only), intermediate (read-write) and output (write-only), the
// latter three W*H*4 bytes each.
func NewBufferSet(cc *ComputeContext, width, height, taps int) (*BufferSet, error) {
	if width <= 0 || height <= 0 || taps <= 0 {
		return nil, stageError(ErrAllocation, "allocate buffers",
			fmt.Errorf("invalid shape %dx%d with %d taps", width, height, taps))
	}

	imageBytes := width * height * Channels
	bs := &BufferSet{cc: cc, width: width, height: height, taps: taps}

	var err error
	if bs.Weights, err = cc.Allocate("weights", compute.MemReadOnly, taps*4); err != nil {
		return nil, err
	}
	if bs.Input, err = cc.Allocate("input", compute.MemReadOnly, imageBytes); err != nil {
		return nil, err
	}
	if bs.Intermediate, err = cc.Allocate("intermediate", compute.MemReadWrite, imageBytes); err != nil {
		return nil, err
	}
	if bs.Output, err = cc.Allocate("output", compute.MemWriteOnly, imageBytes); err != nil {
		return nil, err
	}
	return bs, nil
}

// Upload writes the weights and input pixels, one blocking transfer each.
func (bs *BufferSet) Upload(weights []float32, pixels []byte) error {
	if len(weights) != bs.taps {
		return stageError(ErrTransfer, "write weights",
			fmt.Errorf("%w: %d weights for %d taps", compute.ErrSizeMismatch, len(weights), bs.taps))
	}
	if len(pixels) != bs.width*bs.height*Channels {
		return stageError(ErrTransfer, "write input",
			fmt.Errorf("%w: %d bytes for %dx%d", compute.ErrSizeMismatch, len(pixels), bs.width, bs.height))
	}

	if err := bs.cc.Write("weights", bs.Weights, compute.Float32Bytes(weights)); err != nil {
		return err
	}
	return bs.cc.Write("input", bs.Input, pixels)
}

// ReadOutput copies the output buffer into dst with one blocking transfer.
func (bs *BufferSet) ReadOutput(dst []byte) error {
	if len(dst) != bs.width*bs.height*Channels {
		return stageError(ErrTransfer, "read output",
			fmt.Errorf("%w: %d bytes for %dx%d", compute.ErrSizeMismatch, len(dst), bs.width, bs.height))
	}
	return bs.cc.Read("output", bs.Output, dst)
}
