package host

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/clblur/internal/compute"
)

type hostContext struct {
	dev       *device
	queue     *queue
	allocated atomic.Int64
	released  atomic.Bool
}

func newContext(dev *device) *hostContext {
	c := &hostContext{dev: dev}
	c.queue = newQueue(c, dev.drv.opts)
	dev.drv.liveContexts.Add(1)
	return c
}

func (c *hostContext) Device() compute.DeviceInfo { return c.dev.Info() }

func (c *hostContext) Queue() compute.Queue { return c.queue }

func (c *hostContext) CreateBuffer(flags compute.MemFlags, size int) (compute.Buffer, error) {
	if c.released.Load() {
		return nil, compute.ErrReleased
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: buffer size %d", compute.ErrInvalidArg, size)
	}

	limit := c.dev.drv.opts.memoryLimit
	if total := c.allocated.Add(int64(size)); limit > 0 && total > limit {
		c.allocated.Add(-int64(size))
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d in use", compute.ErrOutOfMemory, size, total-int64(size), limit)
	}

	c.dev.drv.liveBuffers.Add(1)
	return &buffer{ctx: c, id: bufferIDs.Add(1), flags: flags, data: make([]byte, size)}, nil
}

func (c *hostContext) CreateProgram(source string) (compute.Program, error) {
	if c.released.Load() {
		return nil, compute.ErrReleased
	}
	return compile(c, source)
}

func (c *hostContext) Release() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	c.queue.close()
	c.dev.drv.liveContexts.Add(-1)
}

var bufferIDs atomic.Uint64

// buffer is host memory. mu is held for the duration of every command that
// touches the data, shared for readers and exclusive for writers.
type buffer struct {
	ctx      *hostContext
	id       uint64
	flags    compute.MemFlags
	mu       sync.RWMutex
	data     []byte
	released atomic.Bool
}

func (b *buffer) Size() int { return len(b.data) }

func (b *buffer) Flags() compute.MemFlags { return b.flags }

func (b *buffer) Release() {
	if !b.released.CompareAndSwap(false, true) {
		return
	}
	b.ctx.allocated.Add(-int64(len(b.data)))
	b.ctx.dev.drv.liveBuffers.Add(-1)
}

// bytes returns the backing memory for kernel execution.
func (b *buffer) bytes() ([]byte, error) {
	if b.released.Load() {
		return nil, compute.ErrReleased
	}
	return b.data, nil
}
