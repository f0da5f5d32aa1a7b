package blur

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/clblur/internal/compute"
)

// ComputeContext owns a device context, its in-order queue, and every
// buffer, program and kernel created through it. Close releases all of
// them in reverse creation order, exactly once.
type ComputeContext struct {
	ctx    compute.Context
	device compute.DeviceInfo
	owned  []func()
	closed bool
}

// NewComputeContext creates the context and queue on dev.
func NewComputeContext(dev compute.Device) (*ComputeContext, error) {
	ctx, err := dev.NewContext()
	if err != nil {
		return nil, stageError(ErrDeviceUnavailable, "create context", err)
	}
	return &ComputeContext{ctx: ctx, device: ctx.Device()}, nil
}

// Device returns the context's device description.
func (c *ComputeContext) Device() compute.DeviceInfo { return c.device }

func (c *ComputeContext) own(release func()) {
	c.owned = append(c.owned, release)
}

// Allocate creates a device buffer owned by the context.
func (c *ComputeContext) Allocate(name string, flags compute.MemFlags, size int) (compute.Buffer, error) {
	if c.closed {
		return nil, stageError(ErrAllocation, "allocate "+name, compute.ErrReleased)
	}
	buf, err := c.ctx.CreateBuffer(flags, size)
	if err != nil {
		return nil, stageError(ErrAllocation, "allocate "+name, err)
	}
	c.own(buf.Release)
	slog.Debug("Allocated device buffer", "buffer", name, "bytes", size, "access", flags)
	return buf, nil
}

// Write copies data into buf and returns once it is resident on the device.
func (c *ComputeContext) Write(name string, buf compute.Buffer, data []byte) error {
	if c.closed {
		return stageError(ErrTransfer, "write "+name, compute.ErrReleased)
	}
	if err := c.ctx.Queue().WriteBuffer(buf, data); err != nil {
		return stageError(ErrTransfer, "write "+name, err)
	}
	return nil
}

// Read copies buf into data and returns once the copy has completed.
func (c *ComputeContext) Read(name string, buf compute.Buffer, data []byte) error {
	if c.closed {
		return stageError(ErrTransfer, "read "+name, compute.ErrReleased)
	}
	if err := c.ctx.Queue().ReadBuffer(buf, data); err != nil {
		return stageError(ErrTransfer, "read "+name, err)
	}
	return nil
}

// Build compiles source. Compiler diagnostics are attached to the error.
func (c *ComputeContext) Build(source string) (compute.Program, error) {
	if c.closed {
		return nil, stageError(ErrCompile, "build program", compute.ErrReleased)
	}
	prog, err := c.ctx.CreateProgram(source)
	if err != nil {
		e := stageError(ErrCompile, "build program", err)
		var buildErr *compute.BuildError
		if errors.As(err, &buildErr) {
			e.Diagnostic = buildErr.Log
		}
		return nil, e
	}
	c.own(prog.Release)
	return prog, nil
}

// CreateKernel instantiates an entry point of prog, owned by the context.
func (c *ComputeContext) CreateKernel(prog compute.Program, name string) (compute.Kernel, error) {
	k, err := prog.CreateKernel(name)
	if err != nil {
		return nil, stageError(ErrCompile, "create kernel", err)
	}
	c.own(k.Release)
	return k, nil
}

// Queue returns the context's in-order queue.
func (c *ComputeContext) Queue() compute.Queue { return c.ctx.Queue() }

// Close waits for outstanding work, then releases every owned object and
// the context. It is safe to call more than once.
func (c *ComputeContext) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	finishErr := c.ctx.Queue().Finish()
	for i := len(c.owned) - 1; i >= 0; i-- {
		c.owned[i]()
	}
	c.owned = nil
	c.ctx.Release()

	if finishErr != nil {
		return fmt.Errorf("drain queue on close: %w", finishErr)
	}
	return nil
}
