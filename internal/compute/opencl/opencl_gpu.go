//go:build gpu

package opencl

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"

	"github.com/cwbudde/clblur/internal/compute"
)

// Available reports whether the OpenCL driver was compiled in.
const Available = true

// Driver enumerates OpenCL platforms through the system ICD loader.
type Driver struct{}

// NewDriver returns the OpenCL driver.
func NewDriver() *Driver { return &Driver{} }

// Name implements compute.Driver.
func (d *Driver) Name() string { return DriverName }

// Platforms implements compute.Driver.
func (d *Driver) Platforms() ([]compute.Platform, error) {
	clPlatforms, err := cl.GetPlatforms()
	if err != nil {
		return nil, fmt.Errorf("clGetPlatformIDs: %w", err)
	}

	out := make([]compute.Platform, 0, len(clPlatforms))
	for _, p := range clPlatforms {
		plat := &platform{
			id: p,
			info: compute.PlatformInfo{
				Driver:  DriverName,
				Name:    p.Name(),
				Vendor:  p.Vendor(),
				Version: p.Version(),
			},
		}

		devices, err := p.GetDevices(cl.DeviceTypeAll)
		if err != nil && !errors.Is(err, cl.ErrDeviceNotFound) {
			return nil, fmt.Errorf("clGetDeviceIDs(%s): %w", plat.info.Name, err)
		}
		for _, d := range devices {
			plat.devices = append(plat.devices, &device{id: d, info: buildDeviceInfo(d)})
		}
		out = append(out, plat)
	}
	return out, nil
}

type platform struct {
	id      *cl.Platform
	info    compute.PlatformInfo
	devices []compute.Device
}

func (p *platform) Info() compute.PlatformInfo { return p.info }

func (p *platform) Devices() []compute.Device { return p.devices }

type device struct {
	id   *cl.Device
	info compute.DeviceInfo
}

func buildDeviceInfo(d *cl.Device) compute.DeviceInfo {
	return compute.DeviceInfo{
		Name:            strings.TrimSpace(d.Name()),
		Vendor:          d.Vendor(),
		Version:         d.Version(),
		Type:            mapDeviceType(d.Type()),
		MaxComputeUnits: uint32(d.MaxComputeUnits()),
		GlobalMemSize:   d.GlobalMemSize(),
		Extensions:      strings.Fields(d.Extensions()),
	}
}

func mapDeviceType(dt cl.DeviceType) compute.DeviceType {
	switch {
	case dt&cl.DeviceTypeGPU != 0:
		return compute.DeviceTypeGPU
	case dt&cl.DeviceTypeCPU != 0:
		return compute.DeviceTypeCPU
	case dt&cl.DeviceTypeAccelerator != 0:
		return compute.DeviceTypeAccelerator
	case dt&cl.DeviceTypeDefault != 0:
		return compute.DeviceTypeDefault
	default:
		return compute.DeviceTypeUnknown
	}
}

func (d *device) Info() compute.DeviceInfo { return d.info }

func (d *device) NewContext() (compute.Context, error) {
	ctx, err := cl.CreateContext([]*cl.Device{d.id})
	if err != nil {
		return nil, fmt.Errorf("clCreateContext: %w", err)
	}

	// Properties 0 selects an in-order queue.
	q, err := ctx.CreateCommandQueue(d.id, 0)
	if err != nil {
		ctx.Release()
		return nil, fmt.Errorf("clCreateCommandQueue: %w", err)
	}

	return &clContext{dev: d, ctx: ctx, queue: &clQueue{q: q}}, nil
}

type clContext struct {
	dev   *device
	ctx   *cl.Context
	queue *clQueue
}

func (c *clContext) Device() compute.DeviceInfo { return c.dev.info }

func (c *clContext) Queue() compute.Queue { return c.queue }

func (c *clContext) CreateBuffer(flags compute.MemFlags, size int) (compute.Buffer, error) {
	mem, err := c.ctx.CreateEmptyBuffer(memFlag(flags), size)
	if err != nil {
		return nil, fmt.Errorf("clCreateBuffer(%s, %d): %w", flags, size, mapAllocErr(err))
	}
	return &clBuffer{mem: mem, flags: flags, size: size}, nil
}

func (c *clContext) CreateProgram(source string) (compute.Program, error) {
	prog, err := c.ctx.CreateProgramWithSource([]string{source})
	if err != nil {
		return nil, fmt.Errorf("clCreateProgramWithSource: %w", err)
	}

	if err := prog.BuildProgram([]*cl.Device{c.dev.id}, ""); err != nil {
		prog.Release()
		var buildErr cl.BuildError
		if errors.As(err, &buildErr) {
			return nil, &compute.BuildError{Log: strings.TrimSpace(string(buildErr))}
		}
		return nil, &compute.BuildError{Log: err.Error()}
	}

	return &clProgram{prog: prog}, nil
}

func (c *clContext) Release() {
	if c.queue != nil && c.queue.q != nil {
		c.queue.q.Release()
		c.queue.q = nil
	}
	if c.ctx != nil {
		c.ctx.Release()
		c.ctx = nil
	}
}

func memFlag(flags compute.MemFlags) cl.MemFlag {
	switch flags {
	case compute.MemReadOnly:
		return cl.MemReadOnly
	case compute.MemWriteOnly:
		return cl.MemWriteOnly
	default:
		return cl.MemReadWrite
	}
}

func mapAllocErr(err error) error {
	switch {
	case errors.Is(err, cl.ErrMemObjectAllocationFailure),
		errors.Is(err, cl.ErrOutOfResources),
		errors.Is(err, cl.ErrOutOfHostMemory):
		return fmt.Errorf("%w: %v", compute.ErrOutOfMemory, err)
	default:
		return err
	}
}

type clBuffer struct {
	mem   *cl.MemObject
	flags compute.MemFlags
	size  int
}

func (b *clBuffer) Size() int { return b.size }

func (b *clBuffer) Flags() compute.MemFlags { return b.flags }

func (b *clBuffer) Release() {
	if b.mem != nil {
		b.mem.Release()
		b.mem = nil
	}
}

type clProgram struct {
	prog *cl.Program
}

func (p *clProgram) CreateKernel(name string) (compute.Kernel, error) {
	k, err := p.prog.CreateKernel(name)
	if err != nil {
		return nil, fmt.Errorf("clCreateKernel(%s): %w", name, err)
	}
	n, err := k.NumArgs()
	if err != nil {
		k.Release()
		return nil, fmt.Errorf("clGetKernelInfo(%s): %w", name, err)
	}
	return &clKernel{k: k, name: name, numArgs: n}, nil
}

func (p *clProgram) Release() {
	if p.prog != nil {
		p.prog.Release()
		p.prog = nil
	}
}

type clKernel struct {
	k       *cl.Kernel
	name    string
	numArgs int
}

func (k *clKernel) Name() string { return k.name }

func (k *clKernel) NumArgs() int { return k.numArgs }

func (k *clKernel) SetArg(index int, value any) error {
	var err error
	switch v := value.(type) {
	case *clBuffer:
		if v.mem == nil {
			return compute.ErrReleased
		}
		err = k.k.SetArgBuffer(index, v.mem)
	case int32:
		err = k.k.SetArgInt32(index, v)
	case float32:
		err = k.k.SetArgFloat32(index, v)
	default:
		return fmt.Errorf("%w: unsupported type %T", compute.ErrInvalidArg, value)
	}
	if err != nil {
		return fmt.Errorf("clSetKernelArg(%d): %w", index, err)
	}
	return nil
}

func (k *clKernel) Release() {
	if k.k != nil {
		k.k.Release()
		k.k = nil
	}
}

type clQueue struct {
	q *cl.CommandQueue
}

func (q *clQueue) WriteBuffer(buf compute.Buffer, data []byte) error {
	b, ok := buf.(*clBuffer)
	if !ok || b.mem == nil {
		return fmt.Errorf("%w: not a live OpenCL buffer", compute.ErrInvalidArg)
	}
	if len(data) > b.size {
		return fmt.Errorf("%w: %d bytes into %d-byte buffer", compute.ErrSizeMismatch, len(data), b.size)
	}
	if len(data) == 0 {
		return nil
	}
	ev, err := q.q.EnqueueWriteBuffer(b.mem, true, 0, len(data), unsafe.Pointer(&data[0]), nil)
	if err != nil {
		return fmt.Errorf("clEnqueueWriteBuffer: %w", err)
	}
	ev.Release()
	return nil
}

func (q *clQueue) ReadBuffer(buf compute.Buffer, data []byte) error {
	b, ok := buf.(*clBuffer)
	if !ok || b.mem == nil {
		return fmt.Errorf("%w: not a live OpenCL buffer", compute.ErrInvalidArg)
	}
	if len(data) > b.size {
		return fmt.Errorf("%w: %d bytes from %d-byte buffer", compute.ErrSizeMismatch, len(data), b.size)
	}
	if len(data) == 0 {
		return nil
	}
	ev, err := q.q.EnqueueReadBuffer(b.mem, true, 0, len(data), unsafe.Pointer(&data[0]), nil)
	if err != nil {
		return fmt.Errorf("clEnqueueReadBuffer: %w", err)
	}
	ev.Release()
	return nil
}

func (q *clQueue) EnqueueNDRange(kernel compute.Kernel, global, local []int) error {
	k, ok := kernel.(*clKernel)
	if !ok || k.k == nil {
		return fmt.Errorf("%w: not a live OpenCL kernel", compute.ErrInvalidArg)
	}
	ev, err := q.q.EnqueueNDRangeKernel(k.k, nil, global, local, nil)
	if err != nil {
		if errors.Is(err, cl.ErrInvalidWorkGroupSize) {
			return fmt.Errorf("clEnqueueNDRangeKernel: %w: %v", compute.ErrInvalidWorkGroup, err)
		}
		return fmt.Errorf("clEnqueueNDRangeKernel: %w", err)
	}
	ev.Release()
	return nil
}

func (q *clQueue) Finish() error {
	if err := q.q.Finish(); err != nil {
		return fmt.Errorf("clFinish: %w", err)
	}
	return nil
}
