// Package host implements an in-process compute device that executes
// registered Go kernel implementations over an N-dimensional index space.
// It is always available and reports itself as a CPU device.
package host

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sys/cpu"

	"github.com/cwbudde/clblur/internal/compute"
)

const (
	// DriverName identifies the host driver.
	DriverName = "host"

	defaultMemoryLimit  = 4 << 30
	maxWorkGroupSize    = 1024
	maxWorkItemDims     = 3
	defaultPlatformName = "Go Host Compute"
)

// Option configures the host driver.
type Option func(*options)

type options struct {
	memoryLimit int64
	workers     int
	outOfOrder  bool
	delay       func(seq int) time.Duration
}

// WithMemoryLimit caps the total bytes of live buffers per context.
func WithMemoryLimit(limit int64) Option {
	return func(o *options) { o.memoryLimit = limit }
}

// WithWorkers sets how many goroutines execute work-groups. Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithOutOfOrder makes queues start each command as soon as it is submitted
// instead of after the previous one. Only Finish orders commands.
func WithOutOfOrder() Option {
	return func(o *options) { o.outOfOrder = true }
}

// WithDispatchDelay stalls the seq-th kernel dispatch (1-based) of each
// queue by the returned duration before it runs.
func WithDispatchDelay(fn func(seq int) time.Duration) Option {
	return func(o *options) { o.delay = fn }
}

// Driver is the host compute driver.
type Driver struct {
	kernels map[string]KernelDef
	opts    options

	liveContexts atomic.Int64
	liveBuffers  atomic.Int64
}

// NewDriver creates a host driver able to compile programs whose entry
// points are among kernels.
func NewDriver(kernels []KernelDef, opts ...Option) *Driver {
	d := &Driver{
		kernels: make(map[string]KernelDef, len(kernels)),
		opts:    options{memoryLimit: defaultMemoryLimit},
	}
	for _, k := range kernels {
		d.kernels[k.Name] = k
	}
	for _, opt := range opts {
		opt(&d.opts)
	}
	if d.opts.workers <= 0 {
		d.opts.workers = runtime.GOMAXPROCS(0)
	}
	return d
}

// Name implements compute.Driver.
func (d *Driver) Name() string { return DriverName }

// Platforms implements compute.Driver. The host driver always exposes
// exactly one platform with one CPU device.
func (d *Driver) Platforms() ([]compute.Platform, error) {
	return []compute.Platform{&platform{dev: &device{drv: d}}}, nil
}

type platform struct {
	dev *device
}

func (p *platform) Info() compute.PlatformInfo {
	return compute.PlatformInfo{
		Driver:  DriverName,
		Name:    defaultPlatformName,
		Vendor:  "Go",
		Version: runtime.Version(),
	}
}

func (p *platform) Devices() []compute.Device {
	return []compute.Device{p.dev}
}

type device struct {
	drv *Driver
}

func (d *device) Info() compute.DeviceInfo {
	return compute.DeviceInfo{
		Name:            fmt.Sprintf("%s/%s host (%d workers)", runtime.GOOS, runtime.GOARCH, d.drv.opts.workers),
		Vendor:          "Go",
		Version:         runtime.Version(),
		Type:            compute.DeviceTypeCPU,
		MaxComputeUnits: uint32(d.drv.opts.workers),
		GlobalMemSize:   d.drv.opts.memoryLimit,
		Extensions:      cpuExtensions(),
	}
}

func (d *device) NewContext() (compute.Context, error) {
	return newContext(d), nil
}

// Live reports the contexts and buffers created by this driver that have
// not been released yet.
func (d *Driver) Live() (contexts, buffers int64) {
	return d.liveContexts.Load(), d.liveBuffers.Load()
}

func cpuExtensions() []string {
	var ext []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE41 {
			ext = append(ext, "sse4.1")
		}
		if cpu.X86.HasAVX {
			ext = append(ext, "avx")
		}
		if cpu.X86.HasAVX2 {
			ext = append(ext, "avx2")
		}
		if cpu.X86.HasFMA {
			ext = append(ext, "fma")
		}
		if cpu.X86.HasAVX512F {
			ext = append(ext, "avx512f")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			ext = append(ext, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			ext = append(ext, "fphp")
		}
		if cpu.ARM64.HasSVE {
			ext = append(ext, "sve")
		}
	}
	return ext
}
