// Package compute defines the device-neutral dispatch model: drivers expose
// platforms, platforms expose devices, and a device context owns buffers,
// programs and a single in-order command queue.
package compute

// Driver enumerates the platforms of one compute API.
type Driver interface {
	// Name identifies the driver ("opencl", "host").
	Name() string

	// Platforms returns every platform the driver can see. A driver that is
	// present but has no platforms returns an empty slice and no error.
	Platforms() ([]Platform, error)
}

// Platform groups the devices of one vendor implementation.
type Platform interface {
	Info() PlatformInfo
	Devices() []Device
}

// Device is an enumerated compute device. It holds no resources until a
// context is created on it.
type Device interface {
	Info() DeviceInfo

	// NewContext creates a context and one in-order command queue bound to
	// this device.
	NewContext() (Context, error)
}

// Context is the execution scope for buffers, programs and the queue.
type Context interface {
	Device() DeviceInfo

	// CreateBuffer allocates size bytes of device memory with the given access mode.
	CreateBuffer(flags MemFlags, size int) (Buffer, error)

	// CreateProgram compiles source for the context's device. Compilation
	// failures are returned as *BuildError.
	CreateProgram(source string) (Program, error)

	Queue() Queue

	// Release frees the queue and the context. Objects created from the
	// context must be released first.
	Release()
}

// Buffer is a region of device memory.
type Buffer interface {
	Size() int
	Flags() MemFlags
	Release()
}

// Program is a compiled kernel program.
type Program interface {
	CreateKernel(name string) (Kernel, error)
	Release()
}

// Kernel is an invocable entry point with positional arguments.
// Supported argument values are Buffer, int32 and float32.
type Kernel interface {
	Name() string
	NumArgs() int
	SetArg(index int, value any) error
	Release()
}

// Queue is an in-order command queue.
type Queue interface {
	// WriteBuffer copies data to buf and returns once the data is resident.
	WriteBuffer(buf Buffer, data []byte) error

	// ReadBuffer copies buf into data and returns once the copy is complete.
	ReadBuffer(buf Buffer, data []byte) error

	// EnqueueNDRange submits kernel over the global index space split into
	// work-groups of the local shape. It returns after submission, not
	// completion.
	EnqueueNDRange(kernel Kernel, global, local []int) error

	// Finish blocks until every submitted command has completed and reports
	// the first execution error since the previous Finish.
	Finish() error
}
