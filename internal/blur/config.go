package blur

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cwbudde/clblur/internal/compute"
	"github.com/cwbudde/clblur/internal/compute/host"
	"github.com/cwbudde/clblur/internal/compute/opencl"
)

// DevicePreference restricts which device classes selection may pick.
type DevicePreference string

const (
	// DeviceAuto prefers a GPU and falls back to a CPU.
	DeviceAuto DevicePreference = "auto"
	// DeviceGPU only accepts GPUs.
	DeviceGPU DevicePreference = "gpu"
	// DeviceCPU only accepts CPUs.
	DeviceCPU DevicePreference = "cpu"
)

// ErrUnknownDevice is returned when a preference name is not recognized.
var ErrUnknownDevice = errors.New("unknown device preference")

// ParseDevicePreference maps user input to a canonical preference.
func ParseDevicePreference(name string) (DevicePreference, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return DeviceAuto, nil
	case "gpu":
		return DeviceGPU, nil
	case "cpu", "host":
		return DeviceCPU, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownDevice, name)
	}
}

// Config controls a blur run.
type Config struct {
	Radius int
	Sigma  float64

	// LocalSize is the work-group shape. The global index space is rounded
	// up to a multiple of it; out-of-image work-items do nothing.
	LocalSize [2]int

	Device DevicePreference

	// Drivers are searched in order during device selection. Nil means
	// DefaultDrivers().
	Drivers []compute.Driver

	// KernelDump receives the generated program text before it is built.
	// Its error is logged and otherwise ignored.
	KernelDump func(source string) error

	// Observer is called after every pipeline state transition.
	Observer func(Transition)
}

// DefaultConfig returns R=8, sigma=3.0, an 8x4 work-group and automatic
// device selection.
func DefaultConfig() Config {
	return Config{
		Radius:    DefaultRadius,
		Sigma:     DefaultSigma,
		LocalSize: [2]int{8, 4},
		Device:    DeviceAuto,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Radius < 0 {
		return fmt.Errorf("radius must be >= 0, got %d", c.Radius)
	}
	if !(c.Sigma > 0) {
		return fmt.Errorf("sigma must be > 0, got %v", c.Sigma)
	}
	if c.LocalSize[0] <= 0 || c.LocalSize[1] <= 0 {
		return fmt.Errorf("local work-group size must be positive, got %dx%d", c.LocalSize[0], c.LocalSize[1])
	}
	if _, err := ParseDevicePreference(string(c.Device)); err != nil {
		return err
	}
	return nil
}

// DefaultDrivers returns the OpenCL driver followed by the host driver, so
// any OpenCL device wins over the in-process one.
func DefaultDrivers() []compute.Driver {
	return []compute.Driver{
		opencl.NewDriver(),
		host.NewDriver(HostKernels()),
	}
}

func (c Config) drivers() []compute.Driver {
	if c.Drivers != nil {
		return c.Drivers
	}
	return DefaultDrivers()
}
