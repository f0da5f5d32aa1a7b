package compute

import (
	"errors"
	"fmt"
	"unsafe"
)

// DeviceType describes the class of a compute device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeUnknown     DeviceType = "Unknown"
)

// DeviceInfo captures metadata about a compute device.
type DeviceInfo struct {
	Name            string
	Vendor          string
	Version         string
	Type            DeviceType
	MaxComputeUnits uint32
	GlobalMemSize   int64
	Extensions      []string
}

// PlatformInfo captures metadata about a platform and its devices.
type PlatformInfo struct {
	Driver  string
	Name    string
	Vendor  string
	Version string
	Devices []DeviceInfo
}

// MemFlags is the access mode a buffer is allocated with, as seen by kernels.
type MemFlags int

const (
	MemReadWrite MemFlags = iota
	MemReadOnly
	MemWriteOnly
)

func (m MemFlags) String() string {
	switch m {
	case MemReadOnly:
		return "read-only"
	case MemWriteOnly:
		return "write-only"
	case MemReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("MemFlags(%d)", int(m))
	}
}

var (
	// ErrOutOfMemory indicates the device could not back an allocation.
	ErrOutOfMemory = errors.New("device out of memory")
	// ErrInvalidWorkGroup indicates a global size that is not a multiple of the local size.
	ErrInvalidWorkGroup = errors.New("invalid work-group size")
	// ErrInvalidArg indicates a kernel argument of the wrong kind, access mode or index.
	ErrInvalidArg = errors.New("invalid kernel argument")
	// ErrReleased is returned when an object is used after release.
	ErrReleased = errors.New("object already released")
	// ErrSizeMismatch indicates a host range that does not match the buffer size.
	ErrSizeMismatch = errors.New("host range does not match buffer size")
)

// BuildError reports a failed program build together with the compiler log.
type BuildError struct {
	Log string
}

func (e *BuildError) Error() string {
	if e.Log == "" {
		return "program build failed"
	}
	return "program build failed: " + e.Log
}

// Float32Bytes views a float32 slice as raw bytes in host byte order.
func Float32Bytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&v[0])), len(v)*4)
}

// BytesFloat32 views raw bytes in host byte order as float32 values.
// Trailing bytes that do not form a full value are ignored.
func BytesFloat32(b []byte) []float32 {
	if len(b) < 4 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}
