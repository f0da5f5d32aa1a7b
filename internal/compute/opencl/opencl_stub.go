//go:build !gpu

package opencl

import (
	"errors"

	"github.com/cwbudde/clblur/internal/compute"
)

// Available reports whether the OpenCL driver was compiled in.
const Available = false

// ErrNotBuilt indicates the binary was built without OpenCL support.
var ErrNotBuilt = errors.New("opencl support requires building with '-tags gpu'")

// Driver is a placeholder when OpenCL support is not compiled.
type Driver struct{}

// NewDriver returns the placeholder driver.
func NewDriver() *Driver { return &Driver{} }

// Name implements compute.Driver.
func (d *Driver) Name() string { return DriverName }

// Platforms returns ErrNotBuilt.
func (d *Driver) Platforms() ([]compute.Platform, error) {
	return nil, ErrNotBuilt
}
