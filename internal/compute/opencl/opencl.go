// Package opencl exposes OpenCL platforms and devices as a compute.Driver.
// The driver is only functional in binaries built with the "gpu" tag.
package opencl

// DriverName identifies the OpenCL driver.
const DriverName = "opencl"
