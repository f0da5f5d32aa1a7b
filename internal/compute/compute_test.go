package compute

import (
	"errors"
	"strings"
	"testing"
)

type fakeDevice struct{ info DeviceInfo }

func (d fakeDevice) Info() DeviceInfo             { return d.info }
func (d fakeDevice) NewContext() (Context, error) { return nil, errors.New("not supported") }

type fakePlatform struct {
	info    PlatformInfo
	devices []Device
}

func (p fakePlatform) Info() PlatformInfo { return p.info }
func (p fakePlatform) Devices() []Device  { return p.devices }

type fakeDriver struct {
	name      string
	platforms []Platform
	err       error
}

func (d fakeDriver) Name() string                   { return d.name }
func (d fakeDriver) Platforms() ([]Platform, error) { return d.platforms, d.err }

func TestEnumeratePlatforms(t *testing.T) {
	gpu := fakePlatform{
		info:    PlatformInfo{Name: "Vendor CL"},
		devices: []Device{fakeDevice{DeviceInfo{Name: "card0", Type: DeviceTypeGPU}}},
	}
	cpu := fakePlatform{
		info:    PlatformInfo{Name: "Host"},
		devices: []Device{fakeDevice{DeviceInfo{Name: "cpu0", Type: DeviceTypeCPU}}},
	}
	broken := errors.New("icd loader missing")

	infos, err := EnumeratePlatforms(
		fakeDriver{name: "broken", err: broken},
		fakeDriver{name: "opencl", platforms: []Platform{gpu}},
		fakeDriver{name: "host", platforms: []Platform{cpu}},
	)
	if !errors.Is(err, broken) {
		t.Errorf("err = %v, want joined driver error", err)
	}
	if len(infos) != 2 {
		t.Fatalf("got %d platforms, want 2", len(infos))
	}
	if infos[0].Driver != "opencl" || infos[1].Driver != "host" {
		t.Errorf("platform drivers = %q, %q", infos[0].Driver, infos[1].Driver)
	}
	if len(infos[0].Devices) != 1 || infos[0].Devices[0].Name != "card0" {
		t.Errorf("devices = %+v", infos[0].Devices)
	}

	if _, err := EnumeratePlatforms(fakeDriver{name: "empty"}); err != nil {
		t.Errorf("empty driver: err = %v, want nil", err)
	}
}

func TestFloat32BytesRoundTrip(t *testing.T) {
	in := []float32{0, 1, -2.5, 1e-7}
	out := BytesFloat32(Float32Bytes(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}

	if Float32Bytes(nil) != nil || BytesFloat32([]byte{1, 2}) != nil {
		t.Error("empty views should be nil")
	}
}

func TestMemFlagsString(t *testing.T) {
	tests := map[MemFlags]string{
		MemReadWrite: "read-write",
		MemReadOnly:  "read-only",
		MemWriteOnly: "write-only",
		MemFlags(9):  "MemFlags(9)",
	}
	for flags, want := range tests {
		if got := flags.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(flags), got, want)
		}
	}
}

func TestBuildErrorMessage(t *testing.T) {
	if got := (&BuildError{}).Error(); got != "program build failed" {
		t.Errorf("empty log: %q", got)
	}
	if got := (&BuildError{Log: "<source>:3: bad"}).Error(); !strings.HasSuffix(got, "<source>:3: bad") {
		t.Errorf("with log: %q", got)
	}
}
