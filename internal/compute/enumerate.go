package compute

import (
	"errors"
	"log/slog"
)

// ErrNoDevices indicates that no usable devices were found on any driver.
var ErrNoDevices = errors.New("no compute devices found")

// EnumeratePlatforms returns discovered platforms with their devices across
// all drivers, in driver order. Drivers that fail to enumerate are skipped
// and their errors joined into the returned error.
func EnumeratePlatforms(drivers ...Driver) ([]PlatformInfo, error) {
	var (
		out  []PlatformInfo
		errs []error
	)

	for _, drv := range drivers {
		platforms, err := drv.Platforms()
		if err != nil {
			slog.Debug("Driver enumeration failed", "driver", drv.Name(), "err", err)
			errs = append(errs, err)
			continue
		}
		for _, p := range platforms {
			info := p.Info()
			info.Driver = drv.Name()
			devices := p.Devices()
			info.Devices = make([]DeviceInfo, len(devices))
			for i, d := range devices {
				info.Devices[i] = d.Info()
			}
			out = append(out, info)
		}
	}

	return out, errors.Join(errs...)
}
