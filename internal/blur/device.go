package blur

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/cwbudde/clblur/internal/compute"
)

// Selection is the device picked for a run.
type Selection struct {
	Device   compute.Device
	Info     compute.DeviceInfo
	Platform compute.PlatformInfo
}

// SelectDevice enumerates drivers in order and picks the first GPU, then
// the first CPU, subject to pref. Failure is always ErrDeviceUnavailable.
func SelectDevice(pref DevicePreference, drivers ...compute.Driver) (*Selection, error) {
	pref, err := ParseDevicePreference(string(pref))
	if err != nil {
		return nil, stageError(ErrDeviceUnavailable, "select device", err)
	}

	var (
		candidates []Selection
		enumErrs   []error
	)
	for _, drv := range drivers {
		platforms, err := drv.Platforms()
		if err != nil {
			slog.Debug("Skipping compute driver", "driver", drv.Name(), "reason", err)
			enumErrs = append(enumErrs, fmt.Errorf("%s: %w", drv.Name(), err))
			continue
		}
		for _, p := range platforms {
			pinfo := p.Info()
			pinfo.Driver = drv.Name()
			for _, d := range p.Devices() {
				candidates = append(candidates, Selection{Device: d, Info: d.Info(), Platform: pinfo})
			}
		}
	}

	var classes []compute.DeviceType
	switch pref {
	case DeviceGPU:
		classes = []compute.DeviceType{compute.DeviceTypeGPU}
	case DeviceCPU:
		classes = []compute.DeviceType{compute.DeviceTypeCPU}
	default:
		classes = []compute.DeviceType{compute.DeviceTypeGPU, compute.DeviceTypeCPU}
	}

	for _, class := range classes {
		for i := range candidates {
			if candidates[i].Info.Type == class {
				sel := candidates[i]
				slog.Debug("Selected compute device",
					"driver", sel.Platform.Driver,
					"platform", sel.Platform.Name,
					"device", sel.Info.Name,
					"type", sel.Info.Type,
				)
				return &sel, nil
			}
		}
	}

	cause := compute.ErrNoDevices
	if len(enumErrs) > 0 {
		cause = errors.Join(append([]error{compute.ErrNoDevices}, enumErrs...)...)
	}
	return nil, stageError(ErrDeviceUnavailable, "select device", fmt.Errorf("preference %s: %w", pref, cause))
}
