package main

import (
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clblur/internal/blur"
	"github.com/cwbudde/clblur/internal/compute"
)

var devicesPref string

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List compute platforms and devices",
	Long:  `Lists every platform and device of the compiled-in drivers and marks the one --device would select.`,
	RunE:  runDevices,
}

func init() {
	devicesCmd.Flags().StringVar(&devicesPref, "device", "auto", "Device class used to mark the selection: auto, gpu, cpu")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	drivers := blur.DefaultDrivers()

	platforms, err := compute.EnumeratePlatforms(drivers...)
	if err != nil {
		slog.Warn("Some drivers could not be enumerated", "error", err)
	}

	pref, err := blur.ParseDevicePreference(devicesPref)
	if err != nil {
		return err
	}
	var selected string
	if sel, err := blur.SelectDevice(pref, drivers...); err == nil {
		selected = sel.Platform.Driver + "/" + sel.Info.Name
	}

	out := cmd.OutOrStdout()
	if len(platforms) == 0 {
		fmt.Fprintln(out, "No compute platforms found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tDRIVER\tPLATFORM\tDEVICE\tTYPE\tUNITS\tMEMORY\tEXTENSIONS")
	fmt.Fprintln(w, "\t------\t--------\t------\t----\t-----\t------\t----------")
	for _, p := range platforms {
		for _, d := range p.Devices {
			mark := ""
			if p.Driver+"/"+d.Name == selected {
				mark = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
				mark,
				p.Driver,
				p.Name,
				d.Name,
				d.Type,
				d.MaxComputeUnits,
				formatBytes(d.GlobalMemSize),
				summarizeExtensions(d.Extensions, 4),
			)
		}
	}
	w.Flush()

	if selected == "" {
		fmt.Fprintf(out, "\nNo device matches --device=%s.\n", pref)
	}
	return nil
}

func summarizeExtensions(ext []string, limit int) string {
	if len(ext) <= limit {
		return strings.Join(ext, " ")
	}
	return fmt.Sprintf("%s (+%d)", strings.Join(ext[:limit], " "), len(ext)-limit)
}
