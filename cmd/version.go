package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clblur/internal/compute/opencl"
)

var version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "clblur version %s (%s, opencl=%t)\n", version, runtime.Version(), opencl.Available)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
