package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clblur/internal/blur"
)

var (
	kernelRadius  int
	kernelOutPath string
)

var kernelCmd = &cobra.Command{
	Use:   "kernel",
	Short: "Print the generated kernel source",
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := blur.KernelSource(kernelRadius)
		if err != nil {
			return err
		}
		if kernelOutPath != "" {
			return os.WriteFile(kernelOutPath, []byte(source), 0644)
		}
		fmt.Fprint(cmd.OutOrStdout(), source)
		return nil
	},
}

func init() {
	kernelCmd.Flags().IntVar(&kernelRadius, "radius", blur.DefaultRadius, "Kernel radius R")
	kernelCmd.Flags().StringVar(&kernelOutPath, "out", "", "Write to this file instead of stdout")
	rootCmd.AddCommand(kernelCmd)
}
