package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clblur/internal/blur"
	"github.com/cwbudde/clblur/internal/imageio"
	"github.com/cwbudde/clblur/internal/opt"
)

var (
	srcPath    string
	targetPath string
	minSigma   float64
	maxSigma   float64
	iters      int
	popSize    int
	seed       int64
	calRadius  int
	calDevice  string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Estimate the sigma that turns one image into another",
	Long: `Searches for the Gaussian sigma whose blur of --src best matches --target
by mean squared error, using the mayfly optimizer.`,
	RunE: runCalibrate,
}

func init() {
	calibrateCmd.Flags().StringVar(&srcPath, "src", "", "Sharp source image (required)")
	calibrateCmd.Flags().StringVar(&targetPath, "target", "", "Blurred target image (required)")
	calibrateCmd.Flags().IntVar(&calRadius, "radius", blur.DefaultRadius, "Kernel radius R")
	calibrateCmd.Flags().Float64Var(&minSigma, "min-sigma", 0.3, "Lower sigma bound")
	calibrateCmd.Flags().Float64Var(&maxSigma, "max-sigma", 10, "Upper sigma bound")
	calibrateCmd.Flags().IntVar(&iters, "iters", 30, "Max iterations")
	calibrateCmd.Flags().IntVar(&popSize, "pop", 20, "Population size")
	calibrateCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	calibrateCmd.Flags().StringVar(&calDevice, "device", "auto", "Device class: auto, gpu, cpu")

	calibrateCmd.MarkFlagRequired("src")
	calibrateCmd.MarkFlagRequired("target")
	rootCmd.AddCommand(calibrateCmd)
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	src, width, height, err := imageio.Decode(srcPath)
	if err != nil {
		return err
	}
	target, tw, th, err := imageio.Decode(targetPath)
	if err != nil {
		return err
	}
	if tw != width || th != height {
		return fmt.Errorf("%w: %dx%d vs %dx%d", opt.ErrShapeMismatch, width, height, tw, th)
	}

	pref, err := blur.ParseDevicePreference(calDevice)
	if err != nil {
		return err
	}
	drivers := blur.DefaultDrivers()

	blurFn := func(pixels []byte, w, h, r int, s float64) ([]byte, error) {
		cfg := blur.DefaultConfig()
		cfg.Radius, cfg.Sigma, cfg.Device, cfg.Drivers = r, s, pref, drivers
		res, err := blur.Run(blur.Image{Pix: pixels, Width: w, Height: h}, cfg)
		if err != nil {
			return nil, err
		}
		return res.Image.Pix, nil
	}

	slog.Info("Starting calibration", "radius", calRadius, "min_sigma", minSigma, "max_sigma", maxSigma, "iters", iters)
	start := time.Now()
	result, err := opt.CalibrateSigma(src, target, width, height, calRadius, minSigma, maxSigma, opt.NewMayfly(iters, popSize, seed), blurFn)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "sigma=%.4f mse=%.4f (%d evaluations, %s)\n",
		result.Sigma, result.MSE, result.Evaluations, time.Since(start).Round(time.Millisecond))
	return nil
}
