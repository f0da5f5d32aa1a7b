package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clblur/internal/blur"
	"github.com/cwbudde/clblur/internal/imageio"
	"github.com/cwbudde/clblur/internal/store"
)

var (
	inPath     string
	outPath    string
	radius     int
	sigma      float64
	deviceName string
	localSize  []int
	quality    int
	kernelOut  string
	dataDir    string
	verify     bool
)

var blurCmd = &cobra.Command{
	Use:   "blur",
	Short: "Blur an image",
	Long: `Blurs an image with a separable Gaussian kernel and writes the result.
The output format follows the --out extension (png, jpg, bmp, tif).`,
	RunE: runBlurCommand,
}

func init() {
	blurCmd.Flags().StringVar(&inPath, "in", "", "Input image path (required)")
	blurCmd.Flags().StringVar(&outPath, "out", "out.png", "Output image path")
	blurCmd.Flags().IntVar(&radius, "radius", blur.DefaultRadius, "Kernel radius R (2R+1 taps)")
	blurCmd.Flags().Float64Var(&sigma, "sigma", blur.DefaultSigma, "Gaussian standard deviation")
	blurCmd.Flags().StringVar(&deviceName, "device", "auto", "Device class: auto, gpu, cpu")
	blurCmd.Flags().IntSliceVar(&localSize, "local", []int{8, 4}, "Work-group size as X,Y")
	blurCmd.Flags().IntVar(&quality, "quality", imageio.DefaultQuality, "JPEG quality (1-100)")
	blurCmd.Flags().StringVar(&kernelOut, "kernel-out", "", "Also write the generated kernel source here")
	blurCmd.Flags().StringVar(&dataDir, "data-dir", "", "Record the run under this directory (empty = don't record)")
	blurCmd.Flags().BoolVar(&verify, "verify", false, "Compare against the host reference and report the max deviation")

	blurCmd.MarkFlagRequired("in")
	rootCmd.AddCommand(blurCmd)
}

func runBlurCommand(cmd *cobra.Command, args []string) error {
	// Build config from flags
	cfg, err := blurConfig()
	if err != nil {
		return err
	}

	// Load input image
	pixels, width, height, err := imageio.Decode(inPath)
	if err != nil {
		return err
	}
	img := blur.Image{Pix: pixels, Width: width, Height: height}
	slog.Info("Loaded input", "path", inPath, "width", width, "height", height)

	// Record the run when --data-dir is set
	rec := newRecorder(dataDir, inPath, cfg)
	defer rec.close()
	rec.attach(&cfg)

	// Run both passes on the selected device
	start := time.Now()
	res, err := blur.Run(img, cfg)
	elapsed := time.Since(start)
	if err != nil {
		rec.finish(nil, -1, err)
		var blurErr *blur.Error
		if errors.As(err, &blurErr) && blurErr.Diagnostic != "" {
			slog.Error("Kernel build log", "log", blurErr.Diagnostic)
		}
		return err
	}

	maxDev := -1
	if verify {
		ref := blur.ReferenceSeparable(img, blur.Weights(cfg.Radius, cfg.Sigma))
		maxDev = maxDeviation(res.Image.Pix, ref.Pix)
		slog.Info("Verified against host reference", "max_deviation", maxDev)
	}

	// Save output
	if err := imageio.Encode(outPath, res.Image.Pix, width, height, blur.Channels, quality); err != nil {
		rec.finish(res, maxDev, err)
		return err
	}
	rec.finish(res, maxDev, nil)

	// Report throughput
	mpps := float64(width*height) / elapsed.Seconds() / 1e6
	slog.Info("Blur complete",
		"device", res.Device.Name,
		"platform", res.Platform.Name,
		"elapsed", elapsed,
		"megapixels_per_second", fmt.Sprintf("%.1f", mpps),
	)

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%dx%d, R=%d, sigma=%.2f, %s on %s)\n",
		outPath, width, height, cfg.Radius, cfg.Sigma, elapsed.Round(time.Microsecond), res.Device.Name)
	if maxDev >= 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Max deviation from host reference: %d\n", maxDev)
	}
	return nil
}

func blurConfig() (blur.Config, error) {
	cfg := blur.DefaultConfig()
	cfg.Radius = radius
	cfg.Sigma = sigma

	pref, err := blur.ParseDevicePreference(deviceName)
	if err != nil {
		return cfg, err
	}
	cfg.Device = pref

	if len(localSize) != 2 {
		return cfg, fmt.Errorf("--local takes two values, got %v", localSize)
	}
	cfg.LocalSize = [2]int{localSize[0], localSize[1]}

	if kernelOut != "" {
		cfg.KernelDump = func(source string) error {
			return os.WriteFile(kernelOut, []byte(source), 0644)
		}
	}

	return cfg, cfg.Validate()
}

func maxDeviation(a, b []byte) int {
	worst := 0
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}
		worst = max(worst, d)
	}
	return worst
}

// recorder persists a run's record, kernel source and transition trace.
// Every store failure is logged and otherwise ignored.
type recorder struct {
	st    *store.FSStore
	run   *store.Run
	trace *store.TraceWriter
}

func newRecorder(dir, input string, cfg blur.Config) *recorder {
	if dir == "" {
		return &recorder{}
	}

	st, err := store.NewFSStore(dir)
	if err != nil {
		slog.Warn("Run recording disabled", "error", err)
		return &recorder{}
	}

	run := store.NewRun(input, cfg.Radius, cfg.Sigma)
	run.LocalSize = cfg.LocalSize
	run.Stages = map[string]float64{}

	tw, err := store.NewTraceWriter(st.BaseDir(), run.ID)
	if err != nil {
		slog.Warn("Trace recording disabled", "runID", run.ID, "error", err)
	}

	if err := st.SaveRun(run); err != nil {
		slog.Warn("Failed to save run record", "runID", run.ID, "error", err)
	}
	slog.Info("Recording run", "runID", run.ID, "dir", st.RunDir(run.ID))
	return &recorder{st: st, run: run, trace: tw}
}

// attach chains the recorder into cfg's kernel dump and observer hooks.
func (r *recorder) attach(cfg *blur.Config) {
	if r.st == nil {
		return
	}

	dump := cfg.KernelDump
	cfg.KernelDump = func(source string) error {
		if err := r.st.SaveKernel(r.run.ID, source); err != nil {
			slog.Warn("Failed to save kernel source", "runID", r.run.ID, "error", err)
		}
		if dump != nil {
			return dump(source)
		}
		return nil
	}

	observe := cfg.Observer
	cfg.Observer = func(t blur.Transition) {
		ms := float64(t.Elapsed.Microseconds()) / 1000
		r.run.Stages[t.To.String()] = ms
		if r.trace != nil {
			entry := store.TraceEntry{From: t.From.String(), To: t.To.String(), Timestamp: t.At, ElapsedMS: ms}
			if err := r.trace.Write(entry); err != nil {
				slog.Warn("Failed to write trace entry", "runID", r.run.ID, "error", err)
			}
		}
		if observe != nil {
			observe(t)
		}
	}
}

func (r *recorder) finish(res *blur.Result, maxDev int, runErr error) {
	if r.st == nil {
		return
	}

	if res != nil {
		r.run.Width, r.run.Height = res.Image.Width, res.Image.Height
		r.run.OutputPath = outPath
		r.run.Device = store.DeviceRecord{
			Driver:   res.Platform.Driver,
			Platform: res.Platform.Name,
			Name:     res.Device.Name,
			Type:     string(res.Device.Type),
		}
	}
	r.run.MaxDeviation = maxDev
	r.run.Finish(runErr)

	if err := r.st.SaveRun(r.run); err != nil {
		slog.Warn("Failed to save run record", "runID", r.run.ID, "error", err)
	}
}

func (r *recorder) close() {
	if r.trace == nil {
		return
	}
	if err := r.trace.Close(); err != nil {
		slog.Warn("Failed to close trace", "runID", r.run.ID, "error", err)
	}
}
