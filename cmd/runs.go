package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/clblur/internal/store"
)

var (
	runsDataDir   string
	keepLast      int
	olderThanDays int
	onlyFailed    bool
	forceClean    bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage recorded blur runs",
	Long: `Manage run artifacts recorded with 'blur --data-dir': the run record,
the generated kernel source and the pipeline transition trace.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded runs",
	RunE:  runListRuns,
}

var showRunCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "Show a run record and its transition trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old runs",
	Long: `Delete recorded runs based on retention policy: keep the newest N,
drop runs older than N days, or drop failed runs.`,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(listRunsCmd, showRunCmd, cleanRunsCmd)

	runsCmd.PersistentFlags().StringVar(&runsDataDir, "data-dir", "./data", "Base directory for run storage")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVar(&onlyFailed, "failed", false, "Delete failed runs")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListRuns(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTARTED\tSTATUS\tSIZE\tDEVICE\tDURATION\tDISK")
	fmt.Fprintln(w, "------\t-------\t------\t----\t------\t--------\t----")

	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(runStore.RunDir(info.ID)); err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\t%s\t%.2fms\t%s\n",
			shortID(info.ID),
			info.StartedAt.Format("2006-01-02 15:04:05"),
			info.Status,
			info.Width, info.Height,
			info.Device,
			info.Duration,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal runs: %d\n", len(infos))
	return nil
}

func runShowRun(cmd *cobra.Command, args []string) error {
	runStore, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	run, err := runStore.LoadRun(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:       %s\n", run.ID)
	fmt.Fprintf(out, "Status:    %s\n", run.Status)
	if run.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", run.Error)
	}
	fmt.Fprintf(out, "Input:     %s (%dx%d)\n", run.InputPath, run.Width, run.Height)
	fmt.Fprintf(out, "Output:    %s\n", run.OutputPath)
	fmt.Fprintf(out, "Kernel:    R=%d sigma=%.3f local=%dx%d\n", run.KernelRadius, run.Sigma, run.LocalSize[0], run.LocalSize[1])
	fmt.Fprintf(out, "Device:    %s on %s (%s, %s)\n", run.Device.Name, run.Device.Platform, run.Device.Driver, run.Device.Type)
	if run.MaxDeviation >= 0 {
		fmt.Fprintf(out, "Deviation: %d\n", run.MaxDeviation)
	}

	entries, err := store.ReadTrace(runStore.BaseDir(), run.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	fmt.Fprintln(out, "\nTransitions:")
	for _, e := range entries {
		fmt.Fprintf(out, "  %-16s -> %-16s %8.3fms\n", e.From, e.To, e.ElapsedMS)
	}
	return nil
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 && !onlyFailed {
		return fmt.Errorf("must specify --keep-last, --older-than or --failed")
	}

	runStore, err := store.NewFSStore(runsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	infos, err := runStore.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	// Apply retention policy
	out := cmd.OutOrStdout()
	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, onlyFailed, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n", shortID(info.ID), info.Status, info.StartedAt.Format("2006-01-02 15:04:05"))
	}

	// Confirm unless --force
	if !forceClean && !confirm(cmd.InOrStdin(), out, "\nProceed with deletion? [y/N]: ") {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	// Delete runs
	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := runStore.DeleteRun(info.ID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted run", "run_id", info.ID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	answer := strings.TrimSpace(line)
	return answer == "y" || answer == "Y"
}

// selectRunsForDeletion applies the retention policy. A run matching
// several criteria is returned once.
func selectRunsForDeletion(infos []store.RunInfo, keepLast, olderThanDays int, failed bool, now time.Time) []store.RunInfo {
	var toDelete []store.RunInfo
	seen := map[string]bool{}
	add := func(info store.RunInfo) {
		if !seen[info.ID] {
			seen[info.ID] = true
			toDelete = append(toDelete, info)
		}
	}

	// Age filter
	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.StartedAt.Before(cutoff) {
				add(info)
			}
		}
	}

	// Status filter
	if failed {
		for _, info := range infos {
			if info.Status == store.StatusFailed {
				add(info)
			}
		}
	}

	// Count filter: everything past the newest keepLast
	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.RunInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].StartedAt.After(sorted[j].StartedAt)
		})
		for _, info := range sorted[keepLast:] {
			add(info)
		}
	}

	return toDelete
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
