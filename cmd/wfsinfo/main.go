// Command wfsinfo is a forensic reader for the WFS DVR filesystem: it
// parses a disk image's header and superblock, classifies the Index
// Area, reconstructs video fragment chains across both passes, and
// reports or exports what it finds.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/blang/semver"
	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/wfsinfo/wfsinfo/internal/blockio"
	"github.com/wfsinfo/wfsinfo/internal/report"
	"github.com/wfsinfo/wfsinfo/internal/settings"
	"github.com/wfsinfo/wfsinfo/pkg/wfsinfo"
)

var version = "dev"

const repoSlug = "wfsinfo/wfsinfo"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	loadSettings := func() (settings.Settings, error) {
		if configPath == "" {
			return settings.Default(), nil
		}
		return settings.Load(configPath)
	}

	root := &cobra.Command{
		Use:           "wfsinfo [image]",
		Short:         "Forensic reader and fragment extractor for WFS DVR images",
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		// With no subcommand, a bare image path argument is the default
		// behavior: render the full report to stdout.
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			sess, err := wfsinfo.Open(args[0], wfsinfoSettings(cfg))
			if err != nil {
				return err
			}
			defer sess.Close()
			_, err = sess.WriteReport("-", report.Options{DumpAnomalies: cfg.DumpAnomalies})
			return err
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML settings file")

	root.AddCommand(
		newReportCmd(loadSettings),
		newListCmd(loadSettings),
		newExportCmd(loadSettings),
		newVersionCmd(),
		newSelfUpdateCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the wfsinfo version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func newReportCmd(loadSettings func() (settings.Settings, error)) *cobra.Command {
	var out string
	var dumpAnomalies bool
	var groupByCamera bool

	cmd := &cobra.Command{
		Use:   "report <image>",
		Short: "Render the full geometry, classification, chain, and anomaly report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			if dumpAnomalies {
				cfg.DumpAnomalies = true
			}

			sess, err := wfsinfo.Open(args[0], wfsinfoSettings(cfg))
			if err != nil {
				return err
			}
			defer sess.Close()

			target := out
			if target == "" {
				target = "-"
			}
			_, err = sess.WriteReport(target, report.Options{
				DumpAnomalies: cfg.DumpAnomalies,
				GroupByCamera: groupByCamera,
			})
			return err
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "report file path (default: stdout)")
	cmd.Flags().BoolVar(&dumpAnomalies, "dump-anomalies", false, "include full hex dumps of rejected slots")
	cmd.Flags().BoolVar(&groupByCamera, "group-by-camera", false, "also render chains grouped by camera number")
	return cmd
}

func newListCmd(loadSettings func() (settings.Settings, error)) *cobra.Command {
	var groupByOrder bool

	cmd := &cobra.Command{
		Use:   "list <image>",
		Short: "Print a one-line summary per reconstructed chain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			sess, err := wfsinfo.Open(args[0], wfsinfoSettings(cfg))
			if err != nil {
				return err
			}
			defer sess.Close()

			if groupByOrder {
				return listByRecordOrder(sess)
			}

			slots := make([]uint32, 0, len(sess.ValidChains()))
			for slot := range sess.ValidChains() {
				slots = append(slots, slot)
			}
			sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
			for _, slot := range slots {
				chain := sess.ValidChains()[slot]
				fmt.Printf("chain %d: %d fragments, camera=%d\n", slot, chain.FragmentCount(), chain.Main.CameraNumber)
			}

			incomplete := make([]uint32, 0, len(sess.IncompleteChains()))
			for slot := range sess.IncompleteChains() {
				incomplete = append(incomplete, slot)
			}
			sort.Slice(incomplete, func(i, j int) bool { return incomplete[i] < incomplete[j] })
			for _, slot := range incomplete {
				chain := sess.IncompleteChains()[slot]
				fmt.Printf("incomplete chain %d: %d fragments recovered\n", slot, chain.FragmentCount()-1)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&groupByOrder, "group-by-order", false, "list chains in on-disk record_order, grouped by camera")
	return cmd
}

// listByRecordOrder prints valid chains grouped by camera number and
// sorted within each camera by the main descriptor's record_order, the
// on-disk write order the original tool's ui8RecordOrderVideo field
// carries but the default slot-ordered view ignores.
func listByRecordOrder(sess *wfsinfo.Session) error {
	byCamera := map[int][]uint32{}
	for slot, chain := range sess.ValidChains() {
		cam := -1
		if chain.Main.CameraValid {
			cam = chain.Main.CameraNumber
		}
		byCamera[cam] = append(byCamera[cam], slot)
	}
	cameras := make([]int, 0, len(byCamera))
	for cam := range byCamera {
		cameras = append(cameras, cam)
	}
	sort.Ints(cameras)
	for _, cam := range cameras {
		slots := byCamera[cam]
		sort.Slice(slots, func(i, j int) bool {
			return sess.ValidChains()[slots[i]].Main.RecordOrder < sess.ValidChains()[slots[j]].Main.RecordOrder
		})
		label := fmt.Sprintf("camera %d", cam)
		if cam == -1 {
			label = "camera unknown"
		}
		fmt.Println(label)
		for _, slot := range slots {
			chain := sess.ValidChains()[slot]
			fmt.Printf("  chain %d: record_order=%d fragments=%d\n", slot, chain.Main.RecordOrder, chain.FragmentCount())
		}
	}
	return nil
}

func newExportCmd(loadSettings func() (settings.Settings, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Extract fragments or whole chains to files",
	}
	cmd.AddCommand(
		newExportChainCmd(loadSettings),
		newExportSecondaryCmd(loadSettings),
		newExportAllCmd(loadSettings),
	)
	return cmd
}

func newExportChainCmd(loadSettings func() (settings.Settings, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain <image> <main-slot> <outfile>",
		Short: "Export one reconstructed chain by its main descriptor slot",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			slot, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid main slot %q: %w", args[1], err)
			}

			sess, err := wfsinfo.Open(args[0], wfsinfoSettings(cfg))
			if err != nil {
				return err
			}
			defer sess.Close()

			chain, ok := sess.ValidChains()[uint32(slot)]
			if !ok {
				chain, ok = sess.IncompleteChains()[uint32(slot)]
			}
			if !ok {
				return fmt.Errorf("no chain found at main slot %d", slot)
			}
			return sess.ExportChain(chain, blockio.NewDiskSink(), args[2])
		},
	}
	return cmd
}

func newExportSecondaryCmd(loadSettings func() (settings.Settings, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secondary <image> <slot> <outfile>",
		Short: "Export a single secondary descriptor's fragment",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			slot, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid slot %q: %w", args[1], err)
			}

			sess, err := wfsinfo.Open(args[0], wfsinfoSettings(cfg))
			if err != nil {
				return err
			}
			defer sess.Close()

			sec, ok := sess.Secondaries()[uint32(slot)]
			if !ok {
				return fmt.Errorf("no secondary descriptor found at slot %d", slot)
			}
			return sess.ExportSecondary(sec, blockio.NewDiskSink(), args[2])
		},
	}
	return cmd
}

func newExportAllCmd(loadSettings func() (settings.Settings, error)) *cobra.Command {
	var outDir string
	var includeIncomplete bool
	var workers int

	cmd := &cobra.Command{
		Use:   "all <image>",
		Short: "Export every reconstructed chain to <outdir>/chain_<slot>.bin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			if outDir != "" {
				cfg.OutputDir = outDir
			}
			if workers > 0 {
				cfg.Workers = workers
			}
			if cfg.OutputDir == "" {
				cfg.OutputDir = "."
			}
			if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
				return err
			}

			sess, err := wfsinfo.Open(args[0], wfsinfoSettings(cfg))
			if err != nil {
				return err
			}
			defer sess.Close()

			results, err := wfsinfo.ExportAll(context.Background(), sess, cfg.OutputDir, includeIncomplete)
			if err != nil {
				return err
			}
			var failures int
			for _, r := range results {
				if r.Err != nil {
					failures++
					fmt.Fprintf(os.Stderr, "chain %d: %v\n", r.MainSlot, r.Err)
					continue
				}
				fmt.Println(r.Path)
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d chains failed to export", failures, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: settings OutputDir)")
	cmd.Flags().BoolVar(&includeIncomplete, "include-incomplete", false, "also export chains recovered from orphaned secondaries")
	cmd.Flags().IntVar(&workers, "workers", 0, "worker pool size (default: auto-tuned)")
	return cmd
}

func wfsinfoSettings(cfg settings.Settings) wfsinfo.Settings {
	return wfsinfo.Settings{
		LogLevel:                cfg.LogLevel,
		DumpAnomalies:           cfg.DumpAnomalies,
		RecoverIncompleteChains: cfg.RecoverIncompleteChains,
		OutputDir:               cfg.OutputDir,
		Workers:                 cfg.Workers,
	}
}

func newSelfUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-update",
		Short: "Update wfsinfo to the latest release",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd.Context())
		},
	}
}

func runSelfUpdate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if version == "" || version == "dev" {
		return errors.New("self-update is only available in release builds")
	}
	if _, err := semver.ParseTolerant(version); err != nil {
		return fmt.Errorf("could not parse version: %w", err)
	}

	latest, found, err := selfupdate.DetectLatest(ctx, selfupdate.ParseSlug(repoSlug))
	if err != nil {
		return fmt.Errorf("error occurred while detecting version: %w", err)
	}
	if !found {
		return fmt.Errorf("latest version for %s/%s could not be found from github repository", repoSlug, version)
	}
	if latest.LessOrEqual(version) {
		fmt.Printf("Current binary is the latest version: %s\n", version)
		return nil
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("could not locate executable path: %w", err)
	}
	if err := selfupdate.UpdateTo(ctx, latest.AssetURL, latest.AssetName, exe); err != nil {
		return fmt.Errorf("error occurred while updating binary: %w", err)
	}

	fmt.Printf("Successfully updated to version: %s\n", latest.Version())
	return nil
}
