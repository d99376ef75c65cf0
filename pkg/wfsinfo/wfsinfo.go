// Package wfsinfo is the public facade over internal/wfs, internal/blockio,
// and internal/report: the same shape pkg/bdinfo gave the scan/report
// pipeline in the project this one grew out of. Open parses and
// reconstructs; the returned *Session exposes read-only accessors plus
// export helpers, and ExportAll adds a tuned worker pool over
// chain-by-chain export for callers that want to dump an entire image in
// one call.
package wfsinfo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/wfsinfo/wfsinfo/internal/blockio"
	"github.com/wfsinfo/wfsinfo/internal/report"
	"github.com/wfsinfo/wfsinfo/internal/settings"
	"github.com/wfsinfo/wfsinfo/internal/wfs"
)

// Settings are library-facing session controls, mirroring
// internal/settings.Settings field for field.
type Settings struct {
	LogLevel                string
	DumpAnomalies           bool
	RecoverIncompleteChains bool
	OutputDir               string
	Workers                 int
}

// DefaultSettings returns the settings a bare CLI invocation uses.
func DefaultSettings() Settings {
	return fromInternalSettings(settings.Default())
}

func toInternalSettings(s Settings) settings.Settings {
	return settings.Settings{
		LogLevel:                s.LogLevel,
		DumpAnomalies:           s.DumpAnomalies,
		RecoverIncompleteChains: s.RecoverIncompleteChains,
		OutputDir:               s.OutputDir,
		Workers:                 s.Workers,
	}
}

func fromInternalSettings(s settings.Settings) Settings {
	return Settings{
		LogLevel:                s.LogLevel,
		DumpAnomalies:           s.DumpAnomalies,
		RecoverIncompleteChains: s.RecoverIncompleteChains,
		OutputDir:               s.OutputDir,
		Workers:                 s.Workers,
	}
}

// Session wraps a reconstructed wfs.Session plus the disk reader backing
// it, so callers get a single Close and don't need to reach into
// internal packages.
type Session struct {
	inner    *wfs.Session
	reader   *blockio.DiskReader
	settings Settings
}

// Open validates and reconstructs the WFS image at path. The returned
// Session owns path's file descriptor; callers must call Close.
func Open(path string, s Settings) (*Session, error) {
	reader, err := blockio.OpenDiskReader(path)
	if err != nil {
		return nil, err
	}
	inner, err := wfs.OpenSession(reader, toInternalSettings(s))
	if err != nil {
		reader.Close()
		return nil, err
	}
	return &Session{inner: inner, reader: reader, settings: s}, nil
}

// Close releases the underlying file descriptor.
func (s *Session) Close() error { return s.reader.Close() }

// ValidChains returns chains whose main descriptor survived intact.
func (s *Session) ValidChains() map[uint32]*wfs.FragmentChain { return s.inner.ValidChains() }

// IncompleteChains returns chains recovered from orphaned secondaries.
func (s *Session) IncompleteChains() map[uint32]*wfs.FragmentChain { return s.inner.IncompleteChains() }

// Anomalies returns every diagnostic raised during classification and
// reconstruction.
func (s *Session) Anomalies() []wfs.Anomaly { return s.inner.Anomalies() }

// Counts returns the classifier's per-bucket descriptor totals.
func (s *Session) Counts() wfs.ClassificationCounts { return s.inner.Counts }

// Secondaries exposes the classifier's accepted secondary-descriptor map,
// keyed by slot.
func (s *Session) Secondaries() map[uint32]*wfs.SecondaryDescriptor { return s.inner.Secondaries() }

// Geometry returns the derived on-disk layout.
func (s *Session) Geometry() wfs.Geometry { return s.inner.Geometry }

// Report renders the full human-readable report via internal/report,
// honoring DumpAnomalies/GroupByCamera from opts.
func (s *Session) Report(opts report.Options) string {
	return report.Build(s.inner, opts)
}

// WriteReport renders and persists the report to path (or stdout for
// "-"), backing up any existing file first.
func (s *Session) WriteReport(path string, opts report.Options) (string, error) {
	return report.Write(path, s.inner, opts)
}

// ExportChain writes a single chain's fragments, in order, to path.
func (s *Session) ExportChain(chain *wfs.FragmentChain, sink blockio.Sink, path string) error {
	return s.inner.ExportChain(chain, sink, path)
}

// ExportSecondary writes a single secondary descriptor's fragment to
// path.
func (s *Session) ExportSecondary(sec *wfs.SecondaryDescriptor, sink blockio.Sink, path string) error {
	return s.inner.ExportSecondary(sec, sink, path)
}

// ExportResult reports one chain's export outcome.
type ExportResult struct {
	MainSlot uint32
	Path     string
	Err      error
}

// ExportAll exports every valid chain (and, if includeIncomplete is
// true, every incomplete chain too) under dir, naming each file
// chain_<mainSlot>.bin, using a worker pool sized the same way batch
// stream scanning is tuned elsewhere in this project: an explicit
// Settings.Workers or WFSINFO_WORKERS override wins, otherwise the pool
// is sized off CPU count and chain count. Errors are collected per chain
// rather than aborting the batch; ctx cancellation stops scheduling new
// chains but lets in-flight ones finish.
func ExportAll(ctx context.Context, sess *Session, dir string, includeIncomplete bool) ([]ExportResult, error) {
	if sess == nil {
		return nil, errors.New("wfsinfo: nil session")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	type job struct {
		slot  uint32
		chain *wfs.FragmentChain
	}
	var jobs []job
	for slot, chain := range sess.ValidChains() {
		jobs = append(jobs, job{slot: slot, chain: chain})
	}
	if includeIncomplete {
		for slot, chain := range sess.IncompleteChains() {
			jobs = append(jobs, job{slot: slot, chain: chain})
		}
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	limit := exportWorkerLimit(len(jobs), sess.settings.Workers)
	sink := blockio.NewDiskSink()

	results := make([]ExportResult, len(jobs))
	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, j := range jobs {
		if ctx.Err() != nil {
			results[i] = ExportResult{MainSlot: j.slot, Err: ctx.Err()}
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, j job) {
			defer wg.Done()
			defer func() { <-sem }()
			path := filepath.Join(dir, fmt.Sprintf("chain_%d.bin", j.slot))
			err := sess.ExportChain(j.chain, sink, path)
			results[i] = ExportResult{MainSlot: j.slot, Path: path, Err: err}
		}(i, j)
	}
	wg.Wait()

	return results, nil
}

const maxExportWorkers = 8

// exportWorkerLimit mirrors the scan-worker tuning this project has
// always used: an explicit override (argument, then WFSINFO_WORKERS env
// var) replaces the default of 4 (or the job count when there are at
// most two jobs). Either way the result is clamped to CPU-1,
// maxExportWorkers and the job count.
func exportWorkerLimit(total int, override int) int {
	if override > 0 {
		return clampExportWorkers(override, total)
	}
	if v := envWorkerOverride(); v > 0 {
		return clampExportWorkers(v, total)
	}
	limit := 4
	if total <= 2 {
		limit = total
	}
	return clampExportWorkers(limit, total)
}

func clampExportWorkers(limit int, total int) int {
	if limit < 1 {
		limit = 1
	}
	cpu := max(runtime.NumCPU(), 1)
	maxWorkers := max(cpu-1, 1)
	if maxWorkers > maxExportWorkers {
		maxWorkers = maxExportWorkers
	}
	if limit > maxWorkers {
		limit = maxWorkers
	}
	if total > 0 && limit > total {
		limit = total
	}
	return limit
}

func envWorkerOverride() int {
	raw := os.Getenv("WFSINFO_WORKERS")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return n
}
