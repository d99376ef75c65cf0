// Package report renders a wfs.Session into the dual-format,
// human-readable dump the CLI's report command (and its bare image-path
// default) prints or saves to disk. It depends one-way on internal/wfs, the same direction the
// project's report package has always taken on its scan package.
package report

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/wfsinfo/wfsinfo/internal/wfs"
)

const separator = "---------------------------------------------------------------------"

// Write renders sess's full report to path. If path already exists it
// is backed up first (path.<unix-timestamp>), matching how this
// project has always handled report file collisions. path == "-"
// writes to stdout instead and skips the backup step.
func Write(path string, sess *wfs.Session, opts Options) (string, error) {
	output := Build(sess, opts)
	if path == "-" {
		_, err := os.Stdout.WriteString(output)
		return path, err
	}
	if _, err := os.Stat(path); err == nil {
		backup := fmt.Sprintf("%s.%d", path, time.Now().Unix())
		_ = os.Rename(path, backup)
	}
	return path, os.WriteFile(path, []byte(output), 0o644)
}

// Options controls how much detail Build includes.
type Options struct {
	// DumpAnomalies includes each anomaly's hex dump, not just its
	// reason string.
	DumpAnomalies bool
	// GroupByCamera appends a listing of valid chains grouped by camera
	// number after the slot-ordered chain listing.
	GroupByCamera bool
}

// Build renders the full geometry, classification, chain, and anomaly
// report for sess as a single string.
func Build(sess *wfs.Session, opts Options) string {
	var b strings.Builder

	writeSuperBlockSection(&b, sess)
	writeIndexAreaSection(&b, sess)
	writeClassificationSection(&b, sess)
	writeDataAreaSection(&b, sess)
	writeChainSection(&b, sess, opts)
	writeAnomalySection(&b, sess, opts)

	return b.String()
}

func writeSuperBlockSection(b *strings.Builder, sess *wfs.Session) {
	fmt.Fprintln(b, separator)
	fmt.Fprintln(b, "SuperBlock information")
	fmt.Fprintln(b, separator)
	sb := sess.SuperBlock
	fmt.Fprintln(b, formatHexDec("total video fragments", uint64(sb.FragmentCount)))
	fmt.Fprintln(b, formatHexDec("reserved video fragments", uint64(sb.ReservedFragmentCount)))
	fmt.Fprintln(b, formatHexDec("disk block size (bytes)", uint64(sb.BlockSize)))
	fmt.Fprintln(b, formatHexDec("fragment size (disk blocks)", uint64(sb.FragmentSizeBlocks)))
	fmt.Fprintln(b, formatHexDec("fragment size (bytes)", sess.Geometry.FragmentBytes))
	fmt.Fprintln(b, formatHexDec("total fragment area size (bytes)", sess.Geometry.TotalFragmentBytes))
	fmt.Fprintln(b, formatHexDec("used fragment area size (bytes)", sess.Geometry.UsedFragmentBytes))
	fmt.Fprintln(b, formatHexDec("reserved fragment area size (bytes)", sess.Geometry.ReservedFragmentBytes))
	fmt.Fprintln(b, formatHexDec("index area size (bytes)", sess.Geometry.IndexAreaTotalBytes))
}

func writeIndexAreaSection(b *strings.Builder, sess *wfs.Session) {
	fmt.Fprintln(b, separator)
	fmt.Fprintln(b, "IndexArea information")
	fmt.Fprintln(b, separator)
	g := sess.Geometry
	sb := sess.SuperBlock
	fmt.Fprintln(b, formatHexDec("index area start (disk blocks)", uint64(sb.IndexAreaStartBlk)))
	fmt.Fprintln(b, formatHexDec("index area offset (bytes)", g.IndexAreaOffset))
	fmt.Fprintln(b, formatHexDec("index area end offset (bytes)", g.IndexAreaOffset+g.IndexAreaTotalBytes))
	fmt.Fprintln(b, formatHexDec("last-write slot (index area slot)", uint64(sb.IndexAreaSlotLastWrite)))
	fmt.Fprintln(b, formatHexDec("re-write slot (index area slot)", uint64(sb.IndexAreaSlotReWrite)))
}

func writeClassificationSection(b *strings.Builder, sess *wfs.Session) {
	fmt.Fprintln(b, separator)
	fmt.Fprintln(b, "Descriptor counts after classification")
	fmt.Fprintln(b, separator)
	c := sess.Counts
	fmt.Fprintf(b, "%-6d - main descriptors\n", c.Mains)
	fmt.Fprintf(b, "%-6d - secondary descriptors\n", c.Secondaries)
	fmt.Fprintf(b, "%-6d - reserved descriptors\n", c.Reserveds)
	fmt.Fprintf(b, "%-6d - other/corrupt slots\n", c.Others)
	fmt.Fprintf(b, "%-6d - total Index Area slots\n", c.Mains+c.Secondaries+c.Reserveds+c.Others)
}

func writeDataAreaSection(b *strings.Builder, sess *wfs.Session) {
	fmt.Fprintln(b, separator)
	fmt.Fprintln(b, "DataArea information")
	fmt.Fprintln(b, separator)
	g := sess.Geometry
	sb := sess.SuperBlock
	fmt.Fprintln(b, formatHexDec("data area start (disk blocks)", uint64(sb.DataAreaStartBlk)))
	fmt.Fprintln(b, formatHexDec("data area offset (bytes)", g.DataAreaOffset))
	fmt.Fprintln(b, formatHexDec("first usable fragment offset (bytes)", g.DataAreaFirstUsable))
	fmt.Fprintln(b, formatHexDec("data area end offset (bytes)", g.DataAreaOffset+g.TotalFragmentBytes))
}

// writeChainSection renders every reconstructed chain as a tree: the
// main fragment on its own line, then one indented line per secondary
// slot, with a literal X standing in for a never-claimed position in a
// valid chain.
func writeChainSection(b *strings.Builder, sess *wfs.Session, opts Options) {
	fmt.Fprintln(b, separator)
	fmt.Fprintln(b, "Fragment chains")
	fmt.Fprintln(b, separator)

	for _, slot := range sortedKeys(sess.ValidChains()) {
		chain := sess.ValidChains()[slot]
		fmt.Fprintln(b, "New Video Chain")
		fmt.Fprintf(b, "[ ] - %d\n", chain.MainSlot)
		for k := uint16(1); k <= chain.Main.SecondaryCount; k++ {
			if sec, ok := chain.Secondaries[k]; ok {
				fmt.Fprintf(b, "\t[%d] - %d\n", k, sec.Slot)
			} else {
				fmt.Fprintf(b, "\t[%d] - X\n", k)
			}
		}
	}

	for _, slot := range sortedKeys(sess.IncompleteChains()) {
		chain := sess.IncompleteChains()[slot]
		fmt.Fprintln(b, "New Video Chain")
		fmt.Fprintln(b, "[ ] - X")
		for _, order := range sortedSecondaryOrders(chain.Secondaries) {
			fmt.Fprintf(b, "\t[%d] - %d\n", order, chain.Secondaries[order].Slot)
		}
	}

	if opts.GroupByCamera {
		writeCameraGrouping(b, sess)
	}
}

// writeCameraGrouping lists every valid chain's main slot grouped by
// camera number, for the --group-by-camera view.
func writeCameraGrouping(b *strings.Builder, sess *wfs.Session) {
	fmt.Fprintln(b, separator)
	fmt.Fprintln(b, "Chains grouped by camera")
	fmt.Fprintln(b, separator)
	byCamera := map[int][]uint32{}
	for slot, chain := range sess.ValidChains() {
		if !chain.Main.CameraValid {
			byCamera[-1] = append(byCamera[-1], slot)
			continue
		}
		byCamera[chain.Main.CameraNumber] = append(byCamera[chain.Main.CameraNumber], slot)
	}
	cameras := make([]int, 0, len(byCamera))
	for cam := range byCamera {
		cameras = append(cameras, cam)
	}
	sort.Ints(cameras)
	for _, cam := range cameras {
		slots := byCamera[cam]
		sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
		label := fmt.Sprintf("camera %d", cam)
		if cam == -1 {
			label = "camera unknown"
		}
		fmt.Fprintf(b, "%s: %v\n", label, slots)
	}
}

func writeAnomalySection(b *strings.Builder, sess *wfs.Session, opts Options) {
	anomalies := sess.Anomalies()
	if len(anomalies) == 0 {
		return
	}
	fmt.Fprintln(b, separator)
	fmt.Fprintf(b, "Anomalies (%d)\n", len(anomalies))
	fmt.Fprintln(b, separator)
	for _, a := range anomalies {
		if opts.DumpAnomalies {
			fmt.Fprintln(b, a.String())
		} else {
			fmt.Fprintf(b, "slot %d @0x%x: %s\n", a.Slot, a.Offset, a.Reason)
		}
	}
}

func sortedKeys(m map[uint32]*wfs.FragmentChain) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedSecondaryOrders(m map[uint16]*wfs.SecondaryDescriptor) []uint16 {
	keys := make([]uint16, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
