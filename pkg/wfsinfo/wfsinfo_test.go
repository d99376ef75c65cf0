package wfsinfo

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wfsinfo/wfsinfo/internal/report"
)

// Fixed on-disk offsets mirrored from the documented WFS layout, used
// only to stamp a minimal real image file for this package's
// black-box tests.
const (
	superBlockOffset = 0x3000
	sbOffFragCount   = 0x20
	sbOffBlockSize   = 0x2C
	sbOffFragSize    = 0x30
	sbOffIAStart     = 0x44
	sbOffDAStart     = 0x48
	sbOffTrailer     = 0x148
	descSize         = 32
)

var trailer = []byte{0xDE, 0xBC, 0x9A, 0x78}

func putU32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }

// buildImage stamps a minimal two-chain WFS image (two independent
// single-fragment main descriptors, no secondaries) so ExportAll has
// more than one job to schedule across the worker pool.
func buildImage(t *testing.T) string {
	t.Helper()
	const blockSize, fragSizeBlocks, fragCount = 512, 2, 4
	const iaStartBlk, daStartBlk = 6, 20
	fragmentBytes := uint64(blockSize * fragSizeBlocks)
	dataAreaOffset := uint64(blockSize * daStartBlk)
	total := dataAreaOffset + fragmentBytes*fragCount + fragmentBytes
	if total < superBlockOffset+332 {
		total = superBlockOffset + 332
	}

	buf := make([]byte, total)
	copy(buf, "WFS0.4")
	copy(buf[0x1FE:], "XM")

	sb := buf[superBlockOffset : superBlockOffset+332]
	putU32(sb, sbOffFragCount, fragCount)
	putU32(sb, sbOffBlockSize, blockSize)
	putU32(sb, sbOffFragSize, fragSizeBlocks)
	putU32(sb, sbOffIAStart, iaStartBlk)
	putU32(sb, sbOffDAStart, daStartBlk)
	copy(sb[sbOffTrailer:], trailer)

	indexAreaOffset := uint64(blockSize * iaStartBlk)
	const sampleTS = 0x619EA780 // 2024-06-15 10:30:00, packed

	for _, slot := range []uint32{0, 1} {
		off := indexAreaOffset + uint64(slot)*descSize
		rec := buf[off : off+descSize]
		rec[1] = 0x02 // main tag
		putU32(rec, 0x18, slot)
		putU32(rec, 0x0C, sampleTS)
		putU32(rec, 0x10, sampleTS)
		rec[0x1F] = 0x06 // camera raw
	}

	path := filepath.Join(t.TempDir(), "image.wfs")
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	return path
}

func TestOpen_EndToEnd(t *testing.T) {
	path := buildImage(t)
	sess, err := Open(path, DefaultSettings())
	require.NoError(t, err)
	defer sess.Close()

	require.Len(t, sess.ValidChains(), 2)
	require.Equal(t, 2, sess.Counts().Mains)
}

func TestSession_Report(t *testing.T) {
	path := buildImage(t)
	sess, err := Open(path, DefaultSettings())
	require.NoError(t, err)
	defer sess.Close()

	out := sess.Report(report.Options{})
	require.Contains(t, out, "SuperBlock information")
}

func TestSession_WriteReport(t *testing.T) {
	path := buildImage(t)
	sess, err := Open(path, DefaultSettings())
	require.NoError(t, err)
	defer sess.Close()

	out := filepath.Join(t.TempDir(), "report.txt")
	_, err = sess.WriteReport(out, report.Options{})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), "Fragment chains")
}

func TestExportAll_WritesOneFilePerChain(t *testing.T) {
	path := buildImage(t)
	sess, err := Open(path, DefaultSettings())
	require.NoError(t, err)
	defer sess.Close()

	dir := t.TempDir()
	results, err := ExportAll(context.Background(), sess, dir, false)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		require.NoError(t, r.Err)
		info, err := os.Stat(r.Path)
		require.NoError(t, err)
		require.Equal(t, sess.Geometry().FragmentBytes, uint64(info.Size()))
	}
}

func TestExportAll_NilSessionErrors(t *testing.T) {
	_, err := ExportAll(context.Background(), nil, t.TempDir(), false)
	require.Error(t, err)
}

func TestExportAll_IncludeIncompleteIsANoopWhenNoneExist(t *testing.T) {
	path := buildImage(t)
	sess, err := Open(path, DefaultSettings())
	require.NoError(t, err)
	defer sess.Close()

	results, err := ExportAll(context.Background(), sess, t.TempDir(), true)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestExportWorkerLimit_RespectsExplicitOverride(t *testing.T) {
	require.Equal(t, 1, exportWorkerLimit(10, 1))
}

func TestExportWorkerLimit_NeverExceedsJobCount(t *testing.T) {
	require.LessOrEqual(t, exportWorkerLimit(1, 0), 1)
}
