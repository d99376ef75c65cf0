package wfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fillMainLikeSlot builds a 32-byte slot tagged as Main, with nonZero
// non-zero bytes total (including the tag byte and a valid self/prev
// setup), used to probe the classifier's zero-byte budget boundary.
func fillMainLikeSlot(slot uint32, nonZero int, validTimestamps bool) []byte {
	data := make([]byte, descriptorSize)
	data[descOffTag] = tagMainA // 1 non-zero byte so far
	putUint32(data, descOffSelfOrMainIndex, slot)
	if validTimestamps {
		ts := sampleTimestamp()
		putUint32(data, descOffTimeStampStart, ts)
		putUint32(data, descOffTimeStampEnd, ts)
	}
	// Pad remaining non-zero budget into bytes that don't affect the
	// plausibility checks (the last-fragment-size, camera and count
	// fields), one byte at a time, until the total non-zero count
	// reaches the target or the five pad bytes run out.
	padOffsets := []int{descOffLastFragmentSizeBlk, descOffLastFragmentSizeBlk + 1, descOffCameraRaw, descOffCountOrOrder, descOffCountOrOrder + 1}
	for _, off := range padOffsets {
		if nonZeroCount(data) >= nonZero {
			break
		}
		data[off] = 0x07
	}
	return data
}

func TestIsLikelyMain_AtLowerNonZeroThreshold(t *testing.T) {
	data := fillMainLikeSlot(0, mainMinNonZero, true)
	require.GreaterOrEqual(t, nonZeroCount(data), mainMinNonZero)
	require.True(t, isLikelyMain(data, 0))
}

func TestIsLikelyMain_BelowNonZeroThresholdRejected(t *testing.T) {
	data := fillMainLikeSlot(0, mainMinNonZero-1, true)
	require.Less(t, nonZeroCount(data), mainMinNonZero)
	require.False(t, isLikelyMain(data, 0))
}

func TestIsLikelyMain_RejectsMismatchedSelfIndex(t *testing.T) {
	data := fillMainLikeSlot(3, mainMinNonZero, true)
	require.False(t, isLikelyMain(data, 9))
}

func TestIsLikelyMain_RejectsInvalidTimestamp(t *testing.T) {
	data := fillMainLikeSlot(0, mainMinNonZero, false)
	// Non-zero but implausible timestamps (month 15), so the slot clears
	// the zero-byte budget and only the timestamp check can reject it.
	putUint32(data, descOffTimeStampStart, 0xFFFFFFFF)
	putUint32(data, descOffTimeStampEnd, 0xFFFFFFFF)
	require.False(t, isLikelyMain(data, 0))
}

func TestIsLikelyMain_RejectsNonZeroPrevIndex(t *testing.T) {
	data := fillMainLikeSlot(0, mainMinNonZero, true)
	putUint32(data, descOffPrevOrRelative, 1)
	require.False(t, isLikelyMain(data, 0))
}

func TestIsLikelySecondary_ValidAtLowerThreshold(t *testing.T) {
	data := make([]byte, descriptorSize)
	data[descOffTag] = tagSecondary
	ts := sampleTimestamp()
	putUint32(data, descOffTimeStampStart, ts)
	putUint32(data, descOffTimeStampEnd, ts)
	padOffsets := []int{descOffPrevOrRelative, descOffNext, descOffSelfOrMainIndex, descOffCameraRaw, descOffCountOrOrder, descOffLastFragmentSizeBlk}
	for _, off := range padOffsets {
		if nonZeroCount(data) >= secondaryMinNonZero {
			break
		}
		data[off] = 0x05
	}
	require.GreaterOrEqual(t, nonZeroCount(data), secondaryMinNonZero)
	require.True(t, isLikelySecondary(data))
}

func TestIsLikelySecondary_RejectsInvalidTimestamp(t *testing.T) {
	data := make([]byte, descriptorSize)
	data[descOffTag] = tagSecondary
	for i := 0; i < secondaryMinNonZero; i++ {
		data[2+i] = 0x05
	}
	require.False(t, isLikelySecondary(data))
}

// TestClassifyIndexArea_TotalsMatchSlotCount exercises the classification
// totals invariant: every slot lands in exactly one bucket, and the four
// bucket counts sum to N.
func TestClassifyIndexArea_TotalsMatchSlotCount(t *testing.T) {
	const n = 4
	buf := newBlankImage(512, 2, n, 0, 6, 10)
	geo, err := computeGeometry(mustParseSuperBlock(t, buf))
	require.NoError(t, err)

	ts := sampleTimestamp()
	writeMainSlot(buf, geo, 0, 1, 1, 0x06, ts, ts)
	// prev/next/mainIndex are given non-zero filler values purely to
	// clear the classifier's zero-byte budget; this test only checks
	// bucket assignment, not chain linkage.
	writeSecondarySlot(buf, geo, 1, 1, 9, 9, 5, 0x06, ts, ts)
	writeReservedSlot(buf, geo, 2)
	// Slot 3 is left all-zero: tag byte 0x00 falls through to "other".

	iaBuf := buf[geo.IndexAreaOffset : geo.IndexAreaOffset+geo.IndexAreaTotalBytes]
	res := classifyIndexArea(iaBuf, geo)

	require.Equal(t, 1, res.counts.Mains)
	require.Equal(t, 1, res.counts.Secondaries)
	require.Equal(t, 1, res.counts.Reserveds)
	require.Equal(t, 1, res.counts.Others)
	sum := res.counts.Mains + res.counts.Secondaries + res.counts.Reserveds + res.counts.Others
	require.Equal(t, n, sum)
}

func mustParseSuperBlock(t *testing.T, image []byte) SuperBlock {
	t.Helper()
	sb, err := parseSuperBlock(image[SuperBlockOffset : SuperBlockOffset+SuperBlockSize])
	require.NoError(t, err)
	return sb
}
