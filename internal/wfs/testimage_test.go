package wfs

import (
	"encoding/binary"

	"github.com/wfsinfo/wfsinfo/internal/blockio"
	"github.com/wfsinfo/wfsinfo/internal/wfstime"
)

// memReader is a minimal in-memory blockio.Reader for tests, avoiding
// any dependency on the real filesystem.
type memReader struct {
	data []byte
}

func (m *memReader) ReadAt(offset uint64, buf []byte) (int, error) {
	if offset >= uint64(len(m.data)) {
		return 0, blockio.ErrShortRead
	}
	n := copy(buf, m.data[offset:])
	if n < len(buf) {
		return n, blockio.ErrShortRead
	}
	return n, nil
}

func (m *memReader) ReadStructAt(offset uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := m.ReadAt(offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (m *memReader) Size() uint64  { return uint64(len(m.data)) }
func (m *memReader) Close() error  { return nil }

const validTimestampRaw = 0x5C88C7E8 // decodes to a plausible date/time

func putUint16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:], v) }
func putUint32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }

// newBlankImage allocates a zeroed buffer large enough to hold header,
// superblock, the whole Index Area, and the whole Data Area, and
// stamps a valid header + superblock using the given geometry knobs.
func newBlankImage(blockSize, fragSizeBlocks, fragCount, reservedCount, iaStartBlk, daStartBlk uint32) []byte {
	g := Geometry{
		BlockSize:          uint64(blockSize),
		FragmentSizeBlocks: uint64(fragSizeBlocks),
		FragmentCount:      uint64(fragCount),
	}
	fragmentBytes := g.FragmentSizeBlocks * g.BlockSize
	dataAreaOffset := uint64(blockSize) * uint64(daStartBlk)
	totalSize := dataAreaOffset + fragmentBytes*uint64(fragCount) + fragmentBytes
	if minSize := uint64(SuperBlockOffset + SuperBlockSize); totalSize < minSize {
		totalSize = minSize
	}

	buf := make([]byte, totalSize)
	copy(buf[0:], "WFS0.4")
	copy(buf[markerOffset:], "XM")

	sb := buf[SuperBlockOffset : SuperBlockOffset+SuperBlockSize]
	putUint32(sb, sbOffBlockSize, blockSize)
	putUint32(sb, sbOffFragmentSizeBlocks, fragSizeBlocks)
	putUint32(sb, sbOffFragmentCount, fragCount)
	putUint32(sb, sbOffReservedFragmentCount, reservedCount)
	putUint32(sb, sbOffIndexAreaStartBlk, iaStartBlk)
	putUint32(sb, sbOffDataAreaStartBlk, daStartBlk)
	copy(sb[sbOffTrailingSignature:], trailingSignature)

	return buf
}

func writeMainSlot(buf []byte, geo Geometry, slot uint32, secCount uint16, next uint32, camera uint8, tsStart, tsEnd uint32) {
	off := geo.indexSlotOffset(slot)
	rec := buf[off : off+descriptorSize]
	rec[descOffTag] = tagMainA
	putUint16(rec, descOffCountOrOrder, secCount)
	putUint32(rec, descOffPrevOrRelative, 0)
	putUint32(rec, descOffNext, next)
	putUint32(rec, descOffTimeStampStart, tsStart)
	putUint32(rec, descOffTimeStampEnd, tsEnd)
	putUint32(rec, descOffSelfOrMainIndex, slot)
	rec[descOffCameraRaw] = camera
}

func writeSecondarySlot(buf []byte, geo Geometry, slot uint32, relOrder uint16, prev, next, mainIndex uint32, camera uint8, tsStart, tsEnd uint32) {
	off := geo.indexSlotOffset(slot)
	rec := buf[off : off+descriptorSize]
	rec[descOffTag] = tagSecondary
	putUint16(rec, descOffCountOrOrder, relOrder)
	putUint32(rec, descOffPrevOrRelative, prev)
	putUint32(rec, descOffNext, next)
	putUint32(rec, descOffTimeStampStart, tsStart)
	putUint32(rec, descOffTimeStampEnd, tsEnd)
	putUint32(rec, descOffSelfOrMainIndex, mainIndex)
	rec[descOffCameraRaw] = camera
}

func writeReservedSlot(buf []byte, geo Geometry, slot uint32) {
	off := geo.indexSlotOffset(slot)
	rec := buf[off : off+descriptorSize]
	// The tag byte itself is the slot's sole non-zero byte.
	rec[descOffTag] = tagReserved
}

func sampleTimestamp() uint32 {
	return wfstime.Encode(wfstime.Timestamp{Year: 2024, Month: 6, Day: 15, Hour: 10, Minute: 30, Second: 0})
}
