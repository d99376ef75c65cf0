package wfs

import "fmt"

const descriptorSize = 32

// maxIndexAreaBytes is 2^32; the classifier's buffer and slot math
// assume the whole Index Area fits in a 32-bit byte count.
const maxIndexAreaBytes = uint64(1) << 32

// Geometry holds every byte offset and region size derived from the
// SuperBlock. All products use 64-bit arithmetic: fragment_bytes * N
// overflows a 32-bit accumulator on realistic disk sizes.
type Geometry struct {
	BlockSize             uint64
	FragmentSizeBlocks    uint64
	FragmentCount         uint64
	ReservedFragmentCount uint64

	FragmentBytes         uint64
	TotalFragmentBytes    uint64
	ReservedFragmentBytes uint64
	UsedFragmentBytes     uint64

	IndexAreaOffset      uint64
	IndexAreaTotalBytes  uint64
	DataAreaOffset       uint64
	DataAreaFirstUsable  uint64
}

// computeGeometry derives the Geometry record from a validated
// SuperBlock, rejecting index areas whose byte size reaches 2^32 (does
// not fit in a 32-bit byte count).
func computeGeometry(sb SuperBlock) (Geometry, error) {
	g := Geometry{
		BlockSize:             uint64(sb.BlockSize),
		FragmentSizeBlocks:    uint64(sb.FragmentSizeBlocks),
		FragmentCount:         uint64(sb.FragmentCount),
		ReservedFragmentCount: uint64(sb.ReservedFragmentCount),
	}
	g.FragmentBytes = g.FragmentSizeBlocks * g.BlockSize
	g.TotalFragmentBytes = g.FragmentBytes * g.FragmentCount
	g.ReservedFragmentBytes = g.FragmentBytes * g.ReservedFragmentCount
	g.UsedFragmentBytes = g.TotalFragmentBytes - g.ReservedFragmentBytes

	g.IndexAreaOffset = g.BlockSize * uint64(sb.IndexAreaStartBlk)
	g.IndexAreaTotalBytes = uint64(descriptorSize) * g.FragmentCount
	g.DataAreaOffset = g.BlockSize * uint64(sb.DataAreaStartBlk)
	g.DataAreaFirstUsable = g.DataAreaOffset + g.ReservedFragmentBytes

	if g.IndexAreaTotalBytes >= maxIndexAreaBytes {
		return Geometry{}, fmt.Errorf("%w: index area is %d bytes", ErrUnsupportedGeometry, g.IndexAreaTotalBytes)
	}
	return g, nil
}

// fragmentOffset returns the absolute Data Area offset of the fragment
// owned by descriptor slot.
func (g Geometry) fragmentOffset(slot uint32) uint64 {
	return g.DataAreaOffset + uint64(slot)*g.FragmentBytes
}

// indexSlotOffset returns the absolute offset of descriptor slot within
// the Index Area.
func (g Geometry) indexSlotOffset(slot uint32) uint64 {
	return g.IndexAreaOffset + uint64(slot)*descriptorSize
}
