package wfs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeGeometry_Basic(t *testing.T) {
	sb := SuperBlock{
		BlockSize:          512,
		FragmentSizeBlocks: 2,
		FragmentCount:      4,
		IndexAreaStartBlk:  12,
		DataAreaStartBlk:   20,
	}
	g, err := computeGeometry(sb)
	require.NoError(t, err)
	require.Equal(t, uint64(1024), g.FragmentBytes)
	require.Equal(t, uint64(4096), g.TotalFragmentBytes)
	require.Equal(t, uint64(512*12), g.IndexAreaOffset)
	require.Equal(t, uint64(32*4), g.IndexAreaTotalBytes)
	require.Equal(t, uint64(512*20), g.DataAreaOffset)
}

func TestComputeGeometry_Overflow(t *testing.T) {
	sb := SuperBlock{
		BlockSize:          512,
		FragmentSizeBlocks: 2,
		FragmentCount:      1 << 27, // 32 * 2^27 == 2^32
	}
	_, err := computeGeometry(sb)
	require.True(t, errors.Is(err, ErrUnsupportedGeometry))
}

func TestComputeGeometry_64BitArithmetic(t *testing.T) {
	// Values chosen so the fragment-bytes product overflows a 32-bit
	// accumulator but not a 64-bit one.
	sb := SuperBlock{
		BlockSize:          1 << 20,
		FragmentSizeBlocks: 1 << 14,
		FragmentCount:      2,
	}
	g, err := computeGeometry(sb)
	require.NoError(t, err)
	require.Equal(t, uint64(1<<34), g.FragmentBytes)
}
