package wfs

import "errors"

// Structural errors abort session construction.
var (
	ErrNotWfsImage         = errors.New("wfs: not a WFS image")
	ErrBadSuperBlock       = errors.New("wfs: superblock trailing signature mismatch")
	ErrUnsupportedGeometry = errors.New("wfs: derived geometry unsupported")
)

// Block Reader errors.
var (
	ErrShortRead  = errors.New("wfs: short read")
	ErrSeekFailed = errors.New("wfs: seek failed")
	ErrIO         = errors.New("wfs: io error")
)

// Extraction errors.
var ErrSinkWriteFailed = errors.New("wfs: sink write failed")
