// Package blockio is the I/O collaborator boundary: a random-access
// Reader the core domain package consumes, and an output Sink the
// Extractor writes fragments through. The core never talks to os.File
// directly, in the shape of internal/fs's FileSystem/FileInfo split in
// the project this one grew out of — one disk-backed implementation is
// enough here since Go is already cross-platform at this layer.
package blockio

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Reader is random-access, byte-addressed access over a WFS image.
// Implementations must be safe for concurrent ReadAt calls against
// independent offsets: pkg/wfsinfo's batch export relies on this to
// parallelize chain extraction without serializing on a shared cursor.
type Reader interface {
	// ReadAt reads len(buf) bytes starting at offset, exactly as
	// io.ReaderAt does. Returns ErrShortRead if fewer bytes are
	// available than requested.
	ReadAt(offset uint64, buf []byte) (int, error)
	// ReadStructAt is a thin typed wrapper over ReadAt that guarantees
	// at least n bytes are returned or an error.
	ReadStructAt(offset uint64, n int) ([]byte, error)
	// Size returns the total addressable length of the backing image.
	Size() uint64
	Close() error
}

var (
	// ErrShortRead mirrors wfs.ErrShortRead; kept local to avoid an
	// import cycle, the core wraps it with wfs.ErrShortRead context.
	ErrShortRead  = errors.New("blockio: short read")
	ErrSeekFailed = errors.New("blockio: seek failed")
)

// DiskReader is the disk-backed Reader implementation: a single opened
// *os.File accessed exclusively through ReadAt, so positioning never
// races across concurrent callers.
type DiskReader struct {
	file *os.File
	size uint64
}

// OpenDiskReader opens path for random-access reading.
func OpenDiskReader(path string) (*DiskReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("blockio: open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("blockio: stat %s: %w", path, err)
	}
	return &DiskReader{file: f, size: uint64(info.Size())}, nil
}

func (d *DiskReader) ReadAt(offset uint64, buf []byte) (int, error) {
	n, err := d.file.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("blockio: read at 0x%x: %w", offset, err)
	}
	if n < len(buf) {
		return n, fmt.Errorf("%w: wanted %d bytes at 0x%x, got %d", ErrShortRead, len(buf), offset, n)
	}
	return n, nil
}

func (d *DiskReader) ReadStructAt(offset uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := d.ReadAt(offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *DiskReader) Size() uint64 { return d.size }

func (d *DiskReader) Close() error { return d.file.Close() }
