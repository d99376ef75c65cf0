package blockio

import (
	"fmt"
	"os"
)

// Sink is the output collaborator the Extractor writes fragment bytes
// through. Path encoding is UTF-8; mapping it to the host filesystem is
// the sink's responsibility, not the core's.
type Sink interface {
	// WriteNew creates or truncates path, then writes data.
	WriteNew(path string, data []byte) error
	// WriteAppend creates path if absent, positions at its end, then
	// writes data. Chain export calls this once per fragment, in order.
	WriteAppend(path string, data []byte) error
}

// DiskSink writes fragments to the local filesystem.
type DiskSink struct{}

func NewDiskSink() DiskSink { return DiskSink{} }

func (DiskSink) WriteNew(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("blockio: write new %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("blockio: write new %s: %w", path, err)
	}
	return nil
}

func (DiskSink) WriteAppend(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("blockio: write append %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("blockio: write append %s: %w", path, err)
	}
	return nil
}
