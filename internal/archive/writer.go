package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"time"

	"github.com/ulikunitz/xz"
)

// Injectable functions for testing
var (
	xzNewWriter = xz.NewWriter
	xzNewReader = xz.NewReader
)

// Writer writes a tar stream, optionally xz-compressed, to an io.Writer
// it does not own.
type Writer struct {
	tw      *tar.Writer
	closer  io.Closer // xz stream, nil for a plain tar
	modTime time.Time
}

// NewWriter starts an archive on w. Every entry gets modTime, so two dumps
// of the same pages differ only in their manifest.
func NewWriter(w io.Writer, compressed bool, modTime time.Time) (*Writer, error) {
	a := &Writer{modTime: modTime}
	out := w
	if compressed {
		xw, err := xzNewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("xz writer: %w", err)
		}
		out = xw
		a.closer = xw
	}
	a.tw = tar.NewWriter(out)
	return a, nil
}

// WriteFile adds a regular file entry.
func (a *Writer) WriteFile(name string, data []byte) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: a.modTime,
	}
	if err := a.tw.WriteHeader(header); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	if _, err := a.tw.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Close finishes the tar stream and then the compressor. It does not
// close the underlying writer.
func (a *Writer) Close() error {
	if err := a.tw.Close(); err != nil {
		return fmt.Errorf("finish tar stream: %w", err)
	}
	if a.closer != nil {
		if err := a.closer.Close(); err != nil {
			return fmt.Errorf("finish compression: %w", err)
		}
	}
	return nil
}
