// Package archive reads and writes the tar streams, plain or xz-compressed,
// that carry salvage dumps.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/FocuswithJustin/sqlsalvage/core/errors"
)

// XZMagic starts every xz stream.
var XZMagic = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}

// Reader wraps a tar.Reader with automatic decompression handling.
type Reader struct {
	*tar.Reader
	file       *os.File // set by Open
	compressed bool
}

// NewReader reads an archive from r, detecting xz compression from the
// stream's first bytes.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(len(XZMagic))
	compressed := err == nil && bytes.Equal(magic, XZMagic)
	return newReader(br, compressed)
}

// NewReaderCompressed reads an archive from r with compression stated by
// the caller.
func NewReaderCompressed(r io.Reader, compressed bool) (*Reader, error) {
	return newReader(r, compressed)
}

func newReader(r io.Reader, compressed bool) (*Reader, error) {
	in := r
	if compressed {
		xzr, err := xzNewReader(r)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		in = xzr
	}
	return &Reader{Reader: tar.NewReader(in), compressed: compressed}, nil
}

// Open opens the archive file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// Compressed reports whether the stream is xz-compressed.
func (r *Reader) Compressed() bool {
	return r.compressed
}

// Close closes the file opened by Open. Readers from NewReader have
// nothing to close.
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// Visitor is a callback function for iterating archive entries.
// Return true to stop iteration, false to continue.
type Visitor func(header *tar.Header, content io.Reader) (stop bool, err error)

// Iterate walks through the regular file entries, calling the visitor for
// each.
func (r *Reader) Iterate(visitor Visitor) error {
	for {
		header, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read header: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		stop, err := visitor(header, r)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

// ReadFile returns the content of entry name in the archive at path.
func ReadFile(path, name string) ([]byte, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var content []byte
	found := false
	err = r.Iterate(func(header *tar.Header, body io.Reader) (bool, error) {
		if header.Name != name {
			return false, nil
		}
		found = true
		var err error
		content, err = io.ReadAll(body)
		return true, err
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NewNotFound("archive entry", name)
	}
	return content, nil
}
