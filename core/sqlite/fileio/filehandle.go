// Package fileio wraps read-only access to the files a salvage pass inspects.
package fileio

import (
	stderrors "errors"
	"io"
	"os"
	"sync"

	"github.com/FocuswithJustin/sqlsalvage/core/errors"
)

// FileHandle is a lazily opened, read-only file. It never writes, truncates
// or locks the file it reads.
type FileHandle struct {
	path string

	mu   sync.RWMutex
	file *os.File
}

// New returns a handle for path. No I/O happens until Open.
func New(path string) *FileHandle {
	return &FileHandle{path: path}
}

// Path returns the path the handle was created with.
func (h *FileHandle) Path() string {
	return h.path
}

// Open opens the file read-only. Opening an open handle is a no-op.
func (h *FileHandle) Open() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file != nil {
		return nil
	}
	if h.path == "" {
		return errors.New(errors.CodeIOError, "empty path")
	}

	f, err := os.OpenFile(h.path, os.O_RDONLY, 0)
	if err != nil {
		return errors.Newf(errors.CodeIOError, errors.NewIO("open", h.path, err), "open failed").With("path", h.path)
	}
	h.file = f
	return nil
}

// IsOpened reports whether Open has succeeded and Close has not been called.
func (h *FileHandle) IsOpened() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.file != nil
}

// Size returns the current file size in bytes.
func (h *FileHandle) Size() (int64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.file == nil {
		return 0, errors.New(errors.CodeMisuse, "size of unopened file", "path", h.path)
	}
	info, err := h.file.Stat()
	if err != nil {
		return 0, errors.Newf(errors.CodeIOError, errors.NewIO("stat", h.path, err), "stat failed").With("path", h.path)
	}
	return info.Size(), nil
}

// ReadAt reads up to size bytes at offset. Reading past the end of the file
// is not an error: the returned slice is shortened to what exists.
func (h *FileHandle) ReadAt(offset int64, size int) ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.file == nil {
		return nil, errors.New(errors.CodeMisuse, "read from unopened file", "path", h.path)
	}
	if offset < 0 || size < 0 {
		return nil, errors.New(errors.CodeMisuse, "negative read range", "offset", offset, "size", size)
	}
	if size == 0 {
		return []byte{}, nil
	}

	// The allocation never exceeds what the file still holds.
	info, err := h.file.Stat()
	if err != nil {
		return nil, errors.Newf(errors.CodeIOError, errors.NewIO("stat", h.path, err), "stat failed").With("path", h.path)
	}
	if remain := info.Size() - offset; remain <= 0 {
		return []byte{}, nil
	} else if int64(size) > remain {
		size = int(remain)
	}

	buf := make([]byte, size)
	n, err := h.file.ReadAt(buf, offset)
	if err != nil && !stderrors.Is(err, io.EOF) {
		return nil, errors.Newf(errors.CodeIOError, errors.NewIO("read", h.path, err), "read failed").
			With("path", h.path).With("offset", offset).With("size", size)
	}
	return buf[:n], nil
}

// Close releases the file. Closing a closed handle is a no-op.
func (h *FileHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	if err != nil {
		return errors.Newf(errors.CodeIOError, errors.NewIO("close", h.path, err), "close failed").With("path", h.path)
	}
	return nil
}
