package fileio

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/sqlsalvage/core/errors"
)

func tempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestOpenAndRead(t *testing.T) {
	data := []byte("0123456789abcdef")
	h := New(tempFile(t, data))
	if err := h.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	if !h.IsOpened() {
		t.Error("IsOpened() = false after Open")
	}

	size, err := h.Size()
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != int64(len(data)) {
		t.Errorf("Size() = %d, want %d", size, len(data))
	}

	got, err := h.ReadAt(4, 6)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if !bytes.Equal(got, data[4:10]) {
		t.Errorf("ReadAt() = %q, want %q", got, data[4:10])
	}
}

func TestReadAtPastEOF(t *testing.T) {
	h := New(tempFile(t, []byte("abcdef")))
	if err := h.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	got, err := h.ReadAt(4, 10)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if string(got) != "ef" {
		t.Errorf("ReadAt() = %q, want %q", got, "ef")
	}

	got, err = h.ReadAt(2, math.MaxInt)
	if err != nil {
		t.Fatalf("ReadAt(2, MaxInt) error = %v", err)
	}
	if string(got) != "cdef" {
		t.Errorf("ReadAt(2, MaxInt) = %q, want %q", got, "cdef")
	}

	got, err = h.ReadAt(100, 10)
	if err != nil {
		t.Fatalf("ReadAt() beyond end error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadAt() beyond end returned %d bytes", len(got))
	}
}

func TestReadAtMisuse(t *testing.T) {
	h := New(tempFile(t, []byte("abc")))

	if _, err := h.ReadAt(0, 1); errors.CodeOf(err) != errors.CodeMisuse {
		t.Errorf("ReadAt() on unopened handle code = %v, want misuse", errors.CodeOf(err))
	}

	if err := h.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer h.Close()

	if _, err := h.ReadAt(-1, 1); errors.CodeOf(err) != errors.CodeMisuse {
		t.Errorf("ReadAt(-1) code = %v, want misuse", errors.CodeOf(err))
	}
	got, err := h.ReadAt(0, 0)
	if err != nil || len(got) != 0 {
		t.Errorf("ReadAt(0, 0) = %v, %v", got, err)
	}
}

func TestOpenFailures(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"empty path", ""},
		{"missing file", filepath.Join(t.TempDir(), "missing.db")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.path).Open()
			if err == nil {
				t.Fatal("Open() expected error")
			}
			if !errors.Is(err, errors.ErrIO) {
				t.Errorf("Open() error %v is not ErrIO", err)
			}
		})
	}
}

func TestCloseIdempotent(t *testing.T) {
	h := New(tempFile(t, []byte("abc")))
	if err := h.Open(); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if h.IsOpened() {
		t.Error("IsOpened() = true after Close")
	}
}
