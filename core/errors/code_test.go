package errors

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestCodeKind(t *testing.T) {
	tests := []struct {
		code      Code
		kind      Kind
		integrity bool
	}{
		{CodeOK, KindNone, false},
		{CodeIOError, KindIO, false},
		{CodeEmpty, KindIO, false},
		{CodeMisuse, KindProgramming, false},
		{CodeNotADatabase, KindIntegrity, true},
		{CodeFormat, KindIntegrity, true},
		{CodeCorrupt, KindIntegrity, true},
		{CodeChecksum, KindValidation, false},
	}

	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			if got := tt.code.Kind(); got != tt.kind {
				t.Errorf("Kind() = %v, want %v", got, tt.kind)
			}
			if got := tt.code.IsIntegrity(); got != tt.integrity {
				t.Errorf("IsIntegrity() = %v, want %v", got, tt.integrity)
			}
		})
	}
}

func TestCodeString(t *testing.T) {
	if got := CodeCorrupt.String(); got != "corrupt" {
		t.Errorf("String() = %q, want %q", got, "corrupt")
	}
	if got := Code(99).String(); got != "code(99)" {
		t.Errorf("String() = %q, want %q", got, "code(99)")
	}
}

func TestNewStructuredError(t *testing.T) {
	err := New(CodeCorrupt, "page out of range", "pgno", 7, "path", "main.db")

	want := "corrupt: page out of range [path=main.db pgno=7]"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if err.Context["pgno"] != 7 {
		t.Errorf("Context[pgno] = %v, want 7", err.Context["pgno"])
	}
	if !errors.Is(err, ErrCorrupt) {
		t.Error("errors.Is(err, ErrCorrupt) = false, want true")
	}
	if errors.Is(err, ErrIO) {
		t.Error("errors.Is(err, ErrIO) = true, want false")
	}
}

func TestNewDropsDanglingKey(t *testing.T) {
	err := New(CodeFormat, "bad field", "offset", 16, "dangling")
	if len(err.Context) != 1 {
		t.Errorf("len(Context) = %d, want 1", len(err.Context))
	}
}

func TestNewfWrapsCause(t *testing.T) {
	err := Newf(CodeIOError, io.ErrUnexpectedEOF, "read page %d", 3)

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("errors.Is(err, io.ErrUnexpectedEOF) = false, want true")
	}
	if !errors.Is(err, ErrIO) {
		t.Error("errors.Is(err, ErrIO) = false, want true")
	}
	want := "ioerr: read page 3: unexpected EOF"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := New(CodeCorrupt, "x", "pgno", 1)
	c := orig.Clone()
	c.With("pgno", 2)

	if orig.Context["pgno"] != 1 {
		t.Errorf("original context modified: %v", orig.Context["pgno"])
	}
	var nilErr *Error
	if nilErr.Clone() != nil {
		t.Error("Clone() of nil should be nil")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, CodeOK},
		{"plain", fmt.Errorf("boom"), CodeIOError},
		{"structured", New(CodeChecksum, "frame 3"), CodeChecksum},
		{"wrapped", fmt.Errorf("ctx: %w", New(CodeEmpty, "zero bytes")), CodeEmpty},
		{"structured wins", Newf(CodeFormat, NewIO("read", "a.db", io.EOF), "header"), CodeFormat},
		{"io", Wrap(NewIO("stat", "a.db", io.EOF), "open"), CodeIOError},
		{"missing entry", NewNotFound("archive entry", "manifest.json"), CodeCorrupt},
		{"bad manifest", NewParse("json", "manifest.json", "unexpected EOF"), CodeCorrupt},
		{"unsupported", NewUnsupported("dump compression", "zip"), CodeMisuse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}
