// Package validation checks the paths and files handed to the salvage
// commands before any of them is opened.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

// Limits on user-supplied names.
const (
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrOverwritesInput  = errors.New("output would overwrite an input file")
	ErrTypeMismatch     = errors.New("file type mismatch")
)

// ValidatePath checks a path for length limits and characters no real
// path contains.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}

	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}

	return nil
}

// ValidateOutputPath checks that out is a usable destination: a valid path
// in an existing directory that is not one of inputs. Salvage never writes
// to the files it reads.
func ValidateOutputPath(out string, inputs ...string) error {
	if err := ValidatePath(out); err != nil {
		return err
	}

	absOut, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("failed to resolve output path: %w", err)
	}
	for _, in := range inputs {
		if in == "" {
			continue
		}
		absIn, err := filepath.Abs(in)
		if err != nil {
			return fmt.Errorf("failed to resolve input path: %w", err)
		}
		if absIn == absOut || sameFile(absIn, absOut) {
			return fmt.Errorf("%w: %s", ErrOverwritesInput, in)
		}
	}

	dir := filepath.Dir(absOut)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s is not a directory", dir)
	}
	return nil
}

// sameFile catches hard links and symlinks to an input.
func sameFile(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

// ValidateFilename checks a single path element.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}

	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}

	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}

	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}

	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}

	// Names starting with a hyphen read as flags
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}

	return nil
}

// SanitizeFilename turns filename into a valid single path element by
// replacing separators and dropping control characters.
func SanitizeFilename(filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")

	var cleaned strings.Builder
	for _, r := range filename {
		if !unicode.IsControl(r) {
			cleaned.WriteRune(r)
		}
	}
	filename = strings.TrimLeft(cleaned.String(), "-")

	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	return filename, nil
}

// DumpFilename returns the default dump name for a database: its base name
// with ".pages.tar" and the compression extension appended.
func DumpFilename(dbPath, compression string) (string, error) {
	name, err := SanitizeFilename(filepath.Base(dbPath))
	if err != nil {
		return "", err
	}
	name += ".pages.tar"
	if compression != "" && compression != "none" {
		name += "." + compression
	}
	return name, nil
}

// FileType is a file kind recognised from its leading bytes.
type FileType string

const (
	FileTypeSQLite  FileType = "sqlite"
	FileTypeWAL     FileType = "wal"
	FileTypeXZ      FileType = "xz"
	FileTypeTar     FileType = "tar"
	FileTypeTarXZ   FileType = "tar.xz"
	FileTypeUnknown FileType = "unknown"
)

// magicBytes defines magic byte signatures for file type detection.
var magicBytes = []struct {
	fileType FileType
	magic    []byte
	offset   int
}{
	{FileTypeSQLite, []byte("SQLite format 3\x00"), 0},
	{FileTypeWAL, []byte{0x37, 0x7f, 0x06, 0x82}, 0},
	{FileTypeWAL, []byte{0x37, 0x7f, 0x06, 0x83}, 0},
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, 0},
	{FileTypeTar, []byte("ustar"), 257},
}

// DetectFileType reads the first 512 bytes of r and returns the type they
// identify.
func DetectFileType(r io.Reader) (FileType, error) {
	buf := make([]byte, 512)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	return detectFileTypeFromMagic(buf[:n]), nil
}

// CheckFileType compares the content of r against the type filename
// suggests. A content type the name gives no opinion on is accepted.
func CheckFileType(r io.Reader, filename string) (FileType, error) {
	detected, err := DetectFileType(r)
	if err != nil {
		return FileTypeUnknown, err
	}
	expected := detectFileTypeFromName(filename)

	// xz hides the tar inside it
	if expected == FileTypeTarXZ && detected == FileTypeXZ {
		return FileTypeTarXZ, nil
	}
	if expected == FileTypeUnknown || detected == expected {
		return detected, nil
	}
	return detected, fmt.Errorf("%w: name suggests %s but content is %s", ErrTypeMismatch, expected, detected)
}

func detectFileTypeFromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if sig.offset+len(sig.magic) <= len(buf) {
			if bytes.Equal(buf[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
				return sig.fileType
			}
		}
	}
	return FileTypeUnknown
}

func detectFileTypeFromName(filename string) FileType {
	lower := strings.ToLower(filename)

	if strings.HasSuffix(lower, ".tar.xz") || strings.HasSuffix(lower, ".txz") {
		return FileTypeTarXZ
	}
	if strings.HasSuffix(lower, "-wal") {
		return FileTypeWAL
	}

	switch filepath.Ext(lower) {
	case ".tar":
		return FileTypeTar
	case ".xz":
		return FileTypeXZ
	case ".sqlite", ".db", ".sqlite3":
		return FileTypeSQLite
	default:
		return FileTypeUnknown
	}
}
