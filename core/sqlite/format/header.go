package format

import (
	"encoding/binary"
	"fmt"

	"github.com/FocuswithJustin/sqlsalvage/core/errors"
)

// File format constants
const (
	// DatabaseHeaderSize is the size of the database file header (first 100 bytes).
	DatabaseHeaderSize = 100

	// DefaultPageSize is the page size assumed when neither the header nor a hint is usable.
	DefaultPageSize = 4096

	// MinPageSize is the minimum allowed page size (512 bytes).
	MinPageSize = 512

	// MaxPageSize is the maximum allowed page size (65536 bytes).
	MaxPageSize = 65536

	// MinUsableSize is the smallest usable page area SQLite accepts.
	MinUsableSize = 480

	// MaxReservedBytes is the largest value of the one-byte reserved space field.
	MaxReservedBytes = 255

	// MagicHeaderString is the magic header string for SQLite 3 database files.
	// Must be exactly 16 bytes including the null terminator.
	MagicHeaderString = "SQLite format 3\x00"
)

// Database header byte offsets
const (
	// OffsetMagic is the offset of the magic header string (16 bytes).
	OffsetMagic = 0

	// OffsetPageSize is the offset of the page size field (2 bytes, big-endian).
	// A value of 1 represents 65536.
	OffsetPageSize = 16

	// OffsetFileFormatWrite is the file format write version (1 byte).
	OffsetFileFormatWrite = 18

	// OffsetFileFormatRead is the file format read version (1 byte).
	OffsetFileFormatRead = 19

	// OffsetReservedSpace is the reserved space at end of each page (1 byte).
	OffsetReservedSpace = 20

	// OffsetMaxPayloadFrac is the maximum embedded payload fraction (1 byte).
	OffsetMaxPayloadFrac = 21

	// OffsetMinPayloadFrac is the minimum embedded payload fraction (1 byte).
	OffsetMinPayloadFrac = 22

	// OffsetLeafPayloadFrac is the leaf payload fraction (1 byte).
	OffsetLeafPayloadFrac = 23

	// OffsetFileChangeCounter is the file change counter (4 bytes, big-endian).
	OffsetFileChangeCounter = 24

	// OffsetDatabaseSize is the database size in pages (4 bytes, big-endian).
	OffsetDatabaseSize = 28

	// OffsetFreelistTrunk is the first freelist trunk page (4 bytes, big-endian).
	OffsetFreelistTrunk = 32

	// OffsetFreelistCount is the total number of freelist pages (4 bytes, big-endian).
	OffsetFreelistCount = 36

	// OffsetSchemaCookie is the schema cookie (4 bytes, big-endian).
	OffsetSchemaCookie = 40

	// OffsetSchemaFormat is the schema format number (4 bytes, big-endian).
	OffsetSchemaFormat = 44

	// OffsetDefaultCacheSize is the default page cache size (4 bytes, big-endian).
	OffsetDefaultCacheSize = 48

	// OffsetLargestRootPage is the largest root b-tree page (4 bytes, big-endian).
	OffsetLargestRootPage = 52

	// OffsetTextEncoding is the database text encoding (4 bytes, big-endian).
	OffsetTextEncoding = 56

	// OffsetUserVersion is the user version (4 bytes, big-endian).
	OffsetUserVersion = 60

	// OffsetIncrementalVacuum is the incremental vacuum mode (4 bytes, big-endian).
	OffsetIncrementalVacuum = 64

	// OffsetApplicationID is the application ID (4 bytes, big-endian).
	OffsetApplicationID = 68

	// OffsetReserved is the reserved space (20 bytes, must be zero).
	OffsetReserved = 72

	// OffsetVersionValidFor is the version-valid-for number (4 bytes, big-endian).
	OffsetVersionValidFor = 92

	// OffsetSQLiteVersion is the SQLite version number (4 bytes, big-endian).
	OffsetSQLiteVersion = 96
)

// Text encoding values
const (
	EncodingUTF8    = 1
	EncodingUTF16LE = 2
	EncodingUTF16BE = 3
)

// DatabaseHeader holds the raw fields of the 100-byte header at the start of
// every SQLite database file. Fields are stored exactly as read; use the
// accessor methods to obtain validated values.
type DatabaseHeader struct {
	Magic             [16]byte
	PageSize          uint16 // raw field; 1 means 65536
	FileFormatWrite   uint8
	FileFormatRead    uint8
	ReservedSpace     uint8
	MaxPayloadFrac    uint8
	MinPayloadFrac    uint8
	LeafPayloadFrac   uint8
	FileChangeCounter uint32
	DatabaseSize      uint32
	FreelistTrunk     uint32
	FreelistCount     uint32
	SchemaCookie      uint32
	SchemaFormat      uint32
	DefaultCacheSize  uint32
	LargestRootPage   uint32
	TextEncoding      uint32
	UserVersion       uint32
	IncrementalVacuum uint32
	ApplicationID     uint32
	Reserved          [20]byte
	VersionValidFor   uint32
	SQLiteVersion     uint32
}

// DecodeDatabaseHeader copies the raw header fields out of data. It fails
// only when data is shorter than the header; field plausibility is left to
// the accessors so a damaged header can still be inspected.
func DecodeDatabaseHeader(data []byte) (*DatabaseHeader, error) {
	if len(data) < DatabaseHeaderSize {
		return nil, errors.New(errors.CodeCorrupt, "short database header",
			"got", len(data), "want", DatabaseHeaderSize)
	}

	h := &DatabaseHeader{}
	copy(h.Magic[:], data[OffsetMagic:OffsetMagic+16])
	h.PageSize = binary.BigEndian.Uint16(data[OffsetPageSize:])

	h.FileFormatWrite = data[OffsetFileFormatWrite]
	h.FileFormatRead = data[OffsetFileFormatRead]
	h.ReservedSpace = data[OffsetReservedSpace]
	h.MaxPayloadFrac = data[OffsetMaxPayloadFrac]
	h.MinPayloadFrac = data[OffsetMinPayloadFrac]
	h.LeafPayloadFrac = data[OffsetLeafPayloadFrac]

	h.FileChangeCounter = binary.BigEndian.Uint32(data[OffsetFileChangeCounter:])
	h.DatabaseSize = binary.BigEndian.Uint32(data[OffsetDatabaseSize:])
	h.FreelistTrunk = binary.BigEndian.Uint32(data[OffsetFreelistTrunk:])
	h.FreelistCount = binary.BigEndian.Uint32(data[OffsetFreelistCount:])
	h.SchemaCookie = binary.BigEndian.Uint32(data[OffsetSchemaCookie:])
	h.SchemaFormat = binary.BigEndian.Uint32(data[OffsetSchemaFormat:])
	h.DefaultCacheSize = binary.BigEndian.Uint32(data[OffsetDefaultCacheSize:])
	h.LargestRootPage = binary.BigEndian.Uint32(data[OffsetLargestRootPage:])
	h.TextEncoding = binary.BigEndian.Uint32(data[OffsetTextEncoding:])
	h.UserVersion = binary.BigEndian.Uint32(data[OffsetUserVersion:])
	h.IncrementalVacuum = binary.BigEndian.Uint32(data[OffsetIncrementalVacuum:])
	h.ApplicationID = binary.BigEndian.Uint32(data[OffsetApplicationID:])
	copy(h.Reserved[:], data[OffsetReserved:OffsetReserved+20])
	h.VersionValidFor = binary.BigEndian.Uint32(data[OffsetVersionValidFor:])
	h.SQLiteVersion = binary.BigEndian.Uint32(data[OffsetSQLiteVersion:])

	return h, nil
}

// NewDatabaseHeader creates a header with the defaults SQLite writes for a
// fresh database of pageCount pages.
func NewDatabaseHeader(pageSize int, pageCount uint32) *DatabaseHeader {
	storedPageSize := uint16(pageSize)
	if pageSize == MaxPageSize {
		storedPageSize = 1
	}

	header := &DatabaseHeader{
		PageSize:          storedPageSize,
		FileFormatWrite:   1,
		FileFormatRead:    1,
		MaxPayloadFrac:    64,
		MinPayloadFrac:    32,
		LeafPayloadFrac:   32,
		FileChangeCounter: 1,
		DatabaseSize:      pageCount,
		SchemaFormat:      4,
		TextEncoding:      EncodingUTF8,
		VersionValidFor:   1,
		SQLiteVersion:     3051002,
	}
	copy(header.Magic[:], MagicHeaderString)
	return header
}

// Serialize encodes the header to 100 bytes.
func (h *DatabaseHeader) Serialize() []byte {
	data := make([]byte, DatabaseHeaderSize)

	copy(data[OffsetMagic:], h.Magic[:])
	binary.BigEndian.PutUint16(data[OffsetPageSize:], h.PageSize)

	data[OffsetFileFormatWrite] = h.FileFormatWrite
	data[OffsetFileFormatRead] = h.FileFormatRead
	data[OffsetReservedSpace] = h.ReservedSpace
	data[OffsetMaxPayloadFrac] = h.MaxPayloadFrac
	data[OffsetMinPayloadFrac] = h.MinPayloadFrac
	data[OffsetLeafPayloadFrac] = h.LeafPayloadFrac

	binary.BigEndian.PutUint32(data[OffsetFileChangeCounter:], h.FileChangeCounter)
	binary.BigEndian.PutUint32(data[OffsetDatabaseSize:], h.DatabaseSize)
	binary.BigEndian.PutUint32(data[OffsetFreelistTrunk:], h.FreelistTrunk)
	binary.BigEndian.PutUint32(data[OffsetFreelistCount:], h.FreelistCount)
	binary.BigEndian.PutUint32(data[OffsetSchemaCookie:], h.SchemaCookie)
	binary.BigEndian.PutUint32(data[OffsetSchemaFormat:], h.SchemaFormat)
	binary.BigEndian.PutUint32(data[OffsetDefaultCacheSize:], h.DefaultCacheSize)
	binary.BigEndian.PutUint32(data[OffsetLargestRootPage:], h.LargestRootPage)
	binary.BigEndian.PutUint32(data[OffsetTextEncoding:], h.TextEncoding)
	binary.BigEndian.PutUint32(data[OffsetUserVersion:], h.UserVersion)
	binary.BigEndian.PutUint32(data[OffsetIncrementalVacuum:], h.IncrementalVacuum)
	binary.BigEndian.PutUint32(data[OffsetApplicationID:], h.ApplicationID)
	copy(data[OffsetReserved:], h.Reserved[:])
	binary.BigEndian.PutUint32(data[OffsetVersionValidFor:], h.VersionValidFor)
	binary.BigEndian.PutUint32(data[OffsetSQLiteVersion:], h.SQLiteVersion)

	return data
}

// CheckMagic reports whether the header starts with the SQLite magic string.
func (h *DatabaseHeader) CheckMagic() error {
	if string(h.Magic[:]) != MagicHeaderString {
		return errors.New(errors.CodeNotADatabase, fmt.Sprintf("invalid magic header %q", h.Magic[:]))
	}
	return nil
}

// DecodePageSize converts a raw two-byte page size field to bytes.
func DecodePageSize(raw uint16) (int, error) {
	size := int(raw)
	if raw == 1 {
		size = MaxPageSize
	}
	if !IsValidPageSize(size) {
		return 0, errors.New(errors.CodeFormat, "invalid page size", "raw", raw)
	}
	return size, nil
}

// PageSizeValue returns the validated page size in bytes.
func (h *DatabaseHeader) PageSizeValue() (int, error) {
	return DecodePageSize(h.PageSize)
}

// ReservedBytesValue returns the reserved space, validated against the
// page size it will be subtracted from.
func (h *DatabaseHeader) ReservedBytesValue(pageSize int) (int, error) {
	reserved := int(h.ReservedSpace)
	if err := ValidateReservedBytes(pageSize, reserved); err != nil {
		return 0, err
	}
	return reserved, nil
}

// DeclaredPageCount returns the in-header database size. SQLite only trusts
// it when version-valid-for equals the change counter and the value is non-zero.
func (h *DatabaseHeader) DeclaredPageCount() (uint32, error) {
	if h.DatabaseSize == 0 {
		return 0, errors.New(errors.CodeFormat, "in-header database size is zero")
	}
	if h.VersionValidFor != h.FileChangeCounter {
		return 0, errors.New(errors.CodeFormat, "in-header database size is stale",
			"version_valid_for", h.VersionValidFor, "change_counter", h.FileChangeCounter)
	}
	return h.DatabaseSize, nil
}

// Validate checks the fields that do not affect page geometry. It returns
// every problem found so a caller can report all of them.
func (h *DatabaseHeader) Validate() []error {
	var problems []error

	if h.FileFormatWrite < 1 || h.FileFormatWrite > 2 {
		problems = append(problems, errors.New(errors.CodeFormat, "invalid file format write version", "value", h.FileFormatWrite))
	}
	if h.FileFormatRead < 1 || h.FileFormatRead > 2 {
		problems = append(problems, errors.New(errors.CodeFormat, "invalid file format read version", "value", h.FileFormatRead))
	}
	if h.MaxPayloadFrac != 64 {
		problems = append(problems, errors.New(errors.CodeFormat, "invalid max payload fraction", "value", h.MaxPayloadFrac))
	}
	if h.MinPayloadFrac != 32 {
		problems = append(problems, errors.New(errors.CodeFormat, "invalid min payload fraction", "value", h.MinPayloadFrac))
	}
	if h.LeafPayloadFrac != 32 {
		problems = append(problems, errors.New(errors.CodeFormat, "invalid leaf payload fraction", "value", h.LeafPayloadFrac))
	}
	// Schema format 0 is what SQLite writes before the first table exists.
	if h.SchemaFormat > 4 {
		problems = append(problems, errors.New(errors.CodeFormat, "invalid schema format", "value", h.SchemaFormat))
	}
	if h.TextEncoding != 0 && (h.TextEncoding < EncodingUTF8 || h.TextEncoding > EncodingUTF16BE) {
		problems = append(problems, errors.New(errors.CodeFormat, "invalid text encoding", "value", h.TextEncoding))
	}

	return problems
}

// IsValidPageSize checks if a page size in bytes is a power of two between
// 512 and 65536 inclusive.
func IsValidPageSize(size int) bool {
	if size < MinPageSize || size > MaxPageSize {
		return false
	}
	return size&(size-1) == 0
}

// ValidateReservedBytes checks that reserved bytes fit the one-byte field and
// leave at least MinUsableSize bytes of usable space.
func ValidateReservedBytes(pageSize, reserved int) error {
	if reserved < 0 || reserved > MaxReservedBytes {
		return errors.New(errors.CodeFormat, "reserved bytes out of range", "value", reserved)
	}
	if pageSize-reserved < MinUsableSize {
		return errors.New(errors.CodeFormat, "usable size below minimum",
			"page_size", pageSize, "reserved", reserved)
	}
	return nil
}
