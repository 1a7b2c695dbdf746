package format

import (
	"encoding/binary"

	"github.com/FocuswithJustin/sqlsalvage/core/errors"
)

// WAL file format constants
const (
	// WalHeaderSize is the size of the WAL file header.
	WalHeaderSize = 32

	// WalFrameHeaderSize is the size of the header preceding each page in a frame.
	WalFrameHeaderSize = 24

	// WalMagicLE marks a WAL whose checksums use little-endian words.
	WalMagicLE = 0x377f0682

	// WalMagicBE marks a WAL whose checksums use big-endian words.
	WalMagicBE = 0x377f0683

	// WalFormatVersion is the only WAL format version SQLite has written.
	WalFormatVersion = 3007000
)

// Pgno is a 1-based page number. Zero never names a page.
type Pgno uint32

// WalHeader is the 32-byte header at the start of a WAL file.
type WalHeader struct {
	Magic         uint32
	Version       uint32
	PageSize      uint32
	CheckpointSeq uint32
	Salt1         uint32
	Salt2         uint32
	Checksum1     uint32
	Checksum2     uint32
}

// BigEndianChecksum reports whether frame checksums read words big-endian.
func (h *WalHeader) BigEndianChecksum() bool {
	return h.Magic&1 == 1
}

// ByteOrder returns the word order used for checksums.
func (h *WalHeader) ByteOrder() binary.ByteOrder {
	if h.BigEndianChecksum() {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Encode writes the header fields as stored, without recomputing the checksum.
func (h *WalHeader) Encode() []byte {
	b := make([]byte, WalHeaderSize)
	binary.BigEndian.PutUint32(b[0:], h.Magic)
	binary.BigEndian.PutUint32(b[4:], h.Version)
	binary.BigEndian.PutUint32(b[8:], h.PageSize)
	binary.BigEndian.PutUint32(b[12:], h.CheckpointSeq)
	binary.BigEndian.PutUint32(b[16:], h.Salt1)
	binary.BigEndian.PutUint32(b[20:], h.Salt2)
	binary.BigEndian.PutUint32(b[24:], h.Checksum1)
	binary.BigEndian.PutUint32(b[28:], h.Checksum2)
	return b
}

// Seal recomputes Checksum1/Checksum2 over the first 24 header bytes.
func (h *WalHeader) Seal() {
	b := h.Encode()
	h.Checksum1, h.Checksum2 = WalChecksum(h.ByteOrder(), b[:24], 0, 0)
}

// DecodeWalHeader parses and validates a WAL header: magic, format version,
// page size and header checksum.
func DecodeWalHeader(data []byte) (*WalHeader, error) {
	if len(data) < WalHeaderSize {
		return nil, errors.New(errors.CodeCorrupt, "short wal header", "got", len(data), "want", WalHeaderSize)
	}

	h := &WalHeader{
		Magic:         binary.BigEndian.Uint32(data[0:]),
		Version:       binary.BigEndian.Uint32(data[4:]),
		PageSize:      binary.BigEndian.Uint32(data[8:]),
		CheckpointSeq: binary.BigEndian.Uint32(data[12:]),
		Salt1:         binary.BigEndian.Uint32(data[16:]),
		Salt2:         binary.BigEndian.Uint32(data[20:]),
		Checksum1:     binary.BigEndian.Uint32(data[24:]),
		Checksum2:     binary.BigEndian.Uint32(data[28:]),
	}

	if h.Magic != WalMagicLE && h.Magic != WalMagicBE {
		return nil, errors.New(errors.CodeFormat, "invalid wal magic", "magic", h.Magic)
	}
	if h.Version != WalFormatVersion {
		return nil, errors.New(errors.CodeFormat, "unsupported wal format version", "version", h.Version)
	}
	if !IsValidPageSize(int(h.PageSize)) {
		return nil, errors.New(errors.CodeFormat, "invalid wal page size", "page_size", h.PageSize)
	}

	s1, s2 := WalChecksum(h.ByteOrder(), data[:24], 0, 0)
	if s1 != h.Checksum1 || s2 != h.Checksum2 {
		return nil, errors.New(errors.CodeChecksum, "wal header checksum mismatch")
	}
	return h, nil
}

// FrameHeader is the 24-byte header preceding each page image in a WAL.
type FrameHeader struct {
	Pgno      Pgno
	Commit    uint32 // database size in pages after commit, 0 inside a transaction
	Salt1     uint32
	Salt2     uint32
	Checksum1 uint32
	Checksum2 uint32
}

// IsCommit reports whether the frame ends a transaction.
func (f *FrameHeader) IsCommit() bool {
	return f.Commit != 0
}

// Encode writes the frame header fields as stored.
func (f *FrameHeader) Encode() []byte {
	b := make([]byte, WalFrameHeaderSize)
	binary.BigEndian.PutUint32(b[0:], uint32(f.Pgno))
	binary.BigEndian.PutUint32(b[4:], f.Commit)
	binary.BigEndian.PutUint32(b[8:], f.Salt1)
	binary.BigEndian.PutUint32(b[12:], f.Salt2)
	binary.BigEndian.PutUint32(b[16:], f.Checksum1)
	binary.BigEndian.PutUint32(b[20:], f.Checksum2)
	return b
}

// DecodeFrameHeader parses a frame header without validating it.
func DecodeFrameHeader(data []byte) (*FrameHeader, error) {
	if len(data) < WalFrameHeaderSize {
		return nil, errors.New(errors.CodeCorrupt, "short wal frame header", "got", len(data), "want", WalFrameHeaderSize)
	}
	return &FrameHeader{
		Pgno:      Pgno(binary.BigEndian.Uint32(data[0:])),
		Commit:    binary.BigEndian.Uint32(data[4:]),
		Salt1:     binary.BigEndian.Uint32(data[8:]),
		Salt2:     binary.BigEndian.Uint32(data[12:]),
		Checksum1: binary.BigEndian.Uint32(data[16:]),
		Checksum2: binary.BigEndian.Uint32(data[20:]),
	}, nil
}

// FrameChecksum continues the running checksum (s1, s2) over a frame: the
// first 8 bytes of its header followed by the page image.
func FrameChecksum(order binary.ByteOrder, frameHeader, page []byte, s1, s2 uint32) (uint32, uint32) {
	s1, s2 = WalChecksum(order, frameHeader[:8], s1, s2)
	return WalChecksum(order, page, s1, s2)
}

// WalChecksum is SQLite's WAL checksum: a Fibonacci-weighted sum over pairs
// of 32-bit words. len(data) must be a multiple of 8; trailing bytes are ignored.
func WalChecksum(order binary.ByteOrder, data []byte, s1, s2 uint32) (uint32, uint32) {
	for i := 0; i+8 <= len(data); i += 8 {
		s1 += order.Uint32(data[i:]) + s2
		s2 += order.Uint32(data[i+4:]) + s1
	}
	return s1, s2
}
