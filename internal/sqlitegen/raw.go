package sqlitegen

import (
	"bytes"
	"encoding/binary"

	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
)

// FillPage returns a page of pageSize bytes all set to b.
func FillPage(pageSize int, b byte) []byte {
	return bytes.Repeat([]byte{b}, pageSize)
}

// Database returns a database image of pages pages. Page 1 starts with a
// valid header declaring the page count; the rest of page 1 is zero and
// every other page n is filled with byte(n).
func Database(pageSize, pages int) []byte {
	out := make([]byte, 0, pageSize*pages)
	for n := 1; n <= pages; n++ {
		if n == 1 {
			page := make([]byte, pageSize)
			copy(page, format.NewDatabaseHeader(pageSize, uint32(pages)).Serialize())
			out = append(out, page...)
			continue
		}
		out = append(out, FillPage(pageSize, byte(n))...)
	}
	return out
}

// Default salts written by NewWal.
const (
	DefaultSalt1 = 0x01020304
	DefaultSalt2 = 0x05060708
)

// WalBuilder assembles a WAL file with correct running checksums.
type WalBuilder struct {
	header   format.WalHeader
	pageSize int
	s1, s2   uint32
	buf      bytes.Buffer
	frames   int
}

// NewWal starts a WAL for pages of pageSize bytes. bigEndian selects the
// checksum word order.
func NewWal(pageSize int, bigEndian bool) *WalBuilder {
	magic := uint32(format.WalMagicLE)
	if bigEndian {
		magic = format.WalMagicBE
	}
	b := &WalBuilder{
		pageSize: pageSize,
		header: format.WalHeader{
			Magic:    magic,
			Version:  format.WalFormatVersion,
			PageSize: uint32(pageSize),
			Salt1:    DefaultSalt1,
			Salt2:    DefaultSalt2,
		},
	}
	b.header.Seal()
	b.s1, b.s2 = b.header.Checksum1, b.header.Checksum2
	b.buf.Write(b.header.Encode())
	return b
}

// Header returns the header the builder wrote.
func (b *WalBuilder) Header() format.WalHeader {
	return b.header
}

// Frame appends a frame for pgno. commit is the database size after the
// frame's transaction, or 0 for a frame inside a transaction. page is padded
// or cut to the page size.
func (b *WalBuilder) Frame(pgno format.Pgno, commit uint32, page []byte) *WalBuilder {
	content := make([]byte, b.pageSize)
	copy(content, page)

	fh := &format.FrameHeader{
		Pgno:   pgno,
		Commit: commit,
		Salt1:  b.header.Salt1,
		Salt2:  b.header.Salt2,
	}
	b.s1, b.s2 = format.FrameChecksum(b.order(), fh.Encode(), content, b.s1, b.s2)
	fh.Checksum1, fh.Checksum2 = b.s1, b.s2

	b.buf.Write(fh.Encode())
	b.buf.Write(content)
	b.frames++
	return b
}

// Frames returns the number of frames appended so far.
func (b *WalBuilder) Frames() int {
	return b.frames
}

// FrameOffset returns the file offset of the header of frame i (0-based).
func (b *WalBuilder) FrameOffset(i int) int64 {
	return int64(format.WalHeaderSize) + int64(i)*int64(format.WalFrameHeaderSize+b.pageSize)
}

// Bytes returns a copy of the WAL image built so far.
func (b *WalBuilder) Bytes() []byte {
	return bytes.Clone(b.buf.Bytes())
}

func (b *WalBuilder) order() binary.ByteOrder {
	return b.header.ByteOrder()
}
