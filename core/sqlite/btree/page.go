// Package btree recognizes B-tree pages in raw page images without trusting
// anything else in the file.
package btree

import (
	"encoding/binary"
	"fmt"

	"github.com/FocuswithJustin/sqlsalvage/core/errors"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
)

// Page type constants (first byte of page header)
const (
	PageTypeInteriorIndex = 0x02 // Interior index b-tree page
	PageTypeInteriorTable = 0x05 // Interior table b-tree page
	PageTypeLeafIndex     = 0x0a // Leaf index b-tree page
	PageTypeLeafTable     = 0x0d // Leaf table b-tree page
)

// Page type flags (bit flags in page type byte)
const (
	flagIntKey = 0x01
	flagLeaf   = 0x08
)

// Page header offsets
const (
	offsetType       = 0
	offsetFreeblock  = 1
	offsetNumCells   = 3
	offsetCellStart  = 5
	offsetFragmented = 7
	offsetRightChild = 8
)

// Header sizes
const (
	PageHeaderSizeLeaf     = 8
	PageHeaderSizeInterior = 12
)

// PageHeader is the parsed header of a B-tree page.
type PageHeader struct {
	PageType         byte
	FirstFreeblock   uint16
	NumCells         uint16
	CellContentStart int // 0 on disk means 65536
	FragmentedBytes  byte
	RightChild       format.Pgno // interior pages only

	IsLeaf        bool
	IsTable       bool
	HeaderSize    int // 8 or 12
	CellPtrOffset int // offset of the cell pointer array within the page
}

// HeaderOffset returns where the B-tree header starts on page pgno. Page 1
// carries the 100-byte database header first.
func HeaderOffset(pgno format.Pgno) int {
	if pgno == 1 {
		return format.DatabaseHeaderSize
	}
	return 0
}

// ParsePageHeader parses the B-tree page header of page pgno. Every read is
// bounds-checked against data.
func ParsePageHeader(data []byte, pgno format.Pgno) (*PageHeader, error) {
	offset := HeaderOffset(pgno)
	if len(data) < offset+PageHeaderSizeLeaf {
		return nil, errors.New(errors.CodeCorrupt, "page too small for b-tree header",
			"pgno", pgno, "size", len(data))
	}

	h := &PageHeader{
		PageType:         data[offset+offsetType],
		FirstFreeblock:   binary.BigEndian.Uint16(data[offset+offsetFreeblock:]),
		NumCells:         binary.BigEndian.Uint16(data[offset+offsetNumCells:]),
		CellContentStart: int(binary.BigEndian.Uint16(data[offset+offsetCellStart:])),
		FragmentedBytes:  data[offset+offsetFragmented],
	}
	if h.CellContentStart == 0 {
		h.CellContentStart = format.MaxPageSize
	}

	switch h.PageType {
	case PageTypeInteriorIndex, PageTypeInteriorTable, PageTypeLeafIndex, PageTypeLeafTable:
	default:
		return nil, errors.New(errors.CodeCorrupt, fmt.Sprintf("invalid page type 0x%02x", h.PageType), "pgno", pgno)
	}

	h.IsLeaf = h.PageType&flagLeaf != 0
	h.IsTable = h.PageType&flagIntKey != 0

	if h.IsLeaf {
		h.HeaderSize = PageHeaderSizeLeaf
	} else {
		if len(data) < offset+PageHeaderSizeInterior {
			return nil, errors.New(errors.CodeCorrupt, "page too small for interior header",
				"pgno", pgno, "size", len(data))
		}
		h.RightChild = format.Pgno(binary.BigEndian.Uint32(data[offset+offsetRightChild:]))
		h.HeaderSize = PageHeaderSizeInterior
	}
	h.CellPtrOffset = offset + h.HeaderSize
	return h, nil
}

// Validate checks the header against the usable size of the page it came
// from: the cell pointer array and every cell offset must fit.
func (h *PageHeader) Validate(data []byte, usable int) error {
	if usable > len(data) {
		usable = len(data)
	}
	ptrEnd := h.CellPtrOffset + 2*int(h.NumCells)
	if ptrEnd > usable {
		return errors.New(errors.CodeCorrupt, "cell pointer array overruns page",
			"cells", h.NumCells, "usable", usable)
	}
	if h.NumCells > 0 && (h.CellContentStart < ptrEnd || h.CellContentStart > usable) {
		return errors.New(errors.CodeCorrupt, "cell content area out of bounds",
			"start", h.CellContentStart, "usable", usable)
	}
	if !h.IsLeaf && h.RightChild == 0 {
		return errors.New(errors.CodeCorrupt, "interior page without right child")
	}
	for i := 0; i < int(h.NumCells); i++ {
		ptr := int(binary.BigEndian.Uint16(data[h.CellPtrOffset+2*i:]))
		if ptr < h.CellContentStart || ptr >= usable {
			return errors.New(errors.CodeCorrupt, "cell pointer out of bounds", "cell", i, "offset", ptr)
		}
	}
	return nil
}

// Kind is the structural classification of a page image.
type Kind int

const (
	KindUnknown Kind = iota
	KindZero
	KindInteriorIndex
	KindInteriorTable
	KindLeafIndex
	KindLeafTable
)

func (k Kind) String() string {
	switch k {
	case KindZero:
		return "zero"
	case KindInteriorIndex:
		return "interior-index"
	case KindInteriorTable:
		return "interior-table"
	case KindLeafIndex:
		return "leaf-index"
	case KindLeafTable:
		return "leaf-table"
	}
	return "unknown"
}

// IsBtree reports whether the kind is one of the four B-tree page types.
func (k Kind) IsBtree() bool {
	return k >= KindInteriorIndex
}

// Classify returns the kind of page pgno. Pages whose header does not
// validate against usable are KindUnknown: overflow, freelist and damaged
// pages all land there.
func Classify(data []byte, pgno format.Pgno, usable int) Kind {
	if len(data) < HeaderOffset(pgno) {
		return KindUnknown
	}
	if isZero(data[HeaderOffset(pgno):]) {
		return KindZero
	}
	h, err := ParsePageHeader(data, pgno)
	if err != nil {
		return KindUnknown
	}
	if h.Validate(data, usable) != nil {
		return KindUnknown
	}
	switch h.PageType {
	case PageTypeInteriorIndex:
		return KindInteriorIndex
	case PageTypeInteriorTable:
		return KindInteriorTable
	case PageTypeLeafIndex:
		return KindLeafIndex
	default:
		return KindLeafTable
	}
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
