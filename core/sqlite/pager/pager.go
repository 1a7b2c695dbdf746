package pager

import (
	"sync/atomic"

	"github.com/FocuswithJustin/sqlsalvage/core/cache"
	"github.com/FocuswithJustin/sqlsalvage/core/errors"
	"github.com/FocuswithJustin/sqlsalvage/core/repair"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/fileio"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
	"github.com/FocuswithJustin/sqlsalvage/internal/logging"
)

// FrameSource is the WAL a Pager consults before the base file. The Pager
// initializes it but never closes it.
type FrameSource interface {
	Path() string
	SetPageSize(pageSize int)
	PageSize() int
	Initialize() error
	ContainsPage(pgno format.Pgno) bool
	AcquirePageData(pgno format.Pgno) ([]byte, error)
}

// Stats counts page reads since initialization.
type Stats struct {
	Reads        int64
	WalReads     int64
	BaseReads    int64
	CorruptReads int64
	Cache        cache.Stats
}

const noHint = -1

// Pager reads pages of one database file.
type Pager struct {
	repair.Recorder
	init  repair.Initializer
	ready atomic.Bool

	path string
	file *fileio.FileHandle

	pageSizeHint int
	reservedHint int
	cacheSize    int

	// Set once by Initialize.
	pageSize      int
	reservedBytes int
	pageCount     int
	header        *format.DatabaseHeader
	wal           FrameSource
	walUsable     bool
	cache         *cache.PageCache

	reads, walReads, baseReads, corruptReads atomic.Int64
}

var _ repair.Component = (*Pager)(nil)

// New returns a Pager for path. No I/O happens until Initialize.
func New(path string) *Pager {
	return &Pager{
		path:         path,
		file:         fileio.New(path),
		pageSizeHint: 0,
		reservedHint: noHint,
	}
}

// Path returns the database path.
func (p *Pager) Path() string {
	return p.path
}

// SetPageSize sets the page size used when the header's is unusable.
func (p *Pager) SetPageSize(pageSize int) {
	p.pageSizeHint = pageSize
}

// SetReservedBytes sets the reserved bytes used when the header's are unusable.
func (p *Pager) SetReservedBytes(reserved int) {
	p.reservedHint = reserved
}

// SetCacheSize keeps up to n resolved pages in memory. Zero disables the cache.
func (p *Pager) SetCacheSize(n int) {
	p.cacheSize = n
}

// SetWal attaches a WAL. It must be called before Initialize.
func (p *Pager) SetWal(w FrameSource) {
	p.wal = w
}

// Wal returns the attached WAL, or nil.
func (p *Pager) Wal() FrameSource {
	return p.wal
}

// WalUsable reports whether the attached WAL passed validation.
func (p *Pager) WalUsable() bool {
	return p.ready.Load() && p.walUsable
}

// Initialize opens the file and derives the page geometry. The outcome of
// the first call is returned by every later call.
func (p *Pager) Initialize() error {
	return p.init.Run(p.doInitialize)
}

// IsInitialized reports whether Initialize has succeeded.
func (p *Pager) IsInitialized() bool {
	return p.ready.Load()
}

// PageCount returns the number of addressable pages, or 0 before Initialize.
func (p *Pager) PageCount() int {
	if !p.ready.Load() {
		return 0
	}
	return p.pageCount
}

// PageSize returns the page size, or the hint before Initialize.
func (p *Pager) PageSize() int {
	if !p.ready.Load() {
		return p.pageSizeHint
	}
	return p.pageSize
}

// ReservedBytes returns the per-page reserved space, or the hint before Initialize.
func (p *Pager) ReservedBytes() int {
	if !p.ready.Load() {
		return max(p.reservedHint, 0)
	}
	return p.reservedBytes
}

// UsableSize returns PageSize - ReservedBytes.
func (p *Pager) UsableSize() int {
	return p.PageSize() - p.ReservedBytes()
}

// Header returns a copy of the decoded database header, or nil when it
// could not be read.
func (p *Pager) Header() *format.DatabaseHeader {
	if !p.ready.Load() || p.header == nil {
		return nil
	}
	h := *p.header
	return &h
}

// Stats returns read counters.
func (p *Pager) Stats() Stats {
	s := Stats{
		Reads:        p.reads.Load(),
		WalReads:     p.walReads.Load(),
		BaseReads:    p.baseReads.Load(),
		CorruptReads: p.corruptReads.Load(),
	}
	if p.cache != nil {
		s.Cache = p.cache.Stats()
	}
	return s
}

// Close releases the file handle. The attached WAL stays open.
func (p *Pager) Close() error {
	if p.cache != nil {
		p.cache.Clear()
	}
	return p.file.Close()
}

// MarkAsCorrupted flags the Pager as corrupted. Only the call that sets
// the flag records an error.
func (p *Pager) MarkAsCorrupted() {
	if !p.MarkCorrupted() {
		return
	}
	p.Record(errors.New(errors.CodeCorrupt, "database marked as corrupted", "path", p.path))
	logging.PageCorrupted(p.path, "marked as corrupted")
}

// markAsError records a structured error. Integrity codes also flag the
// Pager as corrupted; I/O and misuse codes do not.
func (p *Pager) markAsError(code errors.Code, msg string, kv ...any) *errors.Error {
	e := errors.New(code, msg, kv...).With("path", p.path)
	p.record(e)
	return e
}

func (p *Pager) record(e *errors.Error) {
	p.Record(e)
	if e.Code.IsIntegrity() {
		p.MarkCorrupted()
		logging.PageCorrupted(p.path, e.Message, "code", e.Code.String(), "detail", e.Error())
	}
}
