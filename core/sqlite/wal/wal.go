// Package wal indexes the committed frames of a SQLite write-ahead log.
//
// A Wal never writes its file. Validation reads the header, then scans
// frames in order while the salts and running checksum hold. Only frames up
// to the last commit record before the first bad frame are visible, and a
// WAL that cannot be validated contributes nothing.
package wal

import (
	"fmt"
	"sync"

	"github.com/FocuswithJustin/sqlsalvage/core/errors"
	"github.com/FocuswithJustin/sqlsalvage/core/repair"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/fileio"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
	"github.com/FocuswithJustin/sqlsalvage/internal/logging"
)

// Suffix is appended to a database path to name its WAL.
const Suffix = "-wal"

// PathFor returns the conventional WAL path for a database.
func PathFor(dbPath string) string {
	return dbPath + Suffix
}

// State is the validation state of a Wal.
type State int

const (
	StateUnopened State = iota
	StateValidating
	StateUsable
	StateUnusable
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateValidating:
		return "validating"
	case StateUsable:
		return "usable"
	case StateUnusable:
		return "unusable"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StopReason says why frame scanning ended.
type StopReason string

const (
	StopNone             StopReason = ""
	StopEOF              StopReason = "eof"
	StopTruncated        StopReason = "truncated frame"
	StopSaltMismatch     StopReason = "salt mismatch"
	StopChecksumMismatch StopReason = "checksum mismatch"
	StopZeroPage         StopReason = "zero page number"
	StopReadError        StopReason = "read error"
)

// Summary describes the outcome of a frame scan.
type Summary struct {
	// Valid is the number of frames whose salts and checksum held.
	Valid int
	// Committed is the number of valid frames covered by a commit record.
	Committed int
	// Pages is the number of distinct pages with a visible frame.
	Pages int
	// Dropped counts committed pages beyond the final database size.
	Dropped int
	// StopFrame is the 0-based index of the frame that ended the scan.
	StopFrame  int
	StopReason StopReason
}

// Wal is the committed-frame index of one WAL file.
type Wal struct {
	repair.Recorder
	init repair.Initializer

	path string
	file *fileio.FileHandle

	mu       sync.RWMutex
	pageSize int
	state    State
	header   *format.WalHeader
	frames   map[format.Pgno]int64 // pgno -> offset of the newest committed frame
	dbSize   uint32
	summary  Summary
}

// New returns a Wal for path. No I/O happens until Initialize.
func New(path string) *Wal {
	return &Wal{
		path:   path,
		file:   fileio.New(path),
		frames: make(map[format.Pgno]int64),
	}
}

// Path returns the WAL file path.
func (w *Wal) Path() string {
	return w.path
}

// SetPageSize sets the page size the WAL must match. Zero accepts whatever
// the WAL header declares. It has no effect after Initialize.
func (w *Wal) SetPageSize(pageSize int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state == StateUnopened {
		w.pageSize = pageSize
	}
}

// PageSize returns the page size frames are read with.
func (w *Wal) PageSize() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pageSize
}

// State returns the validation state.
func (w *Wal) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Initialize validates the WAL and builds the frame index. A WAL that
// fails validation is left Unusable and the error is returned; a usable
// WAL may still have stopped scanning early, see Frames.
func (w *Wal) Initialize() error {
	return w.init.Run(w.doInitialize)
}

// IsInitialized reports whether Initialize has succeeded.
func (w *Wal) IsInitialized() bool {
	return w.init.IsInitialized()
}

func (w *Wal) doInitialize() error {
	w.setState(StateValidating)

	if err := w.validate(); err != nil {
		_ = w.file.Close()
		w.setState(StateUnusable)
		return err
	}
	w.setState(StateUsable)
	return nil
}

func (w *Wal) validate() error {
	if err := w.file.Open(); err != nil {
		return w.fail(errors.CodeOf(err), err, "open wal")
	}
	size, err := w.file.Size()
	if err != nil {
		return w.fail(errors.CodeIOError, err, "stat wal")
	}
	if size == 0 {
		// A checkpoint that truncated the log leaves an empty file.
		w.summary.StopReason = StopEOF
		return nil
	}

	data, err := w.file.ReadAt(0, format.WalHeaderSize)
	if err != nil {
		return w.fail(errors.CodeIOError, err, "read wal header")
	}
	header, err := format.DecodeWalHeader(data)
	if err != nil {
		return w.fail(errors.CodeOf(err), err, "invalid wal header")
	}

	w.mu.Lock()
	if w.pageSize == 0 {
		w.pageSize = int(header.PageSize)
	}
	pageSize := w.pageSize
	w.header = header
	w.mu.Unlock()

	if int(header.PageSize) != pageSize {
		e := errors.New(errors.CodeFormat, "wal page size mismatch",
			"path", w.path, "wal_page_size", header.PageSize, "page_size", pageSize)
		w.Record(e)
		return e
	}

	w.scan(header, size)
	return nil
}

// scan walks frames until the first one that cannot be trusted and keeps
// those covered by the last commit record before it.
func (w *Wal) scan(header *format.WalHeader, size int64) {
	order := header.ByteOrder()
	frameSize := int64(format.WalFrameHeaderSize + w.pageSize)
	s1, s2 := header.Checksum1, header.Checksum2

	committed := make(map[format.Pgno]int64)
	pending := make(map[format.Pgno]int64)
	var dbSize uint32
	var summary Summary

	index := 0
	offset := int64(format.WalHeaderSize)
	for ; ; index, offset = index+1, offset+frameSize {
		if offset == size {
			summary.StopReason = StopEOF
			break
		}
		if offset+frameSize > size {
			summary.StopReason = StopTruncated
			break
		}

		frame, err := w.file.ReadAt(offset, int(frameSize))
		if err != nil {
			w.Record(errors.Newf(errors.CodeIOError, err, "read wal frame").With("frame", index))
			summary.StopReason = StopReadError
			break
		}
		if int64(len(frame)) < frameSize {
			summary.StopReason = StopTruncated
			break
		}

		fh, _ := format.DecodeFrameHeader(frame)
		if fh.Salt1 != header.Salt1 || fh.Salt2 != header.Salt2 {
			summary.StopReason = StopSaltMismatch
			break
		}
		if fh.Pgno == 0 {
			summary.StopReason = StopZeroPage
			break
		}
		s1, s2 = format.FrameChecksum(order, frame[:format.WalFrameHeaderSize], frame[format.WalFrameHeaderSize:], s1, s2)
		if s1 != fh.Checksum1 || s2 != fh.Checksum2 {
			summary.StopReason = StopChecksumMismatch
			break
		}

		summary.Valid++
		pending[fh.Pgno] = offset
		if fh.IsCommit() {
			for pgno, off := range pending {
				committed[pgno] = off
			}
			clear(pending)
			dbSize = fh.Commit
			summary.Committed = summary.Valid
		}
	}
	summary.StopFrame = index

	// A commit that shrank the database hides frames past its end.
	for pgno := range committed {
		if uint32(pgno) > dbSize {
			delete(committed, pgno)
			summary.Dropped++
		}
	}
	summary.Pages = len(committed)

	if summary.StopReason != StopEOF {
		logging.WalTruncated(w.path, index, string(summary.StopReason),
			"valid", summary.Valid, "committed", summary.Committed)
	}

	w.mu.Lock()
	w.frames = committed
	w.dbSize = dbSize
	w.summary = summary
	w.mu.Unlock()
}

func (w *Wal) fail(code errors.Code, cause error, msg string) error {
	e := errors.Newf(code, cause, "%s", msg).With("path", w.path)
	w.Record(e)
	return e
}

func (w *Wal) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Frame returns the offset of the newest committed frame for pgno.
// The offset points at the frame header; page content follows it.
func (w *Wal) Frame(pgno format.Pgno) (int64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.state != StateUsable {
		return 0, false
	}
	off, ok := w.frames[pgno]
	return off, ok
}

// ContainsPage reports whether pgno has a committed frame.
func (w *Wal) ContainsPage(pgno format.Pgno) bool {
	_, ok := w.Frame(pgno)
	return ok
}

// AcquirePageData returns a copy of the committed content of pgno with the
// frame header stripped.
func (w *Wal) AcquirePageData(pgno format.Pgno) ([]byte, error) {
	off, ok := w.Frame(pgno)
	if !ok {
		return nil, errors.New(errors.CodeMisuse, "no committed wal frame", "pgno", pgno)
	}
	pageSize := w.PageSize()

	data, err := w.file.ReadAt(off+format.WalFrameHeaderSize, pageSize)
	if err != nil {
		e := errors.Newf(errors.CodeIOError, err, "read wal page").With("pgno", pgno)
		w.Record(e)
		return nil, e
	}
	if len(data) != pageSize {
		// The file shrank after validation.
		e := errors.New(errors.CodeCorrupt, "short wal page", "pgno", pgno, "got", len(data))
		w.Record(e)
		return nil, e
	}
	return data, nil
}

// Pages returns the page numbers with a committed frame, in no particular order.
func (w *Wal) Pages() []format.Pgno {
	w.mu.RLock()
	defer w.mu.RUnlock()
	pages := make([]format.Pgno, 0, len(w.frames))
	for pgno := range w.frames {
		pages = append(pages, pgno)
	}
	return pages
}

// PageCount returns the database size in pages recorded by the last
// visible commit, or 0 when nothing is committed.
func (w *Wal) PageCount() uint32 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.dbSize
}

// Frames returns the scan summary.
func (w *Wal) Frames() Summary {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.summary
}

// Salts returns the header salts, or zeros before a header was read.
func (w *Wal) Salts() (uint32, uint32) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.header == nil {
		return 0, 0
	}
	return w.header.Salt1, w.header.Salt2
}

// CheckpointSequence returns the header checkpoint sequence number.
func (w *Wal) CheckpointSequence() uint32 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.header == nil {
		return 0
	}
	return w.header.CheckpointSeq
}

// Close releases the WAL file.
func (w *Wal) Close() error {
	return w.file.Close()
}
