package pager

import (
	"github.com/FocuswithJustin/sqlsalvage/core/errors"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
)

// Source says where a page's content comes from.
type Source int

const (
	SourceNone Source = iota
	SourceBase
	SourceWal
)

func (s Source) String() string {
	switch s {
	case SourceBase:
		return "base"
	case SourceWal:
		return "wal"
	}
	return "invalid"
}

// Source reports where AcquirePageData(pgno) would read from, without
// reading. A failed read can still end up elsewhere; see AcquirePage.
func (p *Pager) Source(pgno format.Pgno) Source {
	switch {
	case !p.ready.Load() || pgno == 0:
		return SourceNone
	case p.walUsable && p.wal.ContainsPage(pgno):
		return SourceWal
	case int(pgno) <= p.pageCount:
		return SourceBase
	}
	return SourceNone
}

// AcquirePageData returns a copy of page number pgno, exactly PageSize bytes
// long. Committed WAL frames shadow the base file.
//
// A page number outside [1, PageCount] with no WAL frame, or a page the file
// is too short to hold, marks the Pager corrupted and yields a zero-filled
// page with a nil error. A real I/O failure returns the zero-filled page and
// the error.
func (p *Pager) AcquirePageData(pgno format.Pgno) ([]byte, error) {
	data, _, err := p.AcquirePage(pgno)
	return data, err
}

// AcquirePage is AcquirePageData that also reports where the content was
// read from. Zero-filled pages report SourceNone.
func (p *Pager) AcquirePage(pgno format.Pgno) ([]byte, Source, error) {
	if !p.ready.Load() {
		return nil, SourceNone, errors.New(errors.CodeMisuse, "pager not initialized", "path", p.path)
	}
	p.reads.Add(1)

	if pgno == 0 {
		return p.invalidPage(pgno, "page number zero")
	}
	if p.cache != nil {
		if data, ok := p.cache.Get(pgno); ok {
			// Only pages read from their primary source are cached.
			return data, p.Source(pgno), nil
		}
	}

	fromWal := p.walUsable && p.wal.ContainsPage(pgno)
	if fromWal {
		data, err := p.wal.AcquirePageData(pgno)
		if err == nil && len(data) == p.pageSize {
			p.walReads.Add(1)
			p.remember(pgno, data)
			return data, SourceWal, nil
		}
		if err == nil {
			err = errors.New(errors.CodeCorrupt, "wal page has wrong size", "got", len(data))
		}
		// Fall through to the base file.
		p.Record(errors.Newf(errors.CodeOf(err), err, "wal read failed").
			With("path", p.path).With("pgno", pgno))
	}

	if int(pgno) > p.pageCount {
		return p.invalidPage(pgno, "page number out of range")
	}

	offset := int64(pgno-1) * int64(p.pageSize)
	data, err := p.AcquireData(offset, p.pageSize)
	if err != nil {
		p.corruptReads.Add(1)
		return make([]byte, p.pageSize), SourceNone, err
	}
	if len(data) < p.pageSize {
		return p.invalidPage(pgno, "short page read")
	}

	p.baseReads.Add(1)
	if !fromWal {
		p.remember(pgno, data)
	}
	return data, SourceBase, nil
}

func (p *Pager) invalidPage(pgno format.Pgno, reason string) ([]byte, Source, error) {
	p.corruptReads.Add(1)
	p.markAsError(errors.CodeCorrupt, reason, "pgno", pgno, "page_count", p.pageCount)
	return make([]byte, p.pageSize), SourceNone, nil
}

func (p *Pager) remember(pgno format.Pgno, data []byte) {
	if p.cache != nil {
		p.cache.Put(pgno, data)
	}
}

// AcquireData reads size bytes at offset, bypassing pages and the WAL. It
// returns fewer bytes at the end of the file; range checks are left to the
// caller. Only a failed read is an error.
func (p *Pager) AcquireData(offset int64, size int) ([]byte, error) {
	data, err := p.file.ReadAt(offset, size)
	if err != nil {
		e := errors.Newf(errors.CodeOf(err), err, "read database").
			With("path", p.path).With("offset", offset).With("size", size)
		p.record(e)
		return nil, e
	}
	return data, nil
}
