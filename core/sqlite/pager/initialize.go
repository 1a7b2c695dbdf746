package pager

import (
	"github.com/FocuswithJustin/sqlsalvage/core/cache"
	"github.com/FocuswithJustin/sqlsalvage/core/errors"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
	"github.com/FocuswithJustin/sqlsalvage/internal/logging"
)

func (p *Pager) doInitialize() (err error) {
	if err := p.file.Open(); err != nil {
		e := errors.Newf(errors.CodeIOError, err, "open database").With("path", p.path)
		p.Record(e)
		return e
	}
	defer func() {
		if err != nil {
			_ = p.file.Close()
		}
	}()

	size, err := p.file.Size()
	if err != nil {
		e := errors.Newf(errors.CodeIOError, err, "stat database").With("path", p.path)
		p.Record(e)
		return e
	}
	if size == 0 {
		return p.markAsError(errors.CodeEmpty, "database file is empty")
	}

	data, err := p.AcquireData(0, format.DatabaseHeaderSize)
	if err != nil {
		return err
	}
	header := p.readHeader(data)

	pageSize, err := p.resolvePageSize(header)
	if err != nil {
		return err
	}
	p.pageSize = pageSize
	p.reservedBytes = p.resolveReservedBytes(header, pageSize)
	p.pageCount = p.resolvePageCount(header, size, pageSize)
	p.header = header

	if header != nil {
		for _, problem := range header.Validate() {
			p.recordProblem(problem)
		}
	}

	p.attachWal()

	if p.cacheSize > 0 {
		p.cache = cache.NewPageCache(p.cacheSize)
	}

	p.ready.Store(true)
	return nil
}

// readHeader decodes the database header. A short read yields nil and the
// hints take over.
func (p *Pager) readHeader(data []byte) *format.DatabaseHeader {
	header, err := format.DecodeDatabaseHeader(data)
	if err != nil {
		p.markAsError(errors.CodeCorrupt, "short database header", "got", len(data))
		return nil
	}
	if err := header.CheckMagic(); err != nil {
		p.recordProblem(err)
	}
	return header
}

func (p *Pager) resolvePageSize(header *format.DatabaseHeader) (int, error) {
	if header != nil {
		size, err := header.PageSizeValue()
		if err == nil {
			return size, nil
		}
		p.recordProblem(err)
	}

	if p.pageSizeHint == 0 {
		return format.DefaultPageSize, nil
	}
	if !format.IsValidPageSize(p.pageSizeHint) {
		return 0, p.markAsError(errors.CodeMisuse, "no usable page size", "hint", p.pageSizeHint)
	}
	return p.pageSizeHint, nil
}

func (p *Pager) resolveReservedBytes(header *format.DatabaseHeader, pageSize int) int {
	if header != nil {
		reserved, err := header.ReservedBytesValue(pageSize)
		if err == nil {
			return reserved
		}
		p.recordProblem(err)
	}

	if p.reservedHint != noHint {
		if err := format.ValidateReservedBytes(pageSize, p.reservedHint); err == nil {
			return p.reservedHint
		}
		logging.Warn("ignoring reserved bytes hint", "path", p.path, "hint", p.reservedHint, "page_size", pageSize)
	}
	return 0
}

// resolvePageCount never claims more pages than the file holds.
func (p *Pager) resolvePageCount(header *format.DatabaseHeader, size int64, pageSize int) int {
	physical := size / int64(pageSize)
	if size%int64(pageSize) != 0 {
		p.markAsError(errors.CodeCorrupt, "file size is not a multiple of the page size",
			"size", size, "page_size", pageSize)
	}

	count := physical
	if header != nil {
		if declared, err := header.DeclaredPageCount(); err == nil {
			if int64(declared) > physical {
				p.markAsError(errors.CodeCorrupt, "declared page count exceeds file size",
					"declared", declared, "physical", physical)
			} else {
				count = int64(declared)
			}
		}
	}
	return int(min(count, int64(^uint32(0))))
}

func (p *Pager) attachWal() {
	if p.wal == nil {
		return
	}
	p.wal.SetPageSize(p.pageSize)
	if err := p.wal.Initialize(); err != nil {
		logging.WalRejected(p.wal.Path(), err, "database", p.path)
		return
	}
	if got := p.wal.PageSize(); got != p.pageSize {
		logging.WalRejected(p.wal.Path(), errors.New(errors.CodeFormat, "wal page size mismatch",
			"wal_page_size", got, "page_size", p.pageSize), "database", p.path)
		return
	}
	p.walUsable = true
}

// recordProblem records an error from the format package with the
// database path attached.
func (p *Pager) recordProblem(err error) {
	var e *errors.Error
	if !errors.As(err, &e) {
		e = errors.Newf(errors.CodeCorrupt, err, "invalid database header")
	}
	p.record(e.Clone().With("path", p.path))
}
