/*
Package pager serves the fixed-size pages of a SQLite database file that may
be damaged, truncated or only partially consistent.

A Pager never writes. It turns the file into addressable pages for the
B-tree and cell parsers above it, merges committed WAL frames over the base
file, and records every inconsistency it notices instead of failing.

# Lifecycle

Construction is cheap and performs no I/O:

	p := pager.New("app.db")
	p.SetPageSize(4096) // hint, used only if the header is unusable
	p.SetWal(w)         // optional, the Pager does not own w
	if err := p.Initialize(); err != nil {
	    return err
	}
	defer p.Close()

Initialize runs at most once. It fails only when the file cannot be opened
or read, is empty, or no usable page size can be found. Every other problem
(bad magic, implausible page size or reserved bytes, a declared page count
larger than the file, bad header fields) is recorded as corruption and the
Pager continues with its best guess of the geometry.

# Geometry

	pageSize   header value, else the hint, else DefaultPageSize
	reserved   header value, else the hint, else 0
	pageCount  min(declared count, floor(fileSize / pageSize))
	usable     pageSize - reserved

The declared count is only used when the header's version-valid-for number
matches its change counter and the count is non-zero.

# Page Resolution

AcquirePageData(n) always returns exactly pageSize bytes:

 1. a committed WAL frame for n, frame header stripped
 2. otherwise the base file at (n-1)*pageSize
 3. otherwise a zero-filled page, with the Pager marked corrupted

Only a real I/O failure produces an error, and even then the zero page is
returned so the caller can keep scanning. AcquirePage also reports which of
the three cases produced the page; a WAL frame that cannot be read falls
back to the base file and is reported as such.

# Corruption

IsCorrupted moves from false to true at most once and never back. LastError
holds the most recent structured error with its code and context such as
the offending page number.
*/
package pager
