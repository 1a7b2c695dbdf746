// Package salvage runs read-only recovery passes over a SQLite database:
// it pairs a Pager with the database's WAL, scans pages, and exports page
// images with digests so a recovery can be repeated and checked offline.
package salvage

import (
	"context"
	stderrors "errors"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/sqlsalvage/core/errors"
	"github.com/FocuswithJustin/sqlsalvage/core/repair"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/pager"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/wal"
	"github.com/FocuswithJustin/sqlsalvage/internal/logging"
)

// WAL selection values for Options.WAL. Any other value is a WAL path.
const (
	WalAuto = "auto"
	WalOff  = "off"
)

// Options configures a Session.
type Options struct {
	// PageSize and ReservedBytes are hints for a damaged header (0 / -1 = none).
	PageSize      int
	ReservedBytes int

	// CacheSize is the number of pages the Pager keeps in memory.
	CacheSize int

	// WAL is WalAuto (use <db>-wal when it exists), WalOff, or a path.
	WAL string
}

// DefaultOptions returns options with no hints and automatic WAL discovery.
func DefaultOptions() Options {
	return Options{ReservedBytes: -1, WAL: WalAuto}
}

// Session is one recovery pass over one database. It owns the WAL; the
// Pager only refers to it.
type Session struct {
	RunID string
	Path  string
	Pager *pager.Pager
	Wal   *wal.Wal // nil when no WAL is used
}

// Open constructs and initializes the Pager and WAL for path.
func Open(ctx context.Context, path string, opts Options) (*Session, error) {
	s := &Session{
		RunID: uuid.NewString(),
		Path:  path,
		Pager: pager.New(path),
	}
	ctx = s.Context(ctx)

	if opts.PageSize > 0 {
		s.Pager.SetPageSize(opts.PageSize)
	}
	if opts.ReservedBytes >= 0 {
		s.Pager.SetReservedBytes(opts.ReservedBytes)
	}
	s.Pager.SetCacheSize(opts.CacheSize)

	if walPath := resolveWalPath(path, opts.WAL); walPath != "" {
		s.Wal = wal.New(walPath)
		s.Pager.SetWal(s.Wal)
	}

	if err := repair.InitializeAll(s.Pager); err != nil {
		_ = s.Close()
		return nil, err
	}

	logging.InfoContext(ctx, "session opened",
		"path", path,
		"page_size", s.Pager.PageSize(),
		"page_count", s.Pager.PageCount(),
		"wal", s.walPath(),
		"wal_usable", s.Pager.WalUsable(),
		"corrupted", s.Pager.IsCorrupted(),
	)
	return s, nil
}

func resolveWalPath(dbPath, mode string) string {
	switch strings.TrimSpace(mode) {
	case WalOff:
		return ""
	case "", WalAuto:
		candidate := wal.PathFor(dbPath)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate
		}
		return ""
	default:
		return mode
	}
}

// Context returns ctx carrying the session's run ID for logging.
func (s *Session) Context(ctx context.Context) context.Context {
	return logging.WithRunID(ctx, s.RunID)
}

// WalUsable reports whether committed WAL frames are being served.
func (s *Session) WalUsable() bool {
	return s.Pager.WalUsable()
}

// LastPage returns the highest page number a scan visits: the Pager's
// page count, or the WAL's database size when a usable WAL grew the file.
func (s *Session) LastPage() int {
	last := s.Pager.PageCount()
	if s.Wal != nil && s.WalUsable() {
		last = max(last, int(s.Wal.PageCount()))
	}
	return last
}

// Components returns the Pager and, when present, the WAL.
func (s *Session) Components() []repair.Component {
	out := []repair.Component{s.Pager}
	if s.Wal != nil {
		out = append(out, s.Wal)
	}
	return out
}

func (s *Session) walPath() string {
	if s.Wal == nil {
		return ""
	}
	return s.Wal.Path()
}

// Close closes the Pager, then the WAL it referred to.
func (s *Session) Close() error {
	var errs []error
	if s.Pager != nil {
		if err := s.Pager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Wal != nil {
		if err := s.Wal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Wrap(stderrors.Join(errs...), "close session")
}
