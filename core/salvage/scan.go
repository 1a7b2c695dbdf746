package salvage

import (
	"context"

	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/btree"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/pager"
	"github.com/FocuswithJustin/sqlsalvage/internal/logging"
)

// progressEvery is how many pages pass between progress log lines.
const progressEvery = 1000

// PageReport describes one scanned page.
type PageReport struct {
	Pgno   format.Pgno
	Source pager.Source
	Kind   btree.Kind
}

// ScanSummary counts what a scan found.
type ScanSummary struct {
	Pages        int                `json:"pages"`
	WalPages     int                `json:"wal_pages"`
	BasePages    int                `json:"base_pages"`
	InvalidPages int                `json:"invalid_pages"`
	Kinds        map[btree.Kind]int `json:"-"`
	Corrupted    bool               `json:"corrupted"`
}

// PageFunc receives every scanned page. data is owned by the callee.
// Returning an error stops the scan.
type PageFunc func(report PageReport, data []byte) error

// Scan reads pages 1..LastPage in order and classifies each one. It checks
// ctx between pages and returns what it counted so far with ctx.Err() when
// cancelled. Unreadable pages are counted, not fatal.
func (s *Session) Scan(ctx context.Context, fn PageFunc) (*ScanSummary, error) {
	ctx = s.Context(ctx)
	summary := &ScanSummary{Kinds: make(map[btree.Kind]int)}
	last := s.LastPage()
	usable := s.Pager.UsableSize()

	for n := 1; n <= last; n++ {
		if err := ctx.Err(); err != nil {
			summary.Corrupted = s.Pager.IsCorrupted()
			return summary, err
		}

		pgno := format.Pgno(n)
		data, source, err := s.Pager.AcquirePage(pgno)
		if err != nil {
			logging.WarnContext(ctx, "page read failed", "pgno", n, "error", err)
		}
		report := PageReport{Pgno: pgno, Source: source}
		report.Kind = btree.Classify(data, pgno, usable)

		summary.Pages++
		summary.Kinds[report.Kind]++
		switch report.Source {
		case pager.SourceWal:
			summary.WalPages++
		case pager.SourceBase:
			summary.BasePages++
		default:
			summary.InvalidPages++
		}

		if fn != nil {
			if err := fn(report, data); err != nil {
				summary.Corrupted = s.Pager.IsCorrupted()
				return summary, err
			}
		}
		if n%progressEvery == 0 {
			logging.SalvageProgress(ctx, "scan", n, last)
		}
	}

	summary.Corrupted = s.Pager.IsCorrupted()
	logging.SalvageProgress(ctx, "scan", summary.Pages, last, "corrupted", summary.Corrupted)
	return summary, nil
}
