package salvage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/sqlsalvage/core/errors"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
	"github.com/FocuswithJustin/sqlsalvage/internal/archive"
	"github.com/FocuswithJustin/sqlsalvage/internal/logging"
)

// Compression selects how a dump is compressed.
type Compression string

const (
	// CompressionXZ uses XZ/LZMA2 compression (default).
	CompressionXZ Compression = "xz"
	// CompressionNone writes a plain tar stream.
	CompressionNone Compression = "none"
)

// ParseCompression converts a compression name. The empty string means xz.
func ParseCompression(s string) (Compression, error) {
	switch Compression(s) {
	case "", CompressionXZ:
		return CompressionXZ, nil
	case CompressionNone:
		return CompressionNone, nil
	}
	return "", errors.NewUnsupported("dump compression", fmt.Sprintf("unknown compression %q", s))
}

// ManifestName is the archive entry holding the manifest.
const ManifestName = "manifest.json"

// ManifestVersion is the manifest format version written by Dump.
const ManifestVersion = 1

// timeNow is replaced in tests.
var timeNow = time.Now

// DumpOptions configures Dump.
type DumpOptions struct {
	Compression Compression
}

// Manifest describes the pages of a dump.
type Manifest struct {
	Version       int         `json:"version"`
	RunID         string      `json:"run_id"`
	Source        string      `json:"source"`
	CreatedAt     string      `json:"created_at"`
	PageSize      int         `json:"page_size"`
	ReservedBytes int         `json:"reserved_bytes"`
	PageCount     int         `json:"page_count"`
	Wal           *WalInfo    `json:"wal,omitempty"`
	Corrupted     bool        `json:"corrupted"`
	LastError     string      `json:"last_error,omitempty"`
	Pages         []PageEntry `json:"pages"`
}

// WalInfo records the WAL a dump was taken with.
type WalInfo struct {
	Path       string `json:"path"`
	Usable     bool   `json:"usable"`
	Valid      int    `json:"valid_frames"`
	Committed  int    `json:"committed_frames"`
	Pages      int    `json:"pages"`
	StopReason string `json:"stop_reason,omitempty"`
}

// PageEntry is one dumped page.
type PageEntry struct {
	Pgno   format.Pgno `json:"pgno"`
	Origin string      `json:"origin"`
	Kind   string      `json:"kind"`
	BLAKE3 string      `json:"blake3"`
}

// PageEntryName returns the archive entry name of page pgno.
func PageEntryName(pgno format.Pgno) string {
	return fmt.Sprintf("pages/%d.page", pgno)
}

// Dump scans s and writes every page image to w as a tar archive, followed
// by the manifest. The manifest comes last because the corruption state is
// only final once every page has been read.
func Dump(ctx context.Context, s *Session, w io.Writer, opts DumpOptions) (*Manifest, error) {
	compression, err := ParseCompression(string(opts.Compression))
	if err != nil {
		return nil, err
	}

	now := timeNow().UTC()
	aw, err := archive.NewWriter(w, compression == CompressionXZ, now)
	if err != nil {
		return nil, fmt.Errorf("failed to start dump: %w", err)
	}

	m := &Manifest{
		Version:       ManifestVersion,
		RunID:         s.RunID,
		Source:        s.Path,
		CreatedAt:     now.Format(time.RFC3339),
		PageSize:      s.Pager.PageSize(),
		ReservedBytes: s.Pager.ReservedBytes(),
		PageCount:     s.Pager.PageCount(),
	}

	_, err = s.Scan(ctx, func(report PageReport, data []byte) error {
		sum := blake3.Sum256(data)
		m.Pages = append(m.Pages, PageEntry{
			Pgno:   report.Pgno,
			Origin: report.Source.String(),
			Kind:   report.Kind.String(),
			BLAKE3: hex.EncodeToString(sum[:]),
		})
		return aw.WriteFile(PageEntryName(report.Pgno), data)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dump pages: %w", err)
	}

	if s.Wal != nil {
		frames := s.Wal.Frames()
		m.Wal = &WalInfo{
			Path:       s.Wal.Path(),
			Usable:     s.WalUsable(),
			Valid:      frames.Valid,
			Committed:  frames.Committed,
			Pages:      frames.Pages,
			StopReason: string(frames.StopReason),
		}
	}
	m.Corrupted = s.Pager.IsCorrupted()
	if last := s.Pager.LastError(); last != nil {
		m.LastError = last.Error()
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}
	if err := aw.WriteFile(ManifestName, data); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish dump: %w", err)
	}

	logging.InfoContext(s.Context(ctx), "dump written",
		"pages", len(m.Pages), "compression", string(compression), "corrupted", m.Corrupted)
	return m, nil
}
