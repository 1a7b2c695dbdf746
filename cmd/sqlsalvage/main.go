// Command sqlsalvage inspects and exports damaged SQLite databases without
// writing to them.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/sqlsalvage/core/salvage"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/btree"
	"github.com/FocuswithJustin/sqlsalvage/core/sqlite/format"
	"github.com/FocuswithJustin/sqlsalvage/internal/archive"
	"github.com/FocuswithJustin/sqlsalvage/internal/config"
	"github.com/FocuswithJustin/sqlsalvage/internal/logging"
	"github.com/FocuswithJustin/sqlsalvage/internal/validation"
)

const version = "0.1.0"

// Output streams, replaced in tests.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// Globals are the flags shared by every command. Flags override the
// config file and the environment.
type Globals struct {
	Config        string `help:"Config file (default: ./sqlsalvage.yaml or ~/.config/sqlsalvage/config.yaml)" type:"path"`
	LogLevel      string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat     string `name:"log-format" help:"Log format (text, json)"`
	PageSize      *int   `name:"page-size" help:"Page size to assume when the header's is damaged"`
	ReservedBytes *int   `name:"reserved-bytes" help:"Reserved bytes per page to assume when the header's is damaged (-1 trusts the header)"`
	WAL           string `name:"wal" help:"WAL to read: auto, off, or a path"`
	Cache         *int   `name:"cache" help:"Pages to keep in memory"`
}

// CLI defines the command-line interface for sqlsalvage.
var CLI struct {
	Globals

	Info     InfoCmd     `cmd:"" help:"Show database geometry, header and WAL summary"`
	Page     PageCmd     `cmd:"" help:"Write one page image to stdout"`
	Scan     ScanCmd     `cmd:"" help:"Classify every page"`
	Dump     DumpCmd     `cmd:"" help:"Export every page image with digests"`
	Verify   VerifyCmd   `cmd:"" help:"Check a dump against its manifest"`
	Manifest ManifestCmd `cmd:"" help:"Print the manifest of a dump"`
	Version  VersionCmd  `cmd:"" help:"Print version information"`
}

// resolve builds the effective configuration and initializes logging.
// Logs go to stderr so page data on stdout stays clean.
func (g *Globals) resolve() (*config.Config, error) {
	cfg := config.Default()
	path := g.Config
	if path == "" {
		path = config.FindConfigFile()
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	if g.LogLevel != "" {
		cfg.Log.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Log.Format = g.LogFormat
	}
	if g.PageSize != nil {
		cfg.PageSize = *g.PageSize
	}
	if g.ReservedBytes != nil {
		cfg.ReservedBytes = *g.ReservedBytes
	}
	if g.WAL != "" {
		cfg.WAL = g.WAL
	}
	if g.Cache != nil {
		cfg.CacheSize = *g.Cache
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	level, logFormat := cfg.Logger()
	logging.InitLoggerWithWriter(stderr, level, logFormat)
	logging.Debug("configuration resolved", "config", cfg.String(), "file", path)
	return cfg, nil
}

// open resolves the configuration and opens a session on db.
func (g *Globals) open(ctx context.Context, db string) (*salvage.Session, *config.Config, error) {
	if err := validation.ValidatePath(db); err != nil {
		return nil, nil, fmt.Errorf("invalid database path: %w", err)
	}
	cfg, err := g.resolve()
	if err != nil {
		return nil, nil, err
	}
	s, err := salvage.Open(ctx, db, cfg.SessionOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s: %w", db, err)
	}
	return s, cfg, nil
}

// InfoCmd shows geometry, header fields and WAL state.
type InfoCmd struct {
	DB   string `arg:"" help:"Path to database" type:"existingfile"`
	JSON bool   `help:"Print as JSON"`
}

// Info is the output of the info command.
type Info struct {
	Path          string      `json:"path"`
	RunID         string      `json:"run_id"`
	PageSize      int         `json:"page_size"`
	ReservedBytes int         `json:"reserved_bytes"`
	UsableSize    int         `json:"usable_size"`
	PageCount     int         `json:"page_count"`
	Header        *HeaderInfo `json:"header,omitempty"`
	Wal           *WalInfo    `json:"wal,omitempty"`
	Corrupted     bool        `json:"corrupted"`
	LastError     string      `json:"last_error,omitempty"`
}

// HeaderInfo holds the raw header fields worth showing.
type HeaderInfo struct {
	Magic           string `json:"magic"`
	ChangeCounter   uint32 `json:"change_counter"`
	DeclaredPages   uint32 `json:"declared_pages"`
	VersionValidFor uint32 `json:"version_valid_for"`
	FreelistTrunk   uint32 `json:"freelist_trunk"`
	FreelistCount   uint32 `json:"freelist_count"`
	SchemaCookie    uint32 `json:"schema_cookie"`
	SchemaFormat    uint32 `json:"schema_format"`
	TextEncoding    uint32 `json:"text_encoding"`
	UserVersion     uint32 `json:"user_version"`
	ApplicationID   uint32 `json:"application_id"`
	SQLiteVersion   uint32 `json:"sqlite_version"`
}

// WalInfo describes the WAL the session read.
type WalInfo struct {
	Path       string `json:"path"`
	State      string `json:"state"`
	Usable     bool   `json:"usable"`
	Valid      int    `json:"valid_frames"`
	Committed  int    `json:"committed_frames"`
	Pages      int    `json:"pages"`
	Dropped    int    `json:"dropped_pages"`
	DBSize     uint32 `json:"db_size"`
	StopFrame  int    `json:"stop_frame"`
	StopReason string `json:"stop_reason,omitempty"`
}

func (c *InfoCmd) Run(g *Globals) error {
	s, _, err := g.open(context.Background(), c.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	info := collectInfo(s)
	if c.JSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	fmt.Fprintf(stdout, "Database: %s\n", info.Path)
	fmt.Fprintf(stdout, "  Page size: %d\n", info.PageSize)
	fmt.Fprintf(stdout, "  Reserved bytes: %d\n", info.ReservedBytes)
	fmt.Fprintf(stdout, "  Usable size: %d\n", info.UsableSize)
	fmt.Fprintf(stdout, "  Page count: %d\n", info.PageCount)
	if h := info.Header; h != nil {
		fmt.Fprintf(stdout, "  Magic: %q\n", h.Magic)
		fmt.Fprintf(stdout, "  Change counter: %d (valid-for %d)\n", h.ChangeCounter, h.VersionValidFor)
		fmt.Fprintf(stdout, "  Declared pages: %d\n", h.DeclaredPages)
		fmt.Fprintf(stdout, "  Freelist: trunk %d, %d pages\n", h.FreelistTrunk, h.FreelistCount)
		fmt.Fprintf(stdout, "  Schema: cookie %d, format %d\n", h.SchemaCookie, h.SchemaFormat)
		fmt.Fprintf(stdout, "  Text encoding: %d\n", h.TextEncoding)
		fmt.Fprintf(stdout, "  SQLite version: %d\n", h.SQLiteVersion)
	}
	if w := info.Wal; w != nil {
		fmt.Fprintf(stdout, "WAL: %s\n", w.Path)
		fmt.Fprintf(stdout, "  State: %s\n", w.State)
		fmt.Fprintf(stdout, "  Frames: %d valid, %d committed\n", w.Valid, w.Committed)
		fmt.Fprintf(stdout, "  Pages: %d (database size %d, %d dropped)\n", w.Pages, w.DBSize, w.Dropped)
		if w.StopReason != "" {
			fmt.Fprintf(stdout, "  Scan stopped at frame %d: %s\n", w.StopFrame, w.StopReason)
		}
	} else {
		fmt.Fprintln(stdout, "WAL: none")
	}
	fmt.Fprintf(stdout, "Corrupted: %v\n", info.Corrupted)
	if info.LastError != "" {
		fmt.Fprintf(stdout, "Last error: %s\n", info.LastError)
	}
	return nil
}

func collectInfo(s *salvage.Session) *Info {
	info := &Info{
		Path:          s.Path,
		RunID:         s.RunID,
		PageSize:      s.Pager.PageSize(),
		ReservedBytes: s.Pager.ReservedBytes(),
		UsableSize:    s.Pager.UsableSize(),
		PageCount:     s.Pager.PageCount(),
		Corrupted:     s.Pager.IsCorrupted(),
	}
	if h := s.Pager.Header(); h != nil {
		info.Header = &HeaderInfo{
			Magic:           string(h.Magic[:]),
			ChangeCounter:   h.FileChangeCounter,
			DeclaredPages:   h.DatabaseSize,
			VersionValidFor: h.VersionValidFor,
			FreelistTrunk:   h.FreelistTrunk,
			FreelistCount:   h.FreelistCount,
			SchemaCookie:    h.SchemaCookie,
			SchemaFormat:    h.SchemaFormat,
			TextEncoding:    h.TextEncoding,
			UserVersion:     h.UserVersion,
			ApplicationID:   h.ApplicationID,
			SQLiteVersion:   h.SQLiteVersion,
		}
	}
	if w := s.Wal; w != nil {
		frames := w.Frames()
		info.Wal = &WalInfo{
			Path:       w.Path(),
			State:      w.State().String(),
			Usable:     s.WalUsable(),
			Valid:      frames.Valid,
			Committed:  frames.Committed,
			Pages:      frames.Pages,
			Dropped:    frames.Dropped,
			DBSize:     w.PageCount(),
			StopFrame:  frames.StopFrame,
			StopReason: string(frames.StopReason),
		}
	}
	if last := s.Pager.LastError(); last != nil {
		info.LastError = last.Error()
	}
	return info
}

// PageCmd writes one page image.
type PageCmd struct {
	DB   string `arg:"" help:"Path to database" type:"existingfile"`
	Pgno uint32 `arg:"" help:"Page number (1-based)"`
	Hex  bool   `help:"Write a hex dump instead of raw bytes"`
}

func (c *PageCmd) Run(g *Globals) error {
	s, _, err := g.open(context.Background(), c.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	pgno := format.Pgno(c.Pgno)
	source := s.Pager.Source(pgno)
	data, err := s.Pager.AcquirePageData(pgno)
	if err != nil {
		return fmt.Errorf("failed to read page %d: %w", c.Pgno, err)
	}
	logging.Info("page read", "pgno", c.Pgno, "source", source.String(),
		"kind", btree.Classify(data, pgno, s.Pager.UsableSize()).String())

	if c.Hex {
		_, err = io.WriteString(stdout, hex.Dump(data))
	} else {
		_, err = stdout.Write(data)
	}
	return err
}

// ScanCmd classifies every page.
type ScanCmd struct {
	DB    string `arg:"" help:"Path to database" type:"existingfile"`
	Pages bool   `help:"Print one line per page"`
	JSON  bool   `help:"Print the summary as JSON"`
}

func (c *ScanCmd) Run(g *Globals) error {
	ctx := context.Background()
	s, _, err := g.open(ctx, c.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	var fn salvage.PageFunc
	if c.Pages {
		fn = func(r salvage.PageReport, _ []byte) error {
			_, err := fmt.Fprintf(stdout, "%d\t%s\t%s\n", r.Pgno, r.Source, r.Kind)
			return err
		}
	}
	summary, err := s.Scan(ctx, fn)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if c.JSON {
		out := struct {
			*salvage.ScanSummary
			Kinds map[string]int `json:"kinds"`
		}{summary, kindCounts(summary)}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(stdout, "Scanned: %d pages (%d wal, %d base, %d invalid)\n",
		summary.Pages, summary.WalPages, summary.BasePages, summary.InvalidPages)
	counts := kindCounts(summary)
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(stdout, "  %s: %d\n", k, counts[k])
	}
	fmt.Fprintf(stdout, "Corrupted: %v\n", summary.Corrupted)
	return nil
}

func kindCounts(summary *salvage.ScanSummary) map[string]int {
	out := make(map[string]int, len(summary.Kinds))
	for k, n := range summary.Kinds {
		out[k.String()] = n
	}
	return out
}

// DumpCmd exports every page image.
type DumpCmd struct {
	DB          string `arg:"" help:"Path to database" type:"existingfile"`
	Out         string `help:"Output path (default: <db>.pages.tar[.xz] in the current directory)" type:"path"`
	Compression string `help:"Compression (xz, none); overrides the config"`
}

func (c *DumpCmd) Run(g *Globals) error {
	ctx := context.Background()
	s, cfg, err := g.open(ctx, c.DB)
	if err != nil {
		return err
	}
	defer s.Close()

	name := c.Compression
	if name == "" {
		name = cfg.Dump.Compression
	}
	compression, err := salvage.ParseCompression(name)
	if err != nil {
		return err
	}

	out := c.Out
	if out == "" {
		if out, err = validation.DumpFilename(c.DB, string(compression)); err != nil {
			return fmt.Errorf("cannot derive output name: %w", err)
		}
	}
	inputs := []string{c.DB}
	if s.Wal != nil {
		inputs = append(inputs, s.Wal.Path())
	}
	if err := validation.ValidateOutputPath(out, inputs...); err != nil {
		return fmt.Errorf("invalid output path: %w", err)
	}

	f, err := os.OpenFile(out, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	m, err := salvage.Dump(ctx, s, f, salvage.DumpOptions{Compression: compression})
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output file: %w", cerr)
	}
	if err != nil {
		os.Remove(out)
		return err
	}

	fmt.Fprintf(stdout, "Dumped: %s\n", c.DB)
	fmt.Fprintf(stdout, "  Run ID: %s\n", m.RunID)
	fmt.Fprintf(stdout, "  Pages: %d\n", len(m.Pages))
	fmt.Fprintf(stdout, "  Corrupted: %v\n", m.Corrupted)
	fmt.Fprintf(stdout, "  Output: %s\n", out)
	return nil
}

// checkDumpType rejects files whose content is not a dump or does not
// match what their name claims.
func checkDumpType(f *os.File, name string) error {
	kind, err := validation.CheckFileType(f, name)
	if err != nil {
		return err
	}
	switch kind {
	case validation.FileTypeXZ, validation.FileTypeTar, validation.FileTypeTarXZ:
	default:
		return fmt.Errorf("%s is not a dump (detected %s)", name, kind)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind dump: %w", err)
	}
	return nil
}

// VerifyCmd checks a dump against its manifest.
type VerifyCmd struct {
	Dump        string `arg:"" help:"Path to dump" type:"existingfile"`
	Compression string `help:"Compression (xz, none); detected when empty"`
}

func (c *VerifyCmd) Run(g *Globals) error {
	if _, err := g.resolve(); err != nil {
		return err
	}
	if err := validation.ValidatePath(c.Dump); err != nil {
		return fmt.Errorf("invalid dump path: %w", err)
	}

	var compression salvage.Compression
	if c.Compression != "" {
		parsed, err := salvage.ParseCompression(c.Compression)
		if err != nil {
			return err
		}
		compression = parsed
	}

	f, err := os.Open(c.Dump)
	if err != nil {
		return fmt.Errorf("failed to open dump: %w", err)
	}
	defer f.Close()

	if err := checkDumpType(f, c.Dump); err != nil {
		return err
	}
	report, err := salvage.Verify(f, compression)
	if err != nil {
		return fmt.Errorf("verify failed: %w", err)
	}

	fmt.Fprintf(stdout, "Dump: %s\n", c.Dump)
	fmt.Fprintf(stdout, "  Source: %s\n", report.Manifest.Source)
	fmt.Fprintf(stdout, "  Run ID: %s\n", report.Manifest.RunID)
	fmt.Fprintf(stdout, "  Created: %s\n", report.Manifest.CreatedAt)
	fmt.Fprintf(stdout, "  Checked: %d pages\n", report.Checked)
	for _, name := range report.Mismatched {
		fmt.Fprintf(stdout, "  [FAIL] %s: digest mismatch\n", name)
	}
	for _, name := range report.Missing {
		fmt.Fprintf(stdout, "  [FAIL] %s: missing\n", name)
	}
	for _, name := range report.Extra {
		fmt.Fprintf(stdout, "  [FAIL] %s: not in manifest\n", name)
	}
	if !report.OK() {
		return fmt.Errorf("dump does not match its manifest")
	}
	fmt.Fprintln(stdout, "  Status: OK")
	return nil
}

// ManifestCmd prints the manifest of a dump as stored.
type ManifestCmd struct {
	Dump string `arg:"" help:"Path to dump" type:"existingfile"`
}

func (c *ManifestCmd) Run(g *Globals) error {
	if _, err := g.resolve(); err != nil {
		return err
	}
	if err := validation.ValidatePath(c.Dump); err != nil {
		return fmt.Errorf("invalid dump path: %w", err)
	}

	f, err := os.Open(c.Dump)
	if err != nil {
		return fmt.Errorf("failed to open dump: %w", err)
	}
	err = checkDumpType(f, c.Dump)
	f.Close()
	if err != nil {
		return err
	}

	data, err := archive.ReadFile(c.Dump, salvage.ManifestName)
	if err != nil {
		return fmt.Errorf("failed to read manifest: %w", err)
	}
	_, err = stdout.Write(data)
	return err
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Fprintf(stdout, "sqlsalvage version %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("sqlsalvage"),
		kong.Description("Read-only salvage of damaged SQLite databases"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}
