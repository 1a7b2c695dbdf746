package sqlitegen

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/FocuswithJustin/sqlsalvage/core/errors"
)

// Options controls a generated database.
type Options struct {
	// PageSize is applied before the first table is created (0 = engine default).
	PageSize int

	// Rows is the number of rows checkpointed into the database file.
	Rows int

	// WalRows is the number of rows committed to the WAL after the checkpoint.
	// When non-zero the WAL is kept next to the database at <path>-wal.
	WalRows int

	// PayloadSize is the length of the text stored in each row.
	PayloadSize int
}

// Fixture describes a generated database.
type Fixture struct {
	Path    string
	WalPath string // empty when no WAL was kept
}

// DriverType returns "cgo" for mattn/go-sqlite3 and "purego" for modernc.org/sqlite.
func DriverType() string {
	return driverType
}

// Create builds a database at path with the real SQLite engine.
//
// The engine checkpoints and removes its WAL when the last connection
// closes, so the database is built under a scratch name and copied to path
// while the connection is still open.
func Create(ctx context.Context, path string, opts Options) (*Fixture, error) {
	if opts.PayloadSize <= 0 {
		opts.PayloadSize = 64
	}
	scratch := path + ".build"
	defer removeAll(scratch)

	db, err := sql.Open(driverName, scratch)
	if err != nil {
		return nil, errors.Wrap(err, "open scratch database")
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	var pragmas []string
	if opts.PageSize > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA page_size = %d", opts.PageSize))
	}
	pragmas = append(pragmas,
		"PRAGMA journal_mode = WAL",
		"PRAGMA wal_autocheckpoint = 0",
		"CREATE TABLE items (id INTEGER PRIMARY KEY, body TEXT NOT NULL)",
	)
	for _, stmt := range pragmas {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, errors.Wrapf(err, "exec %q", stmt)
		}
	}

	if err := insertRows(ctx, db, 0, opts.Rows, opts.PayloadSize); err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return nil, errors.Wrap(err, "checkpoint")
	}
	if err := insertRows(ctx, db, opts.Rows, opts.WalRows, opts.PayloadSize); err != nil {
		return nil, err
	}

	fx := &Fixture{Path: path}
	if err := copyFile(scratch, path); err != nil {
		return nil, err
	}
	if opts.WalRows > 0 {
		fx.WalPath = path + "-wal"
		if err := copyFile(scratch+"-wal", fx.WalPath); err != nil {
			return nil, err
		}
	}
	return fx, nil
}

func insertRows(ctx context.Context, db *sql.DB, first, n, payload int) error {
	if n <= 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	for i := first; i < first+n; i++ {
		body := strings.Repeat(string(rune('a'+i%26)), payload)
		if _, err := tx.ExecContext(ctx, "INSERT INTO items (id, body) VALUES (?, ?)", i+1, body); err != nil {
			return errors.Wrapf(err, "insert row %d", i+1)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.NewIO("read", src, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return errors.NewIO("write", dst, err)
	}
	return nil
}

func removeAll(scratch string) {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		_ = os.Remove(scratch + suffix)
	}
}
