// Package sqlitegen builds SQLite database and WAL files for tests.
//
// Two kinds of fixture are available. The raw builders (Database, WalBuilder)
// assemble files byte by byte from the format package encoders, so a test can
// place exactly the damage it wants. Create drives a real SQLite engine and
// can leave committed transactions in a WAL next to the database.
//
// Build modes:
//   - Default: pure Go modernc.org/sqlite
//   - With -tags cgo_sqlite (CGO_ENABLED=1): github.com/mattn/go-sqlite3
package sqlitegen
