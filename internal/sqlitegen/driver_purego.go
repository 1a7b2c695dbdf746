//go:build !cgo_sqlite

package sqlitegen

import (
	_ "modernc.org/sqlite"
)

const (
	driverName = "sqlite"
	driverType = "purego"
)
