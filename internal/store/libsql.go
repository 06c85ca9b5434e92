//go:build libsql

package store

import (
	_ "github.com/tursodatabase/go-libsql"
)

// Building with -tags libsql opens the same file through libSQL, which can
// later be promoted to an embedded replica of a Turso primary.
func init() {
	driverName = "libsql"
}
