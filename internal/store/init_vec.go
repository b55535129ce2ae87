//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver
	// so builds tagged sqlite_vec can push similarity ranking into SQL.
	vec.Auto()
}
