//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// driverName selects the cgo sqlite driver with the sqlite-vec extension
// auto-loaded, for deployments that want in-database ANN search.
const driverName = "sqlite3"

func init() {
	vec.Auto()
}
