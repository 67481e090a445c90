//go:build !sqlite_vec

package store

import (
	_ "modernc.org/sqlite"
)

// driverName selects the pure-Go sqlite driver. Nearest-neighbor search runs
// as a cosine rerank in Go, so no extension is required on this path.
const driverName = "sqlite"
