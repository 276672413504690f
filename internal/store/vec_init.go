//go:build cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver so
	// vec_distance_cosine is available on every new connection. If the
	// extension fails to load at runtime the store's probe pins the
	// fallback path instead.
	vec.Auto()
}
