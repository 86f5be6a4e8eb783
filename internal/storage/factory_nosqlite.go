//go:build !sqlite

package storage

import "fmt"

// newSQLiteStore stands in when the driver is compiled out; campaigns can
// still use the memory and badger backends.
func newSQLiteStore(path string) (Store, error) {
	return nil, fmt.Errorf("%w: %s backend for %q needs a build with -tags sqlite (available: %s, %s)",
		ErrUnsupportedBackend, BackendSQLite, path, BackendMemory, BackendBadger)
}
