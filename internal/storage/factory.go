package storage

import (
	"errors"
	"fmt"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

var ErrUnsupportedBackend = errors.New("unsupported store backend")

// NewStore builds the backend named by kind. path is the sqlite database
// file or the badger directory; an empty badger path runs in memory.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		return newSQLiteStore(path)
	case BackendBadger:
		return NewBadgerStore(BadgerOptions{Path: path, InMemory: path == ""}), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, kind)
	}
}

func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
