package storage

import "fmt"

const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

// NewStore builds the run store named by kind. path is only read by the
// sqlite backend.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if path == "" {
			return nil, fmt.Errorf("sqlite run store requires a database path")
		}
		return newSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown run store %q: want %s or %s", kind, KindMemory, KindSQLite)
	}
}

// CloseIfSupported releases backends that hold a database handle.
func CloseIfSupported(store Store) error {
	if closer, ok := store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
