//go:build !sqlite

package storage

import "fmt"

func newSQLiteStore(path string) (Store, error) {
	return nil, fmt.Errorf("run store %s at %s: virusnet was built without sqlite support (use -tags sqlite)", KindSQLite, path)
}
