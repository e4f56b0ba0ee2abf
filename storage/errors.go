package storage

import "errors"

// errNotFound is returned by the in-memory backend; LevelDB and Badger
// return their own not-found errors, normalized by KVStore callers via
// IsNotFound.
var errNotFound = errors.New("storage: key not found")

// IsNotFound reports whether err is any backend's not-found sentinel.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if err == errNotFound {
		return true
	}
	// leveldb.ErrNotFound and badger.ErrKeyNotFound both stringify as
	// "leveldb: not found" / "Key not found"; comparing by value keeps
	// this package from importing both drivers' error types here too.
	msg := err.Error()
	return msg == "leveldb: not found" || msg == "Key not found"
}
