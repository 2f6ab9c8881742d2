// Package kv provides the key-value storage layer used by the fae runtime
// for scheduler tasks and other host-visible state. Keys are hierarchical
// paths (e.g. ["scheduler", "task", id]) joined with '/' on storage.
//
// Two implementations are provided: a BadgerDB-backed store for on-disk
// persistence and an in-memory store for tests. The Badger store can also
// run in Badger's in-memory mode, which is what the runtime uses when no
// data directory is configured.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in the encoded representation.
// Segments must not contain it.
const Separator = '/'

// Key is a hierarchical path represented as a slice of string segments.
type Key []string

// String returns the encoded form of the key.
func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

// encode converts a Key to its stored byte representation.
func encode(k Key) []byte {
	return []byte(k.String())
}

// decode converts a stored byte representation back to a Key.
func decode(b []byte) Key {
	parts := strings.Split(string(b), string(Separator))
	return Key(parts)
}

// prefixBytes returns the encoded prefix with a trailing separator so that
// ["a","b"] does not match the key ["a","bc"]. An empty prefix matches
// everything.
func prefixBytes(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	return append(encode(prefix), Separator)
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the storage interface the runtime's backend components depend on.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// List iterates over all entries under the given prefix in
	// lexicographic order of the encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// DeletePrefix removes every entry under the given prefix.
	// An empty prefix removes everything.
	DeletePrefix(ctx context.Context, prefix Key) error

	// Close releases any resources held by the store.
	Close() error
}
