// Package store implements the dedup set of a meshcast node.
//
// A Store records every value the node has ever accepted. Membership is
// monotonic: values are inserted and never removed for the lifetime of the
// process. Insert is the only mutation and it reports whether the value was
// absent, which is what makes forward-once dissemination possible: exactly one
// of several concurrent inserts of the same value wins.
//
// Two implementations are provided. InmemStore keeps the set in a Go map.
// BadgerStore keeps it in a badger database that is wiped when opened, for
// value sets that should not live on the heap. Neither one survives a restart.
package store

import "errors"

// ErrStoreClosed is returned by operations on a closed Store.
var ErrStoreClosed = errors.New("store closed")

// Store is the dedup set.
type Store interface {
	// Insert records v if it is absent and returns true. If v is already
	// present it returns false and nothing changes.
	Insert(v uint64) (bool, error)

	// Snapshot returns every value currently in the set, in no particular
	// order. It never observes a partially applied Insert.
	Snapshot() ([]uint64, error)

	// Len returns the number of values in the set.
	Len() int

	// Close releases the resources held by the store.
	Close() error
}
