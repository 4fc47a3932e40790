package node

import (
	"errors"
	"sync"

	"github.com/mosaicnetworks/meshcast/src/store"
	"github.com/mosaicnetworks/meshcast/src/topology"
	"github.com/sirupsen/logrus"
)

// ErrStatePoisoned is the panic value raised when the node state is accessed
// after a panic occurred while it was held.
var ErrStatePoisoned = errors.New("node state poisoned by an earlier panic")

// Core is the state of a node: the set of observed values and the neighbour
// list. Both are accessed under a single lock, so that checking a value,
// recording it, and reading the neighbours it must be forwarded to happen
// atomically.
type Core struct {
	lock     sync.Mutex
	poisoned bool

	store store.Store
	table *topology.Table

	logger *logrus.Entry
}

// NewCore ...
func NewCore(s store.Store, logger *logrus.Entry) *Core {
	return &Core{
		store:  s,
		table:  topology.NewTable(),
		logger: logger,
	}
}

// critical runs fn with exclusive access to the state. If fn panics the state
// is marked poisoned and the panic continues; every later call panics with
// ErrStatePoisoned.
func (c *Core) critical(fn func()) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.poisoned {
		panic(ErrStatePoisoned)
	}

	defer func() {
		if r := recover(); r != nil {
			c.poisoned = true
			c.logger.WithField("panic", r).Error("Panic while holding node state")
			panic(r)
		}
	}()

	fn()
}

// Insert records v. When v was not known yet it also returns the neighbours
// it must be forwarded to, as they were at the time of insertion.
func (c *Core) Insert(v uint64) (isNew bool, neighbors []string, err error) {
	c.critical(func() {
		isNew, err = c.store.Insert(v)
		if err == nil && isNew {
			neighbors = c.table.Neighbors()
		}
	})
	return
}

// Snapshot returns every value observed so far.
func (c *Core) Snapshot() (values []uint64, err error) {
	c.critical(func() {
		values, err = c.store.Snapshot()
	})
	return
}

// Len returns the number of values observed so far.
func (c *Core) Len() (n int) {
	c.critical(func() {
		n = c.store.Len()
	})
	return
}

// UpdateTopology replaces the neighbour list with mapping[selfID].
func (c *Core) UpdateTopology(mapping map[string][]string, selfID string) (err error) {
	c.critical(func() {
		err = c.table.Update(mapping, selfID)
	})
	return
}

// Neighbors returns the current neighbour list.
func (c *Core) Neighbors() (neighbors []string) {
	c.critical(func() {
		neighbors = c.table.Neighbors()
	})
	return
}

// TopologyUpdates returns the number of accepted topology updates.
func (c *Core) TopologyUpdates() (n int) {
	c.critical(func() {
		n = c.table.Updates()
	})
	return
}

// Close releases the store.
func (c *Core) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.store.Close()
}
