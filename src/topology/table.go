// Package topology holds the neighbour list of a meshcast node.
//
// The neighbour graph is computed elsewhere and delivered to every node as a
// mapping from node id to neighbour ids. A node only keeps its own entry. Each
// update replaces the previous list entirely.
package topology

import (
	"errors"
	"fmt"
)

// ErrSelfNotInTopology is returned by Update when the mapping has no entry for
// the local node. An empty neighbour list would silently stop dissemination,
// so the update is refused instead.
var ErrSelfNotInTopology = errors.New("node not present in topology")

// Table is the neighbour list of the local node. It does not synchronise
// access itself; the node guards it together with the dedup set.
type Table struct {
	neighbors []string
	updates   int
}

// NewTable returns a Table with no neighbours.
func NewTable() *Table {
	return &Table{}
}

// Update replaces the neighbour list with topology[selfID].
func (t *Table) Update(topology map[string][]string, selfID string) error {
	neighbors, ok := topology[selfID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrSelfNotInTopology, selfID)
	}

	t.neighbors = append(make([]string, 0, len(neighbors)), neighbors...)
	t.updates++

	return nil
}

// Neighbors returns a copy of the neighbour list as of the last successful
// Update.
func (t *Table) Neighbors() []string {
	return append(make([]string, 0, len(t.neighbors)), t.neighbors...)
}

// Updates returns the number of successful updates.
func (t *Table) Updates() int {
	return t.updates
}
