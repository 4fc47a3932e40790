package node

import (
	"math/rand"
	"sync"
)

//NeighborSelector picks the neighbour to push a snapshot to
type NeighborSelector interface {
	UpdateLast(id string)
	Next(neighbors []string) string
}

//RandomNeighborSelector selects a random neighbour, avoiding the previous one
//when there is a choice
type RandomNeighborSelector struct {
	sync.Mutex
	last string
}

//NewRandomNeighborSelector is a factory method that returns a new instance of
//RandomNeighborSelector
func NewRandomNeighborSelector() *RandomNeighborSelector {
	return &RandomNeighborSelector{}
}

//UpdateLast sets the last neighbour
func (ps *RandomNeighborSelector) UpdateLast(id string) {
	ps.Lock()
	defer ps.Unlock()
	ps.last = id
}

//Next returns the next neighbour, or "" if there is none
func (ps *RandomNeighborSelector) Next(neighbors []string) string {
	ps.Lock()
	last := ps.last
	ps.Unlock()

	if len(neighbors) == 0 {
		return ""
	}

	selectable := neighbors
	if len(neighbors) > 1 {
		selectable = make([]string, 0, len(neighbors))
		for _, n := range neighbors {
			if n != last {
				selectable = append(selectable, n)
			}
		}
		if len(selectable) == 0 {
			selectable = neighbors
		}
	}

	return selectable[rand.Intn(len(selectable))]
}
