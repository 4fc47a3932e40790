package node

import (
	"sync/atomic"

	"github.com/mosaicnetworks/meshcast/src/net"
	"github.com/sirupsen/logrus"
)

// Observation is the outcome of observing a value.
type Observation int

const (
	// New means the value was recorded and forwarded to every neighbour.
	New Observation = iota
	// Duplicate means the value was already known; nothing happened.
	Duplicate
)

// String ...
func (o Observation) String() string {
	switch o {
	case New:
		return "New"
	case Duplicate:
		return "Duplicate"
	default:
		return "Unknown"
	}
}

// Observe records v and, if it was not known, forwards it to every current
// neighbour. Forwards are started after the state is released and are not
// waited for.
func (n *Node) Observe(v uint64) (Observation, error) {
	isNew, neighbors, err := n.core.Insert(v)
	if err != nil {
		return Duplicate, err
	}

	if !isNew {
		atomic.AddUint64(&n.stats.duplicateValues, 1)
		return Duplicate, nil
	}

	atomic.AddUint64(&n.stats.newValues, 1)

	if !n.conf.Single {
		n.fanOut(v, neighbors)
	}

	return New, nil
}

// fanOut sends v to each neighbour from its own goroutine. Failures are
// logged and counted, never retried.
func (n *Node) fanOut(v uint64, neighbors []string) {
	for _, target := range neighbors {
		target := target
		n.goFunc(func() {
			atomic.AddUint64(&n.stats.fanoutSends, 1)

			if err := n.trans.Send(target, net.NewBroadcastRequest(v)); err != nil {
				atomic.AddUint64(&n.stats.fanoutErrors, 1)
				n.log().WithFields(logrus.Fields{
					"target": target,
					"value":  v,
					"error":  err,
				}).Warn("Failed to forward value")
			}
		})
	}
}
