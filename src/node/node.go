package node

import (
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mosaicnetworks/meshcast/src/config"
	"github.com/mosaicnetworks/meshcast/src/net"
	"github.com/mosaicnetworks/meshcast/src/store"
	"github.com/sirupsen/logrus"
)

// ErrNodeShutdown is returned for requests received while the node is
// shutting down.
var ErrNodeShutdown = errors.New("node is shutting down")

//Node defines a meshcast node
type Node struct {
	state

	conf   *config.Config
	logger *logrus.Entry

	core *Core

	trans net.Transport
	netCh <-chan net.RPC

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	// running is 0 before Run, 1 once Run started and 2 if Shutdown came
	// first. runDone is closed when the Run loop exits.
	running int32
	runDone chan struct{}

	controlTimer *ControlTimer
	selector     NeighborSelector

	digestLock sync.Mutex
	lastPushes map[string]pushRecord

	start time.Time
	stats stats
}

type stats struct {
	newValues       uint64
	duplicateValues uint64
	fanoutSends     uint64
	fanoutErrors    uint64
	syncSends       uint64
	syncSkipped     uint64
	syncErrors      uint64
	rpcErrors       uint64
}

//NewNode is a factory method that returns a Node instance
func NewNode(conf *config.Config, store store.Store, trans net.Transport) *Node {
	logger := conf.Logger()

	node := Node{
		conf:         conf,
		logger:       logger,
		core:         NewCore(store, logger),
		trans:        trans,
		netCh:        trans.Consumer(),
		shutdownCh:   make(chan struct{}),
		runDone:      make(chan struct{}),
		controlTimer: NewRandomControlTimer(),
		selector:     NewRandomNeighborSelector(),
		lastPushes:   make(map[string]pushRecord),
		start:        time.Now(),
	}

	return &node
}

//ID returns the id of the node. With the stdio transport it is empty until
//the init message has been processed.
func (n *Node) ID() string {
	return n.trans.LocalID()
}

func (n *Node) log() *logrus.Entry {
	return n.logger.WithField("this_id", n.ID())
}

//SetTopology installs a neighbour mapping without going through a request,
//typically the one described by the peer book.
func (n *Node) SetTopology(mapping map[string][]string) error {
	if n.conf.Single {
		return nil
	}
	return n.core.UpdateTopology(mapping, n.ID())
}

//RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")
	go n.Run()
}

//Run processes incoming RPCs, each in its own goroutine, until Shutdown is
//called. When anti-entropy is enabled it also drives the sync timer.
func (n *Node) Run() {
	if !atomic.CompareAndSwapInt32(&n.running, 0, 1) {
		return
	}
	defer close(n.runDone)

	if n.conf.SyncInterval > 0 && !n.conf.Single {
		go n.controlTimer.Run(n.conf.SyncInterval)
	}

	for {
		select {
		case rpc := <-n.netCh:
			if n.getState() == Shutdown {
				rpc.Respond(nil, ErrNodeShutdown)
				continue
			}
			n.goFunc(func() {
				n.processRPC(rpc)
			})
		case <-n.controlTimer.tickCh:
			n.goFunc(n.antiEntropy)
		case <-n.shutdownCh:
			return
		}
	}
}

//Shutdown stops the node, waits for the Run loop to exit and for in-flight
//requests and forwards to finish, then closes the transport and the store
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.log().Debug("Shutdown")

		n.setState(Shutdown)

		//Stop and wait for concurrent operations
		close(n.shutdownCh)
		n.controlTimer.Shutdown()

		//No handler may be started once we begin waiting for them
		if !atomic.CompareAndSwapInt32(&n.running, 0, 2) {
			<-n.runDone
		}
		n.waitRoutines()

		n.trans.Close()

		if err := n.core.Close(); err != nil {
			n.log().WithError(err).Error("Closing store")
		}
	})
}

//GetState returns the state of the node
func (n *Node) GetState() State {
	return n.getState()
}

//GetStats returns stats
func (n *Node) GetStats() map[string]string {
	load := func(v *uint64) string {
		return strconv.FormatUint(atomic.LoadUint64(v), 10)
	}

	s := map[string]string{
		"id":               n.ID(),
		"state":            n.getState().String(),
		"single":           strconv.FormatBool(n.conf.Single),
		"values":           strconv.Itoa(n.core.Len()),
		"neighbors":        strconv.Itoa(len(n.core.Neighbors())),
		"topology_updates": strconv.Itoa(n.core.TopologyUpdates()),
		"new_values":       load(&n.stats.newValues),
		"duplicate_values": load(&n.stats.duplicateValues),
		"fanout_sends":     load(&n.stats.fanoutSends),
		"fanout_errors":    load(&n.stats.fanoutErrors),
		"sync_sends":       load(&n.stats.syncSends),
		"sync_skipped":     load(&n.stats.syncSkipped),
		"sync_errors":      load(&n.stats.syncErrors),
		"rpc_errors":       load(&n.stats.rpcErrors),
		"uptime":           time.Since(n.start).Round(time.Second).String(),
	}
	return s
}

//GetValues returns every value observed so far
func (n *Node) GetValues() ([]uint64, error) {
	return n.core.Snapshot()
}

//GetNeighbors returns the current neighbour list
func (n *Node) GetNeighbors() []string {
	return n.core.Neighbors()
}
