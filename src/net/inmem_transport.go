package net

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InmemTransport implements the Transport interface, to allow nodes to be
// tested in-memory without going over a network. Transports are connected to
// each other by node id.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan RPC
	localID    string
	peers      map[string]*InmemTransport
	timeout    time.Duration

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewInmemTransport is used to initialize a new transport. A random id is
// generated if none is specified.
func NewInmemTransport(id string) (string, *InmemTransport) {
	if id == "" {
		id = uuid.NewString()
	}
	trans := &InmemTransport{
		consumerCh: make(chan RPC, 16),
		localID:    id,
		peers:      make(map[string]*InmemTransport),
		timeout:    500 * time.Millisecond,
		shutdownCh: make(chan struct{}),
	}
	return id, trans
}

// Consumer implements the Transport interface.
func (i *InmemTransport) Consumer() <-chan RPC {
	return i.consumerCh
}

// LocalID implements the Transport interface.
func (i *InmemTransport) LocalID() string {
	return i.localID
}

// LocalAddr implements the Transport interface.
func (i *InmemTransport) LocalAddr() string {
	return i.localID
}

// Send implements the Transport interface. It waits for the target to respond
// or for the timeout to expire.
func (i *InmemTransport) Send(target string, req Request) error {
	_, err := i.makeRPC(target, req, i.timeout)
	return err
}

// Call sends req to target and returns the target's response.
func (i *InmemTransport) Call(target string, req Request) (Response, error) {
	rpcResp, err := i.makeRPC(target, req, i.timeout)
	if err != nil {
		return nil, err
	}
	return rpcResp.Response, nil
}

func (i *InmemTransport) makeRPC(target string, req Request, timeout time.Duration) (rpcResp RPCResponse, err error) {
	select {
	case <-i.shutdownCh:
		err = ErrTransportShutdown
		return
	default:
	}

	i.RLock()
	peer, ok := i.peers[target]
	i.RUnlock()

	if !ok {
		err = fmt.Errorf("failed to connect to peer: %v", target)
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Send the RPC over
	respCh := make(chan RPCResponse, 1)
	select {
	case peer.consumerCh <- RPC{
		Source:   i.localID,
		Command:  req,
		RespChan: respCh,
	}:
	case <-peer.shutdownCh:
		err = fmt.Errorf("peer %v: %w", target, ErrTransportShutdown)
		return
	case <-timer.C:
		err = fmt.Errorf("command timed out")
		return
	}

	// Wait for a response
	select {
	case rpcResp = <-respCh:
		if rpcResp.Error != nil {
			err = rpcResp.Error
		}
	case <-timer.C:
		err = fmt.Errorf("command timed out")
	}
	return
}

// Connect is used to connect this transport to another transport for
// a given node id. This allows for local routing.
func (i *InmemTransport) Connect(id string, t Transport) {
	trans := t.(*InmemTransport)
	i.Lock()
	defer i.Unlock()
	i.peers[id] = trans
}

// Disconnect is used to remove the ability to route to a given node.
func (i *InmemTransport) Disconnect(id string) {
	i.Lock()
	defer i.Unlock()
	delete(i.peers, id)
}

// DisconnectAll is used to remove all routes to peers.
func (i *InmemTransport) DisconnectAll() {
	i.Lock()
	defer i.Unlock()
	i.peers = make(map[string]*InmemTransport)
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.DisconnectAll()
	i.shutdownOnce.Do(func() {
		close(i.shutdownCh)
	})
	return nil
}

// Listen blocks until the transport is closed. Requests are delivered
// directly to the consumer channel by connected transports.
func (i *InmemTransport) Listen() error {
	<-i.shutdownCh
	return nil
}

// ConnectAll connects every transport to every other one.
func ConnectAll(transports ...*InmemTransport) {
	for _, a := range transports {
		for _, b := range transports {
			if a != b {
				a.Connect(b.LocalID(), b)
			}
		}
	}
}
