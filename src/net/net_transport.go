package net

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	rpcRead uint8 = iota
	rpcBroadcast
	rpcTopology
	rpcGenerate
	rpcSync
)

const bufSize = 64 * 1024

var msgpackHandle = &codec.MsgpackHandle{}

// AddrBook resolves node ids to the network address they listen on.
type AddrBook interface {
	NetAddr(id string) (string, bool)
}

// StreamLayer is used with the NetworkTransport to provide the low level stream
// abstraction.
type StreamLayer interface {
	net.Listener

	// Dial is used to create a new outgoing connection
	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr returns the publicly-reachable address of the stream
	AdvertiseAddr() string
}

/*
NetworkTransport sends requests between nodes over a stream layer.

Each request is framed by a byte that indicates the request kind, followed by
the msgpack encoded id of the sender and the msgpack encoded body. The
response is an error string followed by the response body, both msgpack
encoded. Connections are pooled per target and reused once a response has
been read in full.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	localID string
	book    AddrBook

	connPool     map[string][]*netConn
	connPoolLock sync.Mutex
	maxPool      int

	consumeCh chan RPC

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	timeout time.Duration
}

type netConn struct {
	target string
	conn   net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	dec    *codec.Decoder
	enc    *codec.Encoder
}

// Release closes the underlying connection
func (n *netConn) Release() error {
	return n.conn.Close()
}

// NewNetworkTransport creates a new network transport for the node localID.
// The maxPool controls how many connections we will pool (per target). The
// timeout is used to apply I/O deadlines.
func NewNetworkTransport(
	stream StreamLayer,
	localID string,
	book AddrBook,
	maxPool int,
	timeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	trans := &NetworkTransport{
		localID:    localID,
		book:       book,
		connPool:   make(map[string][]*netConn),
		consumeCh:  make(chan RPC),
		logger:     logger,
		maxPool:    maxPool,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		timeout:    timeout,
	}

	return trans
}

// Close is used to stop the network transport.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()
	defer n.shutdownLock.Unlock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()
		n.shutdown = true
	}

	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()
	for target, conns := range n.connPool {
		for _, c := range conns {
			c.Release()
		}
		delete(n.connPool, target)
	}

	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalID implements the Transport interface.
func (n *NetworkTransport) LocalID() string {
	return n.localID
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr is the address other nodes should use to reach us.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// getPooledConn is used to grab a pooled connection.
func (n *NetworkTransport) getPooledConn(target string) *netConn {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	conns, ok := n.connPool[target]
	if !ok || len(conns) == 0 {
		return nil
	}

	var conn *netConn
	num := len(conns)
	conn, conns[num-1] = conns[num-1], nil
	n.connPool[target] = conns[:num-1]
	return conn
}

// getConn is used to get a connection from the pool.
func (n *NetworkTransport) getConn(target string, timeout time.Duration) (*netConn, error) {
	if conn := n.getPooledConn(target); conn != nil {
		return conn, nil
	}

	conn, err := n.stream.Dial(target, timeout)
	if err != nil {
		return nil, err
	}

	netConn := &netConn{
		target: target,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, bufSize),
		w:      bufio.NewWriterSize(conn, bufSize),
	}
	netConn.dec = codec.NewDecoder(netConn.r, msgpackHandle)
	netConn.enc = codec.NewEncoder(netConn.w, msgpackHandle)

	return netConn, nil
}

// returnConn returns a connection back to the pool.
func (n *NetworkTransport) returnConn(conn *netConn) {
	n.connPoolLock.Lock()
	defer n.connPoolLock.Unlock()

	key := conn.target
	conns := n.connPool[key]

	if !n.IsShutdown() && len(conns) < n.maxPool {
		n.connPool[key] = append(conns, conn)
	} else {
		conn.Release()
	}
}

// Send implements the Transport interface. It waits for the target's reply
// so that remote errors are reported, but the reply body is discarded.
func (n *NetworkTransport) Send(target string, req Request) error {
	_, err := n.Call(target, req)
	return err
}

// Call sends req to the node target and returns its response.
func (n *NetworkTransport) Call(target string, req Request) (Response, error) {
	if n.IsShutdown() {
		return nil, ErrTransportShutdown
	}

	rpcType, err := rpcTypeOf(req)
	if err != nil {
		return nil, err
	}

	addr, ok := n.book.NetAddr(target)
	if !ok {
		return nil, fmt.Errorf("no address for node %q", target)
	}

	resp := ResponseFor(req)
	if err := n.genericRPC(addr, rpcType, n.timeout, req, resp); err != nil {
		return nil, err
	}

	return resp, nil
}

// genericRPC handles a simple request/response RPC.
func (n *NetworkTransport) genericRPC(target string, rpcType uint8, timeout time.Duration, args interface{}, resp interface{}) error {
	conn, err := n.getConn(target, timeout)
	if err != nil {
		return err
	}

	if timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(timeout))
	}

	if err = sendRPC(conn, rpcType, n.localID, args); err != nil {
		return err
	}

	canReturn, err := decodeResponse(conn, resp)
	if canReturn {
		n.returnConn(conn)
	}

	return err
}

// sendRPC is used to encode and send the RPC.
func sendRPC(conn *netConn, rpcType uint8, source string, args interface{}) error {
	if err := conn.w.WriteByte(rpcType); err != nil {
		conn.Release()
		return err
	}

	if err := conn.enc.Encode(source); err != nil {
		conn.Release()
		return err
	}

	if err := conn.enc.Encode(args); err != nil {
		conn.Release()
		return err
	}

	if err := conn.w.Flush(); err != nil {
		conn.Release()
		return err
	}
	return nil
}

// decodeResponse is used to decode an RPC response and reports whether
// the connection can be reused.
func decodeResponse(conn *netConn, resp interface{}) (bool, error) {
	var rpcError string
	if err := conn.dec.Decode(&rpcError); err != nil {
		conn.Release()
		return false, err
	}

	if err := conn.dec.Decode(resp); err != nil {
		conn.Release()
		return false, err
	}

	if rpcError != "" {
		return true, errors.New(rpcError)
	}
	return true, nil
}

func rpcTypeOf(req Request) (uint8, error) {
	switch req.(type) {
	case *ReadRequest:
		return rpcRead, nil
	case *BroadcastRequest:
		return rpcBroadcast, nil
	case *TopologyRequest:
		return rpcTopology, nil
	case *GenerateRequest:
		return rpcGenerate, nil
	case *SyncRequest:
		return rpcSync, nil
	default:
		return 0, fmt.Errorf("%s cannot be sent over the network: %w", req.Type(), ErrUnhandled)
	}
}

func requestFor(rpcType uint8) (Request, error) {
	switch rpcType {
	case rpcRead:
		return &ReadRequest{}, nil
	case rpcBroadcast:
		return &BroadcastRequest{}, nil
	case rpcTopology:
		return &TopologyRequest{}, nil
	case rpcGenerate:
		return &GenerateRequest{}, nil
	case rpcSync:
		return &SyncRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown rpc type %d", rpcType)
	}
}

// Listen handles incoming connections until the transport is closed.
func (n *NetworkTransport) Listen() error {
	for {
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return nil
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		go n.handleConn(conn)
	}
}

// handleConn is used to handle an inbound connection for its lifespan.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, bufSize)
	w := bufio.NewWriterSize(conn, bufSize)
	dec := codec.NewDecoder(r, msgpackHandle)
	enc := codec.NewEncoder(w, msgpackHandle)

	for {
		if err := n.handleCommand(r, dec, enc); err != nil {
			if err == ErrTransportShutdown {
				n.logger.WithField("error", err).Warn("Failed to decode incoming command")
			} else if err != io.EOF {
				n.logger.WithField("error", err).Error("Failed to decode incoming command")
			}
			return
		}
		if err := w.Flush(); err != nil {
			n.logger.WithField("error", err).Error("Failed to flush response")
			return
		}
	}
}

// handleCommand is used to decode and dispatch a single command.
func (n *NetworkTransport) handleCommand(r *bufio.Reader, dec *codec.Decoder, enc *codec.Encoder) error {
	rpcType, err := r.ReadByte()
	if err != nil {
		return err
	}

	var source string
	if err := dec.Decode(&source); err != nil {
		return err
	}

	req, err := requestFor(rpcType)
	if err != nil {
		return err
	}

	if err := dec.Decode(req); err != nil {
		return err
	}

	respCh := make(chan RPCResponse, 1)
	rpc := RPC{
		Source:   source,
		Command:  req,
		RespChan: respCh,
	}

	// Bodies are checked here rather than by the consumer, as on stdio.
	if err := ValidateRequest(req); err != nil {
		respCh <- RPCResponse{Error: err}
	} else {
		select {
		case n.consumeCh <- rpc:
		case <-n.shutdownCh:
			return ErrTransportShutdown
		}
	}

	select {
	case resp := <-respCh:
		respErr := ""
		if resp.Error != nil {
			respErr = resp.Error.Error()
		}
		if err := enc.Encode(respErr); err != nil {
			return err
		}

		if err := enc.Encode(resp.Response); err != nil {
			return err
		}
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	return nil
}
