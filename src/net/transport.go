package net

import "errors"

// ErrTransportShutdown is returned when operations on a transport are invoked
// after it's been terminated.
var ErrTransportShutdown = errors.New("transport shutdown")

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {

	// Listen serves inbound requests. It blocks until the transport is closed
	// or its input is exhausted.
	Listen() error

	// Consumer returns a channel that can be used to consume and respond to
	// RPC requests.
	Consumer() <-chan RPC

	// LocalID is the node id this transport speaks for. It may be empty until
	// the runtime has been initialised.
	LocalID() string

	// LocalAddr is used to return our local address
	LocalAddr() string

	// Send delivers req to the target node. Whether it waits for the
	// target's reply depends on the transport; the reply itself is dropped.
	Send(target string, req Request) error

	// Close permanently closes a transport, stopping any associated goroutines
	// and freeing other resources.
	Close() error
}
