// Package net implements the transports meshcast nodes use to receive requests
// and to forward values to their neighbours.
//
// Every transport delivers inbound requests as RPCs on its Consumer channel
// and exposes Send for outbound, fire-and-forget requests. There are three
// implementations:
//
// - Stdio: newline-delimited JSON on standard input and output, for nodes run
// as child processes of a test harness
//
// - TCP: msgpack frames over plain TCP, for nodes deployed from a static peer
// book
//
// - Inmem: in-memory transport used only for testing
//
// Stdio
//
// Each line is an object with "src", "dest" and "body" fields. The body carries
// a "type" and usually a "msg_id"; replies carry "in_reply_to". The first
// message a node receives is "init", which assigns its id. Failed requests are
// answered with an "error" body whose code is 10 when the request kind is not
// supported, 12 when the request is malformed and 13 for anything else.
//
// Nothing but protocol messages may be written to standard output, so logs go
// to standard error.
//
// TCP
//
// The TCP transport resolves node ids through an AddrBook, usually the peer
// book loaded from peers.yaml (cf peers package). Set the following options in
// the Config object (cf config package):
//
// - NodeID: the id of this node in the peer book
//
// - BindAddr: the IP:PORT of the TCP socket that the node binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other nodes. If
// BindAddr is a local address not reachable by other peers, it is usefull to
// set AdvertiseAddr to the reachable public address.
package net
