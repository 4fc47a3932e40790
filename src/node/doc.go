// Package node implements the reactive component of a meshcast node.
//
// A node keeps the set of values it has observed and the list of its
// neighbours, both guarded by one lock. It consumes RPCs from a transport (cf
// net package) and processes each one in its own goroutine.
//
// Dissemination
//
// When a broadcast request carries a value the node has not seen, the value is
// recorded and sent to every neighbour, one goroutine per neighbour. The check,
// the insertion and the read of the neighbour list happen in a single critical
// section, so concurrent deliveries of the same value forward it once. Forwards
// are fire-and-forget: nothing is acknowledged or retried. A value the node has
// already seen is acknowledged and dropped, which stops the flood once every
// node has it.
//
// Anti-entropy
//
// Because forwards are never retried, a value lost on the way to a neighbour
// stays lost unless another path delivers it. When Config.SyncInterval is set,
// the node periodically pushes its whole set to a random neighbour. An identical
// set is not pushed to the same neighbour again for a few intervals; after that
// it is repeated, since the earlier push may have been lost. It is disabled by
// default.
//
// Single mode
//
// With Config.Single the node never forwards and ignores topology requests. It
// still answers read, broadcast and generate requests.
package node
