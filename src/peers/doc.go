// Package peers defines the static peer book of a meshcast deployment.
//
// When nodes talk over TCP rather than through a test harness, nobody sends
// them "init" or "topology" requests. Instead every node loads the same peer
// book, a YAML (or JSON) list of peers, each with an id, the address where it
// can be reached, and the ids of its neighbours:
//
//	- id: n1
//	  net_addr: 10.0.0.1:1337
//	  neighbors: [n2, n3]
//	- id: n2
//	  net_addr: 10.0.0.2:1337
//	  neighbors: [n1]
//
// The book is used both to resolve node ids to addresses and to build the
// initial topology mapping. A later "topology" request replaces the
// neighbours it assigned.
package peers
