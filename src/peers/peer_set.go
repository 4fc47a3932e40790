package peers

import "fmt"

//PeerSet is the set of Peers of a deployment, indexed by id
type PeerSet struct {
	Peers []*Peer
	ByID  map[string]*Peer
}

/* Constructors */

//NewPeerSet creates a new PeerSet from a list of Peers. When two peers share
//an id the last one wins.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByID: make(map[string]*Peer),
	}

	for _, peer := range peers {
		peerSet.ByID[peer.ID] = peer
	}

	peerSet.Peers = peers

	return peerSet
}

//WithNewPeer returns a new PeerSet with a list of peers including the new one.
func (peerSet *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	peers := append([]*Peer(nil), peerSet.Peers...)

	//don't add it if it already exists
	if _, ok := peerSet.ByID[peer.ID]; !ok {
		peers = append(peers, peer)
	}

	return NewPeerSet(peers)
}

//WithRemovedPeer returns a new PeerSet with a list of peers excluding the
//provided one. The id is also dropped from the neighbours of the others.
func (peerSet *PeerSet) WithRemovedPeer(id string) *PeerSet {
	_, others := ExcludePeer(peerSet.Peers, id)

	peers := make([]*Peer, 0, len(others))
	for _, p := range others {
		var neighbors []string
		for _, n := range p.Neighbors {
			if n != id {
				neighbors = append(neighbors, n)
			}
		}
		peers = append(peers, NewPeer(p.ID, p.NetAddr, neighbors...))
	}

	return NewPeerSet(peers)
}

/* ToSlice Methods */

//IDs returns the PeerSet's slice of IDs
func (peerSet *PeerSet) IDs() []string {
	res := []string{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.ID)
	}

	return res
}

/* Utilities */

//Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.ByID)
}

// NetAddr resolves a node id to the address it listens on.
func (peerSet *PeerSet) NetAddr(id string) (string, bool) {
	peer, ok := peerSet.ByID[id]
	if !ok || peer.NetAddr == "" {
		return "", false
	}
	return peer.NetAddr, true
}

// Topology returns the neighbour mapping described by the book. Every peer has
// an entry, possibly empty.
func (peerSet *PeerSet) Topology() map[string][]string {
	res := make(map[string][]string, len(peerSet.Peers))

	for _, peer := range peerSet.Peers {
		res[peer.ID] = append([]string{}, peer.Neighbors...)
	}

	return res
}

// Check verifies that ids are set and that every neighbour is a known peer.
func (peerSet *PeerSet) Check() error {
	for i, peer := range peerSet.Peers {
		if peer.ID == "" {
			return fmt.Errorf("peer %d has no id", i)
		}
		for _, n := range peer.Neighbors {
			if _, ok := peerSet.ByID[n]; !ok {
				return fmt.Errorf("peer %s: unknown neighbour %s", peer.ID, n)
			}
			if n == peer.ID {
				return fmt.Errorf("peer %s lists itself as a neighbour", peer.ID)
			}
		}
	}
	return nil
}
