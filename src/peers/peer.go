package peers

// Peer is an entry of the peer book.
type Peer struct {
	ID        string   `yaml:"id" json:"id"`
	NetAddr   string   `yaml:"net_addr" json:"net_addr"`
	Neighbors []string `yaml:"neighbors,omitempty" json:"neighbors,omitempty"`
}

// NewPeer creates a Peer.
func NewPeer(id, netAddr string, neighbors ...string) *Peer {
	return &Peer{
		ID:        id,
		NetAddr:   netAddr,
		Neighbors: neighbors,
	}
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, id string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.ID != id {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
