package peers

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func testPeers() []*Peer {
	return []*Peer{
		NewPeer("n1", "127.0.0.1:1337", "n2", "n3"),
		NewPeer("n2", "127.0.0.1:1338", "n1"),
		NewPeer("n3", "127.0.0.1:1339"),
	}
}

func TestPeerSet(t *testing.T) {
	peerSet := NewPeerSet(testPeers())

	if peerSet.Len() != 3 {
		t.Fatalf("Len should be 3, not %d", peerSet.Len())
	}

	if ids := peerSet.IDs(); !reflect.DeepEqual(ids, []string{"n1", "n2", "n3"}) {
		t.Fatalf("bad ids: %v", ids)
	}

	addr, ok := peerSet.NetAddr("n2")
	if !ok || addr != "127.0.0.1:1338" {
		t.Fatalf("bad address for n2: %q %v", addr, ok)
	}

	if _, ok := peerSet.NetAddr("n9"); ok {
		t.Fatalf("n9 should not resolve")
	}
}

func TestPeerSetTopology(t *testing.T) {
	peerSet := NewPeerSet(testPeers())

	expected := map[string][]string{
		"n1": {"n2", "n3"},
		"n2": {"n1"},
		"n3": {},
	}
	if topo := peerSet.Topology(); !reflect.DeepEqual(topo, expected) {
		t.Fatalf("topology should be %v, not %v", expected, topo)
	}
}

func TestPeerSetCheck(t *testing.T) {
	if err := NewPeerSet(testPeers()).Check(); err != nil {
		t.Fatalf("err: %v", err)
	}

	bad := append(testPeers(), NewPeer("n4", "127.0.0.1:1340", "n7"))
	if err := NewPeerSet(bad).Check(); err == nil {
		t.Fatalf("Check should reject unknown neighbour")
	}

	self := []*Peer{NewPeer("n1", "127.0.0.1:1337", "n1")}
	if err := NewPeerSet(self).Check(); err == nil {
		t.Fatalf("Check should reject a self loop")
	}
}

func TestWithNewAndRemovedPeer(t *testing.T) {
	peerSet := NewPeerSet(testPeers())

	grown := peerSet.WithNewPeer(NewPeer("n4", "127.0.0.1:1340"))
	if grown.Len() != 4 || peerSet.Len() != 3 {
		t.Fatalf("WithNewPeer should leave the original untouched: %d %d", grown.Len(), peerSet.Len())
	}

	same := peerSet.WithNewPeer(NewPeer("n1", "10.0.0.1:1"))
	if same.Len() != 3 {
		t.Fatalf("WithNewPeer should ignore known ids")
	}

	shrunk := peerSet.WithRemovedPeer("n2")
	if _, ok := shrunk.ByID["n2"]; ok || shrunk.Len() != 2 {
		t.Fatalf("n2 should have been removed: %v", shrunk.IDs())
	}
	if err := shrunk.Check(); err != nil {
		t.Fatalf("removing a peer should leave a consistent book: %v", err)
	}
	for _, p := range shrunk.Peers {
		for _, n := range p.Neighbors {
			if n == "n2" {
				t.Fatalf("%s still lists n2 as a neighbour", p.ID)
			}
		}
	}
	if len(peerSet.ByID["n1"].Neighbors) == 0 {
		t.Fatalf("WithRemovedPeer should leave the original untouched")
	}
}

func TestExcludePeer(t *testing.T) {
	index, others := ExcludePeer(testPeers(), "n2")
	if index != 1 || len(others) != 2 {
		t.Fatalf("bad exclusion: %d %d", index, len(others))
	}
}

func TestYAMLPeerSet(t *testing.T) {
	dir := t.TempDir()

	store := NewYAMLPeerSet(dir)
	if store.Path() != filepath.Join(dir, PeerSetFile) {
		t.Fatalf("bad path: %s", store.Path())
	}

	// Try a read, should get nothing
	if _, err := store.PeerSet(); err == nil {
		t.Fatalf("store.PeerSet() should generate an error")
	}

	if peers, err := store.Peers(); err != nil || len(peers) != 0 {
		t.Fatalf("a missing book should read as empty: %v %v", peers, err)
	}

	if err := store.Write(testPeers()); err != nil {
		t.Fatalf("err: %v", err)
	}

	peerSet, err := store.PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if peerSet.Len() != 3 {
		t.Fatalf("peers: %v", peerSet.Peers)
	}
	for i, p := range testPeers() {
		if peerSet.Peers[i].ID != p.ID || peerSet.Peers[i].NetAddr != p.NetAddr {
			t.Fatalf("peers[%d] should be %v, not %v", i, p, peerSet.Peers[i])
		}
	}
}

func TestYAMLPeerSetAcceptsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peers.json")

	content := `[
  {"id": "n1", "net_addr": "127.0.0.1:1337", "neighbors": ["n2"]},
  {"id": "n2", "net_addr": "127.0.0.1:1338", "neighbors": ["n1"]}
]`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("err: %v", err)
	}

	peerSet, err := NewYAMLPeerSet(path).PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	expected := map[string][]string{
		"n1": {"n2"},
		"n2": {"n1"},
	}
	if topo := peerSet.Topology(); !reflect.DeepEqual(topo, expected) {
		t.Fatalf("topology should be %v, not %v", expected, topo)
	}
}
