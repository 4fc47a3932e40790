package peers

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// PeerSetFile is the name of the peer book in the data directory.
const PeerSetFile = "peers.yaml"

// YAMLPeerSet is used to read and write a peer book on disk. JSON files are
// accepted as well since they are valid YAML.
type YAMLPeerSet struct {
	l    sync.Mutex
	path string
}

// NewYAMLPeerSet creates a YAMLPeerSet for the file at path. When path is a
// directory the book is expected under PeerSetFile in it.
func NewYAMLPeerSet(path string) *YAMLPeerSet {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, PeerSetFile)
	}

	return &YAMLPeerSet{
		path: path,
	}
}

// Path returns the file backing the book.
func (y *YAMLPeerSet) Path() string {
	return y.path
}

// Peers parses the underlying file without checking it. A missing file is an
// empty book.
func (y *YAMLPeerSet) Peers() ([]*Peer, error) {
	y.l.Lock()
	defer y.l.Unlock()

	buf, err := os.ReadFile(y.path)
	if os.IsNotExist(err) {
		return []*Peer{}, nil
	}
	if err != nil {
		return nil, err
	}

	// Check for no peers
	if len(bytes.TrimSpace(buf)) == 0 {
		return []*Peer{}, nil
	}

	var peers []*Peer
	if err := yaml.Unmarshal(buf, &peers); err != nil {
		return nil, err
	}

	return peers, nil
}

// PeerSet parses the underlying file and returns the corresponding PeerSet.
// The file must exist and every neighbour must be a known peer.
func (y *YAMLPeerSet) PeerSet() (*PeerSet, error) {
	if _, err := os.Stat(y.path); err != nil {
		return nil, err
	}

	peers, err := y.Peers()
	if err != nil {
		return nil, err
	}

	peerSet := NewPeerSet(peers)
	if err := peerSet.Check(); err != nil {
		return nil, err
	}

	return peerSet, nil
}

// Write persists a list of peers, creating the parent directory if needed.
func (y *YAMLPeerSet) Write(peers []*Peer) error {
	y.l.Lock()
	defer y.l.Unlock()

	if err := os.MkdirAll(filepath.Dir(y.path), 0755); err != nil {
		return err
	}

	buf, err := yaml.Marshal(peers)
	if err != nil {
		return err
	}

	return os.WriteFile(y.path, buf, 0644)
}
