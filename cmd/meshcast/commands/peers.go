package commands

import (
	"fmt"

	"github.com/mosaicnetworks/meshcast/src/peers"
	"github.com/spf13/cobra"
)

var peersFile string

// NewPeersCmd produces a PeersCmd which edits the peer book used by the tcp
// transport
func NewPeersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peers",
		Short: "Edit the peer book",
	}

	cmd.PersistentFlags().StringVar(&peersFile, "peers", _config.Meshcast.PeersPath(), "Peer book to edit")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "add [id] [net_addr] [neighbors...]",
			Short: "Add a node to the peer book",
			Args:  cobra.MinimumNArgs(2),
			RunE:  addPeer,
		},
		&cobra.Command{
			Use:   "remove [id]",
			Short: "Remove a node and every link to it from the peer book",
			Args:  cobra.ExactArgs(1),
			RunE:  removePeer,
		},
	)

	return cmd
}

func loadPeerBook() (*peers.YAMLPeerSet, *peers.PeerSet, error) {
	book := peers.NewYAMLPeerSet(peersFile)

	list, err := book.Peers()
	if err != nil {
		return nil, nil, fmt.Errorf("Reading peer book: %s", err)
	}

	return book, peers.NewPeerSet(list), nil
}

func addPeer(cmd *cobra.Command, args []string) error {
	book, peerSet, err := loadPeerBook()
	if err != nil {
		return err
	}

	id := args[0]
	if _, ok := peerSet.ByID[id]; ok {
		return fmt.Errorf("%s is already in %s", id, book.Path())
	}

	peerSet = peerSet.WithNewPeer(peers.NewPeer(id, args[1], args[2:]...))

	if err := book.Write(peerSet.Peers); err != nil {
		return fmt.Errorf("Writing peer book: %s", err)
	}

	fmt.Printf("Added %s to %s\n", id, book.Path())

	return nil
}

func removePeer(cmd *cobra.Command, args []string) error {
	book, peerSet, err := loadPeerBook()
	if err != nil {
		return err
	}

	id := args[0]
	if _, ok := peerSet.ByID[id]; !ok {
		return fmt.Errorf("%s is not in %s", id, book.Path())
	}

	peerSet = peerSet.WithRemovedPeer(id)

	if err := book.Write(peerSet.Peers); err != nil {
		return fmt.Errorf("Writing peer book: %s", err)
	}

	fmt.Printf("Removed %s from %s\n", id, book.Path())

	return nil
}
