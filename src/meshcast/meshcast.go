package meshcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mosaicnetworks/meshcast/src/config"
	"github.com/mosaicnetworks/meshcast/src/net"
	"github.com/mosaicnetworks/meshcast/src/node"
	"github.com/mosaicnetworks/meshcast/src/peers"
	"github.com/mosaicnetworks/meshcast/src/service"
	"github.com/mosaicnetworks/meshcast/src/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// errStopped is returned by a component that finished without error, to stop
// the others.
var errStopped = errors.New("stopped")

// Meshcast assembles a node from a Config: transport, store, peer book, node
// and optional HTTP service.
type Meshcast struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Store     store.Store
	Peers     *peers.PeerSet
	Service   *service.Service

	// Stdin and Stdout carry protocol messages with the stdio transport.
	Stdin  io.Reader
	Stdout io.Writer

	logger       *logrus.Entry
	shutdownOnce sync.Once
}

// NewMeshcast ...
func NewMeshcast(c *config.Config) *Meshcast {
	engine := &Meshcast{
		Config: c,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		logger: c.Logger(),
	}

	return engine
}

func (m *Meshcast) initPeers() error {
	if m.Config.Transport != config.TransportTCP {
		return nil
	}

	if m.Peers != nil {
		return nil
	}

	peerStore := peers.NewYAMLPeerSet(m.Config.PeersPath())

	peerSet, err := peerStore.PeerSet()
	if err != nil {
		return fmt.Errorf("loading peer book %s: %w", peerStore.Path(), err)
	}

	if _, ok := peerSet.ByID[m.Config.NodeID]; !ok {
		return fmt.Errorf("node %q is not in the peer book %s", m.Config.NodeID, peerStore.Path())
	}

	m.logger.WithFields(logrus.Fields{
		"path":  peerStore.Path(),
		"peers": peerSet.IDs(),
	}).Debug("Loaded peer book")

	m.Peers = peerSet

	return nil
}

func (m *Meshcast) initStore() error {
	if !m.Config.Store {
		m.Store = store.NewInmemStore()

		m.logger.Debug("created new in-mem store")

		return nil
	}

	m.logger.WithField("path", m.Config.DatabaseDir).Debug("Creating fresh database")

	s, err := store.NewBadgerStore(m.Config.DatabaseDir, m.logger)
	if err != nil {
		return err
	}

	m.Store = s

	return nil
}

func (m *Meshcast) initTransport() error {
	switch m.Config.Transport {
	case config.TransportTCP:
		transport, err := net.NewTCPTransport(
			m.Config.BindAddr,
			m.Config.AdvertiseAddr,
			m.Config.NodeID,
			m.Peers,
			m.Config.MaxPool,
			m.Config.TCPTimeout,
			m.logger,
		)
		if err != nil {
			return err
		}
		m.Transport = transport
	case config.TransportStdio:
		m.Transport = net.NewStdioTransport(m.Stdin, m.Stdout, m.logger)
	default:
		return fmt.Errorf("unknown transport %q", m.Config.Transport)
	}

	return nil
}

func (m *Meshcast) initNode() error {
	m.Node = node.NewNode(m.Config, m.Store, m.Transport)

	if m.Peers != nil {
		if err := m.Node.SetTopology(m.Peers.Topology()); err != nil {
			return fmt.Errorf("failed to initialize node: %s", err)
		}
	}

	m.logger.WithFields(logrus.Fields{
		"id":        m.Node.ID(),
		"transport": m.Config.Transport,
		"neighbors": m.Node.GetNeighbors(),
		"single":    m.Config.Single,
	}).Debug("Node initialised")

	return nil
}

func (m *Meshcast) initService() error {
	if !m.Config.NoService {
		m.Service = service.NewService(m.Config.ServiceAddr, m.Node, m.logger)
	}
	return nil
}

// Init validates the configuration and builds every component.
func (m *Meshcast) Init() error {
	if err := m.Config.Validate(); err != nil {
		return err
	}

	if err := m.initPeers(); err != nil {
		return err
	}

	if err := m.initStore(); err != nil {
		return err
	}

	if err := m.initTransport(); err != nil {
		m.Store.Close()
		return err
	}

	if err := m.initNode(); err != nil {
		m.Transport.Close()
		m.Store.Close()
		return err
	}

	if err := m.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the node and blocks until ctx is cancelled, the transport runs out
// of input, or a component fails. Everything is shut down before it returns.
func (m *Meshcast) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	m.Node.RunAsync()

	g.Go(func() error {
		if err := m.Transport.Listen(); err != nil {
			return err
		}
		return errStopped
	})

	if m.Service != nil {
		g.Go(func() error {
			if err := m.Service.Serve(); err != nil {
				return err
			}
			return errStopped
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		m.Shutdown()
		return nil
	})

	err := g.Wait()
	if errors.Is(err, errStopped) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown stops the service and the node. The node closes the transport and
// the store.
func (m *Meshcast) Shutdown() {
	m.shutdownOnce.Do(func() {
		if m.Service != nil {
			m.Service.Close()
		}
		m.Node.Shutdown()
	})
}
