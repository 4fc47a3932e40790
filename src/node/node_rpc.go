package node

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/meshcast/src/net"
	"github.com/sirupsen/logrus"
)

func (n *Node) processRPC(rpc net.RPC) {
	resp, err := n.Dispatch(rpc.Command)

	if err != nil {
		atomic.AddUint64(&n.stats.rpcErrors, 1)

		entry := n.log().WithFields(logrus.Fields{
			"from":  rpc.Source,
			"type":  rpc.Command.Type(),
			"error": err,
		})
		if errors.Is(err, net.ErrUnhandled) || errors.Is(err, net.ErrMalformedRequest) {
			entry.Debug("Rejected RPC")
		} else {
			entry.Error("Failed to process RPC")
		}
	}

	rpc.Respond(resp, err)
}

// Dispatch executes a request against the node and returns the response to
// send back. Requests of unknown kinds yield net.ErrUnhandled and leave the
// state untouched; invalid requests yield an error wrapping
// net.ErrMalformedRequest.
func (n *Node) Dispatch(req net.Request) (net.Response, error) {
	if err := net.ValidateRequest(req); err != nil {
		return nil, err
	}

	switch cmd := req.(type) {
	case *net.ReadRequest:
		return n.processReadRequest()
	case *net.BroadcastRequest:
		return n.processBroadcastRequest(cmd)
	case *net.TopologyRequest:
		return n.processTopologyRequest(cmd)
	case *net.GenerateRequest:
		return n.processGenerateRequest()
	case *net.SyncRequest:
		return n.processSyncRequest(cmd)
	default:
		return nil, fmt.Errorf("%w: %s", net.ErrUnhandled, req.Type())
	}
}

func (n *Node) processReadRequest() (net.Response, error) {
	values, err := n.core.Snapshot()
	if err != nil {
		return nil, err
	}

	return &net.ReadResponse{Messages: values}, nil
}

func (n *Node) processBroadcastRequest(cmd *net.BroadcastRequest) (net.Response, error) {
	obs, err := n.Observe(*cmd.Message)
	if err != nil {
		return nil, err
	}

	n.log().WithFields(logrus.Fields{
		"value":       *cmd.Message,
		"observation": obs.String(),
	}).Debug("process BroadcastRequest")

	return &net.BroadcastResponse{}, nil
}

func (n *Node) processTopologyRequest(cmd *net.TopologyRequest) (net.Response, error) {
	if n.conf.Single {
		n.log().Debug("Ignoring topology in single mode")
		return &net.TopologyResponse{}, nil
	}

	if err := n.core.UpdateTopology(cmd.Topology, n.ID()); err != nil {
		return nil, fmt.Errorf("%w: %w", net.ErrMalformedRequest, err)
	}

	n.log().WithField("neighbors", cmd.Topology[n.ID()]).Info("Topology updated")

	return &net.TopologyResponse{}, nil
}

func (n *Node) processGenerateRequest() (net.Response, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	return &net.GenerateResponse{ID: id.String()}, nil
}

func (n *Node) processSyncRequest(cmd *net.SyncRequest) (net.Response, error) {
	added := 0
	for _, v := range cmd.Messages {
		obs, err := n.Observe(v)
		if err != nil {
			return nil, err
		}
		if obs == New {
			added++
		}
	}

	n.log().WithFields(logrus.Fields{
		"received": len(cmd.Messages),
		"new":      added,
	}).Debug("process SyncRequest")

	return &net.SyncResponse{}, nil
}
