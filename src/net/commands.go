package net

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrUnhandled is returned by a node for a request kind it does not
	// implement. Runtimes translate it into their "not supported" reply.
	ErrUnhandled = errors.New("unhandled request")

	// ErrMalformedRequest is wrapped around every error caused by the content
	// of a request rather than by the node.
	ErrMalformedRequest = errors.New("malformed request")
)

// Request body kinds, as they appear in the "type" field on the wire.
const (
	KindInit      = "init"
	KindRead      = "read"
	KindBroadcast = "broadcast"
	KindTopology  = "topology"
	KindGenerate  = "generate"
	KindSync      = "sync"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Report wire names rather than Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

// Request is the closed set of request bodies a node handles.
type Request interface {
	Type() string
}

// Response is the body sent back for a Request.
type Response interface {
	Type() string
}

// InitRequest tells a node which id it was assigned and which ids exist in the
// cluster. Runtimes consume it before any other request.
type InitRequest struct {
	NodeID  string   `json:"node_id" validate:"required"`
	NodeIDs []string `json:"node_ids"`
}

// Type implements Request.
func (r *InitRequest) Type() string { return KindInit }

// InitResponse acknowledges an InitRequest.
type InitResponse struct{}

// Type implements Response.
func (r *InitResponse) Type() string { return "init_ok" }

// ReadRequest asks for every value the node has observed.
type ReadRequest struct{}

// Type implements Request.
func (r *ReadRequest) Type() string { return KindRead }

// ReadResponse carries a snapshot of the observed values. The order is not
// significant.
type ReadResponse struct {
	Messages []uint64 `json:"messages"`
}

// Type implements Response.
func (r *ReadResponse) Type() string { return "read_ok" }

// BroadcastRequest submits a value to the node. The value is a pointer so that
// a missing field can be told apart from zero.
type BroadcastRequest struct {
	Message *uint64 `json:"message" validate:"required"`
}

// NewBroadcastRequest returns a BroadcastRequest for v.
func NewBroadcastRequest(v uint64) *BroadcastRequest {
	return &BroadcastRequest{Message: &v}
}

// Type implements Request.
func (r *BroadcastRequest) Type() string { return KindBroadcast }

// BroadcastResponse acknowledges a BroadcastRequest.
type BroadcastResponse struct{}

// Type implements Response.
func (r *BroadcastResponse) Type() string { return "broadcast_ok" }

// TopologyRequest assigns neighbours. Only the entry for the receiving node is
// used.
type TopologyRequest struct {
	Topology map[string][]string `json:"topology" validate:"required"`
}

// Type implements Request.
func (r *TopologyRequest) Type() string { return KindTopology }

// TopologyResponse acknowledges a TopologyRequest.
type TopologyResponse struct{}

// Type implements Response.
func (r *TopologyResponse) Type() string { return "topology_ok" }

// GenerateRequest asks for a globally unique id.
type GenerateRequest struct{}

// Type implements Request.
func (r *GenerateRequest) Type() string { return KindGenerate }

// GenerateResponse carries the generated id.
type GenerateResponse struct {
	ID string `json:"id"`
}

// Type implements Response.
func (r *GenerateResponse) Type() string { return "generate_ok" }

// SyncRequest pushes a full snapshot to a neighbour during anti-entropy.
type SyncRequest struct {
	Messages []uint64 `json:"messages"`
}

// Type implements Request.
func (r *SyncRequest) Type() string { return KindSync }

// SyncResponse acknowledges a SyncRequest.
type SyncResponse struct{}

// Type implements Response.
func (r *SyncResponse) Type() string { return "sync_ok" }

// UnknownRequest stands for any body whose kind is not listed above.
type UnknownRequest struct {
	Kind string
}

// Type implements Request.
func (r *UnknownRequest) Type() string { return r.Kind }

// NewRequest returns an empty request of the given kind. Unknown kinds yield
// an UnknownRequest.
func NewRequest(kind string) Request {
	switch kind {
	case KindInit:
		return &InitRequest{}
	case KindRead:
		return &ReadRequest{}
	case KindBroadcast:
		return &BroadcastRequest{}
	case KindTopology:
		return &TopologyRequest{}
	case KindGenerate:
		return &GenerateRequest{}
	case KindSync:
		return &SyncRequest{}
	default:
		return &UnknownRequest{Kind: kind}
	}
}

// ResponseFor returns an empty response matching req, or nil when req has no
// defined response.
func ResponseFor(req Request) Response {
	switch req.(type) {
	case *InitRequest:
		return &InitResponse{}
	case *ReadRequest:
		return &ReadResponse{}
	case *BroadcastRequest:
		return &BroadcastResponse{}
	case *TopologyRequest:
		return &TopologyResponse{}
	case *GenerateRequest:
		return &GenerateResponse{}
	case *SyncRequest:
		return &SyncResponse{}
	default:
		return nil
	}
}

// DecodeRequest decodes a JSON body of the given kind and checks that its
// required fields are present. Errors wrap ErrMalformedRequest.
func DecodeRequest(kind string, body []byte) (Request, error) {
	req := NewRequest(kind)

	if _, ok := req.(*UnknownRequest); ok {
		return req, nil
	}

	if err := json.Unmarshal(body, req); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedRequest, kind, err)
	}

	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	return req, nil
}

// ValidateRequest checks the validate tags of req.
func ValidateRequest(req Request) error {
	if _, ok := req.(*UnknownRequest); ok {
		return nil
	}

	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedRequest, req.Type(), err)
	}

	return nil
}
