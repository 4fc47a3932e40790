package net

// RPCResponse captures both a response and a potential error.
type RPCResponse struct {
	Response Response
	Error    error
}

// RPC encapsulates an RPC request and provides a response mechanism. Source
// is the id of the sender when the transport knows it.
type RPC struct {
	Source   string
	Command  Request
	RespChan chan<- RPCResponse
}

// Respond is used to respond with a response, error or both.
func (r *RPC) Respond(resp Response, err error) {
	r.RespChan <- RPCResponse{resp, err}
}
