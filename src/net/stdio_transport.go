package net

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Error codes carried by "error" bodies.
const (
	ErrorCodeNotSupported     = 10
	ErrorCodeMalformedRequest = 12
	ErrorCodeCrash            = 13
)

const maxLineSize = 16 * 1024 * 1024

// Message is one line of the stdio protocol.
type Message struct {
	Src  string          `json:"src"`
	Dest string          `json:"dest"`
	Body json.RawMessage `json:"body"`
}

// MessageHeader holds the fields shared by every body.
type MessageHeader struct {
	Type      string  `json:"type"`
	MsgID     *uint64 `json:"msg_id,omitempty"`
	InReplyTo *uint64 `json:"in_reply_to,omitempty"`
}

// ErrorBody is the reply sent when a request fails.
type ErrorBody struct {
	Code int    `json:"code"`
	Text string `json:"text"`
}

// Type implements Response.
func (e *ErrorBody) Type() string { return "error" }

// ErrorCode maps an error returned by a node to its wire code.
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrUnhandled):
		return ErrorCodeNotSupported
	case errors.Is(err, ErrMalformedRequest):
		return ErrorCodeMalformedRequest
	default:
		return ErrorCodeCrash
	}
}

/*
StdioTransport runs a node as a process speaking newline-delimited JSON
messages on its standard input and output.

The first request is expected to be "init", which assigns the node id; it is
answered by the transport itself. Every other request is handed to the
consumer and answered with a body carrying "in_reply_to". Messages that are
themselves replies are dropped since the node never waits for one.

Nothing but protocol messages may be written to out.
*/
type StdioTransport struct {
	logger *logrus.Entry

	in io.Reader

	outLock sync.Mutex
	enc     *json.Encoder

	idLock sync.RWMutex
	nodeID string

	nextMsgID uint64

	consumeCh chan RPC

	inflight sync.WaitGroup

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex
}

// NewStdioTransport creates a transport reading messages from in and writing
// them to out.
func NewStdioTransport(in io.Reader, out io.Writer, logger *logrus.Entry) *StdioTransport {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &StdioTransport{
		logger:     logger,
		in:         in,
		enc:        json.NewEncoder(out),
		consumeCh:  make(chan RPC),
		shutdownCh: make(chan struct{}),
	}
}

// Consumer implements the Transport interface.
func (s *StdioTransport) Consumer() <-chan RPC {
	return s.consumeCh
}

// LocalID implements the Transport interface. It is empty until init has
// been processed.
func (s *StdioTransport) LocalID() string {
	s.idLock.RLock()
	defer s.idLock.RUnlock()
	return s.nodeID
}

// LocalAddr implements the Transport interface.
func (s *StdioTransport) LocalAddr() string {
	return s.LocalID()
}

// IsShutdown is used to check if the transport is shutdown.
func (s *StdioTransport) IsShutdown() bool {
	select {
	case <-s.shutdownCh:
		return true
	default:
		return false
	}
}

// Close is used to stop the transport. A Listen blocked on input returns
// immediately.
func (s *StdioTransport) Close() error {
	s.shutdownLock.Lock()
	defer s.shutdownLock.Unlock()

	if !s.shutdown {
		close(s.shutdownCh)
		s.shutdown = true
	}
	return nil
}

// Send implements the Transport interface. It writes the request and returns
// without waiting for a reply.
func (s *StdioTransport) Send(target string, req Request) error {
	if s.IsShutdown() {
		return ErrTransportShutdown
	}
	return s.write(target, req, req.Type(), nil)
}

// Listen reads messages until the input is exhausted or the transport is
// closed. Requests still in flight when the input ends are answered before
// Listen returns.
func (s *StdioTransport) Listen() error {
	lines := make(chan []byte)
	errCh := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(s.in)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-s.shutdownCh:
				return
			}
		}
		errCh <- scanner.Err()
	}()

	for {
		select {
		case line := <-lines:
			if len(line) == 0 {
				continue
			}
			s.handleLine(line)
		case err := <-errCh:
			s.inflight.Wait()
			return err
		case <-s.shutdownCh:
			return nil
		}
	}
}

func (s *StdioTransport) handleLine(line []byte) {
	var msg Message
	if err := json.Unmarshal(line, &msg); err != nil {
		s.logger.WithError(err).Warn("Dropping undecodable message")
		return
	}

	var header MessageHeader
	if err := json.Unmarshal(msg.Body, &header); err != nil {
		s.logger.WithError(err).WithField("from", msg.Src).Warn("Dropping message with undecodable body")
		return
	}

	if header.InReplyTo != nil {
		s.logger.WithFields(logrus.Fields{
			"from":        msg.Src,
			"type":        header.Type,
			"in_reply_to": *header.InReplyTo,
		}).Debug("Dropping reply")
		return
	}

	req, err := DecodeRequest(header.Type, msg.Body)
	if err != nil {
		s.reply(msg.Src, header.MsgID, nil, err)
		return
	}

	if initReq, ok := req.(*InitRequest); ok {
		s.handleInit(msg.Src, header.MsgID, initReq)
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.dispatch(msg.Src, header.MsgID, req)
	}()
}

func (s *StdioTransport) handleInit(src string, msgID *uint64, req *InitRequest) {
	s.idLock.Lock()
	s.nodeID = req.NodeID
	s.idLock.Unlock()

	s.logger.WithFields(logrus.Fields{
		"node_id":  req.NodeID,
		"node_ids": req.NodeIDs,
	}).Info("Initialised")

	s.reply(src, msgID, &InitResponse{}, nil)
}

// dispatch hands req to the consumer and writes its response.
func (s *StdioTransport) dispatch(src string, msgID *uint64, req Request) {
	respCh := make(chan RPCResponse, 1)
	rpc := RPC{
		Source:   src,
		Command:  req,
		RespChan: respCh,
	}

	select {
	case s.consumeCh <- rpc:
	case <-s.shutdownCh:
		return
	}

	select {
	case resp := <-respCh:
		s.reply(src, msgID, resp.Response, resp.Error)
	case <-s.shutdownCh:
	}
}

func (s *StdioTransport) reply(dest string, inReplyTo *uint64, resp Response, err error) {
	if err != nil {
		resp = &ErrorBody{
			Code: ErrorCode(err),
			Text: err.Error(),
		}
	} else if resp == nil {
		resp = &ErrorBody{
			Code: ErrorCodeCrash,
			Text: "empty response",
		}
	}

	if err := s.write(dest, resp, resp.Type(), inReplyTo); err != nil {
		s.logger.WithError(err).WithField("to", dest).Error("Failed to write reply")
	}
}

func (s *StdioTransport) write(dest string, body interface{}, kind string, inReplyTo *uint64) error {
	msgID := atomic.AddUint64(&s.nextMsgID, 1)

	raw, err := encodeBody(body, MessageHeader{
		Type:      kind,
		MsgID:     &msgID,
		InReplyTo: inReplyTo,
	})
	if err != nil {
		return err
	}

	msg := Message{
		Src:  s.LocalID(),
		Dest: dest,
		Body: raw,
	}

	s.outLock.Lock()
	defer s.outLock.Unlock()

	return s.enc.Encode(&msg)
}

// encodeBody merges the header fields into the JSON object produced by body.
func encodeBody(body interface{}, header MessageHeader) (json.RawMessage, error) {
	fields := map[string]json.RawMessage{}

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("body of %s is not an object: %v", header.Type, err)
		}
	}

	raw, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	return json.Marshal(fields)
}
