package net

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mosaicnetworks/meshcast/src/common"
)

type reply struct {
	Message
	header MessageHeader
	fields map[string]json.RawMessage
}

func parseOutput(t *testing.T, out *bytes.Buffer) []reply {
	var replies []reply

	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var r reply
		if err := json.Unmarshal(scanner.Bytes(), &r.Message); err != nil {
			t.Fatalf("err: %v", err)
		}
		if err := json.Unmarshal(r.Body, &r.header); err != nil {
			t.Fatalf("err: %v", err)
		}
		if err := json.Unmarshal(r.Body, &r.fields); err != nil {
			t.Fatalf("err: %v", err)
		}
		replies = append(replies, r)
	}

	return replies
}

// runStdio feeds input to a fresh transport and answers every RPC with
// handler until the input is exhausted.
func runStdio(t *testing.T, input string, handler func(RPC)) (*StdioTransport, []reply) {
	var out bytes.Buffer
	trans := NewStdioTransport(strings.NewReader(input), &out, common.NewTestEntry(t, common.TestLogLevel))

	done := make(chan struct{})
	go func() {
		for {
			select {
			case rpc := <-trans.Consumer():
				handler(rpc)
			case <-done:
				return
			}
		}
	}()

	if err := trans.Listen(); err != nil {
		t.Fatalf("err: %v", err)
	}
	close(done)

	return trans, parseOutput(t, &out)
}

func TestStdioTransport_Init(t *testing.T) {
	input := `{"src":"c1","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1","n2"]}}` + "\n"

	trans, replies := runStdio(t, input, func(rpc RPC) {
		t.Errorf("unexpected rpc %#v", rpc.Command)
	})

	if trans.LocalID() != "n1" {
		t.Fatalf("LocalID should be n1, not %q", trans.LocalID())
	}

	if len(replies) != 1 {
		t.Fatalf("expected 1 reply, got %d", len(replies))
	}
	r := replies[0]
	if r.Src != "n1" || r.Dest != "c1" {
		t.Fatalf("bad routing: %s -> %s", r.Src, r.Dest)
	}
	if r.header.Type != "init_ok" {
		t.Fatalf("type should be init_ok, not %s", r.header.Type)
	}
	if r.header.InReplyTo == nil || *r.header.InReplyTo != 1 {
		t.Fatalf("in_reply_to should be 1, not %v", r.header.InReplyTo)
	}
	if r.header.MsgID == nil {
		t.Fatalf("reply has no msg_id")
	}
}

func TestStdioTransport_Read(t *testing.T) {
	input := strings.Join([]string{
		`{"src":"c1","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1"]}}`,
		`{"src":"c1","dest":"n1","body":{"type":"read","msg_id":2}}`,
	}, "\n")

	_, replies := runStdio(t, input, func(rpc RPC) {
		if _, ok := rpc.Command.(*ReadRequest); !ok {
			t.Errorf("expected *ReadRequest, got %T", rpc.Command)
		}
		if rpc.Source != "c1" {
			t.Errorf("source should be c1, not %q", rpc.Source)
		}
		rpc.Respond(&ReadResponse{Messages: []uint64{1, 8}}, nil)
	})

	if len(replies) != 2 {
		t.Fatalf("expected 2 replies, got %d", len(replies))
	}

	r := replies[1]
	if r.header.Type != "read_ok" {
		t.Fatalf("type should be read_ok, not %s", r.header.Type)
	}
	if *r.header.InReplyTo != 2 {
		t.Fatalf("in_reply_to should be 2, not %d", *r.header.InReplyTo)
	}
	if *r.header.MsgID == *replies[0].header.MsgID {
		t.Fatalf("msg_id reused: %d", *r.header.MsgID)
	}

	var messages []uint64
	if err := json.Unmarshal(r.fields["messages"], &messages); err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(messages) != 2 || messages[0] != 1 || messages[1] != 8 {
		t.Fatalf("messages should be [1 8], not %v", messages)
	}
}

func TestStdioTransport_Errors(t *testing.T) {
	input := strings.Join([]string{
		`{"src":"c1","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1"]}}`,
		`{"src":"c1","dest":"n1","body":{"type":"broadcast","msg_id":2}}`,
		`{"src":"c1","dest":"n1","body":{"type":"echo","msg_id":3,"echo":"hi"}}`,
		`{"src":"c1","dest":"n1","body":{"type":"topology","msg_id":4,"topology":{"n1":[]}}}`,
		`not json`,
	}, "\n")

	_, replies := runStdio(t, input, func(rpc RPC) {
		switch rpc.Command.(type) {
		case *UnknownRequest:
			rpc.Respond(nil, ErrUnhandled)
		case *TopologyRequest:
			rpc.Respond(nil, errors.New("boom"))
		default:
			t.Errorf("unexpected rpc %#v", rpc.Command)
		}
	})

	codes := map[uint64]int{}
	for _, r := range replies[1:] {
		if r.header.Type != "error" {
			t.Fatalf("type should be error, not %s", r.header.Type)
		}
		var body ErrorBody
		if err := json.Unmarshal(r.Body, &body); err != nil {
			t.Fatalf("err: %v", err)
		}
		codes[*r.header.InReplyTo] = body.Code
	}

	expected := map[uint64]int{
		2: ErrorCodeMalformedRequest,
		3: ErrorCodeNotSupported,
		4: ErrorCodeCrash,
	}
	if len(codes) != len(expected) {
		t.Fatalf("expected codes %v, got %v", expected, codes)
	}
	for id, code := range expected {
		if codes[id] != code {
			t.Fatalf("reply to %d should have code %d, not %d", id, code, codes[id])
		}
	}
}

func TestStdioTransport_DropsReplies(t *testing.T) {
	input := strings.Join([]string{
		`{"src":"c1","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1","n2"]}}`,
		`{"src":"n2","dest":"n1","body":{"type":"broadcast_ok","msg_id":5,"in_reply_to":1}}`,
	}, "\n")

	_, replies := runStdio(t, input, func(rpc RPC) {
		t.Errorf("unexpected rpc %#v", rpc.Command)
	})

	if len(replies) != 1 {
		t.Fatalf("expected only init_ok, got %d replies", len(replies))
	}
}

func TestStdioTransport_Send(t *testing.T) {
	input := `{"src":"c1","dest":"n1","body":{"type":"init","msg_id":1,"node_id":"n1","node_ids":["n1","n2"]}}`

	var out bytes.Buffer
	trans := NewStdioTransport(strings.NewReader(input), &out, common.NewTestEntry(t, common.TestLogLevel))
	if err := trans.Listen(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if err := trans.Send("n2", NewBroadcastRequest(0)); err != nil {
		t.Fatalf("err: %v", err)
	}

	replies := parseOutput(t, &out)
	if len(replies) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(replies))
	}

	r := replies[1]
	if r.Src != "n1" || r.Dest != "n2" {
		t.Fatalf("bad routing: %s -> %s", r.Src, r.Dest)
	}
	if r.header.Type != "broadcast" || r.header.InReplyTo != nil {
		t.Fatalf("bad header: %#v", r.header)
	}
	if string(r.fields["message"]) != "0" {
		t.Fatalf("message should be 0, not %s", r.fields["message"])
	}

	trans.Close()
	if err := trans.Send("n2", NewBroadcastRequest(1)); err != ErrTransportShutdown {
		t.Fatalf("expected ErrTransportShutdown, got %v", err)
	}
}
