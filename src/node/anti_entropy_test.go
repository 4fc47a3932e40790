package node

import (
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/meshcast/src/common"
	"github.com/mosaicnetworks/meshcast/src/config"
	"github.com/mosaicnetworks/meshcast/src/net"
	"github.com/mosaicnetworks/meshcast/src/store"
)

func TestSnapshotDigest(t *testing.T) {
	a := snapshotDigest([]uint64{1, 2, 3})
	b := snapshotDigest([]uint64{3, 1, 2})
	c := snapshotDigest([]uint64{1, 2, 4})

	if a != b {
		t.Fatalf("digest should not depend on order")
	}
	if a == c {
		t.Fatalf("different sets should have different digests")
	}
}

func TestAntiEntropyRecoversLostForward(t *testing.T) {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SyncInterval = 10 * time.Millisecond

	n1, t1 := newTestNode(t, "n1", conf)
	n2, t2 := newTestNode(t, "n2", nil)

	mapping := map[string][]string{"n1": {"n2"}, "n2": {"n1"}}
	for _, node := range []*Node{n1, n2} {
		if err := node.SetTopology(mapping); err != nil {
			t.Fatalf("err: %v", err)
		}
	}

	// n1 cannot reach n2 yet, so the forward of 8 is lost.
	observe(t, n1, 8, New)
	waitFor(t, time.Second, "lost forward", func() bool {
		return n1.GetStats()["fanout_errors"] == "1"
	})

	net.ConnectAll(t1, t2)

	waitFor(t, 2*time.Second, "anti-entropy", func() bool {
		values, _ := n2.GetValues()
		return reflect.DeepEqual(values, []uint64{8})
	})

	// Once n2 has the same set, further pushes are skipped.
	waitFor(t, 2*time.Second, "skipped push", func() bool {
		return n1.GetStats()["sync_skipped"] != "0"
	})
}

func TestAntiEntropyDisabledByDefault(t *testing.T) {
	n1, t1 := newTestNode(t, "n1", nil)
	n2 := newSink(t, "n2")
	connect(t1, n2)

	if err := n1.SetTopology(map[string][]string{"n1": {"n2"}}); err != nil {
		t.Fatalf("err: %v", err)
	}

	observe(t, n1, 1, New)
	time.Sleep(100 * time.Millisecond)

	if s := n1.GetStats()["sync_sends"]; s != "0" {
		t.Fatalf("no sync should be sent, got %s", s)
	}
}

// lossyTransport accepts every send and delivers none of them.
type lossyTransport struct {
	*net.InmemTransport

	l     sync.Mutex
	syncs int
}

func (lt *lossyTransport) Send(target string, req net.Request) error {
	if _, ok := req.(*net.SyncRequest); ok {
		lt.l.Lock()
		lt.syncs++
		lt.l.Unlock()
	}
	return nil
}

func (lt *lossyTransport) syncCount() int {
	lt.l.Lock()
	defer lt.l.Unlock()
	return lt.syncs
}

func TestAntiEntropyRepeatsUnacknowledgedPush(t *testing.T) {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SyncInterval = 5 * time.Millisecond

	_, inner := net.NewInmemTransport("n1")
	trans := &lossyTransport{InmemTransport: inner}

	node := NewNode(conf, store.NewInmemStore(), trans)
	node.RunAsync()
	t.Cleanup(node.Shutdown)

	if err := node.SetTopology(map[string][]string{"n1": {"n2"}}); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Every push of {8} is swallowed, so the same set must keep coming back.
	observe(t, node, 8, New)

	waitFor(t, 2*time.Second, "repeated push", func() bool {
		return trans.syncCount() >= 3
	})

	if node.GetStats()["sync_skipped"] == "0" {
		t.Fatalf("pushes inside the digest TTL should be skipped")
	}
}
