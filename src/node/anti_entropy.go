package node

import (
	"encoding/binary"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/mosaicnetworks/meshcast/src/net"
	"github.com/sirupsen/logrus"
)

// digestTTL is the number of sync intervals during which a set already
// pushed to a neighbour is not pushed again. Sends are not acknowledged, so
// a push lost in transit is repeated once the digest expires.
const digestTTL = 4

type pushRecord struct {
	digest uint64
	at     time.Time
}

// antiEntropy pushes the full set of observed values to one random neighbour.
// The push is skipped when the same set was pushed to that neighbour less than
// digestTTL intervals ago.
func (n *Node) antiEntropy() {
	target := n.selector.Next(n.core.Neighbors())
	if target == "" {
		return
	}

	values, err := n.core.Snapshot()
	if err != nil {
		n.log().WithError(err).Error("anti-entropy snapshot")
		return
	}

	if len(values) == 0 {
		return
	}

	digest := snapshotDigest(values)

	n.digestLock.Lock()
	last, ok := n.lastPushes[target]
	n.digestLock.Unlock()

	fresh := time.Since(last.at) < digestTTL*n.conf.SyncInterval
	if ok && last.digest == digest && fresh {
		atomic.AddUint64(&n.stats.syncSkipped, 1)
		return
	}

	atomic.AddUint64(&n.stats.syncSends, 1)

	if err := n.trans.Send(target, &net.SyncRequest{Messages: values}); err != nil {
		atomic.AddUint64(&n.stats.syncErrors, 1)
		n.log().WithFields(logrus.Fields{
			"target": target,
			"error":  err,
		}).Warn("anti-entropy push")
		return
	}

	n.digestLock.Lock()
	n.lastPushes[target] = pushRecord{digest: digest, at: time.Now()}
	n.digestLock.Unlock()

	n.selector.UpdateLast(target)

	n.log().WithFields(logrus.Fields{
		"target": target,
		"values": len(values),
	}).Debug("anti-entropy push")
}

// snapshotDigest hashes values independently of their order.
func snapshotDigest(values []uint64) uint64 {
	sorted := append([]uint64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	d := xxhash.New()
	var buf [8]byte
	for _, v := range sorted {
		binary.BigEndian.PutUint64(buf[:], v)
		d.Write(buf[:])
	}
	return d.Sum64()
}
