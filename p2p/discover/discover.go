// Copyright 2024 The tewta Authors
// This file is part of the tewta library.
//
// The tewta library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The tewta library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the tewta library. If not, see <http://www.gnu.org/licenses/>.

// Package discover fills under-populated routing buckets by interrogating
// already-connected peers for closer candidates.
package discover

import (
	"context"
	"crypto/rsa"
	"math/big"
	"net"
	"sync/atomic"
	"time"

	"gopkg.in/fatih/set.v0"
	"gopkg.in/karalabe/cookiejar.v2/collections/prque"

	"github.com/Mubelotix/tewta/common"
	"github.com/Mubelotix/tewta/log"
	"github.com/Mubelotix/tewta/p2p"
	"github.com/Mubelotix/tewta/wire"
)

var logger = log.NewModuleLogger(log.Discovery)

// Dialer opens a byte stream to addr. Production code dials a TCP address;
// tests route addresses through an in-memory registry.
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// NetDialer dials real TCP addresses.
type NetDialer struct{}

func (NetDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// QueryTimeout bounds a single DiscoverPeers request/response round-trip.
const QueryTimeout = 20 * time.Second

// Discovery fills buckets by querying already-connected peers for
// candidates closer to (or within) the target bucket.
type Discovery struct {
	self      common.PeerID
	pool      *p2p.Pool
	bus       *p2p.Bus
	dialer    Dialer
	localKey  *rsa.PrivateKey
	localAddr string
	seq       uint32
}

// New constructs a Discovery engine bound to pool and bus, dialing new
// candidates with dialer and authenticating as localKey.
func New(self common.PeerID, pool *p2p.Pool, bus *p2p.Bus, dialer Dialer, localKey *rsa.PrivateKey, localAddr string) *Discovery {
	return &Discovery{self: self, pool: pool, bus: bus, dialer: dialer, localKey: localKey, localAddr: localAddr}
}

func (d *Discovery) nextRequestID() uint32 {
	return atomic.AddUint32(&d.seq, 1)
}

type candidate struct {
	id   common.PeerID
	addr string
}

// FillBucket runs discover_peers_in_bucket(level, sub): it dials and
// handshakes with enough candidates to bring bucket (level, sub) up to
// p2p.KademliaBucketSize, stopping early once satisfied or once every
// provider and candidate has been exhausted.
func (d *Discovery) FillBucket(ctx context.Context, level, sub int) {
	target := d.self.GenerateInBucket(level, sub)
	mask := common.BucketMask(level)

	needed := p2p.KademliaBucketSize - len(d.pool.PeersOnBucket(level, sub))
	if needed <= 0 {
		return
	}

	providers := prque.New()
	for _, id := range d.pool.PeersOnBucketAndUnder(level) {
		providers.Push(id, priorityCloser(id, target))
	}
	alreadyTried := set.New()
	var candidates []candidate

	for needed > 0 {
		if len(candidates) == 0 {
			if providers.Empty() {
				return
			}
			v, _ := providers.Pop()
			provider := v.(common.PeerID)
			more, err := d.queryProvider(ctx, provider, target, mask)
			if err != nil {
				logger.Debug("provider query failed", "provider", provider, "err", err)
				continue
			}
			candidates = more
			continue
		}

		c := candidates[0]
		candidates = candidates[1:]

		if alreadyTried.Has(c.id) {
			continue
		}
		alreadyTried.Add(c.id)

		if d.pool.Contains(c.id) {
			continue
		}
		if !c.id.Matches(target, mask) {
			logger.Debug("discovered candidate outside target bucket, skipping", "candidate", c.id)
			continue
		}

		if err := d.dialAndInsert(ctx, c.id, c.addr); err != nil {
			logger.Debug("candidate dial/handshake failed", "candidate", c.id, "err", err)
			continue
		}
		needed--
	}
}

func priorityCloser(id, target common.PeerID) float32 {
	dist := common.Distance(id, target)
	// shorter XOR distance -> higher priority: the distance is scaled into
	// [0, 1) and negated, so the float32 priority follows the lexicographic
	// metric used everywhere else. Distances that float32 cannot tell apart
	// share a priority.
	n := new(big.Int).SetBytes(dist[:])
	f := new(big.Float).SetInt(n)
	f.SetMantExp(f, -common.IDLength*8)
	out, _ := f.Float32()
	return -out
}

func (d *Discovery) queryProvider(ctx context.Context, provider common.PeerID, target common.PeerID, mask []byte) ([]candidate, error) {
	reqID := d.nextRequestID()
	ch, cancel := d.bus.Subscribe(wire.KindDiscoverPeersResp)
	defer cancel()

	if err := d.pool.Send(provider, &wire.DiscoverPeers{RequestId: reqID, Target: target.Bytes(), Mask: mask, Limit: p2p.MaxDiscoveryPeersReturned}); err != nil {
		return nil, err
	}

	qctx, qcancel := context.WithTimeout(ctx, QueryTimeout)
	defer qcancel()
	select {
	case ev := <-ch:
		resp, ok := ev.Packet.(*wire.DiscoverPeersResp)
		if !ok || resp.RequestId != reqID || ev.Peer != provider {
			return nil, nil
		}
		out := make([]candidate, 0, len(resp.Peers))
		for _, pa := range resp.Peers {
			id, err := common.PeerIDFromBytes(pa.PeerId)
			if err != nil {
				continue
			}
			out = append(out, candidate{id: id, addr: pa.Addr})
		}
		return out, nil
	case <-qctx.Done():
		return nil, qctx.Err()
	}
}

func (d *Discovery) dialAndInsert(ctx context.Context, expected common.PeerID, addr string) error {
	conn, err := d.dialer.Dial(ctx, addr)
	if err != nil {
		return err
	}
	expectedCopy := expected
	result, err := p2p.Handshake(ctx, conn, d.self, d.localKey, d.localAddr, d.pool, &expectedCopy)
	if err != nil {
		conn.Close()
		return err
	}
	return d.pool.Insert(result.PeerID, result.Conn, result.Addr)
}
