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

// Package p2p owns the connection pool, the handshake engine, and the
// per-variant event bus: the transport-facing core every higher layer
// (discovery, the DHT lookup engine, the node facade) builds on.
package p2p

import (
	"math/rand"
	"net"
	"sync"
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/Mubelotix/tewta/common"
	"github.com/Mubelotix/tewta/log"
	"github.com/Mubelotix/tewta/wire"
)

var logger = log.NewModuleLogger(log.P2P)

// KademliaBucketSize is the target population of a single (level, sub)
// bucket.
const KademliaBucketSize = 8

// MaxDiscoveryPeersReturned bounds prepare_discover_peers_response.
const MaxDiscoveryPeersReturned = 64

// Dispatcher receives every packet a reader task decodes. The node facade
// implements it; the pool only ever holds this as a plain interface value,
// never reaching back into Node's internals itself.
type Dispatcher interface {
	Dispatch(peer common.PeerID, pkt wire.Packet)
}

// PeerInfo is everything the pool tracks about one connected peer.
type PeerInfo struct {
	Addr string
	conn net.Conn

	mu  sync.Mutex
	rtt *time.Duration
}

// RTT returns the last measured round-trip time, if any has been recorded.
func (p *PeerInfo) RTT() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rtt == nil {
		return 0, false
	}
	return *p.rtt, true
}

func (p *PeerInfo) setRTT(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rtt = &d
}

// Pool is the node's single source of truth for who it is connected to. A
// mutex guards the map; sends hold that same lock across the full
// length-prefixed write to preserve frame atomicity on the wire.
type Pool struct {
	mu    sync.Mutex
	self  common.PeerID
	peers map[common.PeerID]*PeerInfo

	dispatcher Dispatcher
	bus        *Bus

	disconnects metrics.Counter
	connects    metrics.Counter
}

// NewPool constructs an empty pool for a node identified by self.
func NewPool(self common.PeerID, dispatcher Dispatcher, bus *Bus) *Pool {
	return &Pool{
		self:        self,
		peers:       make(map[common.PeerID]*PeerInfo),
		dispatcher:  dispatcher,
		bus:         bus,
		disconnects: metrics.NewCounter(),
		connects:    metrics.NewCounter(),
	}
}

// Insert adds a newly handshaken peer to the pool and spawns its reader
// task. It fails with ErrAlreadyConnected if id is already present.
func (p *Pool) Insert(id common.PeerID, conn net.Conn, addr string) error {
	p.mu.Lock()
	if _, exists := p.peers[id]; exists {
		p.mu.Unlock()
		return ErrAlreadyConnected
	}
	info := &PeerInfo{Addr: addr, conn: conn}
	p.peers[id] = info
	p.mu.Unlock()

	p.connects.Inc(1)
	go p.readLoop(id, conn)
	return nil
}

// readLoop decodes frames from conn until a fatal stream error, handing
// each successfully decoded packet to the dispatcher. A payload that fails
// to decode against the schema is logged and skipped so a misbehaving peer
// gets another chance; a frame-level failure (I/O error, oversized length)
// terminates the reader task and the entry is reclaimed.
func (p *Pool) readLoop(id common.PeerID, conn net.Conn) {
	for {
		env, err := wire.ReadEnvelope(conn)
		if err != nil {
			logger.Debug("reader task terminating on stream error", "peer", id, "err", err)
			p.reclaim(id)
			return
		}
		pkt, err := wire.Unwrap(env)
		if err != nil {
			logger.Warn("dropping malformed packet", "peer", id, "kind", env.Kind, "err", err)
			continue
		}
		p.dispatcher.Dispatch(id, pkt)
	}
}

// reclaim removes a peer whose reader task ended on its own (I/O error),
// without sending a Quit — there is no guarantee the stream can still
// carry one.
func (p *Pool) reclaim(id common.PeerID) {
	p.mu.Lock()
	info, ok := p.peers[id]
	if ok {
		delete(p.peers, id)
	}
	p.mu.Unlock()
	if ok {
		info.conn.Close()
		p.disconnects.Inc(1)
		p.bus.Publish(wire.KindQuit, Event{Peer: id, Packet: &wire.Quit{ReasonCode: string(ReasonTimeout)}})
	}
}

// Send serializes pkt and writes its frame under the pool lock, so that no
// other send interleaves with it on the same connection. Quit must go
// through Disconnect, never Send.
func (p *Pool) Send(id common.PeerID, pkt wire.Packet) error {
	if _, isQuit := pkt.(*wire.Quit); isQuit {
		return &ProtocolError{Reason: "Quit must be sent via Disconnect, not Send"}
	}
	p.mu.Lock()
	info, ok := p.peers[id]
	if !ok {
		p.mu.Unlock()
		return &ErrNotConnected{Addr: id.String()}
	}
	err := wire.WritePacket(info.conn, pkt)
	p.mu.Unlock()
	if err != nil {
		logger.Warn("send failed", "peer", id, "err", err)
		return &TransportError{Cause: err}
	}
	return nil
}

// Disconnect sends quit best-effort, removes the peer, and emits a
// disconnect event (modeled as the Quit packet itself) to the event bus.
func (p *Pool) Disconnect(id common.PeerID, quit *wire.Quit) {
	p.mu.Lock()
	info, ok := p.peers[id]
	if ok {
		delete(p.peers, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	if err := wire.WritePacket(info.conn, quit); err != nil {
		logger.Debug("best-effort quit send failed", "peer", id, "err", err)
	}
	info.conn.Close()
	p.disconnects.Inc(1)
	p.bus.Publish(wire.KindQuit, Event{Peer: id, Packet: quit})
}

// HandleInboundQuit removes a peer that proactively sent Quit, without
// writing anything back to a stream the peer has already told us it is
// ending. The dispatcher calls this instead of Disconnect for an inbound
// Quit packet.
func (p *Pool) HandleInboundQuit(id common.PeerID, quit *wire.Quit) {
	p.mu.Lock()
	info, ok := p.peers[id]
	if ok {
		delete(p.peers, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	info.conn.Close()
	p.disconnects.Inc(1)
	p.bus.Publish(wire.KindQuit, Event{Peer: id, Packet: quit})
}

// Contains reports whether id is currently connected.
func (p *Pool) Contains(id common.PeerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.peers[id]
	return ok
}

// Len returns the number of connected peers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

// Peers returns every connected PeerID.
func (p *Pool) Peers() []common.PeerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]common.PeerID, 0, len(p.peers))
	for id := range p.peers {
		out = append(out, id)
	}
	return out
}

// PeerAddr pairs a PeerID with its reported dial address, the shape the
// discovery and DHT lookup wire responses carry.
type PeerAddr struct {
	ID   common.PeerID
	Addr string
}

// PeersWithAddrs returns every connected peer alongside its reported dial
// address.
func (p *Pool) PeersWithAddrs() []PeerAddr {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PeerAddr, 0, len(p.peers))
	for id, info := range p.peers {
		out = append(out, PeerAddr{ID: id, Addr: info.Addr})
	}
	return out
}

// PeersOnBucket returns connected peers whose bucket relative to self is
// exactly (level, sub).
func (p *Pool) PeersOnBucket(level, sub int) []common.PeerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []common.PeerID
	for id := range p.peers {
		b := common.BucketOf(p.self, id)
		if b.Level == level && b.Sub == sub {
			out = append(out, id)
		}
	}
	return out
}

// PeersOnBucketAndUnder returns connected peers whose bucket level relative
// to self is <= level (i.e. at least as far from self, by XOR distance, as that bucket).
func (p *Pool) PeersOnBucketAndUnder(level int) []common.PeerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []common.PeerID
	for id := range p.peers {
		b := common.BucketOf(p.self, id)
		if !b.IsNone() && b.Level <= level {
			out = append(out, id)
		}
	}
	return out
}

// SetPing records a newly measured round-trip time for id. A peer that has
// since disconnected is silently ignored.
func (p *Pool) SetPing(id common.PeerID, d time.Duration) {
	p.mu.Lock()
	info, ok := p.peers[id]
	p.mu.Unlock()
	if ok {
		info.setRTT(d)
	}
}

// RefreshBuckets scans buckets in ascending (level, sub) order and invokes
// fill for every bucket under KademliaBucketSize population, stopping the
// whole scan the first time it finds an entirely empty bucket: no closer
// bucket can be populated yet.
func (p *Pool) RefreshBuckets(fill func(level, sub int)) {
	for level := 0; level < 128; level++ {
		for sub := 0; sub < 3; sub++ {
			n := len(p.PeersOnBucket(level, sub))
			if n == 0 {
				return
			}
			if n < KademliaBucketSize {
				fill(level, sub)
			}
		}
	}
}

// PrepareDiscoverPeersResponse filters connected peers by
// peer_id.Matches(target, mask), randomizes their order, and truncates to
// min(limit, MaxDiscoveryPeersReturned) by repeatedly removing the element
// at floor(2*len/3): a heuristic that keeps the head's strongest
// candidates while preserving some diversity.
func (p *Pool) PrepareDiscoverPeersResponse(target common.PeerID, mask []byte, limit uint32) []PeerAddr {
	p.mu.Lock()
	var matched []PeerAddr
	for id, info := range p.peers {
		if id.Matches(target, mask) {
			matched = append(matched, PeerAddr{ID: id, Addr: info.Addr})
		}
	}
	p.mu.Unlock()

	rand.Shuffle(len(matched), func(i, j int) { matched[i], matched[j] = matched[j], matched[i] })

	maxLen := int(limit)
	if maxLen > MaxDiscoveryPeersReturned {
		maxLen = MaxDiscoveryPeersReturned
	}
	for len(matched) > maxLen {
		cut := (2 * len(matched)) / 3
		matched = append(matched[:cut], matched[cut+1:]...)
	}
	return matched
}
