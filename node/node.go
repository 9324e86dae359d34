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

// Package node wires the connection pool, event bus, discovery engine, and
// DHT lookup engine together into a single runnable overlay participant,
// and runs the dispatcher and periodic maintenance tasks that keep it
// alive on the network.
package node

import (
	"context"
	"crypto/rsa"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristanetworks/goarista/monotime"
	"github.com/pkg/errors"

	"github.com/Mubelotix/tewta/common"
	cryptoutil "github.com/Mubelotix/tewta/crypto"
	"github.com/Mubelotix/tewta/log"
	"github.com/Mubelotix/tewta/p2p"
	"github.com/Mubelotix/tewta/p2p/dht"
	"github.com/Mubelotix/tewta/p2p/discover"
	"github.com/Mubelotix/tewta/wire"
)

var logger = log.NewModuleLogger(log.Node)

// Node is one running participant in the overlay: it owns the transport
// pool, the event bus, discovery, the DHT lookup engine and local value
// store, and dispatches every inbound packet to the handler appropriate
// to its variant.
type Node struct {
	cfg  *Config
	self common.PeerID
	key  *rsa.PrivateKey
	addr string

	pool  *p2p.Pool
	bus   *p2p.Bus
	disc  *discover.Discovery
	look  *dht.Engine
	store *dht.Store
	db    *discover.NodeDB
	seen  *common.SeenPeers

	dialer discover.Dialer

	pingSeq uint32

	listener net.Listener
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New constructs a Node from cfg, loading or generating its RSA identity
// and opening its persistent address book. dialer abstracts how outbound
// connections are made (production code passes discover.NetDialer{}; tests
// pass an in-memory router).
func New(cfg *Config, dialer discover.Dialer) (*Node, error) {
	key, err := cfg.LoadOrCreateIdentity()
	if err != nil {
		return nil, errors.Wrap(err, "node: failed to load identity")
	}
	self := cryptoutil.DerivePeerID(&key.PublicKey)

	db, err := discover.OpenNodeDB(cfg.NodeDBPath())
	if err != nil {
		return nil, errors.Wrap(err, "node: failed to open address book")
	}
	seen, err := common.NewSeenPeers(cfg.CacheSizeHint)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "node: failed to size seen-peers cache")
	}

	n := &Node{
		cfg:    cfg,
		self:   self,
		key:    key,
		addr:   cfg.ListenAddr,
		db:     db,
		seen:   seen,
		dialer: dialer,
		stopCh: make(chan struct{}),
	}
	n.bus = p2p.NewBus()
	n.pool = p2p.NewPool(self, n, n.bus)
	n.disc = discover.New(self, n.pool, n.bus, dialer, key, cfg.ListenAddr)
	n.look = dht.New(self, n.pool, n.bus, dialer, key, cfg.ListenAddr)
	n.store = dht.NewStore()
	return n, nil
}

// ID returns this node's PeerID.
func (n *Node) ID() common.PeerID { return n.self }

// Pool exposes the connection pool, chiefly for tests and metrics wiring.
func (n *Node) Pool() *p2p.Pool { return n.pool }

// Lookup resolves key against the network, returning its stored values or
// dht.ErrNotFound.
func (n *Node) Lookup(ctx context.Context, key common.KeyID) ([]*wire.SignedValue, error) {
	return n.look.Lookup(ctx, key)
}

// Store signs data with this node's identity and fans StoreDhtValue out to
// the α closest already-connected peers plus its own local store.
func (n *Node) Store(ctx context.Context, key common.KeyID, data []byte) error {
	sv, err := cryptoutil.Sign(n.key, data)
	if err != nil {
		return err
	}
	wireValue := &wire.SignedValue{Data: sv.Data, PubExpLe: sv.PubExpLE, PubModLe: sv.PubModLE, Signature: sv.Signature}
	if err := n.store.Put(key, wireValue); err != nil {
		return err
	}
	for _, pa := range n.closestConnected(key, dht.KademliaAlpha) {
		if err := n.pool.Send(pa.ID, &wire.StoreDhtValue{Key: key.Bytes(), Value: wireValue}); err != nil {
			logger.Debug("store propagation failed", "peer", pa.ID, "err", err)
		}
	}
	return nil
}

func (n *Node) closestConnected(target common.PeerID, limit int) []p2p.PeerAddr {
	peers := n.pool.PeersWithAddrs()
	sortPeerAddrsByDistance(peers, target)
	if len(peers) > limit {
		peers = peers[:limit]
	}
	return peers
}

func sortPeerAddrsByDistance(peers []p2p.PeerAddr, target common.PeerID) {
	sort.Slice(peers, func(i, j int) bool {
		return common.LessDistance(common.Distance(peers[i].ID, target), common.Distance(peers[j].ID, target))
	})
}

// Listen starts accepting inbound connections on cfg.ListenAddr. An
// ephemeral ":0" style address is resolved to the actual bound address,
// which becomes the address this node advertises in future handshakes.
func (n *Node) Listen() error {
	ln, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return err
	}
	n.listener = ln
	n.cfg.ListenAddr = ln.Addr().String()
	n.wg.Add(1)
	go n.acceptLoop(ln)
	return nil
}

func (n *Node) acceptLoop(ln net.Listener) {
	defer n.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				logger.Warn("accept failed", "err", err)
				return
			}
		}
		go n.acceptOne(conn)
	}
}

func (n *Node) acceptOne(conn net.Conn) {
	ctx, cancel := context.WithTimeout(context.Background(), p2p.HandshakeTimeout)
	defer cancel()
	result, err := p2p.Handshake(ctx, conn, n.self, n.key, n.cfg.ListenAddr, n.pool, nil)
	if err != nil {
		logger.Debug("inbound handshake failed", "err", err)
		conn.Close()
		return
	}
	if err := n.pool.Insert(result.PeerID, result.Conn, result.Addr); err != nil {
		logger.Debug("inbound peer insert failed", "peer", result.PeerID, "err", err)
		conn.Close()
		return
	}
	_ = n.db.UpdateAddr(result.PeerID, result.Addr)
	_ = n.db.UpdateLastSeen(result.PeerID, time.Now())
}

// Bootstrap dials every address in cfg.BootstrapAddrs plus the address
// book's recorded seeds, inserting every peer that completes a handshake.
func (n *Node) Bootstrap(ctx context.Context) {
	addrs := append([]string{}, n.cfg.BootstrapAddrs...)
	if seeds, err := n.db.Seeds(p2p.KademliaBucketSize * 3); err == nil {
		for _, s := range seeds {
			addrs = append(addrs, s.Addr)
		}
	}
	for _, addr := range addrs {
		if err := n.dialAndInsert(ctx, nil, addr); err != nil {
			logger.Debug("bootstrap dial failed", "addr", addr, "err", err)
		}
	}
}

func (n *Node) dialAndInsert(ctx context.Context, expected *common.PeerID, addr string) error {
	conn, err := n.dialer.Dial(ctx, addr)
	if err != nil {
		return err
	}
	result, err := p2p.Handshake(ctx, conn, n.self, n.key, n.cfg.ListenAddr, n.pool, expected)
	if err != nil {
		conn.Close()
		return err
	}
	if err := n.pool.Insert(result.PeerID, result.Conn, result.Addr); err != nil {
		conn.Close()
		return err
	}
	_ = n.db.UpdateAddr(result.PeerID, result.Addr)
	_ = n.db.UpdateLastSeen(result.PeerID, time.Now())
	return nil
}

// Start launches the periodic ping and bucket-refresh tasks.
func (n *Node) Start() {
	n.wg.Add(2)
	go n.pingLoop()
	go n.refreshLoop()
}

// Stop halts the listener and every periodic task, closing the address
// book once they have all returned. Safe to call more than once.
func (n *Node) Stop() {
	n.stopOnce.Do(func() {
		close(n.stopCh)
		if n.listener != nil {
			n.listener.Close()
		}
		n.wg.Wait()
		n.db.Close()
	})
}

func (n *Node) nextPingID() uint32 {
	return atomic.AddUint32(&n.pingSeq, 1)
}

// pingLoop implements the "every 100 seconds, ping every connected peer"
// periodic task: a timed-out peer is disconnected with a benign Timeout
// reason.
func (n *Node) pingLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			for _, id := range n.pool.Peers() {
				go n.pingOne(id)
			}
		}
	}
}

func (n *Node) pingOne(id common.PeerID) {
	pingID := n.nextPingID()
	if err := n.pool.Send(id, &wire.Ping{PingId: pingID}); err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.cfg.PingTimeout)
	defer cancel()
	start := monotime.Now()
	_, err := p2p.WaitForMatch(ctx, n.bus, wire.KindPong, func(ev p2p.Event) bool {
		pong, ok := ev.Packet.(*wire.Pong)
		return ok && ev.Peer == id && pong.PingId == pingID
	})
	if err != nil {
		n.pool.Disconnect(id, &wire.Quit{ReasonCode: string(p2p.ReasonTimeout), ReportFault: false})
		return
	}
	n.pool.SetPing(id, time.Duration(monotime.Now()-start))
}

// refreshLoop implements the "every 100 seconds, refresh_buckets" periodic
// task.
func (n *Node) refreshLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.pool.RefreshBuckets(func(level, sub int) {
				go func() {
					ctx, cancel := context.WithTimeout(context.Background(), discover.QueryTimeout*4)
					defer cancel()
					n.disc.FillBucket(ctx, level, sub)
				}()
			})
		}
	}
}
