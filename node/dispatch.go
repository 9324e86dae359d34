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

package node

import (
	"github.com/Mubelotix/tewta/common"
	"github.com/Mubelotix/tewta/p2p"
	"github.com/Mubelotix/tewta/p2p/dht"
	"github.com/Mubelotix/tewta/wire"
)

// Dispatch handles every packet a reader task decodes, implementing
// p2p.Dispatcher. It is never called concurrently for the same peer: each
// peer's reader task calls it serially.
func (n *Node) Dispatch(peer common.PeerID, pkt wire.Packet) {
	switch p := pkt.(type) {
	case *wire.DiscoverPeers:
		n.handleDiscoverPeers(peer, p)
	case *wire.DiscoverPeersResp:
		if len(p.Peers) > p2p.MaxDiscoveryPeersReturned {
			logger.Warn("dropping oversized DiscoverPeersResp", "peer", peer, "count", len(p.Peers))
			return
		}
		n.bus.Publish(wire.KindDiscoverPeersResp, p2p.Event{Peer: peer, Packet: p})
	case *wire.FindDhtValue:
		n.handleFindDhtValue(peer, p)
	case *wire.FindDhtValueResp:
		if len(p.Values) > dht.MaxDhtValuesReturned || len(p.Peers) > dht.MaxDhtPeersReturned {
			logger.Warn("dropping oversized FindDhtValueResp", "peer", peer)
			return
		}
		n.bus.Publish(wire.KindFindDhtValueResp, p2p.Event{Peer: peer, Packet: p})
	case *wire.FindPeer:
		n.handleFindPeer(peer, p)
	case *wire.FindPeerResp:
		if len(p.Peers) > p2p.MaxDiscoveryPeersReturned {
			logger.Warn("dropping oversized FindPeerResp", "peer", peer, "count", len(p.Peers))
			return
		}
		n.bus.Publish(wire.KindFindPeerResp, p2p.Event{Peer: peer, Packet: p})
	case *wire.StoreDhtValue:
		n.handleStoreDhtValue(peer, p)
	case *wire.Ping:
		n.handlePing(peer, p)
	case *wire.Pong:
		n.bus.Publish(wire.KindPong, p2p.Event{Peer: peer, Packet: p})
	case *wire.Quit:
		n.handleQuit(peer, p)
	default:
		logger.Warn("dropping packet with no dispatch route", "peer", peer, "type", p)
	}
}

func (n *Node) handleDiscoverPeers(peer common.PeerID, req *wire.DiscoverPeers) {
	if len(req.Mask) > common.IDLength {
		logger.Warn("dropping DiscoverPeers with oversized mask", "peer", peer)
		return
	}
	target, err := common.PeerIDFromBytes(req.Target)
	if err != nil {
		logger.Warn("dropping DiscoverPeers with malformed target", "peer", peer, "err", err)
		return
	}
	matched := n.pool.PrepareDiscoverPeersResponse(target, req.Mask, req.Limit)
	resp := &wire.DiscoverPeersResp{RequestId: req.RequestId, Peers: toWireAddrs(matched)}
	if err := n.pool.Send(peer, resp); err != nil {
		logger.Debug("failed to answer DiscoverPeers", "peer", peer, "err", err)
	}
	n.bus.Publish(wire.KindDiscoverPeers, p2p.Event{Peer: peer, Packet: req})
}

func (n *Node) handleFindPeer(peer common.PeerID, req *wire.FindPeer) {
	target, err := common.PeerIDFromBytes(req.Target)
	if err != nil {
		logger.Warn("dropping FindPeer with malformed target", "peer", peer, "err", err)
		return
	}
	limit := int(req.Limit)
	if limit <= 0 || limit > p2p.MaxDiscoveryPeersReturned {
		limit = p2p.MaxDiscoveryPeersReturned
	}
	closest := n.closestConnected(target, limit)
	resp := &wire.FindPeerResp{RequestId: req.RequestId, Peers: toWireAddrs(closest)}
	if err := n.pool.Send(peer, resp); err != nil {
		logger.Debug("failed to answer FindPeer", "peer", peer, "err", err)
	}
	n.bus.Publish(wire.KindFindPeer, p2p.Event{Peer: peer, Packet: req})
}

func (n *Node) handleFindDhtValue(peer common.PeerID, req *wire.FindDhtValue) {
	key, err := common.PeerIDFromBytes(req.Key)
	if err != nil {
		logger.Warn("dropping FindDhtValue with malformed key", "peer", peer, "err", err)
		return
	}
	valueLimit := int(req.LimitValues)
	if valueLimit <= 0 || valueLimit > dht.MaxDhtValuesReturned {
		valueLimit = dht.MaxDhtValuesReturned
	}
	peerLimit := int(req.LimitPeers)
	if peerLimit <= 0 || peerLimit > dht.MaxDhtPeersReturned {
		peerLimit = dht.MaxDhtPeersReturned
	}

	resp := &wire.FindDhtValueResp{RequestId: req.RequestId}
	if values, ok := n.store.Get(key, valueLimit); ok {
		resp.Found = true
		resp.Values = values
	} else {
		resp.Found = false
		resp.Peers = toWireAddrs(n.closestConnected(key, peerLimit))
	}
	if err := n.pool.Send(peer, resp); err != nil {
		logger.Debug("failed to answer FindDhtValue", "peer", peer, "err", err)
	}
	n.bus.Publish(wire.KindFindDhtValue, p2p.Event{Peer: peer, Packet: req})
}

func (n *Node) handleStoreDhtValue(peer common.PeerID, msg *wire.StoreDhtValue) {
	key, err := common.PeerIDFromBytes(msg.Key)
	if err != nil {
		logger.Warn("dropping StoreDhtValue with malformed key", "peer", peer, "err", err)
		return
	}
	if msg.Value == nil {
		logger.Warn("dropping StoreDhtValue with no value", "peer", peer)
		return
	}
	if err := n.store.Put(key, msg.Value); err != nil {
		logger.Debug("rejected StoreDhtValue", "peer", peer, "err", err)
		return
	}
	n.bus.Publish(wire.KindStoreDhtValue, p2p.Event{Peer: peer, Packet: msg})
}

func (n *Node) handlePing(peer common.PeerID, ping *wire.Ping) {
	if err := n.pool.Send(peer, &wire.Pong{PingId: ping.PingId}); err != nil {
		logger.Debug("failed to answer Ping", "peer", peer, "err", err)
	}
	n.bus.Publish(wire.KindPing, p2p.Event{Peer: peer, Packet: ping})
}

func (n *Node) handleQuit(peer common.PeerID, quit *wire.Quit) {
	if quit.ReportFault {
		logger.Error("peer quit reporting a fault", "peer", peer, "reason", quit.ReasonCode, "message", quit.Message)
	}
	n.pool.HandleInboundQuit(peer, quit)
}

func toWireAddrs(peers []p2p.PeerAddr) []*wire.PeerAddr {
	out := make([]*wire.PeerAddr, len(peers))
	for i, pa := range peers {
		out[i] = &wire.PeerAddr{PeerId: pa.ID.Bytes(), Addr: pa.Addr}
	}
	return out
}
