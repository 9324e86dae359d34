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

package dht

import (
	"context"
	"crypto/rsa"
	"errors"
	"math/big"
	"net"
	"sync/atomic"
	"time"

	"gopkg.in/fatih/set.v0"
	"gopkg.in/karalabe/cookiejar.v2/collections/prque"

	"github.com/Mubelotix/tewta/common"
	"github.com/Mubelotix/tewta/p2p"
	"github.com/Mubelotix/tewta/wire"
)

// KademliaAlpha is the bounded parallelism of an iterative lookup.
const KademliaAlpha = 3

// StepTimeout bounds a single provider's request/response round-trip.
const StepTimeout = 20 * time.Second

// ErrNotFound is returned by Lookup when no provider could resolve the key.
var ErrNotFound = errors.New("dht: value not found")

// Dialer opens a byte stream to addr, the same abstraction package
// discover uses.
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// Engine runs iterative dht_lookup queries on behalf of one node.
type Engine struct {
	self      common.PeerID
	pool      *p2p.Pool
	bus       *p2p.Bus
	dialer    Dialer
	localKey  *rsa.PrivateKey
	localAddr string
	seq       uint32
}

// New constructs a lookup engine bound to pool and bus.
func New(self common.PeerID, pool *p2p.Pool, bus *p2p.Bus, dialer Dialer, localKey *rsa.PrivateKey, localAddr string) *Engine {
	return &Engine{self: self, pool: pool, bus: bus, dialer: dialer, localKey: localKey, localAddr: localAddr}
}

func (e *Engine) nextRequestID() uint32 {
	return atomic.AddUint32(&e.seq, 1)
}

func priorityCloser(id, key common.PeerID) float32 {
	dist := common.Distance(id, key)
	n := new(big.Int).SetBytes(dist[:])
	f := new(big.Float).SetInt(n)
	f.SetMantExp(f, -common.IDLength*8)
	out, _ := f.Float32()
	return -out
}

type stepOutcome struct {
	provider common.PeerID
	found    bool
	values   []*wire.SignedValue
	peers    []p2p.PeerAddr
	err      error
}

// Lookup runs the Kademlia iterative find-value algorithm with
// KademliaAlpha concurrent in-flight provider queries, returning either a
// non-empty value list or ErrNotFound.
func (e *Engine) Lookup(ctx context.Context, key common.KeyID) ([]*wire.SignedValue, error) {
	providers := prque.New()
	for _, pa := range e.pool.PeersWithAddrs() {
		providers.Push(pa, priorityCloser(pa.ID, key))
	}
	alreadyQueried := set.New()
	resultCh := make(chan stepOutcome)
	inFlight := 0
	shouldComplete := false

	refill := func() {
		for inFlight < KademliaAlpha && !shouldComplete && !providers.Empty() {
			v, _ := providers.Pop()
			pa := v.(p2p.PeerAddr)
			if alreadyQueried.Has(pa.ID) {
				continue
			}
			alreadyQueried.Add(pa.ID)
			inFlight++
			if pa.ID.Equal(key) {
				shouldComplete = true
			}
			go func(pa p2p.PeerAddr) {
				resultCh <- e.singleProviderLookup(ctx, pa, key)
			}(pa)
		}
	}
	refill()

	for {
		if inFlight == 0 {
			if providers.Empty() || shouldComplete {
				return nil, ErrNotFound
			}
			refill()
			if inFlight == 0 {
				return nil, ErrNotFound
			}
		}
		select {
		case out := <-resultCh:
			inFlight--
			if out.err != nil {
				logger.Debug("lookup step failed", "provider", out.provider, "err", out.err)
				refill()
				continue
			}
			if out.found {
				vals := out.values
				if len(vals) > MaxDhtValuesReturned {
					vals = vals[:MaxDhtValuesReturned]
				}
				return vals, nil
			}
			for _, pa := range out.peers {
				if !alreadyQueried.Has(pa.ID) {
					providers.Push(pa, priorityCloser(pa.ID, key))
				}
			}
			refill()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (e *Engine) singleProviderLookup(ctx context.Context, pa p2p.PeerAddr, key common.KeyID) stepOutcome {
	reqID := e.nextRequestID()
	req := &wire.FindDhtValue{RequestId: reqID, Key: key.Bytes(), LimitValues: MaxDhtValuesReturned, LimitPeers: MaxDhtPeersReturned}

	if e.pool.Contains(pa.ID) {
		return e.lookupViaPool(ctx, pa, req)
	}
	return e.lookupViaDial(ctx, pa, req)
}

func (e *Engine) lookupViaPool(ctx context.Context, pa p2p.PeerAddr, req *wire.FindDhtValue) stepOutcome {
	stepCtx, cancel := context.WithTimeout(ctx, StepTimeout)
	defer cancel()

	if err := e.pool.Send(pa.ID, req); err != nil {
		return stepOutcome{provider: pa.ID, err: err}
	}
	ev, err := p2p.WaitForMatch(stepCtx, e.bus, wire.KindFindDhtValueResp, func(ev p2p.Event) bool {
		resp, ok := ev.Packet.(*wire.FindDhtValueResp)
		return ok && ev.Peer == pa.ID && resp.RequestId == req.RequestId
	})
	if err != nil {
		return stepOutcome{provider: pa.ID, err: &p2p.LookupError{Provider: pa.ID.String(), Cause: err}}
	}
	return outcomeFromResp(pa.ID, ev.Packet.(*wire.FindDhtValueResp))
}

func (e *Engine) lookupViaDial(ctx context.Context, pa p2p.PeerAddr, req *wire.FindDhtValue) stepOutcome {
	stepCtx, cancel := context.WithTimeout(ctx, StepTimeout)
	defer cancel()

	conn, err := e.dialer.Dial(stepCtx, pa.Addr)
	if err != nil {
		return stepOutcome{provider: pa.ID, err: &p2p.LookupError{Provider: pa.ID.String(), Cause: err}}
	}
	defer conn.Close()

	expected := pa.ID
	result, err := p2p.Handshake(stepCtx, conn, e.self, e.localKey, e.localAddr, e.pool, &expected)
	if err != nil {
		return stepOutcome{provider: pa.ID, err: &p2p.LookupError{Provider: pa.ID.String(), Cause: err}}
	}
	// The transient connection is never inserted into the pool, but every
	// packet past the handshake still goes through its sealed Conn.
	secure := result.Conn

	if err := wire.WritePacket(secure, req); err != nil {
		return stepOutcome{provider: pa.ID, err: &p2p.LookupError{Provider: pa.ID.String(), Cause: err}}
	}
	pkt, err := wire.ReadPacket(secure)
	if err != nil {
		return stepOutcome{provider: pa.ID, err: &p2p.LookupError{Provider: pa.ID.String(), Cause: err}}
	}
	resp, ok := pkt.(*wire.FindDhtValueResp)
	if !ok || resp.RequestId != req.RequestId {
		return stepOutcome{provider: pa.ID, err: &p2p.LookupError{Provider: pa.ID.String(), Cause: errors.New("unexpected or mismatched response")}}
	}

	_ = wire.WritePacket(secure, &wire.Quit{ReasonCode: string(p2p.ReasonMissionAccomplished), ReportFault: false})
	return outcomeFromResp(pa.ID, resp)
}

func outcomeFromResp(provider common.PeerID, resp *wire.FindDhtValueResp) stepOutcome {
	if resp.Found {
		return stepOutcome{provider: provider, found: true, values: resp.Values}
	}
	peers := make([]p2p.PeerAddr, 0, len(resp.Peers))
	for _, pa := range resp.Peers {
		id, err := common.PeerIDFromBytes(pa.PeerId)
		if err != nil {
			continue
		}
		peers = append(peers, p2p.PeerAddr{ID: id, Addr: pa.Addr})
	}
	return stepOutcome{provider: provider, found: false, peers: peers}
}
