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
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Mubelotix/tewta/common"
	cryptoutil "github.com/Mubelotix/tewta/crypto"
	"github.com/Mubelotix/tewta/p2p"
	"github.com/Mubelotix/tewta/p2p/dht"
	"github.com/Mubelotix/tewta/p2p/discover"
	"github.com/Mubelotix/tewta/wire"
)

func testConfig() *Config {
	return &Config{
		DataDir:         "",
		ListenAddr:      "127.0.0.1:0",
		PingInterval:    DefaultPingInterval,
		PingTimeout:     DefaultPingTimeout,
		RefreshInterval: DefaultRefreshInterval,
		CacheSizeHint:   64,
		KeyBits:         cryptoutil.TestKeyBits,
	}
}

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := New(testConfig(), discover.NetDialer{})
	require.NoError(t, err)
	t.Cleanup(n.Stop)
	return n
}

func TestNewGeneratesDistinctEphemeralIdentities(t *testing.T) {
	n1 := newTestNode(t)
	n2 := newTestNode(t)
	require.NotEqual(t, n1.ID(), n2.ID())
}

// connectedPair brings up two listening nodes and dials b from a, waiting
// for the handshake to land both sides in each other's pool.
func connectedPair(t *testing.T) (a, b *Node) {
	t.Helper()
	a = newTestNode(t)
	b = newTestNode(t)
	require.NoError(t, b.Listen())
	require.NoError(t, a.Listen())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.dialAndInsert(ctx, nil, b.cfg.ListenAddr))

	require.Eventually(t, func() bool {
		return b.pool.Contains(a.ID())
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, a.pool.Contains(b.ID()))
	return a, b
}

func TestNodeDialAndInsertEstablishesMutualHandshake(t *testing.T) {
	a, b := connectedPair(t)
	require.Equal(t, 1, a.pool.Len())
	require.Equal(t, 1, b.pool.Len())
}

func TestNodeBootstrapDialsSeedAddrs(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	require.NoError(t, b.Listen())
	a.cfg.BootstrapAddrs = []string{b.cfg.ListenAddr}

	a.Bootstrap(context.Background())

	require.Eventually(t, func() bool {
		return b.pool.Contains(a.ID())
	}, 2*time.Second, 10*time.Millisecond)
	require.True(t, a.pool.Contains(b.ID()))
}

func TestNodeStorePropagatesToConnectedPeerAndLookupFindsIt(t *testing.T) {
	a, b := connectedPair(t)

	k := a.ID() // any 32-byte key works; reuse a's id as the key under test
	require.NoError(t, a.Store(context.Background(), k, []byte("hello world")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	values, err := b.Lookup(ctx, k)
	require.NoError(t, err)
	require.Len(t, values, 1)
	require.Equal(t, []byte("hello world"), values[0].Data)
}

func TestNodeLookupReturnsErrNotFoundForUnknownKey(t *testing.T) {
	a, _ := connectedPair(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	key := a.ID()
	key[0] ^= 0xff // definitely not a key anyone has stored
	_, err := a.Lookup(ctx, key)
	require.ErrorIs(t, err, dht.ErrNotFound)
}

func TestNodePingOneKeepsHealthyPeerConnected(t *testing.T) {
	a, b := connectedPair(t)

	a.pingOne(b.ID())

	require.True(t, a.pool.Contains(b.ID()))
	require.True(t, b.pool.Contains(a.ID()))
}

// TestNodePingOneDisconnectsUnresponsivePeer hand-inserts a peer that
// completes a handshake but then never answers Ping, so a.pingOne must hit
// its timeout branch and disconnect it.
func TestNodePingOneDisconnectsUnresponsivePeer(t *testing.T) {
	a := newTestNode(t)
	a.cfg.PingTimeout = 30 * time.Millisecond

	keyQ, err := rsa.GenerateKey(rand.Reader, cryptoutil.TestKeyBits)
	require.NoError(t, err)
	idQ := cryptoutil.DerivePeerID(&keyQ.PublicKey)
	poolQ := p2p.NewPool(idQ, silentDispatcher{}, p2p.NewBus())

	client, server := net.Pipe()
	go func() {
		result, err := p2p.Handshake(context.Background(), server, idQ, keyQ, "local-q", poolQ, nil)
		if err != nil {
			return
		}
		// Drain every packet sent afterwards without ever answering, so
		// writes on the other end of this synchronous pipe don't block
		// forever while this peer silently ignores a's Ping.
		for {
			if _, err := wire.ReadPacket(result.Conn); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := p2p.Handshake(ctx, client, a.self, a.key, a.cfg.ListenAddr, a.pool, nil)
	require.NoError(t, err)
	require.NoError(t, a.pool.Insert(result.PeerID, result.Conn, result.Addr))

	a.pingOne(idQ)

	require.Eventually(t, func() bool {
		return !a.pool.Contains(idQ)
	}, 2*time.Second, 10*time.Millisecond)
}

type silentDispatcher struct{}

func (silentDispatcher) Dispatch(common.PeerID, wire.Packet) {}

func TestNodeStartAndStopRunPeriodicTasksWithoutPanicking(t *testing.T) {
	a, _ := connectedPair(t)
	a.cfg.PingInterval = 20 * time.Millisecond
	a.cfg.RefreshInterval = 20 * time.Millisecond
	a.Start()
	time.Sleep(80 * time.Millisecond)
	a.Stop()
}
