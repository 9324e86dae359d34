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

package p2p

import (
	"math/rand"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mubelotix/tewta/common"
	"github.com/Mubelotix/tewta/wire"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	got  []wire.Packet
	wake chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{wake: make(chan struct{}, 16)}
}

func (d *recordingDispatcher) Dispatch(_ common.PeerID, pkt wire.Packet) {
	d.mu.Lock()
	d.got = append(d.got, pkt)
	d.mu.Unlock()
	d.wake <- struct{}{}
}

func randomPeerID(r *rand.Rand) common.PeerID {
	var id common.PeerID
	r.Read(id[:])
	return id
}

func TestPoolInsertRejectsDuplicate(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	self := randomPeerID(r)
	other := randomPeerID(r)
	pool := NewPool(self, testDispatcher{}, NewBus())

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	require.NoError(t, pool.Insert(other, c1, "local-1"))
	err := pool.Insert(other, c2, "local-1")
	require.Error(t, err)
	assert.Equal(t, ErrAlreadyConnected, err)
}

func TestPoolSendAndDispatch(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	self := randomPeerID(r)
	other := randomPeerID(r)

	disp := newRecordingDispatcher()
	pool := NewPool(self, disp, NewBus())

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	require.NoError(t, pool.Insert(other, clientConn, "local-1"))

	go wire.WritePacket(serverConn, &wire.Ping{PingId: 5})

	select {
	case <-disp.wake:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher never received the packet")
	}
	disp.mu.Lock()
	defer disp.mu.Unlock()
	require.Len(t, disp.got, 1)
	ping, ok := disp.got[0].(*wire.Ping)
	require.True(t, ok)
	assert.Equal(t, uint32(5), ping.PingId)
}

func TestPoolSendRejectsQuit(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	self := randomPeerID(r)
	other := randomPeerID(r)
	pool := NewPool(self, testDispatcher{}, NewBus())

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	require.NoError(t, pool.Insert(other, c1, "local-1"))

	err := pool.Send(other, &wire.Quit{ReasonCode: "Timeout"})
	require.Error(t, err)
}

func TestPoolSendToUnknownPeerFails(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	self := randomPeerID(r)
	other := randomPeerID(r)
	pool := NewPool(self, testDispatcher{}, NewBus())

	err := pool.Send(other, &wire.Ping{PingId: 1})
	require.Error(t, err)
}

func TestPoolDisconnectRemovesPeer(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	self := randomPeerID(r)
	other := randomPeerID(r)
	pool := NewPool(self, testDispatcher{}, NewBus())

	c1, c2 := net.Pipe()
	defer c2.Close()
	require.NoError(t, pool.Insert(other, c1, "local-1"))
	require.True(t, pool.Contains(other))

	go func() {
		buf := make([]byte, 4096)
		c2.Read(buf) // drain the best-effort Quit frame
	}()
	pool.Disconnect(other, &wire.Quit{ReasonCode: "Timeout"})

	assert.False(t, pool.Contains(other))
	assert.Equal(t, 0, pool.Len())
}

func TestPoolPeersOnBucket(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	self := randomPeerID(r)
	pool := NewPool(self, testDispatcher{}, NewBus())

	target := self.GenerateInBucket(10, 1)
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	require.NoError(t, pool.Insert(target, c1, "local-1"))

	peers := pool.PeersOnBucket(10, 1)
	require.Len(t, peers, 1)
	assert.Equal(t, target, peers[0])

	assert.Empty(t, pool.PeersOnBucket(10, 0))
	assert.Len(t, pool.PeersOnBucketAndUnder(10), 1)
	assert.Empty(t, pool.PeersOnBucketAndUnder(9))
}

func TestPoolPrepareDiscoverPeersResponseFiltersByMask(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	self := randomPeerID(r)
	pool := NewPool(self, testDispatcher{}, NewBus())

	target := self.GenerateInBucket(4, 2)
	mask := common.BucketMask(4)

	var conns []net.Conn
	for i := 0; i < 5; i++ {
		id := self.GenerateInBucket(4, 2)
		id[31] ^= byte(i) // vary low-order bits, which the mask does not cover
		c1, c2 := net.Pipe()
		conns = append(conns, c1, c2)
		require.NoError(t, pool.Insert(id, c1, "local"))
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	// one non-matching peer
	other := randomPeerID(r)
	c1, c2 := net.Pipe()
	conns = append(conns, c1, c2)
	require.NoError(t, pool.Insert(other, c1, "local-x"))

	resp := pool.PrepareDiscoverPeersResponse(target, mask, 10)
	for _, pa := range resp {
		assert.True(t, pa.ID.Matches(target, mask))
	}
}

func TestPoolSetPing(t *testing.T) {
	r := rand.New(rand.NewSource(8))
	self := randomPeerID(r)
	other := randomPeerID(r)
	pool := NewPool(self, testDispatcher{}, NewBus())

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	require.NoError(t, pool.Insert(other, c1, "local-1"))

	pool.SetPing(other, 42*time.Millisecond)
	info := pool.peers[other]
	rtt, ok := info.RTT()
	require.True(t, ok)
	assert.Equal(t, 42*time.Millisecond, rtt)
}
