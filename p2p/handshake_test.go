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
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mubelotix/tewta/common"
	cryptoutil "github.com/Mubelotix/tewta/crypto"
	"github.com/Mubelotix/tewta/wire"
)

// testDispatcher discards every packet; handshake tests never insert into
// the pool so no packet is ever dispatched.
type testDispatcher struct{}

func (testDispatcher) Dispatch(common.PeerID, wire.Packet) {}

func genTestKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, cryptoutil.TestKeyBits)
	require.NoError(t, err)
	return k
}

func TestHandshakeSucceedsBothSidesDeriveSameKey(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	keyA := genTestKey(t)
	keyB := genTestKey(t)
	idA := cryptoutil.DerivePeerID(&keyA.PublicKey)
	idB := cryptoutil.DerivePeerID(&keyB.PublicKey)

	poolA := NewPool(idA, testDispatcher{}, NewBus())
	poolB := NewPool(idB, testDispatcher{}, NewBus())

	type res struct {
		r   *HandshakeResult
		err error
	}
	chA := make(chan res, 1)
	chB := make(chan res, 1)

	go func() {
		r, err := Handshake(context.Background(), clientConn, idA, keyA, "local-a", poolA, nil)
		chA <- res{r, err}
	}()
	go func() {
		r, err := Handshake(context.Background(), serverConn, idB, keyB, "local-b", poolB, nil)
		chB <- res{r, err}
	}()

	resA := <-chA
	resB := <-chB
	require.NoError(t, resA.err)
	require.NoError(t, resB.err)

	assert.Equal(t, idB, resA.r.PeerID)
	assert.Equal(t, "local-b", resA.r.Addr)
	assert.Equal(t, idA, resB.r.PeerID)
	assert.Equal(t, "local-a", resB.r.Addr)
	assert.Equal(t, resA.r.SessionKey, resB.r.SessionKey, "both sides must derive the same session key")
}

func TestHandshakeRejectsSamePeer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	key := genTestKey(t)
	id := cryptoutil.DerivePeerID(&key.PublicKey)
	pool := NewPool(id, testDispatcher{}, NewBus())

	type res struct{ err error }
	chA := make(chan res, 1)
	chB := make(chan res, 1)
	go func() {
		_, err := Handshake(context.Background(), clientConn, id, key, "local-a", pool, nil)
		chA <- res{err}
	}()
	go func() {
		_, err := Handshake(context.Background(), serverConn, id, key, "local-b", pool, nil)
		chB <- res{err}
	}()

	errA := (<-chA).err
	errB := (<-chB).err
	require.Error(t, errA)
	require.Error(t, errB)
	assert.Equal(t, 0, pool.Len())
}

func TestHandshakeRejectsIdentityMismatch(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	keyA := genTestKey(t)
	keyB := genTestKey(t)
	idA := cryptoutil.DerivePeerID(&keyA.PublicKey)
	idB := cryptoutil.DerivePeerID(&keyB.PublicKey)
	wrongExpected := idA // B's real identity is idB, so expecting idA on the A side must fail

	poolA := NewPool(idA, testDispatcher{}, NewBus())
	poolB := NewPool(idB, testDispatcher{}, NewBus())

	type res struct{ err error }
	chA := make(chan res, 1)
	chB := make(chan res, 1)
	go func() {
		_, err := Handshake(context.Background(), clientConn, idA, keyA, "local-a", poolA, &wrongExpected)
		chA <- res{err}
	}()
	go func() {
		_, err := Handshake(context.Background(), serverConn, idB, keyB, "local-b", poolB, nil)
		chB <- res{err}
	}()

	errA := (<-chA).err
	<-chB
	require.Error(t, errA)
	var hsErr *HandshakeError
	require.ErrorAs(t, errA, &hsErr)
	assert.Equal(t, ReasonIdentityMismatch, hsErr.Reason)
}
