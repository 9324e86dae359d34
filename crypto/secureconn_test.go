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

package crypto

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func genSessionKey(t *testing.T) [32]byte {
	t.Helper()
	var k [32]byte
	share, err := GenerateAESShare()
	require.NoError(t, err)
	copy(k[:], share)
	copy(k[16:], share)
	return k
}

// pairedSecureConns builds two SecureConn instances sharing the same
// session key over an in-memory net.Pipe, ordered the same way a real
// handshake would order them by peer ID.
func pairedSecureConns(t *testing.T) (a, b *SecureConn) {
	t.Helper()
	ka := genKey(t)
	kb := genKey(t)
	idA := DerivePeerID(&ka.PublicKey)
	idB := DerivePeerID(&kb.PublicKey)

	sessionKey := genSessionKey(t)
	connA, connB := net.Pipe()

	secureA, err := NewSecureConn(connA, sessionKey, idA, idB)
	require.NoError(t, err)
	secureB, err := NewSecureConn(connB, sessionKey, idB, idA)
	require.NoError(t, err)
	return secureA, secureB
}

func TestSecureConnRoundTripsWrittenBytes(t *testing.T) {
	a, b := pairedSecureConns(t)
	defer a.Close()
	defer b.Close()

	msg := []byte("the quick brown fox")
	go func() {
		_, _ = a.Write(msg)
	}()

	got := make([]byte, len(msg))
	_, err := io.ReadFull(b, got)
	require.NoError(t, err)
	require.Equal(t, msg, got)
}

func TestSecureConnIsBidirectional(t *testing.T) {
	a, b := pairedSecureConns(t)
	defer a.Close()
	defer b.Close()

	go func() {
		_, _ = a.Write([]byte("from-a"))
	}()
	gotAtB := make([]byte, len("from-a"))
	_, err := io.ReadFull(b, gotAtB)
	require.NoError(t, err)
	require.Equal(t, []byte("from-a"), gotAtB)

	go func() {
		_, _ = b.Write([]byte("from-b-reply"))
	}()
	gotAtA := make([]byte, len("from-b-reply"))
	_, err = io.ReadFull(a, gotAtA)
	require.NoError(t, err)
	require.Equal(t, []byte("from-b-reply"), gotAtA)
}

// TestSecureConnUsesDistinctDirectionalKeys confirms a and b don't share an
// AEAD cipher: a's write-side cipher and b's write-side cipher must differ,
// showing the two directions are keyed independently.
func TestSecureConnUsesDistinctDirectionalKeys(t *testing.T) {
	a, b := pairedSecureConns(t)
	defer a.Close()
	defer b.Close()

	require.NotEqual(t, a.writeAEAD, b.writeAEAD, "both sides writing with the same key would let either end forge the other's records")
}

func TestSecureConnRejectsTamperedRecord(t *testing.T) {
	rawA, rawB := net.Pipe()
	ka := genKey(t)
	kb := genKey(t)
	idA := DerivePeerID(&ka.PublicKey)
	idB := DerivePeerID(&kb.PublicKey)
	sessionKey := genSessionKey(t)

	a, err := NewSecureConn(rawA, sessionKey, idA, idB)
	require.NoError(t, err)
	defer a.Close()

	// Write directly on the raw pipe to splice in bytes that were never
	// sealed by b, so a's Open call must fail.
	go func() {
		var lenBuf [4]byte
		lenBuf[3] = 5
		_, _ = rawB.Write(lenBuf[:])
		_, _ = rawB.Write([]byte("xxxxx"))
	}()

	b, err := NewSecureConn(rawB, sessionKey, idB, idA)
	require.NoError(t, err)
	defer b.Close()

	buf := make([]byte, 16)
	_, err = a.Read(buf)
	require.Error(t, err)
}

func TestSecureConnPreservesRecordBoundariesAcrossSmallReads(t *testing.T) {
	a, b := pairedSecureConns(t)
	defer a.Close()
	defer b.Close()

	go func() {
		_, _ = a.Write([]byte("hello"))
	}()

	first := make([]byte, 2)
	_, err := io.ReadFull(b, first)
	require.NoError(t, err)
	require.Equal(t, []byte("he"), first)

	rest := make([]byte, 3)
	_, err = io.ReadFull(b, rest)
	require.NoError(t, err)
	require.Equal(t, []byte("llo"), rest)
}

func TestSecureConnClosePropagatesToUnderlyingConn(t *testing.T) {
	a, b := pairedSecureConns(t)
	require.NoError(t, a.Close())

	buf := make([]byte, 1)
	_, err := b.Read(buf)
	require.Error(t, err)
}

func TestSecureConnRespectsDeadlines(t *testing.T) {
	a, b := pairedSecureConns(t)
	defer a.Close()
	defer b.Close()

	require.NoError(t, b.SetReadDeadline(time.Now().Add(10*time.Millisecond)))
	buf := make([]byte, 1)
	_, err := b.Read(buf)
	require.Error(t, err)
}
