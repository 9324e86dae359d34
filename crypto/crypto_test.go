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
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/require"
)

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, TestKeyBits)
	require.NoError(t, err)
	return k
}

func TestPublicKeyLERoundTrip(t *testing.T) {
	k := genKey(t)
	expLE, modLE := PublicKeyLE(&k.PublicKey)
	pub := PublicKeyFromLE(expLE, modLE)
	require.Equal(t, k.PublicKey.E, pub.E)
	require.Equal(t, 0, k.PublicKey.N.Cmp(pub.N))
}

func TestDerivePeerIDDeterministic(t *testing.T) {
	k := genKey(t)
	a := DerivePeerID(&k.PublicKey)
	b := DerivePeerID(&k.PublicKey)
	require.Equal(t, a, b)

	other := genKey(t)
	c := DerivePeerID(&other.PublicKey)
	require.NotEqual(t, a, c)
}

func TestPeerIDFromLEMatchesDerivePeerID(t *testing.T) {
	k := genKey(t)
	expLE, modLE := PublicKeyLE(&k.PublicKey)
	require.Equal(t, DerivePeerID(&k.PublicKey), PeerIDFromLE(expLE, modLE))
}

func TestWrapUnwrapAESShareRoundTrip(t *testing.T) {
	k := genKey(t)
	share, err := GenerateAESShare()
	require.NoError(t, err)
	nonce, err := GenerateNonce()
	require.NoError(t, err)

	ct, err := WrapAESShare(&k.PublicKey, share, nonce)
	require.NoError(t, err)

	gotShare, gotNonce, err := UnwrapAESShare(k, ct)
	require.NoError(t, err)
	require.Equal(t, share, gotShare)
	require.Equal(t, nonce, gotNonce)
}

func TestWrapAESShareRejectsWrongShareLength(t *testing.T) {
	k := genKey(t)
	nonce, _ := GenerateNonce()
	_, err := WrapAESShare(&k.PublicKey, []byte{1, 2, 3}, nonce)
	require.Error(t, err)
}

func TestAssembleSessionKeySymmetric(t *testing.T) {
	a := genKey(t)
	b := genKey(t)
	idA := DerivePeerID(&a.PublicKey)
	idB := DerivePeerID(&b.PublicKey)

	shareA, _ := GenerateAESShare()
	shareB, _ := GenerateAESShare()

	keyFromA, err := AssembleSessionKey(idA, idB, shareA, shareB)
	require.NoError(t, err)
	keyFromB, err := AssembleSessionKey(idB, idA, shareB, shareA)
	require.NoError(t, err)

	require.Equal(t, keyFromA, keyFromB, "both sides must derive the same session key")
}

func TestAssembleSessionKeyRejectsWrongLength(t *testing.T) {
	a := genKey(t)
	b := genKey(t)
	idA := DerivePeerID(&a.PublicKey)
	idB := DerivePeerID(&b.PublicKey)
	_, err := AssembleSessionKey(idA, idB, []byte{1}, make([]byte, AESShareLength))
	require.Error(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	k := genKey(t)
	data := []byte("hello dht")
	sv, err := Sign(k, data)
	require.NoError(t, err)

	id, got, err := Verify(sv)
	require.NoError(t, err)
	require.Equal(t, data, got)
	require.Equal(t, DerivePeerID(&k.PublicKey), id)
}

func TestVerifyRejectsTamperedData(t *testing.T) {
	k := genKey(t)
	sv, err := Sign(k, []byte("original"))
	require.NoError(t, err)

	sv.Data = []byte("tampered")
	_, _, err = Verify(sv)
	require.Error(t, err)
}
