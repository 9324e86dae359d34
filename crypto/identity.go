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

// Package crypto implements the RSA-then-AES primitives the handshake and
// the DHT's signed values rely on. Key generation is explicitly out of
// scope; callers supply an already-generated *rsa.PrivateKey.
package crypto

import (
	"crypto/rsa"
	"crypto/sha256"
	"math/big"

	"github.com/Mubelotix/tewta/common"
	"github.com/Mubelotix/tewta/log"
)

var logger = log.NewModuleLogger(log.Crypto)

// ProductionKeyBits and TestKeyBits are the two RSA modulus sizes this
// protocol accepts; production nodes use the former, test builds the
// latter so key generation in unit tests stays fast.
const (
	ProductionKeyBits = 4096
	TestKeyBits       = 1024
)

// encodeLE renders n as its minimal big-endian byte string, then reverses
// it to little-endian. Both sides of a handshake must agree byte-for-byte
// on this encoding since it feeds directly into PeerID derivation.
func encodeLE(n *big.Int) []byte {
	be := n.Bytes()
	le := make([]byte, len(be))
	for i, b := range be {
		le[len(be)-1-i] = b
	}
	return le
}

func decodeLE(le []byte) *big.Int {
	be := make([]byte, len(le))
	for i, b := range le {
		be[len(le)-1-i] = b
	}
	return new(big.Int).SetBytes(be)
}

// PublicKeyLE returns the little-endian exponent and modulus of pub, the
// two byte strings the wire's InitRsa packet carries.
func PublicKeyLE(pub *rsa.PublicKey) (exponentLE, modulusLE []byte) {
	exponentLE = encodeLE(big.NewInt(int64(pub.E)))
	modulusLE = encodeLE(pub.N)
	return
}

// PublicKeyFromLE reconstructs an *rsa.PublicKey from the little-endian
// exponent/modulus pair received over the wire.
func PublicKeyFromLE(exponentLE, modulusLE []byte) *rsa.PublicKey {
	return &rsa.PublicKey{
		E: int(decodeLE(exponentLE).Int64()),
		N: decodeLE(modulusLE),
	}
}

// DerivePeerID computes PeerID = SHA-256(exponent_le || modulus_le) per the
// data model: the identity a node's RSA public key commits it to.
func DerivePeerID(pub *rsa.PublicKey) common.PeerID {
	exponentLE, modulusLE := PublicKeyLE(pub)
	return derivePeerIDFromLE(exponentLE, modulusLE)
}

func derivePeerIDFromLE(exponentLE, modulusLE []byte) common.PeerID {
	h := sha256.New()
	h.Write(exponentLE)
	h.Write(modulusLE)
	var id common.PeerID
	copy(id[:], h.Sum(nil))
	return id
}

// PeerIDFromLE derives the PeerID a received (exponent_le, modulus_le) pair
// commits to, without needing to reconstruct a usable *rsa.PublicKey first.
func PeerIDFromLE(exponentLE, modulusLE []byte) common.PeerID {
	return derivePeerIDFromLE(exponentLE, modulusLE)
}
