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
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"

	"github.com/Mubelotix/tewta/common"
)

// SignedValue is the wrapper every DHT value is stored and returned as:
// opaque data plus the author's public-key material and an RSA-PSS
// signature over SHA-256 of the encoded data.
type SignedValue struct {
	Data      []byte
	PubExpLE  []byte
	PubModLE  []byte
	Signature []byte
}

// Sign wraps data into a SignedValue, signing SHA-256(data) with priv under
// RSA-PSS.
func Sign(priv *rsa.PrivateKey, data []byte) (*SignedValue, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], nil)
	if err != nil {
		logger.Error("failed to sign dht value", "err", err)
		return nil, err
	}
	expLE, modLE := PublicKeyLE(&priv.PublicKey)
	return &SignedValue{
		Data:      data,
		PubExpLE:  expLE,
		PubModLE:  modLE,
		Signature: sig,
	}, nil
}

// Verify checks sv's RSA-PSS signature and returns the PeerID its embedded
// public key commits to, i.e. SHA-256(pub_exp_le || pub_mod_le), alongside
// the inner data. A self-owned record is one where this returned PeerID
// equals the key the value was stored under.
func Verify(sv *SignedValue) (common.PeerID, []byte, error) {
	pub := PublicKeyFromLE(sv.PubExpLE, sv.PubModLE)
	digest := sha256.Sum256(sv.Data)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sv.Signature, nil); err != nil {
		return common.PeerID{}, nil, fmt.Errorf("crypto: signed value verification failed: %w", err)
	}
	return PeerIDFromLE(sv.PubExpLE, sv.PubModLE), sv.Data, nil
}
