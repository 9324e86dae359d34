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
	"crypto/sha256"
	"fmt"

	"github.com/Mubelotix/tewta/common"
)

// AESShareLength is the size in bytes of each side's contribution to the
// 32-byte session key, carried by InitAes.aes_key_part.
const AESShareLength = 16

// NonceLength is the size in bytes of the handshake nonce exchanged in
// InitRsa and echoed back in InitAes.
const NonceLength = 16

// WrapAESShare RSA-OAEP/SHA-256 encrypts share (this side's 16-byte session
// key contribution) and the peer's echoed nonce under the peer's public key,
// the InitAes payload's ciphertext.
func WrapAESShare(peerPub *rsa.PublicKey, share, nonce []byte) ([]byte, error) {
	if len(share) != AESShareLength {
		return nil, fmt.Errorf("crypto: aes share must be %d bytes, got %d", AESShareLength, len(share))
	}
	plaintext := make([]byte, 0, len(share)+len(nonce))
	plaintext = append(plaintext, share...)
	plaintext = append(plaintext, nonce...)
	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, peerPub, plaintext, nil)
	if err != nil {
		logger.Error("failed to wrap aes share", "err", err)
		return nil, err
	}
	return ct, nil
}

// UnwrapAESShare decrypts an InitAes ciphertext produced by WrapAESShare,
// splitting it back into the peer's 16-byte share and their echoed nonce.
func UnwrapAESShare(priv *rsa.PrivateKey, ciphertext []byte) (share, echoedNonce []byte, err error) {
	pt, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to unwrap aes share: %w", err)
	}
	if len(pt) != AESShareLength+NonceLength {
		return nil, nil, fmt.Errorf("crypto: unwrapped aes payload has wrong length %d", len(pt))
	}
	share = pt[:AESShareLength]
	echoedNonce = pt[AESShareLength:]
	return share, echoedNonce, nil
}

// GenerateAESShare returns this side's random 16-byte session-key
// contribution.
func GenerateAESShare() ([]byte, error) {
	share := make([]byte, AESShareLength)
	if _, err := rand.Read(share); err != nil {
		return nil, err
	}
	return share, nil
}

// GenerateNonce returns a fresh 16-byte handshake nonce.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return nonce, nil
}

// AssembleSessionKey derives the shared 32-byte session key from both
// sides' 16-byte shares, ordered by comparing the two PeerIDs as byte
// sequences so that both participants compute the identical key
// independently of who dialed whom.
func AssembleSessionKey(selfID, peerID common.PeerID, selfShare, peerShare []byte) ([32]byte, error) {
	var key [32]byte
	if len(selfShare) != AESShareLength || len(peerShare) != AESShareLength {
		return key, fmt.Errorf("crypto: session key assembly requires two %d-byte shares", AESShareLength)
	}
	var lowShare, highShare []byte
	if selfID.Less(peerID) {
		lowShare, highShare = selfShare, peerShare
	} else {
		lowShare, highShare = peerShare, selfShare
	}
	copy(key[:AESShareLength], lowShare)
	copy(key[AESShareLength:], highShare)
	return key, nil
}
