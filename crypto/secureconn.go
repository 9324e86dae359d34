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
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/Mubelotix/tewta/common"
)

// SecureConn wraps a net.Conn so that every byte slice passed to Write is
// sealed, and every slice returned by Read was opened, under AES-256-GCM.
// Two independent directional keys are derived from the session key so the
// same (key, nonce) pair is never used by both ends of the connection, and
// a per-direction counter supplies the nonce instead of random bytes, since
// both sides advance it in lockstep one record at a time.
type SecureConn struct {
	net.Conn

	writeAEAD cipher.AEAD
	readAEAD  cipher.AEAD

	writeSeq uint64
	readSeq  uint64

	wmu sync.Mutex
	rmu sync.Mutex
	buf []byte
}

// NewSecureConn builds a SecureConn around conn using the 32-byte session
// key a completed handshake assembled. selfID/peerID decide which of the
// two directional sub-keys this side writes with versus reads with; both
// ends must agree on the ordering, so callers pass the same selfID/peerID
// pair AssembleSessionKey used.
func NewSecureConn(conn net.Conn, sessionKey [32]byte, selfID, peerID common.PeerID) (*SecureConn, error) {
	lowKey := sha256.Sum256(append(sessionKey[:], 0x01))
	highKey := sha256.Sum256(append(sessionKey[:], 0x02))

	var writeKey, readKey [32]byte
	if selfID.Less(peerID) {
		writeKey, readKey = lowKey, highKey
	} else {
		writeKey, readKey = highKey, lowKey
	}

	writeAEAD, err := newGCM(writeKey)
	if err != nil {
		return nil, err
	}
	readAEAD, err := newGCM(readKey)
	if err != nil {
		return nil, err
	}
	return &SecureConn{Conn: conn, writeAEAD: writeAEAD, readAEAD: readAEAD}, nil
}

func newGCM(key [32]byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func seqNonce(aead cipher.AEAD, seq uint64) []byte {
	n := make([]byte, aead.NonceSize())
	binary.BigEndian.PutUint64(n[len(n)-8:], seq)
	return n
}

// Write seals p as one AEAD record and writes it to the underlying
// connection as a 4-byte big-endian ciphertext length followed by the
// sealed bytes.
func (c *SecureConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	sealed := c.writeAEAD.Seal(nil, seqNonce(c.writeAEAD, c.writeSeq), p, nil)
	c.writeSeq++

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(sealed)))
	if _, err := c.Conn.Write(lenBuf[:]); err != nil {
		return 0, err
	}
	if _, err := c.Conn.Write(sealed); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Read fills p from the next opened record, reading and decrypting a fresh
// record from the underlying connection whenever the previous one has been
// fully consumed.
func (c *SecureConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for len(c.buf) == 0 {
		var lenBuf [4]byte
		if _, err := io.ReadFull(c.Conn, lenBuf[:]); err != nil {
			return 0, err
		}
		l := binary.BigEndian.Uint32(lenBuf[:])
		sealed := make([]byte, l)
		if _, err := io.ReadFull(c.Conn, sealed); err != nil {
			return 0, err
		}
		opened, err := c.readAEAD.Open(nil, seqNonce(c.readAEAD, c.readSeq), sealed, nil)
		c.readSeq++
		if err != nil {
			return 0, fmt.Errorf("crypto: failed to open secure record: %w", err)
		}
		c.buf = opened
	}

	n := copy(p, c.buf)
	c.buf = c.buf[n:]
	return n, nil
}
