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

package common

import (
	"encoding/hex"
	"fmt"
)

// IDLength is the size in bytes of a PeerID/KeyID: a SHA-256 digest.
const IDLength = 32

// PeerID is a node's identity on the overlay: SHA-256(exponent_le ||
// modulus_le) of its RSA public key. KeyID shares the same type and algebra
// and is used interchangeably in DHT lookups.
type PeerID [IDLength]byte

// KeyID is an alias of PeerID: the DHT keys values are stored under live in
// the same 256-bit address space as peer identities.
type KeyID = PeerID

// Bucket identifies a Kademlia-style bucket as a (level, sub) pair. Level
// indexes a two-bit group (MSB-first) of the XOR distance; sub selects which
// of the three non-zero two-bit values occurred there.
type Bucket struct {
	Level int
	Sub   int
}

// NoBucket is returned by Bucket when the two IDs are equal.
var NoBucket = Bucket{Level: -1, Sub: -1}

// IsNone reports whether b is the "equal IDs" sentinel.
func (b Bucket) IsNone() bool { return b.Level < 0 }

// ParsePeerID parses the 64 lowercase hex character display form of a
// PeerID. It is the inverse of PeerID.String.
func ParsePeerID(s string) (PeerID, error) {
	var id PeerID
	if len(s) != IDLength*2 {
		return id, fmt.Errorf("common: peer id must be %d hex characters, got %d", IDLength*2, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("common: invalid peer id: %w", err)
	}
	copy(id[:], b)
	return id, nil
}

// PeerIDFromBytes copies 32 raw wire bytes into a PeerID.
func PeerIDFromBytes(b []byte) (PeerID, error) {
	var id PeerID
	if len(b) != IDLength {
		return id, fmt.Errorf("common: peer id must be %d bytes, got %d", IDLength, len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Bytes returns the 32 raw wire bytes of the id.
func (id PeerID) Bytes() []byte {
	b := make([]byte, IDLength)
	copy(b, id[:])
	return b
}

// String renders the lowercase, 64-character hex display form.
func (id PeerID) String() string {
	return hex.EncodeToString(id[:])
}

// Less orders PeerIDs by their byte sequence, the strict ordering the pool
// and the handshake's session-key assembly rely on.
func (id PeerID) Less(other PeerID) bool {
	for i := 0; i < IDLength; i++ {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// Equal reports whether id and other are the same identifier.
func (id PeerID) Equal(other PeerID) bool {
	return id == other
}

// Distance computes the XOR metric, a 32-byte value ordered lexicographically.
func Distance(a, b PeerID) [IDLength]byte {
	var d [IDLength]byte
	for i := 0; i < IDLength; i++ {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// LessDistance reports whether distance d1 is strictly closer than d2,
// comparing the two 32-byte XOR distances lexicographically.
func LessDistance(d1, d2 [IDLength]byte) bool {
	for i := 0; i < IDLength; i++ {
		if d1[i] != d2[i] {
			return d1[i] < d2[i]
		}
	}
	return false
}

// BucketOf returns the (level, sub) position of the highest-order non-zero
// two-bit group in self XOR other, scanning bytes big-endian and, within
// each byte, the four two-bit groups from most to least significant. It
// returns NoBucket when self == other.
func BucketOf(self, other PeerID) Bucket {
	d := Distance(self, other)
	for byteIdx := 0; byteIdx < IDLength; byteIdx++ {
		b := d[byteIdx]
		if b == 0 {
			continue
		}
		for group := 0; group < 4; group++ {
			shift := uint(6 - 2*group)
			bits := (b >> shift) & 0b11
			if bits != 0 {
				level := byteIdx*4 + group
				return Bucket{Level: level, Sub: int(bits) - 1}
			}
		}
	}
	return NoBucket
}

// Matches reports whether (self AND mask) == (other AND mask) over the
// first len(mask) bytes (len(mask) must be <= 32).
func (id PeerID) Matches(other PeerID, mask []byte) bool {
	if len(mask) > IDLength {
		return false
	}
	for i, m := range mask {
		if (id[i] & m) != (other[i] & m) {
			return false
		}
	}
	return true
}

// BucketMask returns the mask matching every PeerID in, or strictly closer
// than, bucket level `level`: level/4 full 0xFF bytes followed by one byte
// with the top-most level%4 two-bit groups set.
func BucketMask(level int) []byte {
	full := level / 4
	rem := level % 4
	mask := make([]byte, full, full+1)
	for i := range mask {
		mask[i] = 0xFF
	}
	var lastByte byte
	switch rem {
	case 0:
		lastByte = 0b00000000
	case 1:
		lastByte = 0b11000000
	case 2:
		lastByte = 0b11110000
	case 3:
		lastByte = 0b11111100
	}
	return append(mask, lastByte)
}

// GenerateInBucket deterministically constructs an id t such that
// BucketOf(self, t) == (level, sub), by flipping exactly the bit-pair
// corresponding to (level, sub) in the byte at index level/4 and leaving
// every other bit equal to self.
func (id PeerID) GenerateInBucket(level, sub int) PeerID {
	t := id
	byteIdx := level / 4
	group := level % 4
	shift := uint(6 - 2*group)

	// XOR, not overwrite: the only bits allowed to differ from self are
	// this exact two-bit group, and the XOR at that position must equal
	// sub+1 so that BucketOf(self, t) reports sub, not merely "nonzero".
	t[byteIdx] ^= byte(sub+1) << shift
	return t
}
