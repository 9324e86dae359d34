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
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomID(r *rand.Rand) PeerID {
	var id PeerID
	r.Read(id[:])
	return id
}

func TestHexRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		id := randomID(r)
		s := id.String()
		require.Len(t, s, 64)
		for _, c := range s {
			assert.False(t, c >= 'A' && c <= 'F', "hex form must be lowercase")
		}
		parsed, err := ParsePeerID(s)
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
}

func TestDistanceSymmetricAndZero(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	a, b := randomID(r), randomID(r)
	assert.Equal(t, Distance(a, b), Distance(b, a))
	assert.Equal(t, [IDLength]byte{}, Distance(a, a))
}

func TestDistanceIsValidMetric(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		a, b, c := randomID(r), randomID(r), randomID(r)
		dac := Distance(a, c)
		dab := Distance(a, b)
		dbc := Distance(b, c)
		for i := 0; i < IDLength; i++ {
			// XOR metric triangle inequality: d(a,c) = d(a,b) XOR d(b,c)
			// exactly (XOR is its own triangle equality for this metric).
			assert.Equal(t, dac[i], dab[i]^dbc[i])
		}
	}
}

func TestBucketGenerateInBucketRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(4))
	for i := 0; i < 50; i++ {
		self := randomID(r)
		for level := 0; level < 128; level += 7 {
			for sub := 0; sub < 3; sub++ {
				target := self.GenerateInBucket(level, sub)
				b := BucketOf(self, target)
				require.False(t, b.IsNone())
				assert.Equal(t, level, b.Level, "level for level=%d sub=%d", level, sub)
				assert.Equal(t, sub, b.Sub, "sub for level=%d sub=%d", level, sub)
			}
		}
	}
}

func TestBucketOfEqualIsNone(t *testing.T) {
	r := rand.New(rand.NewSource(5))
	self := randomID(r)
	assert.True(t, BucketOf(self, self).IsNone())
}

func TestMatches(t *testing.T) {
	var a, b PeerID
	a[0] = 0b11110000
	b[0] = 0b11110101
	mask := []byte{0b11110000}
	assert.True(t, a.Matches(b, mask))
	mask = []byte{0b00001111}
	assert.False(t, a.Matches(b, mask))
}

func TestBucketMaskMatchesGeneratedTargets(t *testing.T) {
	r := rand.New(rand.NewSource(6))
	self := randomID(r)
	for level := 0; level < 128; level += 11 {
		mask := BucketMask(level)
		for sub := 0; sub < 3; sub++ {
			target := self.GenerateInBucket(level, sub)
			assert.True(t, self.Matches(target, mask), "level=%d sub=%d", level, sub)
		}
	}
}

func TestLess(t *testing.T) {
	var a, b PeerID
	a[31] = 1
	b[31] = 2
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.False(t, a.Less(a))
}
