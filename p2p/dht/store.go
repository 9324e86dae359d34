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

// Package dht implements the node's local value store and the iterative,
// bounded-parallelism lookup engine that resolves keys across the network.
package dht

import (
	"fmt"
	"sync"

	"github.com/Mubelotix/tewta/common"
	cryptoutil "github.com/Mubelotix/tewta/crypto"
	"github.com/Mubelotix/tewta/log"
	"github.com/Mubelotix/tewta/wire"
)

var logger = log.NewModuleLogger(log.DHT)

// MaxDhtValuesReturned bounds both a FindDhtValueResp's Values and a
// dht_lookup result.
const MaxDhtValuesReturned = 64

// MaxDhtPeersReturned bounds a FindDhtValueResp's Peers.
const MaxDhtPeersReturned = 32

// Store is the node's local mapping from KeyID to an ordered list of
// signed values. Empty lists are never retained.
type Store struct {
	mu     sync.Mutex
	values map[common.KeyID][]*wire.SignedValue
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{values: make(map[common.KeyID][]*wire.SignedValue)}
}

// toCrypto / fromCrypto convert between the wire representation (used for
// storage and responses) and crypto.SignedValue (used for verification),
// keeping package crypto free of any dependency on package wire.
func toCrypto(v *wire.SignedValue) *cryptoutil.SignedValue {
	return &cryptoutil.SignedValue{Data: v.Data, PubExpLE: v.PubExpLe, PubModLE: v.PubModLe, Signature: v.Signature}
}

// Put verifies v's RSA-PSS signature and, only if it checks out, appends it
// to key's value list. An unsigned or forged value is never retained.
func (s *Store) Put(key common.KeyID, v *wire.SignedValue) error {
	if _, _, err := cryptoutil.Verify(toCrypto(v)); err != nil {
		return fmt.Errorf("dht: rejecting unverifiable value: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append(s.values[key], v)
	return nil
}

// Get returns up to limit values stored under key. A key left with no
// values is removed from the map.
func (s *Store) Get(key common.KeyID, limit int) ([]*wire.SignedValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vals, ok := s.values[key]
	if !ok || len(vals) == 0 {
		delete(s.values, key)
		return nil, false
	}
	if limit > 0 && limit < len(vals) {
		vals = vals[:limit]
	}
	if len(vals) > MaxDhtValuesReturned {
		vals = vals[:MaxDhtValuesReturned]
	}
	out := make([]*wire.SignedValue, len(vals))
	for i, v := range vals {
		c := *v
		out[i] = &c
	}
	return out, true
}
