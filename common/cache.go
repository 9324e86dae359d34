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
	"errors"

	lru "github.com/hashicorp/golang-lru"

	"github.com/Mubelotix/tewta/log"
)

var logger = log.NewModuleLogger(log.Common)

// CacheScale lets an operator shrink every cache created through this
// package by a percentage.
var CacheScale = 100

// SeenPeers is a bounded cache of (PeerID, address) candidates a discovery
// or lookup round has already considered, keyed by the string form of the
// PeerID. Both bucket discovery and the DHT lookup engine need this shape:
// "did I already try this candidate", evicting the least recently used
// entry once a node has suggested more candidates than are worth
// remembering.
type SeenPeers struct {
	lru *lru.Cache
}

// NewSeenPeers creates a bounded cache sized by size*CacheScale/100.
func NewSeenPeers(size int) (*SeenPeers, error) {
	scaled := size * CacheScale / 100
	if scaled < 1 {
		logger.Error("cache size resolved to non-positive value", "size", size, "scale", CacheScale)
		return nil, errors.New("common: cache size must be positive")
	}
	c, err := lru.New(scaled)
	if err != nil {
		return nil, err
	}
	return &SeenPeers{lru: c}, nil
}

// Add records addr as having been considered for id, evicting the least
// recently used entry if the cache is full.
func (s *SeenPeers) Add(id PeerID, addr string) (evicted bool) {
	return s.lru.Add(id.String(), addr)
}

// Contains reports whether id has already been considered.
func (s *SeenPeers) Contains(id PeerID) bool {
	return s.lru.Contains(id.String())
}

// Get returns the last address recorded for id.
func (s *SeenPeers) Get(id PeerID) (addr string, ok bool) {
	v, ok := s.lru.Get(id.String())
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Len returns the number of entries currently cached.
func (s *SeenPeers) Len() int {
	return s.lru.Len()
}

// Purge empties the cache.
func (s *SeenPeers) Purge() {
	s.lru.Purge()
}
