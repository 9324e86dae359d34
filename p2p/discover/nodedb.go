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

package discover

import (
	"encoding/binary"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/Mubelotix/tewta/common"
)

// nodeDBAddrPrefix/nodeDBSeenPrefix namespace the two record kinds a
// PeerID's key space is split into, the same table-prefixing idiom the
// storage layer uses for unrelated record families sharing one database.
var (
	nodeDBAddrPrefix = []byte("n:addr:")
	nodeDBSeenPrefix = []byte("n:seen:")
)

// NodeDB is a small persistent address book: it remembers, across
// restarts, the address of every peer the node has completed a handshake
// with through its bootstrap dials or inbound accepts, and the last time
// each was seen alive. Peers that discovery or a DHT lookup dials are not
// recorded. It is not a DHT value store.
type NodeDB struct {
	db *leveldb.DB
}

// OpenNodeDB opens (creating if absent) the address book at path. An empty
// path opens a transient in-memory database, useful in tests.
func OpenNodeDB(path string) (*NodeDB, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, err
	}
	return &NodeDB{db: db}, nil
}

// Close releases the underlying database handle.
func (n *NodeDB) Close() error {
	return n.db.Close()
}

func addrKey(id common.PeerID) []byte {
	return append(append([]byte{}, nodeDBAddrPrefix...), id.Bytes()...)
}

func seenKey(id common.PeerID) []byte {
	return append(append([]byte{}, nodeDBSeenPrefix...), id.Bytes()...)
}

// UpdateAddr records addr as id's last-known dial address.
func (n *NodeDB) UpdateAddr(id common.PeerID, addr string) error {
	return n.db.Put(addrKey(id), []byte(addr), nil)
}

// Addr returns id's last recorded dial address, if any.
func (n *NodeDB) Addr(id common.PeerID) (string, bool) {
	v, err := n.db.Get(addrKey(id), nil)
	if err != nil {
		return "", false
	}
	return string(v), true
}

// UpdateLastSeen records t as the last time id was observed reachable.
func (n *NodeDB) UpdateLastSeen(id common.PeerID, t time.Time) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(t.Unix()))
	return n.db.Put(seenKey(id), buf[:], nil)
}

// LastSeen returns the last recorded sighting time for id, if any.
func (n *NodeDB) LastSeen(id common.PeerID) (time.Time, bool) {
	v, err := n.db.Get(seenKey(id), nil)
	if err != nil || len(v) != 8 {
		return time.Time{}, false
	}
	return time.Unix(int64(binary.BigEndian.Uint64(v)), 0), true
}

// SeedEntry is one address-book record surfaced to a fresh node looking
// for bootstrap candidates.
type SeedEntry struct {
	ID       common.PeerID
	Addr     string
	LastSeen time.Time
}

// Seeds returns every address-book entry with a recorded address, most
// recently seen first, up to limit entries (0 means unlimited).
func (n *NodeDB) Seeds(limit int) ([]SeedEntry, error) {
	var out []SeedEntry
	it := n.db.NewIterator(util.BytesPrefix(nodeDBAddrPrefix), nil)
	defer it.Release()
	for it.Next() {
		id, err := common.PeerIDFromBytes(it.Key()[len(nodeDBAddrPrefix):])
		if err != nil {
			continue
		}
		entry := SeedEntry{ID: id, Addr: string(it.Value())}
		if t, ok := n.LastSeen(id); ok {
			entry.LastSeen = t
		}
		out = append(out, entry)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	sortSeedsByRecency(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortSeedsByRecency(entries []SeedEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].LastSeen.After(entries[j-1].LastSeen); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// Prune removes address-book entries whose last-seen time is older than
// before, so a long-lived node does not accumulate addresses that have
// since gone stale.
func (n *NodeDB) Prune(before time.Time) error {
	batch := new(leveldb.Batch)
	it := n.db.NewIterator(util.BytesPrefix(nodeDBSeenPrefix), nil)
	defer it.Release()
	for it.Next() {
		v := it.Value()
		if len(v) != 8 {
			continue
		}
		seen := time.Unix(int64(binary.BigEndian.Uint64(v)), 0)
		if seen.Before(before) {
			id, err := common.PeerIDFromBytes(it.Key()[len(nodeDBSeenPrefix):])
			if err != nil {
				continue
			}
			batch.Delete(addrKey(id))
			batch.Delete(seenKey(id))
		}
	}
	if err := it.Error(); err != nil {
		return err
	}
	return n.db.Write(batch, nil)
}
