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

package p2p

import (
	"context"
	"fmt"
	"sync"

	"github.com/Mubelotix/tewta/common"
	"github.com/Mubelotix/tewta/wire"
)

// Event is a parsed packet handed to event-bus subscribers together with
// the peer it arrived from.
type Event struct {
	Peer   common.PeerID
	Packet wire.Packet
}

type subscriber struct {
	ch chan Event
}

// Bus fans incoming packets out to one-shot subscribers, one list per
// packet variant. A single mutex guards the lists of all variants.
type Bus struct {
	mu   sync.Mutex
	subs map[wire.Kind][]*subscriber
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[wire.Kind][]*subscriber)}
}

// Subscribe registers a one-shot listener for kind. The returned channel
// buffers one Event. A delivery does not unregister the subscription: it
// stays until cancel removes it or a Publish finds its buffer still full
// and prunes it, so a reader that drains the channel can receive a later
// Event as well.
func (b *Bus) Subscribe(kind wire.Kind) (ch <-chan Event, cancel func()) {
	sub := &subscriber{ch: make(chan Event, 1)}
	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], sub)
	b.mu.Unlock()

	cancel = func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.subs[kind]
		for i, s := range list {
			if s == sub {
				b.subs[kind] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
	return sub.ch, cancel
}

// Publish delivers ev to every subscriber of kind, visiting subscribers in
// reverse insertion order. A subscriber whose channel is not ready to
// receive (full, i.e. an abandoned one-shot slot) is lazily pruned.
func (b *Bus) Publish(kind wire.Kind, ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[kind]
	if len(list) == 0 {
		return
	}
	live := make([]*subscriber, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		sub := list[i]
		select {
		case sub.ch <- ev:
			live = append(live, sub)
		default:
			// send failure: this subscriber is abandoned, prune it.
		}
	}
	// restore ascending insertion order for whatever remains live.
	for i, j := 0, len(live)-1; i < j; i, j = i+1, j-1 {
		live[i], live[j] = live[j], live[i]
	}
	b.subs[kind] = live
}

// WaitForMatch subscribes to kind repeatedly until an Event satisfying
// match arrives or ctx is done, the pattern an in-flight request coroutine
// uses to consume only the response matching its own (peer, request_id).
func WaitForMatch(ctx context.Context, b *Bus, kind wire.Kind, match func(Event) bool) (Event, error) {
	for {
		ch, cancel := b.Subscribe(kind)
		select {
		case ev := <-ch:
			if match(ev) {
				return ev, nil
			}
			// not the response we are waiting for; resubscribe and keep waiting.
		case <-ctx.Done():
			cancel()
			return Event{}, fmt.Errorf("p2p: wait for %s: %w", kind, ctx.Err())
		}
	}
}
