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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mubelotix/tewta/wire"
)

func TestBusPublishDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, _ := bus.Subscribe(wire.KindPong)
	ch2, _ := bus.Subscribe(wire.KindPong)

	bus.Publish(wire.KindPong, Event{Packet: &wire.Pong{PingId: 1}})

	select {
	case ev := <-ch1:
		assert.Equal(t, uint32(1), ev.Packet.(*wire.Pong).PingId)
	default:
		t.Fatal("subscriber 1 did not receive the event")
	}
	select {
	case ev := <-ch2:
		assert.Equal(t, uint32(1), ev.Packet.(*wire.Pong).PingId)
	default:
		t.Fatal("subscriber 2 did not receive the event")
	}
}

func TestBusPublishIsNoopWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(wire.KindPong, Event{Packet: &wire.Pong{PingId: 1}})
	})
}

func TestBusCancelRemovesSubscription(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(wire.KindPing)
	cancel()

	bus.Publish(wire.KindPing, Event{Packet: &wire.Ping{PingId: 7}})
	select {
	case <-ch:
		t.Fatal("canceled subscription should not receive events")
	default:
	}
}

func TestBusPrunesAbandonedSubscriberOnSendFailure(t *testing.T) {
	bus := NewBus()
	_, _ = bus.Subscribe(wire.KindPing)

	bus.Publish(wire.KindPing, Event{Packet: &wire.Ping{PingId: 1}}) // fills the one-shot buffer
	require.Len(t, bus.subs[wire.KindPing], 1, "subscriber stays registered after a successful delivery")

	bus.Publish(wire.KindPing, Event{Packet: &wire.Ping{PingId: 2}}) // buffer still full: send fails
	assert.Len(t, bus.subs[wire.KindPing], 0, "abandoned subscriber must be pruned on send failure")
}

func TestWaitForMatchReturnsMatchingEvent(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(10 * time.Millisecond)
		bus.Publish(wire.KindPong, Event{Packet: &wire.Pong{PingId: 99}})
	}()

	ev, err := WaitForMatch(ctx, bus, wire.KindPong, func(ev Event) bool {
		return ev.Packet.(*wire.Pong).PingId == 99
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(99), ev.Packet.(*wire.Pong).PingId)
}

func TestWaitForMatchTimesOut(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := WaitForMatch(ctx, bus, wire.KindPong, func(ev Event) bool { return true })
	assert.Error(t, err)
}
