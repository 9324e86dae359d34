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

package node

import (
	"time"

	"github.com/fjl/memsize/memsizeui"
	metrics "github.com/rcrowley/go-metrics"
)

// Memsize exposes a live memory-layout report of every registered node
// over HTTP, for attaching to a debug mux at runtime.
var Memsize memsizeui.Handler

// peerCountGauge tracks live pool population for external metrics export
// (e.g. a Prometheus bridge reading the default go-metrics registry).
var peerCountGauge = metrics.NewRegisteredGauge("node/peers", nil)

// RegisterMetrics exposes n under name in the shared memsize report and
// starts a background sampler that keeps peerCountGauge current.
func (n *Node) RegisterMetrics(name string) {
	Memsize.Add(name, n)
	n.wg.Add(1)
	go n.sampleMetrics()
}

func (n *Node) sampleMetrics() {
	defer n.wg.Done()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			peerCountGauge.Update(int64(n.pool.Len()))
		}
	}
}
