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
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pbnjay/memory"
)

// DefaultListenAddr is the TCP address a node listens on absent an
// explicit Config.ListenAddr.
const DefaultListenAddr = ":4490"

// DefaultPingInterval/DefaultPingTimeout/DefaultRefreshInterval are the
// periodic-task cadences absent explicit overrides.
const (
	DefaultPingInterval    = 100 * time.Second
	DefaultPingTimeout     = 30 * time.Second
	DefaultRefreshInterval = 100 * time.Second
)

// DefaultConfig contains reasonable default settings for a freshly
// installed node.
var DefaultConfig = Config{
	DataDir:         DefaultDataDir(),
	ListenAddr:      DefaultListenAddr,
	BootstrapAddrs:  nil,
	PingInterval:    DefaultPingInterval,
	PingTimeout:     DefaultPingTimeout,
	RefreshInterval: DefaultRefreshInterval,
	CacheSizeHint:   defaultCacheSizeHint(),
}

// defaultCacheSizeHint scales the seen-peers cache to the host's available
// memory, the same budget-awareness idiom CacheScale generalizes in
// package common.
func defaultCacheSizeHint() int {
	total := memory.TotalMemory()
	const bytesPerHintUnit = 256 << 20 // one cache unit per 256MiB of RAM
	hint := int(total / bytesPerHintUnit)
	if hint < 64 {
		hint = 64
	}
	if hint > 8192 {
		hint = 8192
	}
	return hint
}

// DefaultDataDir is the default data directory used for the node database
// and other persistence requirements.
func DefaultDataDir() string {
	dirname := filepath.Base(os.Args[0])
	if dirname == "" {
		dirname = "tewta"
	}
	home := homeDir()
	if home == "" {
		return ""
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", strings.ToUpper(dirname))
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", strings.ToUpper(dirname))
	default:
		return filepath.Join(home, "."+dirname)
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}
