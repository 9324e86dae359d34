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
	"bufio"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"time"
	"unicode"

	cp "github.com/cespare/cp"
	"github.com/naoina/toml"
	"github.com/rjeczalik/notify"

	cryptoutil "github.com/Mubelotix/tewta/crypto"
)

func loadPKCS1(data []byte) (*rsa.PrivateKey, error) {
	return x509.ParsePKCS1PrivateKey(data)
}

func savePKCS1(key *rsa.PrivateKey) []byte {
	return x509.MarshalPKCS1PrivateKey(key)
}

// tomlSettings maps TOML keys one-to-one onto exported Go struct field
// names and rejects any key with no matching field.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// Config gathers everything needed to run one node: its identity, where
// it listens, who it bootstraps from, and the cadence of its periodic
// maintenance tasks.
type Config struct {
	DataDir string

	ListenAddr     string
	BootstrapAddrs []string

	PingInterval    time.Duration
	PingTimeout     time.Duration
	RefreshInterval time.Duration

	CacheSizeHint int

	KeyBits int
}

// resolvePath joins path onto the configured data directory unless path is
// already absolute or the node is ephemeral (no DataDir configured).
func (c *Config) resolvePath(path string) string {
	if filepath.IsAbs(path) || c.DataDir == "" {
		return path
	}
	return filepath.Join(c.DataDir, path)
}

// NodeDBPath is the on-disk location of the persistent address book.
func (c *Config) NodeDBPath() string {
	if c.DataDir == "" {
		return ""
	}
	return c.resolvePath("nodes")
}

// nodeKeyPath is where the node's long-lived RSA identity is stored.
func (c *Config) nodeKeyPath() string {
	return c.resolvePath("node.key")
}

// keyBits returns the configured RSA modulus size, defaulting to the
// production width.
func (c *Config) keyBits() int {
	if c.KeyBits > 0 {
		return c.KeyBits
	}
	return cryptoutil.ProductionKeyBits
}

// LoadOrCreateIdentity reads the node's RSA identity from disk, generating
// and persisting a fresh one on first run. An ephemeral config (no
// DataDir) always generates a fresh key.
func (c *Config) LoadOrCreateIdentity() (*rsa.PrivateKey, error) {
	if c.DataDir == "" {
		return rsa.GenerateKey(rand.Reader, c.keyBits())
	}
	path := c.nodeKeyPath()
	if data, err := os.ReadFile(path); err == nil {
		key, err := loadPKCS1(data)
		if err != nil {
			return nil, fmt.Errorf("node: corrupt identity file %s: %w", path, err)
		}
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	key, err := rsa.GenerateKey(rand.Reader, c.keyBits())
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, savePKCS1(key), 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// SeedNodeDB copies a template node database file (e.g. one shipping a
// pre-populated address book for a private test network) into place if
// this node does not already have one.
func (c *Config) SeedNodeDB(template string) error {
	if c.DataDir == "" || template == "" {
		return nil
	}
	dst := c.NodeDBPath()
	if _, err := os.Stat(dst); err == nil {
		return nil
	}
	if err := os.MkdirAll(c.DataDir, 0700); err != nil {
		return err
	}
	return cp.CopyFile(dst, template)
}

// LoadConfig decodes a TOML configuration file into cfg.
func LoadConfig(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()
	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// SaveConfig encodes cfg as TOML into file.
func SaveConfig(file string, cfg *Config) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return tomlSettings.NewEncoder(f).Encode(cfg)
}

// WatchConfig watches file for writes and invokes onChange after each one,
// so that editing the bootstrap-seed list on disk can trigger a bucket
// refresh without a process restart. The returned stop function releases
// the watch.
func WatchConfig(file string, onChange func()) (stop func(), err error) {
	events := make(chan notify.EventInfo, 4)
	if err := notify.Watch(file, events, notify.Write); err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-events:
				onChange()
			case <-done:
				return
			}
		}
	}()
	return func() {
		notify.Stop(events)
		close(done)
	}, nil
}
