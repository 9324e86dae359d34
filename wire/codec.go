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

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	proto "github.com/golang/protobuf/proto"

	"github.com/Mubelotix/tewta/log"
)

var logger = log.NewModuleLogger(log.P2P)

// MaxPacketSize is the largest frame this codec accepts; a declared length
// at or above it is rejected before the payload is read.
const MaxPacketSize = 1_000_000

// ErrPacketTooLarge is returned when a frame's declared length is >=
// MaxPacketSize.
var ErrPacketTooLarge = errors.New("wire: packet too large")

// WritePacket frames p as an Envelope and writes it to w: a 4-byte
// big-endian length followed by that many payload bytes.
func WritePacket(w io.Writer, p Packet) error {
	env, err := Wrap(p)
	if err != nil {
		return err
	}
	return writeEnvelope(w, env)
}

func writeEnvelope(w io.Writer, env *Envelope) error {
	payload, err := proto.Marshal(env)
	if err != nil {
		return fmt.Errorf("wire: failed to marshal envelope: %w", err)
	}
	if len(payload) >= MaxPacketSize {
		return ErrPacketTooLarge
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: failed to write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: failed to write frame payload: %w", err)
	}
	return nil
}

// ReadPacket reads one frame from r and decodes it into its concrete
// packet type. It fails with ErrPacketTooLarge without reading the payload
// when the declared length is at or above MaxPacketSize; any other I/O
// failure, including EOF mid-frame, is a fatal stream error.
func ReadPacket(r io.Reader) (Packet, error) {
	env, err := ReadEnvelope(r)
	if err != nil {
		return nil, err
	}
	return Unwrap(env)
}

// ReadEnvelope reads and decodes one frame's Envelope without interpreting
// its payload. Reader tasks use this directly so that a malformed inner
// packet (payload decode failure) can be logged and skipped without
// tearing down the stream, while a frame-level failure (I/O error,
// oversized length) remains fatal to the stream.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("wire: failed to read frame length: %w", err)
	}
	l := binary.BigEndian.Uint32(lenBuf[:])
	if l >= MaxPacketSize {
		logger.Error("rejecting oversized frame", "declared_length", l)
		return nil, ErrPacketTooLarge
	}
	payload := make([]byte, l)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: failed to read frame payload: %w", err)
	}
	env := &Envelope{}
	if err := proto.Unmarshal(payload, env); err != nil {
		return nil, fmt.Errorf("wire: failed to unmarshal envelope: %w", err)
	}
	return env, nil
}
