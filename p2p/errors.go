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

import "fmt"

// ProtocolError covers malformed frames, unexpected packets, and bounds
// violations: locally recoverable for response packets, fatal to the
// stream for handshake packets.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("p2p: protocol error: %s", e.Reason) }

// HandshakeReason is a machine-readable handshake failure kind, also used
// as a Quit reason_code.
type HandshakeReason string

const (
	ReasonUnsupportedVersion HandshakeReason = "UnsupportedVersion"
	ReasonSamePeer           HandshakeReason = "SamePeer"
	ReasonAlreadyConnected   HandshakeReason = "AlreadyConnected"
	ReasonIdentityMismatch   HandshakeReason = "IdentityMismatch"
	ReasonInvalidNonceCopy   HandshakeReason = "InvalidNonceCopy"
	ReasonInvalidAesKeyLen   HandshakeReason = "InvalidAesKeyLenght"
	ReasonUnexpectedPacket   HandshakeReason = "UnexpectedPacket"
	ReasonPeerQuitted        HandshakeReason = "PeerQuitted"
	ReasonTimeout            HandshakeReason = "Timeout"
	ReasonQuitReceived       HandshakeReason = "QuitReceived"
	ReasonMissionAccomplished HandshakeReason = "MissionAccomplished"
	ReasonCryptoFailure      HandshakeReason = "CryptoFailure"
)

// HandshakeError is always fatal to the stream; ReportFault distinguishes
// "their fault" (malformed input) from benign causes such as a timeout.
type HandshakeError struct {
	Reason      HandshakeReason
	ReportFault bool
	Cause       error
}

func (e *HandshakeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("p2p: handshake failed (%s): %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("p2p: handshake failed (%s)", e.Reason)
}

func (e *HandshakeError) Unwrap() error { return e.Cause }

// TransportError covers I/O failures and timeouts; it terminates the
// affected stream.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return fmt.Sprintf("p2p: transport error: %v", e.Cause) }
func (e *TransportError) Unwrap() error { return e.Cause }

// LookupError covers a single provider's failure during a DHT lookup step
// (connect, handshake, or request-id mismatch); it is logged and the outer
// lookup continues with other providers.
type LookupError struct {
	Provider string
	Cause    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("p2p: lookup error against %s: %v", e.Provider, e.Cause)
}
func (e *LookupError) Unwrap() error { return e.Cause }

// ErrAlreadyConnected is returned by Pool.Insert when the PeerID is already
// present.
var ErrAlreadyConnected = &HandshakeError{Reason: ReasonAlreadyConnected, ReportFault: false}

// ErrNotConnected is returned by Pool.Send for an absent peer.
type ErrNotConnected struct{ Addr string }

func (e *ErrNotConnected) Error() string { return fmt.Sprintf("p2p: not connected: %s", e.Addr) }
