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
	"crypto/rsa"
	"fmt"
	"net"
	"time"

	"github.com/Mubelotix/tewta/common"
	cryptoutil "github.com/Mubelotix/tewta/crypto"
	"github.com/Mubelotix/tewta/wire"
)

// ProtocolTag is the protocol name every ProtocolVersion packet advertises.
const ProtocolTag = "p2pnet"

// HandshakeTimeout bounds the entire six-packet dialog.
const HandshakeTimeout = 40 * time.Second

// CurrentVersion is this build's canonical protocol version.
var CurrentVersion = wire.Version{Major: 0, Minor: 0, Patch: 1}

// HandshakeResult is everything a successful handshake produces, ready to
// be handed to Pool.Insert. Conn is conn wrapped in AES-256-GCM sealing
// under SessionKey; every packet exchanged after the handshake must go
// through Conn, never the raw conn passed in, or it travels in the clear.
type HandshakeResult struct {
	PeerID     common.PeerID
	Addr       string
	SessionKey [32]byte
	Conn       net.Conn
}

// sendAsync writes pkt on a separate goroutine and returns the error on a
// channel, so that a step's write and read can proceed concurrently. This
// is required for synchronous, unbuffered transports (net.Pipe in tests);
// a lockstep write-then-read on both ends of such a transport deadlocks.
func sendAsync(conn net.Conn, pkt wire.Packet) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- wire.WritePacket(conn, pkt) }()
	return errCh
}

// quitWriteTimeout bounds bestEffortQuit's write, so a peer that is not
// reading (on a synchronous transport, for instance one blocked writing its
// own Quit) cannot stall the side that is giving up.
const quitWriteTimeout = time.Second

func bestEffortQuit(conn net.Conn, reason HandshakeReason, fault bool) {
	_ = conn.SetWriteDeadline(time.Now().Add(quitWriteTimeout))
	_ = wire.WritePacket(conn, &wire.Quit{ReasonCode: string(reason), ReportFault: fault})
}

// Handshake runs the strict six-packet dialog described in the component
// design over conn, in either dial or accept role (the protocol is
// symmetric). localAddr is echoed to the peer as this side's dial address.
// If expectedPeerID is non-nil, the derived peer identity must match it.
func Handshake(ctx context.Context, conn net.Conn, selfID common.PeerID, localKey *rsa.PrivateKey, localAddr string, pool *Pool, expectedPeerID *common.PeerID) (*HandshakeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	done := make(chan struct{})
	var result *HandshakeResult
	var hsErr error
	go func() {
		defer close(done)
		result, hsErr = doHandshake(conn, selfID, localKey, localAddr, pool, expectedPeerID)
	}()

	select {
	case <-done:
		return result, hsErr
	case <-ctx.Done():
		bestEffortQuit(conn, ReasonTimeout, false)
		return nil, &HandshakeError{Reason: ReasonTimeout, ReportFault: false, Cause: ctx.Err()}
	}
}

func doHandshake(conn net.Conn, selfID common.PeerID, localKey *rsa.PrivateKey, localAddr string, pool *Pool, expectedPeerID *common.PeerID) (*HandshakeResult, error) {
	// Step 1: ProtocolVersion.
	localVersions := []*wire.Version{{Major: CurrentVersion.Major, Minor: CurrentVersion.Minor, Patch: CurrentVersion.Patch}}
	errCh := sendAsync(conn, &wire.ProtocolVersion{Protocol: ProtocolTag, SupportedVersions: localVersions})
	peerVersionPkt, err := wire.ReadPacket(conn)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	if err := <-errCh; err != nil {
		return nil, &TransportError{Cause: err}
	}
	peerVersion, ok := peerVersionPkt.(*wire.ProtocolVersion)
	if !ok {
		if err := checkQuit(peerVersionPkt); err != nil {
			return nil, err
		}
		bestEffortQuit(conn, ReasonUnexpectedPacket, true)
		return nil, &HandshakeError{Reason: ReasonUnexpectedPacket, ReportFault: true}
	}
	if !versionSupported(peerVersion.SupportedVersions, CurrentVersion) {
		bestEffortQuit(conn, ReasonUnsupportedVersion, false)
		return nil, &HandshakeError{Reason: ReasonUnsupportedVersion, ReportFault: false}
	}

	// Step 2: InitRsa, unencrypted.
	localNonce, err := cryptoutil.GenerateNonce()
	if err != nil {
		return nil, &HandshakeError{Reason: ReasonCryptoFailure, ReportFault: false, Cause: err}
	}
	expLE, modLE := cryptoutil.PublicKeyLE(&localKey.PublicKey)
	errCh = sendAsync(conn, &wire.InitRsa{ExponentLe: expLE, ModulusLe: modLE, Nonce: localNonce})
	peerInitRsaPkt, err := wire.ReadPacket(conn)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	if err := <-errCh; err != nil {
		return nil, &TransportError{Cause: err}
	}
	peerInitRsa, ok := peerInitRsaPkt.(*wire.InitRsa)
	if !ok {
		if err := checkQuit(peerInitRsaPkt); err != nil {
			return nil, err
		}
		bestEffortQuit(conn, ReasonUnexpectedPacket, true)
		return nil, &HandshakeError{Reason: ReasonUnexpectedPacket, ReportFault: true}
	}
	peerPub := cryptoutil.PublicKeyFromLE(peerInitRsa.ExponentLe, peerInitRsa.ModulusLe)

	// Step 3: derive and validate the peer's identity.
	peerID := cryptoutil.PeerIDFromLE(peerInitRsa.ExponentLe, peerInitRsa.ModulusLe)
	if peerID.Equal(selfID) {
		bestEffortQuit(conn, ReasonSamePeer, false)
		return nil, &HandshakeError{Reason: ReasonSamePeer, ReportFault: false}
	}
	if pool.Contains(peerID) {
		bestEffortQuit(conn, ReasonAlreadyConnected, false)
		return nil, &HandshakeError{Reason: ReasonAlreadyConnected, ReportFault: false}
	}
	if expectedPeerID != nil && !expectedPeerID.Equal(peerID) {
		bestEffortQuit(conn, ReasonIdentityMismatch, true)
		return nil, &HandshakeError{Reason: ReasonIdentityMismatch, ReportFault: true}
	}

	// Step 4: InitAes, RSA-OAEP under the peer's key.
	localShare, err := cryptoutil.GenerateAESShare()
	if err != nil {
		return nil, &HandshakeError{Reason: ReasonCryptoFailure, ReportFault: false, Cause: err}
	}
	ciphertext, err := cryptoutil.WrapAESShare(peerPub, localShare, peerInitRsa.Nonce)
	if err != nil {
		return nil, &HandshakeError{Reason: ReasonCryptoFailure, ReportFault: false, Cause: err}
	}
	errCh = sendAsync(conn, &wire.InitAes{Ciphertext: ciphertext})
	peerInitAesPkt, err := wire.ReadPacket(conn)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	if err := <-errCh; err != nil {
		return nil, &TransportError{Cause: err}
	}
	peerInitAes, ok := peerInitAesPkt.(*wire.InitAes)
	if !ok {
		if err := checkQuit(peerInitAesPkt); err != nil {
			return nil, err
		}
		bestEffortQuit(conn, ReasonUnexpectedPacket, true)
		return nil, &HandshakeError{Reason: ReasonUnexpectedPacket, ReportFault: true}
	}
	peerShare, echoedNonce, err := cryptoutil.UnwrapAESShare(localKey, peerInitAes.Ciphertext)
	if err != nil {
		bestEffortQuit(conn, ReasonCryptoFailure, true)
		return nil, &HandshakeError{Reason: ReasonCryptoFailure, ReportFault: true, Cause: err}
	}
	if len(peerShare) != cryptoutil.AESShareLength {
		bestEffortQuit(conn, ReasonInvalidAesKeyLen, true)
		return nil, &HandshakeError{Reason: ReasonInvalidAesKeyLen, ReportFault: true}
	}
	if string(echoedNonce) != string(localNonce) {
		bestEffortQuit(conn, ReasonInvalidNonceCopy, true)
		return nil, &HandshakeError{Reason: ReasonInvalidNonceCopy, ReportFault: true}
	}

	// Step 5: assemble the shared session key.
	sessionKey, err := cryptoutil.AssembleSessionKey(selfID, peerID, localShare, peerShare)
	if err != nil {
		return nil, &HandshakeError{Reason: ReasonCryptoFailure, ReportFault: false, Cause: err}
	}

	// Step 6: Ehlo, echoing dial addresses.
	errCh = sendAsync(conn, &wire.Ehlo{Addr: localAddr})
	peerEhloPkt, err := wire.ReadPacket(conn)
	if err != nil {
		return nil, &TransportError{Cause: err}
	}
	if err := <-errCh; err != nil {
		return nil, &TransportError{Cause: err}
	}
	peerEhlo, ok := peerEhloPkt.(*wire.Ehlo)
	if !ok {
		if err := checkQuit(peerEhloPkt); err != nil {
			return nil, err
		}
		bestEffortQuit(conn, ReasonUnexpectedPacket, true)
		return nil, &HandshakeError{Reason: ReasonUnexpectedPacket, ReportFault: true}
	}

	secureConn, err := cryptoutil.NewSecureConn(conn, sessionKey, selfID, peerID)
	if err != nil {
		bestEffortQuit(conn, ReasonCryptoFailure, false)
		return nil, &HandshakeError{Reason: ReasonCryptoFailure, ReportFault: false, Cause: err}
	}

	return &HandshakeResult{PeerID: peerID, Addr: peerEhlo.Addr, SessionKey: sessionKey, Conn: secureConn}, nil
}

func versionSupported(list []*wire.Version, v wire.Version) bool {
	for _, candidate := range list {
		if candidate.Major == v.Major && candidate.Minor == v.Minor && candidate.Patch == v.Patch {
			return true
		}
	}
	return false
}

// checkQuit inspects a packet that arrived where a handshake step expected
// something else; a Quit there is reported as PeerQuitted rather than
// UnexpectedPacket.
func checkQuit(pkt wire.Packet) error {
	if q, ok := pkt.(*wire.Quit); ok {
		return &HandshakeError{Reason: ReasonPeerQuitted, ReportFault: q.ReportFault, Cause: fmt.Errorf("peer quit: %s", q.ReasonCode)}
	}
	return nil
}
