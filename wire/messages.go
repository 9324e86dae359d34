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

// Package wire defines the packet schema exchanged between nodes and the
// length-prefixed codec that frames it on the stream. Every packet variant
// is a protobuf message so the codec itself never needs to know the shape
// of a payload, only its declared length.
package wire

import proto "github.com/golang/protobuf/proto"

// Version is a (major, minor, patch) protocol version tuple.
type Version struct {
	Major                uint32   `protobuf:"varint,1,opt,name=major,proto3" json:"major,omitempty"`
	Minor                uint32   `protobuf:"varint,2,opt,name=minor,proto3" json:"minor,omitempty"`
	Patch                uint32   `protobuf:"varint,3,opt,name=patch,proto3" json:"patch,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *Version) Reset()         { *m = Version{} }
func (m *Version) String() string { return proto.CompactTextString(m) }
func (*Version) ProtoMessage()    {}

// ProtocolVersion is step 1 of the handshake: the sender's canonical
// protocol tag and the list of versions it accepts from a peer.
type ProtocolVersion struct {
	Protocol             string     `protobuf:"bytes,1,opt,name=protocol,proto3" json:"protocol,omitempty"`
	SupportedVersions    []*Version `protobuf:"bytes,2,rep,name=supported_versions,json=supportedVersions,proto3" json:"supported_versions,omitempty"`
	XXX_NoUnkeyedLiteral struct{}   `json:"-"`
	XXX_unrecognized     []byte     `json:"-"`
	XXX_sizecache        int32      `json:"-"`
}

func (m *ProtocolVersion) Reset()         { *m = ProtocolVersion{} }
func (m *ProtocolVersion) String() string { return proto.CompactTextString(m) }
func (*ProtocolVersion) ProtoMessage()    {}

// InitRsa is step 2 of the handshake, sent unencrypted: the sender's RSA
// public key and a fresh nonce the peer must echo back in InitAes.
type InitRsa struct {
	ExponentLe           []byte   `protobuf:"bytes,1,opt,name=exponent_le,json=exponentLe,proto3" json:"exponent_le,omitempty"`
	ModulusLe            []byte   `protobuf:"bytes,2,opt,name=modulus_le,json=modulusLe,proto3" json:"modulus_le,omitempty"`
	Nonce                []byte   `protobuf:"bytes,3,opt,name=nonce,proto3" json:"nonce,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *InitRsa) Reset()         { *m = InitRsa{} }
func (m *InitRsa) String() string { return proto.CompactTextString(m) }
func (*InitRsa) ProtoMessage()    {}

// InitAes is step 4 of the handshake: an RSA-OAEP ciphertext wrapping the
// sender's 16-byte AES session-key share and the peer's echoed nonce.
type InitAes struct {
	Ciphertext           []byte   `protobuf:"bytes,1,opt,name=ciphertext,proto3" json:"ciphertext,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *InitAes) Reset()         { *m = InitAes{} }
func (m *InitAes) String() string { return proto.CompactTextString(m) }
func (*InitAes) ProtoMessage()    {}

// Ehlo is step 6 of the handshake: the address at which the sender accepts
// incoming dials.
type Ehlo struct {
	Addr                 string   `protobuf:"bytes,1,opt,name=addr,proto3" json:"addr,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *Ehlo) Reset()         { *m = Ehlo{} }
func (m *Ehlo) String() string { return proto.CompactTextString(m) }
func (*Ehlo) ProtoMessage()    {}

// PeerAddr is a (PeerID, dial address) pair, the element type of every
// peer-list response in this schema.
type PeerAddr struct {
	PeerId               []byte   `protobuf:"bytes,1,opt,name=peer_id,json=peerId,proto3" json:"peer_id,omitempty"`
	Addr                 string   `protobuf:"bytes,2,opt,name=addr,proto3" json:"addr,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *PeerAddr) Reset()         { *m = PeerAddr{} }
func (m *PeerAddr) String() string { return proto.CompactTextString(m) }
func (*PeerAddr) ProtoMessage()    {}

// SignedValue is the wire form of a DHT entry: opaque data plus the
// author's public-key material and an RSA-PSS signature.
type SignedValue struct {
	Data                 []byte   `protobuf:"bytes,1,opt,name=data,proto3" json:"data,omitempty"`
	PubExpLe             []byte   `protobuf:"bytes,2,opt,name=pub_exp_le,json=pubExpLe,proto3" json:"pub_exp_le,omitempty"`
	PubModLe             []byte   `protobuf:"bytes,3,opt,name=pub_mod_le,json=pubModLe,proto3" json:"pub_mod_le,omitempty"`
	Signature            []byte   `protobuf:"bytes,4,opt,name=signature,proto3" json:"signature,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *SignedValue) Reset()         { *m = SignedValue{} }
func (m *SignedValue) String() string { return proto.CompactTextString(m) }
func (*SignedValue) ProtoMessage()    {}

// DiscoverPeers asks a provider for peers matching (target, mask), the
// query that fills an under-populated bucket.
type DiscoverPeers struct {
	RequestId            uint32   `protobuf:"varint,1,opt,name=request_id,json=requestId,proto3" json:"request_id,omitempty"`
	Target               []byte   `protobuf:"bytes,2,opt,name=target,proto3" json:"target,omitempty"`
	Mask                 []byte   `protobuf:"bytes,3,opt,name=mask,proto3" json:"mask,omitempty"`
	Limit                uint32   `protobuf:"varint,4,opt,name=limit,proto3" json:"limit,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *DiscoverPeers) Reset()         { *m = DiscoverPeers{} }
func (m *DiscoverPeers) String() string { return proto.CompactTextString(m) }
func (*DiscoverPeers) ProtoMessage()    {}

// DiscoverPeersResp answers a DiscoverPeers query.
type DiscoverPeersResp struct {
	RequestId            uint32      `protobuf:"varint,1,opt,name=request_id,json=requestId,proto3" json:"request_id,omitempty"`
	Peers                []*PeerAddr `protobuf:"bytes,2,rep,name=peers,proto3" json:"peers,omitempty"`
	XXX_NoUnkeyedLiteral struct{}    `json:"-"`
	XXX_unrecognized     []byte      `json:"-"`
	XXX_sizecache        int32       `json:"-"`
}

func (m *DiscoverPeersResp) Reset()         { *m = DiscoverPeersResp{} }
func (m *DiscoverPeersResp) String() string { return proto.CompactTextString(m) }
func (*DiscoverPeersResp) ProtoMessage()    {}

// FindDhtValue asks a provider to resolve key, either locally or by
// suggesting closer peers.
type FindDhtValue struct {
	RequestId            uint32   `protobuf:"varint,1,opt,name=request_id,json=requestId,proto3" json:"request_id,omitempty"`
	Key                  []byte   `protobuf:"bytes,2,opt,name=key,proto3" json:"key,omitempty"`
	LimitValues          uint32   `protobuf:"varint,3,opt,name=limit_values,json=limitValues,proto3" json:"limit_values,omitempty"`
	LimitPeers           uint32   `protobuf:"varint,4,opt,name=limit_peers,json=limitPeers,proto3" json:"limit_peers,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *FindDhtValue) Reset()         { *m = FindDhtValue{} }
func (m *FindDhtValue) String() string { return proto.CompactTextString(m) }
func (*FindDhtValue) ProtoMessage()    {}

// FindDhtValueResp answers a FindDhtValue query. Found distinguishes the
// oneof result: Values is populated when Found is true, Peers otherwise.
type FindDhtValueResp struct {
	RequestId            uint32         `protobuf:"varint,1,opt,name=request_id,json=requestId,proto3" json:"request_id,omitempty"`
	Found                bool           `protobuf:"varint,2,opt,name=found,proto3" json:"found,omitempty"`
	Values               []*SignedValue `protobuf:"bytes,3,rep,name=values,proto3" json:"values,omitempty"`
	Peers                []*PeerAddr    `protobuf:"bytes,4,rep,name=peers,proto3" json:"peers,omitempty"`
	XXX_NoUnkeyedLiteral struct{}       `json:"-"`
	XXX_unrecognized     []byte         `json:"-"`
	XXX_sizecache        int32          `json:"-"`
}

func (m *FindDhtValueResp) Reset()         { *m = FindDhtValueResp{} }
func (m *FindDhtValueResp) String() string { return proto.CompactTextString(m) }
func (*FindDhtValueResp) ProtoMessage()    {}

// FindPeer asks a provider for the peers (by address) closest to target.
type FindPeer struct {
	RequestId            uint32   `protobuf:"varint,1,opt,name=request_id,json=requestId,proto3" json:"request_id,omitempty"`
	Target               []byte   `protobuf:"bytes,2,opt,name=target,proto3" json:"target,omitempty"`
	Limit                uint32   `protobuf:"varint,3,opt,name=limit,proto3" json:"limit,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *FindPeer) Reset()         { *m = FindPeer{} }
func (m *FindPeer) String() string { return proto.CompactTextString(m) }
func (*FindPeer) ProtoMessage()    {}

// FindPeerResp answers a FindPeer query.
type FindPeerResp struct {
	RequestId            uint32      `protobuf:"varint,1,opt,name=request_id,json=requestId,proto3" json:"request_id,omitempty"`
	Peers                []*PeerAddr `protobuf:"bytes,2,rep,name=peers,proto3" json:"peers,omitempty"`
	XXX_NoUnkeyedLiteral struct{}    `json:"-"`
	XXX_unrecognized     []byte      `json:"-"`
	XXX_sizecache        int32       `json:"-"`
}

func (m *FindPeerResp) Reset()         { *m = FindPeerResp{} }
func (m *FindPeerResp) String() string { return proto.CompactTextString(m) }
func (*FindPeerResp) ProtoMessage()    {}

// StoreDhtValue asks the receiver to accept and retain value under key.
type StoreDhtValue struct {
	Key                  []byte       `protobuf:"bytes,1,opt,name=key,proto3" json:"key,omitempty"`
	Value                *SignedValue `protobuf:"bytes,2,opt,name=value,proto3" json:"value,omitempty"`
	XXX_NoUnkeyedLiteral struct{}     `json:"-"`
	XXX_unrecognized     []byte       `json:"-"`
	XXX_sizecache        int32        `json:"-"`
}

func (m *StoreDhtValue) Reset()         { *m = StoreDhtValue{} }
func (m *StoreDhtValue) String() string { return proto.CompactTextString(m) }
func (*StoreDhtValue) ProtoMessage()    {}

// Ping is answered by an equal-PingId Pong.
type Ping struct {
	PingId               uint32   `protobuf:"varint,1,opt,name=ping_id,json=pingId,proto3" json:"ping_id,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *Ping) Reset()         { *m = Ping{} }
func (m *Ping) String() string { return proto.CompactTextString(m) }
func (*Ping) ProtoMessage()    {}

// Pong answers a Ping, echoing its PingId.
type Pong struct {
	PingId               uint32   `protobuf:"varint,1,opt,name=ping_id,json=pingId,proto3" json:"ping_id,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *Pong) Reset()         { *m = Pong{} }
func (m *Pong) String() string { return proto.CompactTextString(m) }
func (*Pong) ProtoMessage()    {}

// Quit closes a stream with a machine-readable reason. Message is an
// optional human-readable elaboration; empty means absent.
type Quit struct {
	ReasonCode           string   `protobuf:"bytes,1,opt,name=reason_code,json=reasonCode,proto3" json:"reason_code,omitempty"`
	Message              string   `protobuf:"bytes,2,opt,name=message,proto3" json:"message,omitempty"`
	ReportFault          bool     `protobuf:"varint,3,opt,name=report_fault,json=reportFault,proto3" json:"report_fault,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *Quit) Reset()         { *m = Quit{} }
func (m *Quit) String() string { return proto.CompactTextString(m) }
func (*Quit) ProtoMessage()    {}
