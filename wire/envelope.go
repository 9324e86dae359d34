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
	"fmt"

	proto "github.com/golang/protobuf/proto"
)

// Kind names a packet variant on the wire. The Envelope carries it
// alongside the marshaled payload so a reader can pick the right decoder
// without the codec itself interpreting payload bytes.
type Kind string

const (
	KindProtocolVersion   Kind = "ProtocolVersion"
	KindInitRsa           Kind = "InitRsa"
	KindInitAes           Kind = "InitAes"
	KindEhlo              Kind = "Ehlo"
	KindDiscoverPeers     Kind = "DiscoverPeers"
	KindDiscoverPeersResp Kind = "DiscoverPeersResp"
	KindFindDhtValue      Kind = "FindDhtValue"
	KindFindDhtValueResp  Kind = "FindDhtValueResp"
	KindFindPeer          Kind = "FindPeer"
	KindFindPeerResp      Kind = "FindPeerResp"
	KindStoreDhtValue     Kind = "StoreDhtValue"
	KindPing              Kind = "Ping"
	KindPong              Kind = "Pong"
	KindQuit              Kind = "Quit"
)

// Envelope is the outer message every frame carries: a schema tag plus the
// marshaled bytes of the inner packet variant.
type Envelope struct {
	Kind                 string   `protobuf:"bytes,1,opt,name=kind,proto3" json:"kind,omitempty"`
	Payload              []byte   `protobuf:"bytes,2,opt,name=payload,proto3" json:"payload,omitempty"`
	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *Envelope) Reset()         { *m = Envelope{} }
func (m *Envelope) String() string { return proto.CompactTextString(m) }
func (*Envelope) ProtoMessage()    {}

// Packet is any of the protobuf message types listed in Kind.
type Packet = proto.Message

// newByKind allocates the zero value of the message type named by k.
func newByKind(k Kind) (Packet, error) {
	switch k {
	case KindProtocolVersion:
		return &ProtocolVersion{}, nil
	case KindInitRsa:
		return &InitRsa{}, nil
	case KindInitAes:
		return &InitAes{}, nil
	case KindEhlo:
		return &Ehlo{}, nil
	case KindDiscoverPeers:
		return &DiscoverPeers{}, nil
	case KindDiscoverPeersResp:
		return &DiscoverPeersResp{}, nil
	case KindFindDhtValue:
		return &FindDhtValue{}, nil
	case KindFindDhtValueResp:
		return &FindDhtValueResp{}, nil
	case KindFindPeer:
		return &FindPeer{}, nil
	case KindFindPeerResp:
		return &FindPeerResp{}, nil
	case KindStoreDhtValue:
		return &StoreDhtValue{}, nil
	case KindPing:
		return &Ping{}, nil
	case KindPong:
		return &Pong{}, nil
	case KindQuit:
		return &Quit{}, nil
	default:
		return nil, fmt.Errorf("wire: unknown packet kind %q", k)
	}
}

// KindOf returns the schema tag of p, the mapping the dispatcher uses to
// decide which event-bus variant to publish a packet to.
func KindOf(p Packet) (Kind, error) {
	return kindOf(p)
}

// kindOf returns the schema tag of p.
func kindOf(p Packet) (Kind, error) {
	switch p.(type) {
	case *ProtocolVersion:
		return KindProtocolVersion, nil
	case *InitRsa:
		return KindInitRsa, nil
	case *InitAes:
		return KindInitAes, nil
	case *Ehlo:
		return KindEhlo, nil
	case *DiscoverPeers:
		return KindDiscoverPeers, nil
	case *DiscoverPeersResp:
		return KindDiscoverPeersResp, nil
	case *FindDhtValue:
		return KindFindDhtValue, nil
	case *FindDhtValueResp:
		return KindFindDhtValueResp, nil
	case *FindPeer:
		return KindFindPeer, nil
	case *FindPeerResp:
		return KindFindPeerResp, nil
	case *StoreDhtValue:
		return KindStoreDhtValue, nil
	case *Ping:
		return KindPing, nil
	case *Pong:
		return KindPong, nil
	case *Quit:
		return KindQuit, nil
	default:
		return "", fmt.Errorf("wire: packet type %T has no registered kind", p)
	}
}

// Wrap marshals p and tags it with its Kind inside an Envelope.
func Wrap(p Packet) (*Envelope, error) {
	k, err := kindOf(p)
	if err != nil {
		return nil, err
	}
	payload, err := proto.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("wire: failed to marshal %s: %w", k, err)
	}
	return &Envelope{Kind: string(k), Payload: payload}, nil
}

// Unwrap allocates the message type named by env.Kind and unmarshals
// env.Payload into it.
func Unwrap(env *Envelope) (Packet, error) {
	p, err := newByKind(Kind(env.Kind))
	if err != nil {
		return nil, err
	}
	if err := proto.Unmarshal(env.Payload, p); err != nil {
		return nil, fmt.Errorf("wire: failed to unmarshal %s: %w", env.Kind, err)
	}
	return p, nil
}
