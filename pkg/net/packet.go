/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package net

import (
	"fmt"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
)

// Address identifies an endpoint of a host.
type Address struct {
	Host string
	Port uint16
}

func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type PacketType int

const (
	// PacketData carries payload for the endpoint bound to the destination port.
	PacketData PacketType = iota

	// PacketReset informs the destination that its peer has no endpoint
	// bound to the port it sent to, usually because the peer crashed.
	PacketReset
)

func (pt PacketType) String() string {
	switch pt {
	case PacketData:
		return "Data"
	case PacketReset:
		return "Reset"
	default:
		return fmt.Sprintf("PacketType(%d)", int(pt))
	}
}

type Packet struct {
	ID       uint64
	Type     PacketType
	Source   Address
	Dest     Address
	Payload  []byte
	SendTime clock.Time
}

func (p *Packet) String() string {
	return fmt.Sprintf("#%d %s %s -> %s (%d bytes)", p.ID, p.Type, p.Source, p.Dest, len(p.Payload))
}

func (p *Packet) clone() *Packet {
	c := *p
	c.Payload = append([]byte(nil), p.Payload...)
	return &c
}
