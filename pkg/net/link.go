/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package net

import (
	"fmt"

	"github.com/hyperledger-labs/mirsim/pkg/clock"
)

type LinkState int

const (
	LinkHealthy LinkState = iota
	LinkPartitioned
	LinkLossy
)

func (ls LinkState) String() string {
	switch ls {
	case LinkHealthy:
		return "healthy"
	case LinkPartitioned:
		return "partitioned"
	case LinkLossy:
		return "lossy"
	default:
		return fmt.Sprintf("LinkState(%d)", int(ls))
	}
}

// Link is the directed connection from one host to another.  Packets sent
// over a link are delivered in the order they were sent, unless a mangler
// reorders them.
type Link struct {
	From string
	To   string

	State LinkState

	// LossPercent is the share of packets dropped while the link is lossy.
	LossPercent int

	lastDelivery clock.Time
}

func (l *Link) String() string {
	if l.State == LinkLossy {
		return fmt.Sprintf("%s -> %s lossy %d%%", l.From, l.To, l.LossPercent)
	}
	return fmt.Sprintf("%s -> %s %s", l.From, l.To, l.State)
}

func (l *Link) heal() {
	l.State = LinkHealthy
	l.LossPercent = 0
}

func (l *Link) loopback() bool {
	return l.From == l.To
}

// nextDelivery keeps deliveries over the link in FIFO order.
func (l *Link) nextDelivery(at clock.Time) clock.Time {
	if at < l.lastDelivery {
		at = l.lastDelivery
	}
	l.lastDelivery = at
	return at
}
