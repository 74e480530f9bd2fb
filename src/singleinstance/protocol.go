// Package singleinstance keeps one resident process per user session and lets
// later invocations hand it a capture request over loopback TCP.
package singleinstance

import "fmt"

const (
	residentHost = "127.0.0.1"

	pingRequest    = "PING\n"
	pongResponse   = "PONG\n"
	captureRequest = "CAPTURE\n"
	acceptedReply  = "ACCEPTED\n"
	busyReply      = "BUSY\n"
	unknownReply   = "ERROR unknown request\n"
)

// PortRange is an inclusive loopback port range. The resident binds Start;
// clients scan the whole range.
type PortRange struct {
	Start int
	End   int
}

// Normalize clamps the range to unprivileged ports and orders it.
func (r PortRange) Normalize() PortRange {
	if r.End < r.Start {
		r.Start, r.End = r.End, r.Start
	}
	r.Start = clampPort(r.Start)
	r.End = clampPort(r.End)
	return r
}

func clampPort(p int) int {
	switch {
	case p < 1024:
		return 1024
	case p > 65535:
		return 65535
	}
	return p
}

func (r PortRange) String() string {
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}
