package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

const defaultDialTimeout = 300 * time.Millisecond

// ErrNoResident is returned when no resident answers in the port range.
var ErrNoResident = errors.New("no running instance found")

// DetectResident scans r and returns the port of the first resident that
// answers PING.
func DetectResident(ctx context.Context, r PortRange) (int, bool) {
	r = r.Normalize()
	timeout := dialTimeout(ctx)
	for port := r.Start; port <= r.End; port++ {
		if ctx.Err() != nil {
			return 0, false
		}
		reply, err := exchange(portAddr(port), pingRequest, timeout)
		if err == nil && reply == pongResponse {
			return port, true
		}
	}
	return 0, false
}

// RequestCapture asks the resident in r to start a capture cycle. It reports
// false when the resident is busy and drops the request.
func RequestCapture(ctx context.Context, r PortRange) (bool, error) {
	port, ok := DetectResident(ctx, r)
	if !ok {
		return false, ErrNoResident
	}
	reply, err := exchange(portAddr(port), captureRequest, dialTimeout(ctx))
	if err != nil {
		return false, err
	}
	switch reply {
	case acceptedReply:
		return true, nil
	case busyReply:
		return false, nil
	default:
		return false, errors.New(strings.TrimSpace(reply))
	}
}

func exchange(addr, request string, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))
	if _, err := conn.Write([]byte(request)); err != nil {
		return "", err
	}
	return bufio.NewReader(conn).ReadString('\n')
}

func portAddr(port int) string {
	return net.JoinHostPort(residentHost, strconv.Itoa(port))
}

func dialTimeout(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 && d < defaultDialTimeout {
			return d
		}
	}
	return defaultDialTimeout
}
