package singleinstance

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

type Server struct {
	lis       net.Listener
	port      int
	onCapture func() bool
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Listen binds the first port of r. A bind failure usually means another
// resident already owns it. onCapture reports whether the request was accepted.
func Listen(ctx context.Context, r PortRange, onCapture func() bool) (*Server, error) {
	r = r.Normalize()
	addr := fmt.Sprintf("%s:%d", residentHost, r.Start)
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		log.Printf("singleinstance: failed to bind %s: %v", addr, err)
		return nil, err
	}
	s := &Server{lis: lis, port: lis.Addr().(*net.TCPAddr).Port, onCapture: onCapture}
	log.Printf("singleinstance: listening on %s", lis.Addr())

	s.wg.Add(1)
	go s.acceptLoop()
	go func() {
		<-ctx.Done()
		_ = s.Close()
	}()
	return s, nil
}

func (s *Server) Port() int { return s.port }

func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.lis.Close()
		s.wg.Wait()
	})
	return err
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		c, err := s.lis.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(c)
		}()
	}
}

func (s *Server) handle(c net.Conn) {
	defer c.Close()
	remote := c.RemoteAddr().String()
	_ = c.SetDeadline(time.Now().Add(3 * time.Second))

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		return
	}

	var reply string
	switch line {
	case pingRequest:
		reply = pongResponse
	case captureRequest:
		accepted := s.onCapture != nil && s.onCapture()
		log.Printf("singleinstance: capture request from %s accepted=%v", remote, accepted)
		reply = busyReply
		if accepted {
			reply = acceptedReply
		}
	default:
		reply = unknownReply
	}
	_, _ = c.Write([]byte(reply))
}
