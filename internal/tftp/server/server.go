// Copyright (c) 2025 Stefano Scafiti
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package server implements the dispatcher and per-peer sub-servers (§4.5):
// the main listening socket demuxes datagrams by (client-ip, client-port)
// to an ephemeral sub-server running the transfer state machine, and
// periodically sweeps sub-servers whose retry budget has been exhausted.
package server

import (
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/ostafen/digler-tftpd/internal/boot"
	"github.com/ostafen/digler-tftpd/internal/logger"
	"github.com/ostafen/digler-tftpd/internal/netascii"
	"github.com/ostafen/digler-tftpd/internal/tftp/transfer"
	"github.com/ostafen/digler-tftpd/internal/tftp/wire"
)

// sweepInterval is how often the dispatcher checks every active
// sub-server's deadline between socket reads.
const sweepInterval = 250 * time.Millisecond

// Server owns the main UDP socket and the live set of sub-servers, keyed
// by the client's peer address string.
type Server struct {
	conn     *net.UDPConn
	resolver boot.Resolver
	log      *logger.Logger

	mu   sync.Mutex
	subs map[string]*subServer

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New binds a UDP socket at addr and constructs a Server resolving RRQs
// against resolver.
func New(addr string, resolver boot.Resolver, log *logger.Logger) (*Server, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %q: %w", addr, err)
	}
	return NewFromConn(conn, resolver, log), nil
}

// NewFromConn constructs a Server around an already-bound UDP socket, for
// systemd socket activation (`LISTEN_FDS`) where the listener fd is
// inherited rather than opened here.
func NewFromConn(conn *net.UDPConn, resolver boot.Resolver, log *logger.Logger) *Server {
	return &Server{
		conn:     conn,
		resolver: resolver,
		log:      log,
		subs:     make(map[string]*subServer),
		shutdown: make(chan struct{}),
	}
}

// LocalAddr returns the main socket's bound address.
func (s *Server) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Serve runs the dispatcher loop until Shutdown is called. It reads
// datagrams off the main socket, routing each to the peer's existing
// sub-server or handling it as a NEW request (§4.4), and periodically
// sweeps expired sub-servers.
func (s *Server) Serve() error {
	go s.sweepLoop()

	buf := make([]byte, wire.MaxBlksize+64)
	for {
		s.conn.SetReadDeadline(time.Now().Add(sweepInterval))
		n, peer, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			return fmt.Errorf("server: read: %w", err)
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		s.dispatch(pkt, peer)
	}
}

func (s *Server) dispatch(pkt []byte, peer *net.UDPAddr) {
	key := peer.String()

	s.mu.Lock()
	sub, ok := s.subs[key]
	s.mu.Unlock()

	if ok {
		sub.handle(pkt)
		return
	}

	s.handleNew(pkt, peer)
}

// handleNew processes a datagram from a peer with no existing sub-server:
// it must decode as an RRQ, or the server replies with ERROR(4) from the
// main socket and creates no state (§4.4 NEW).
func (s *Server) handleNew(pkt []byte, peer *net.UDPAddr) {
	decoded, err := wire.Decode(pkt)
	if err != nil {
		s.sendError(peer, wire.ErrIllegalOp, "malformed packet")
		return
	}

	rrq, ok := decoded.(*wire.RRQ)
	if !ok || rrq.Opcode != wire.OpRRQ {
		s.sendError(peer, wire.ErrIllegalOp, "write not supported")
		return
	}

	mode := strings.ToLower(rrq.Mode)
	if mode != "octet" && mode != "netascii" {
		s.sendError(peer, wire.ErrIllegalOp, fmt.Sprintf("unsupported mode %q", rrq.Mode))
		return
	}

	src, err := s.resolver.Resolve(rrq.Filename, peer.IP)
	if err != nil {
		code := wire.ErrUndefined
		if resErr, ok := err.(*boot.ResolutionError); ok {
			code = resErr.Code
		}
		s.log.Warnf("resolve %q from %s: %v", rrq.Filename, peer, err)
		s.sendError(peer, code, err.Error())
		return
	}

	source, err := asTransferSource(src, mode)
	if err != nil {
		s.log.Errorf("netascii tsize pre-computation for %s: %v", peer, err)
		s.sendError(peer, wire.ErrUndefined, "server error")
		return
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: s.conn.LocalAddr().(*net.UDPAddr).IP})
	if err != nil {
		s.log.Errorf("bind ephemeral socket for %s: %v", peer, err)
		s.sendError(peer, wire.ErrUndefined, "server error")
		return
	}

	opts := wire.Negotiate(rrq.Options, source.Size())
	tr, action := transfer.New(source, opts, time.Now())

	sub := &subServer{
		conn: conn,
		peer: peer,
		tr:   tr,
		log:  s.log,
	}

	s.mu.Lock()
	s.subs[peer.String()] = sub
	s.mu.Unlock()

	if action.Send != nil {
		sub.send(action.Send)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sub.run(s.onDone(peer.String()))
	}()
}

func (s *Server) onDone(key string) func() {
	return func() {
		s.mu.Lock()
		delete(s.subs, key)
		s.mu.Unlock()
	}
}

func (s *Server) sendError(peer *net.UDPAddr, code wire.ErrorCode, msg string) {
	s.conn.WriteToUDP(wire.EncodeError(code, msg), peer)
}

// sweepLoop periodically asks every live sub-server to check its deadline,
// separately from datagram arrival (§4.5 "periodically sweeps sub-servers
// whose total deadline ... has elapsed").
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.shutdown:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			subs := make([]*subServer, 0, len(s.subs))
			for _, sub := range s.subs {
				subs = append(subs, sub)
			}
			s.mu.Unlock()
			for _, sub := range subs {
				sub.checkDeadline(now)
			}
		}
	}
}

// Shutdown closes the main socket and waits up to grace for outstanding
// transfers to finish, force-closing any still running afterward (§5
// Cancellation).
func (s *Server) Shutdown(grace time.Duration) {
	close(s.shutdown)
	s.conn.Close()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		s.mu.Lock()
		for _, sub := range s.subs {
			sub.conn.Close()
		}
		s.mu.Unlock()
	}
}

// asTransferSource wraps src with the netascii RFC 764 expansion when mode
// requests it; octet mode passes the stream through unchanged. netascii's
// tsize must reflect the transformed stream's exact length (§4.4), so src
// is streamed through the expansion once to count it, then rewound for the
// transfer itself to re-wrap fresh.
func asTransferSource(src transfer.Source, mode string) (transfer.Source, error) {
	if mode != "netascii" {
		return src, nil
	}

	size, err := netascii.Size(src)
	if err != nil {
		return nil, fmt.Errorf("netascii: count transformed size: %w", err)
	}

	seeker, ok := src.(io.Seeker)
	if !ok {
		return nil, fmt.Errorf("netascii: source %T cannot rewind after tsize pre-computation", src)
	}
	if _, err := seeker.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("netascii: rewind after tsize pre-computation: %w", err)
	}

	return netasciiSource{Reader: netascii.NewReader(src), size: size}, nil
}

type netasciiSource struct {
	*netascii.Reader
	size int64
}

func (n netasciiSource) Size() int64 { return n.size }
