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
package server

import (
	"net"
	"sync"
	"time"

	"github.com/ostafen/digler-tftpd/internal/logger"
	"github.com/ostafen/digler-tftpd/internal/tftp/transfer"
	"github.com/ostafen/digler-tftpd/internal/tftp/wire"
)

// subServer owns one ephemeral socket and the single Transfer bound to it,
// polling its own socket until the transfer reaches a terminal state (§4.5
// "Sub-servers poll their own ephemeral socket until the transfer reaches
// DONE or is aborted by deadline, then unregister").
type subServer struct {
	conn *net.UDPConn
	peer *net.UDPAddr
	log  *logger.Logger

	mu sync.Mutex
	tr *transfer.Transfer
}

// run drains datagrams from the ephemeral socket, feeding each to the
// transfer state machine, until it reaches a terminal Action. onDone is
// invoked exactly once, however the transfer ends.
func (s *subServer) run(onDone func()) {
	defer onDone()
	defer s.conn.Close()

	buf := make([]byte, 65536)
	for {
		s.conn.SetReadDeadline(s.nextDeadline())
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if s.timeoutTick() {
					return
				}
				continue
			}
			return
		}

		if !addrsEqual(addr, s.peer) {
			// §4.4/§4.5 Unknown-TID: a datagram from any source but the
			// peer this sub-server was opened for does not belong to the
			// transfer and must not reach the state machine.
			s.conn.WriteToUDP(wire.EncodeError(wire.ErrUnknownTID, "unknown transfer ID"), addr)
			continue
		}

		if s.handlePacket(buf[:n]) {
			return
		}
	}
}

// addrsEqual reports whether a and b name the same UDP peer (IP + port).
func addrsEqual(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

func (s *subServer) nextDeadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr.Deadline()
}

func (s *subServer) handlePacket(pkt []byte) (finished bool) {
	s.mu.Lock()
	action := s.tr.HandlePacket(pkt, time.Now())
	s.mu.Unlock()

	if action.Send != nil {
		s.send(action.Send)
	}
	return action.Finished
}

// handle is invoked by the dispatcher for every datagram routed to this
// peer's sub-server; it is equivalent to a packet arriving on the
// sub-server's own socket, used when the caller wants synchronous
// delivery instead of relying on the socket read loop.
func (s *subServer) handle(pkt []byte) {
	s.handlePacket(pkt)
}

// timeoutTick is invoked when the socket read deadline elapses with no
// datagram; it reports whether the transfer has now terminated.
func (s *subServer) timeoutTick() (finished bool) {
	s.mu.Lock()
	if time.Now().Before(s.tr.Deadline()) {
		s.mu.Unlock()
		return false
	}
	action := s.tr.HandleTimeout(time.Now())
	s.mu.Unlock()

	if action.Send != nil {
		s.send(action.Send)
	}
	return action.Finished
}

// checkDeadline is invoked by the dispatcher's periodic sweep so a
// sub-server blocked in ReadFromUDP with a distant deadline still
// retransmits promptly after its own deadline elapses, independent of the
// socket read timeout granularity.
func (s *subServer) checkDeadline(now time.Time) {
	s.mu.Lock()
	expired := !now.Before(s.tr.Deadline())
	s.mu.Unlock()
	if expired {
		s.timeoutTick()
	}
}

func (s *subServer) send(pkt []byte) {
	s.conn.WriteToUDP(pkt, s.peer)
}
