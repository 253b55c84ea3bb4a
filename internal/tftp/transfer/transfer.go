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

// Package transfer implements the per-RRQ TFTP state machine: NEW →
// NEGOTIATE → SENDING → DONE. It is transport-agnostic — HandlePacket and
// HandleTimeout take plain byte slices and a clock reading and return an
// Action, so the
// dispatcher owns all socket I/O and timer scheduling.
package transfer

import (
	"io"
	"time"

	"github.com/ostafen/digler-tftpd/internal/tftp/wire"
)

// State is a transfer's current state. NEW has no value of its own (New
// leaves a transfer in Negotiating or Sending); Aborted marks a transfer
// ended by an error or by running out of retries.
type State int

const (
	Negotiating State = iota
	Sending
	Done
	Aborted
)

const (
	maxNegotiateRetries = 5
	maxSendRetries      = 8
)

// Action tells the caller what to do after HandlePacket or HandleTimeout: a packet to send (if
// any), and whether the transfer has reached a terminal state.
type Action struct {
	Send     []byte
	Finished bool
}

// Source is the byte stream a Transfer reads DATA payloads from, plus its
// total length (post any netascii transform, already applied by the
// caller — transfer.go only frames bytes, it is agnostic to mode).
type Source interface {
	io.Reader
	Size() int64
}

// Transfer drives one RRQ from OACK/first-DATA through to completion.
type Transfer struct {
	src    Source
	opts   wire.Negotiated
	state  State

	monotonicBlock uint64 // 1-based; never resets, used for true byte offsets
	lastWireBlock  uint16
	lastPayload    []byte // last-sent DATA's payload, for retransmission
	lastIsOACK     bool

	deadline time.Time
	retries  int

	err error
}

// New constructs a Transfer for src with the options negotiated from the
// client's RRQ. If opts.Accepted is empty the transfer skips NEGOTIATE and
// starts SENDING directly with DATA(1), per §4.4.
func New(src Source, opts wire.Negotiated, now time.Time) (*Transfer, Action) {
	t := &Transfer{src: src, opts: opts}

	if len(opts.Accepted) == 0 {
		t.state = Sending
		return t, t.sendNextData(now)
	}

	t.state = Negotiating
	pkt := wire.EncodeOACK(opts.Accepted)
	t.lastPayload = nil
	t.lastIsOACK = true
	t.deadline = now.Add(t.opts.Timeout)
	return t, Action{Send: pkt}
}

// State returns the transfer's current state.
func (t *Transfer) State() State { return t.state }

// Err returns the reason the transfer aborted, if any.
func (t *Transfer) Err() error { return t.err }

// HandlePacket processes one datagram received on the transfer's
// ephemeral socket.
func (t *Transfer) HandlePacket(pkt []byte, now time.Time) Action {
	decoded, err := wire.Decode(pkt)
	if err != nil {
		return Action{}
	}

	if errPkt, ok := decoded.(*wire.ErrorPacket); ok {
		t.state = Aborted
		t.err = &remoteError{code: errPkt.Code, message: errPkt.Message}
		return Action{Finished: true}
	}

	ack, ok := decoded.(*wire.ACK)
	if !ok {
		return Action{}
	}

	switch t.state {
	case Negotiating:
		return t.handleNegotiateACK(ack, now)
	case Sending:
		return t.handleSendingACK(ack, now)
	default:
		return Action{}
	}
}

func (t *Transfer) handleNegotiateACK(ack *wire.ACK, now time.Time) Action {
	if ack.Block != 0 {
		// Option negotiation requires ACK(0); anything else is discarded.
		return Action{}
	}
	t.state = Sending
	t.retries = 0
	return t.sendNextData(now)
}

func (t *Transfer) handleSendingACK(ack *wire.ACK, now time.Time) Action {
	switch ack.Block {
	case t.lastWireBlock:
		t.retries = 0
		if t.isTerminalPayload() {
			t.state = Done
			return Action{Finished: true}
		}
		return t.sendNextData(now)

	case t.previousWireBlock():
		// Duplicate ACK ("early terminate"): do not retransmit.
		return Action{}

	default:
		return Action{}
	}
}

// HandleTimeout is invoked when the transfer's retransmit deadline has
// elapsed with no matching ACK. It resends the last packet, doubling the
// timeout up to maxSendRetries/maxNegotiateRetries attempts before
// abandoning the transfer with ERROR(0, "timeout").
func (t *Transfer) HandleTimeout(now time.Time) Action {
	limit := maxSendRetries
	if t.state == Negotiating {
		limit = maxNegotiateRetries
	}

	t.retries++
	if t.retries > limit {
		t.state = Aborted
		t.err = errTimeout
		return Action{Send: wire.EncodeError(wire.ErrUndefined, "timeout"), Finished: true}
	}

	backoff := t.opts.Timeout << uint(min(t.retries, 8))
	t.deadline = now.Add(backoff)

	if t.lastIsOACK {
		return Action{Send: wire.EncodeOACK(t.opts.Accepted)}
	}
	return Action{Send: wire.EncodeDATA(t.lastWireBlock, t.lastPayload)}
}

// Deadline returns the monotonic time at which HandleTimeout should next
// be invoked if no packet arrives first.
func (t *Transfer) Deadline() time.Time { return t.deadline }

func (t *Transfer) sendNextData(now time.Time) Action {
	t.monotonicBlock++
	t.lastWireBlock = uint16(t.monotonicBlock)
	t.lastIsOACK = false

	buf := make([]byte, t.opts.Blksize)
	n, err := io.ReadFull(t.src, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		t.state = Aborted
		t.err = err
		return Action{Send: wire.EncodeError(wire.ErrUndefined, err.Error()), Finished: true}
	}

	t.lastPayload = buf[:n]
	t.retries = 0
	t.deadline = now.Add(t.opts.Timeout)
	return Action{Send: wire.EncodeDATA(t.lastWireBlock, t.lastPayload)}
}

// isTerminalPayload reports whether the last DATA sent was short (or, for
// an exact multiple of blksize, the deliberate trailing empty DATA).
func (t *Transfer) isTerminalPayload() bool {
	return len(t.lastPayload) < t.opts.Blksize
}

func (t *Transfer) previousWireBlock() uint16 {
	if t.monotonicBlock == 0 {
		return 0
	}
	return uint16(t.monotonicBlock - 1)
}
