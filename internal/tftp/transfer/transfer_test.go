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
package transfer_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digler-tftpd/internal/tftp/transfer"
	"github.com/ostafen/digler-tftpd/internal/tftp/wire"
)

type byteSource struct{ *bytes.Reader }

func (b byteSource) Size() int64 { return b.Reader.Size() }

func newSource(data []byte) transfer.Source {
	return byteSource{bytes.NewReader(data)}
}

var now = time.Unix(0, 0)

func TestNew_NoOptionsSkipsNegotiationAndSendsDATA1(t *testing.T) {
	content := []byte("hello world")
	tr, action := transfer.New(newSource(content), wire.Negotiate(nil, int64(len(content))), now)

	require.Equal(t, transfer.Sending, tr.State())
	decoded, err := wire.Decode(action.Send)
	require.NoError(t, err)
	data := decoded.(*wire.DATA)
	require.Equal(t, uint16(1), data.Block)
	require.Equal(t, content, data.Payload)
}

func TestNew_WithOptionsSendsOACKAndAwaitsACK0(t *testing.T) {
	opts := wire.Negotiate([]wire.Option{{Name: "blksize", Value: "512"}}, 100)
	tr, action := transfer.New(newSource(make([]byte, 100)), opts, now)

	require.Equal(t, transfer.Negotiating, tr.State())
	decoded, err := wire.Decode(action.Send)
	require.NoError(t, err)
	_, ok := decoded.(*wire.OACK)
	require.True(t, ok)
}

func TestNegotiate_NonZeroACKIsDiscarded(t *testing.T) {
	opts := wire.Negotiate([]wire.Option{{Name: "blksize", Value: "512"}}, 10)
	tr, _ := transfer.New(newSource(make([]byte, 10)), opts, now)

	action := tr.HandlePacket(wire.EncodeACK(5), now)
	require.Nil(t, action.Send)
	require.Equal(t, transfer.Negotiating, tr.State())
}

func TestNegotiate_ACK0TransitionsToSending(t *testing.T) {
	opts := wire.Negotiate([]wire.Option{{Name: "blksize", Value: "512"}}, 10)
	tr, _ := transfer.New(newSource(make([]byte, 10)), opts, now)

	action := tr.HandlePacket(wire.EncodeACK(0), now)
	require.Equal(t, transfer.Sending, tr.State())

	decoded, err := wire.Decode(action.Send)
	require.NoError(t, err)
	data := decoded.(*wire.DATA)
	require.Equal(t, uint16(1), data.Block)
}

func TestSending_ShortFinalBlockCompletesOnACK(t *testing.T) {
	content := []byte("short")
	tr, _ := transfer.New(newSource(content), wire.Negotiate(nil, int64(len(content))), now)

	action := tr.HandlePacket(wire.EncodeACK(1), now)
	require.True(t, action.Finished)
	require.Equal(t, transfer.Done, tr.State())
}

func TestSending_ExactMultipleSendsTrailingEmptyDATA(t *testing.T) {
	opts := wire.Negotiate([]wire.Option{{Name: "blksize", Value: "4"}}, 4)
	content := []byte("abcd")
	tr, _ := transfer.New(newSource(content), opts, now)
	action := tr.HandlePacket(wire.EncodeACK(0), now)
	require.Equal(t, transfer.Sending, tr.State())
	decoded, _ := wire.Decode(action.Send)
	require.Equal(t, 4, len(decoded.(*wire.DATA).Payload))

	action = tr.HandlePacket(wire.EncodeACK(1), now)
	require.False(t, action.Finished)
	decoded, err := wire.Decode(action.Send)
	require.NoError(t, err)
	data := decoded.(*wire.DATA)
	require.Equal(t, uint16(2), data.Block)
	require.Empty(t, data.Payload)

	action = tr.HandlePacket(wire.EncodeACK(2), now)
	require.True(t, action.Finished)
	require.Equal(t, transfer.Done, tr.State())
}

func TestSending_DuplicateACKIsIgnoredWithoutRetransmit(t *testing.T) {
	opts := wire.Negotiate([]wire.Option{{Name: "blksize", Value: "4"}}, 8)
	tr, _ := transfer.New(newSource(bytes.Repeat([]byte{1}, 8)), opts, now)
	tr.HandlePacket(wire.EncodeACK(0), now)

	action := tr.HandlePacket(wire.EncodeACK(1), now)
	require.NotNil(t, action.Send)

	dup := tr.HandlePacket(wire.EncodeACK(1), now)
	require.Nil(t, dup.Send)
	require.False(t, dup.Finished)
}

func TestHandlePacket_RemoteErrorDestroysTransfer(t *testing.T) {
	tr, _ := transfer.New(newSource([]byte("x")), wire.Negotiate(nil, 1), now)

	action := tr.HandlePacket(wire.EncodeError(wire.ErrIllegalOp, "nope"), now)
	require.True(t, action.Finished)
	require.Nil(t, action.Send)
	require.Equal(t, transfer.Aborted, tr.State())
	require.Error(t, tr.Err())
}

func TestHandleTimeout_RetransmitsThenAbandons(t *testing.T) {
	tr, _ := transfer.New(newSource([]byte("payload")), wire.Negotiate(nil, 7), now)

	var last transfer.Action
	for i := 0; i < 9; i++ {
		last = tr.HandleTimeout(now)
		if last.Finished {
			break
		}
	}
	require.True(t, last.Finished)
	decoded, err := wire.Decode(last.Send)
	require.NoError(t, err)
	errPkt := decoded.(*wire.ErrorPacket)
	require.Equal(t, wire.ErrUndefined, errPkt.Code)
	require.Equal(t, transfer.Aborted, tr.State())
}

func TestHandleTimeout_RetransmitsSameBlock(t *testing.T) {
	tr, first := transfer.New(newSource([]byte("payload")), wire.Negotiate(nil, 7), now)
	retransmit := tr.HandleTimeout(now)
	require.Equal(t, first.Send, retransmit.Send)
}
