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
package wire_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digler-tftpd/internal/tftp/wire"
)

func TestDecodeRRQ_WithOptions(t *testing.T) {
	pkt := wire.EncodeRRQ("boot/pxelinux.0", "octet", []wire.Option{
		{Name: "blksize", Value: "1468"},
		{Name: "tsize", Value: "0"},
	})

	decoded, err := wire.Decode(pkt)
	require.NoError(t, err)

	rrq, ok := decoded.(*wire.RRQ)
	require.True(t, ok)
	require.Equal(t, "boot/pxelinux.0", rrq.Filename)
	require.Equal(t, "octet", rrq.Mode)
	require.Len(t, rrq.Options, 2)

	v, ok := wire.FindOption(rrq.Options, "BLKSIZE")
	require.True(t, ok)
	require.Equal(t, "1468", v)
}

func TestDecodeDATA(t *testing.T) {
	pkt := wire.EncodeDATA(7, []byte("payload"))
	decoded, err := wire.Decode(pkt)
	require.NoError(t, err)

	data, ok := decoded.(*wire.DATA)
	require.True(t, ok)
	require.Equal(t, uint16(7), data.Block)
	require.Equal(t, []byte("payload"), data.Payload)
}

func TestDecodeACK(t *testing.T) {
	pkt := wire.EncodeACK(42)
	decoded, err := wire.Decode(pkt)
	require.NoError(t, err)

	ack, ok := decoded.(*wire.ACK)
	require.True(t, ok)
	require.Equal(t, uint16(42), ack.Block)
}

func TestDecodeError(t *testing.T) {
	pkt := wire.EncodeError(wire.ErrFileNotFound, "no such file")
	decoded, err := wire.Decode(pkt)
	require.NoError(t, err)

	e, ok := decoded.(*wire.ErrorPacket)
	require.True(t, ok)
	require.Equal(t, wire.ErrFileNotFound, e.Code)
	require.Equal(t, "no such file", e.Message)
}

func TestDecode_RejectsTooShort(t *testing.T) {
	_, err := wire.Decode([]byte{0x00})
	require.ErrorIs(t, err, wire.ErrMalformed)
}

func TestDecode_RejectsUnknownOpcode(t *testing.T) {
	_, err := wire.Decode([]byte{0x00, 0x09})
	require.ErrorIs(t, err, wire.ErrMalformed)
}

func TestNegotiate_ClampsBlksizeIntoRange(t *testing.T) {
	n := wire.Negotiate([]wire.Option{{Name: "blksize", Value: "99999"}}, 0)
	require.Equal(t, wire.MaxBlksize, n.Blksize)

	n = wire.Negotiate([]wire.Option{{Name: "blksize", Value: "1"}}, 0)
	require.Equal(t, wire.MinBlksize, n.Blksize)
}

func TestNegotiate_UtimeoutSupersedesTimeout(t *testing.T) {
	n := wire.Negotiate([]wire.Option{
		{Name: "timeout", Value: "3"},
		{Name: "utimeout", Value: "250000"},
	}, 0)
	require.Equal(t, 250*time.Millisecond, n.Timeout)
}

func TestNegotiate_TSizeEchoesFileLength(t *testing.T) {
	n := wire.Negotiate([]wire.Option{{Name: "tsize", Value: "0"}}, 12345)
	require.NotNil(t, n.TSize)
	require.Equal(t, int64(12345), *n.TSize)
}

func TestNegotiate_DefaultsWithNoOptions(t *testing.T) {
	n := wire.Negotiate(nil, 0)
	require.Equal(t, wire.DefaultBlksize, n.Blksize)
	require.Equal(t, wire.DefaultTimeout, n.Timeout)
	require.Nil(t, n.TSize)
	require.Empty(t, n.Accepted)
}
