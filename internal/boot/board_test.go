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
package boot_test

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ostafen/digler-tftpd/internal/boot"
)

func TestNormalizeSerial_StripsRaspberryPiPrefix(t *testing.T) {
	require.Equal(t, "deadbeef", boot.NormalizeSerial("10000000deadbeef"))
}

func TestNormalizeSerial_LeavesNonPrefixedSerialIntact(t *testing.T) {
	require.Equal(t, "cafef00d", boot.NormalizeSerial("CAFEF00D"))
}

func TestNormalizeSerial_LeavesFullLengthNonPiSerialIntact(t *testing.T) {
	s := "abcdefabcdefabcd"
	require.Equal(t, s, boot.NormalizeSerial(s))
}

func TestBoard_MatchIP_NoACLMatchesAnything(t *testing.T) {
	b := &boot.Board{Serial: "deadbeef"}
	require.True(t, b.MatchIP(net.ParseIP("203.0.113.9")))
}

func TestBoard_MatchIP_RejectsOutsideACL(t *testing.T) {
	_, ipnet, err := net.ParseCIDR("192.0.2.5/32")
	require.NoError(t, err)
	b := &boot.Board{Serial: "deadbeef", IPNet: ipnet}

	require.True(t, b.MatchIP(net.ParseIP("192.0.2.5")))
	require.False(t, b.MatchIP(net.ParseIP("192.0.2.6")))
}

func TestBoard_MatchIP_NormalizesIPv4MappedIPv6(t *testing.T) {
	_, ipnet, err := net.ParseCIDR("192.0.2.5/32")
	require.NoError(t, err)
	b := &boot.Board{Serial: "deadbeef", IPNet: ipnet}

	mapped := net.ParseIP("::ffff:192.0.2.5")
	require.True(t, b.MatchIP(mapped))
}
