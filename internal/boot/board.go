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

// Package boot implements the boot-server policy (§4.6): resolving a
// served filename, by way of a serial-prefixed board registry, to a byte
// stream opened from a FAT partition.
package boot

import (
	"net"
	"strings"
)

// Board binds one client's serial number to the image it boots from.
type Board struct {
	Serial    string
	ImagePath string
	Partition int // 1-based, default 1
	IPNet     *net.IPNet
	Default   bool

	// Degraded is set by BoardResolver.Validate when this board's image
	// or FAT filesystem fails to open; a degraded board stays listed in
	// the registry but every RRQ against it is rejected without
	// re-attempting the parse (§7).
	Degraded bool
}

// NormalizeSerial lowercases a Raspberry Pi serial and strips the
// `10000000` prefix convention: a 16-hex-digit serial beginning with
// `10000000` is treated as its trailing 8 hex digits, while the full
// 16-hex form remains independently valid (the registry normalizes both
// when indexing and when looking up, so either form finds the board).
func NormalizeSerial(serial string) string {
	s := strings.ToLower(strings.TrimSpace(serial))
	if len(s) == 16 && strings.HasPrefix(s, "10000000") {
		return s[8:]
	}
	return s
}

// MatchIP reports whether addr satisfies the board's IP ACL. A board with
// no configured ACL matches any address. IPv4-mapped IPv6 addresses are
// normalized to IPv4 before comparison.
func (b *Board) MatchIP(addr net.IP) bool {
	if b.IPNet == nil {
		return true
	}
	if v4 := addr.To4(); v4 != nil {
		addr = v4
	}
	return b.IPNet.Contains(addr)
}
