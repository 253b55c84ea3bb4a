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
package wire

import (
	"strconv"
	"time"
)

const (
	MinBlksize     = 8
	MaxBlksize     = 65464
	DefaultBlksize = 512

	DefaultTimeout = 5 * time.Second
	MinTimeout     = 10 * time.Millisecond
	MaxTimeout     = 255 * time.Second

	minUtimeoutMicros = 10_000
	maxUtimeoutMicros = 255_000_000
)

// Negotiated holds the option values accepted for one transfer, derived
// from an RRQ's recognized options (unknown options are ignored entirely,
// never echoed in the OACK).
type Negotiated struct {
	Blksize  int
	Timeout  time.Duration
	TSize    *int64 // nil unless the client sent tsize
	Accepted []Option
}

// Negotiate parses blksize/timeout/utimeout/tsize from opts, clamping
// out-of-range client values into range rather than rejecting them, and
// returns both the effective settings and the accepted option list to
// echo back in an OACK. fileSize is used to answer a tsize request of 0
// (the client's "tell me the size" convention).
func Negotiate(opts []Option, fileSize int64) Negotiated {
	n := Negotiated{Blksize: DefaultBlksize, Timeout: DefaultTimeout}

	if v, ok := FindOption(opts, "blksize"); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			clamped := clampInt(parsed, MinBlksize, MaxBlksize)
			n.Blksize = clamped
			n.Accepted = append(n.Accepted, Option{Name: "blksize", Value: strconv.Itoa(clamped)})
		}
	}

	haveUtimeout := false
	if v, ok := FindOption(opts, "utimeout"); ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			clamped := clampInt(parsed, minUtimeoutMicros, maxUtimeoutMicros)
			n.Timeout = time.Duration(clamped) * time.Microsecond
			n.Accepted = append(n.Accepted, Option{Name: "utimeout", Value: strconv.Itoa(clamped)})
			haveUtimeout = true
		}
	}

	if !haveUtimeout {
		if v, ok := FindOption(opts, "timeout"); ok {
			if parsed, err := strconv.Atoi(v); err == nil {
				clamped := clampInt(parsed, 1, 255)
				n.Timeout = time.Duration(clamped) * time.Second
				n.Accepted = append(n.Accepted, Option{Name: "timeout", Value: strconv.Itoa(clamped)})
			}
		}
	}

	if _, ok := FindOption(opts, "tsize"); ok {
		size := fileSize
		n.TSize = &size
		n.Accepted = append(n.Accepted, Option{Name: "tsize", Value: strconv.FormatInt(size, 10)})
	}

	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
