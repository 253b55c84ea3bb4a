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

// Package netascii implements the RFC 764 transform TFTP's "netascii" mode
// requires: CR is sent as CR NUL, and bare LF is sent as CR LF. A FAT
// volume's files are plain binary, so this is applied only when the
// client's RRQ explicitly requests netascii instead of octet mode.
package netascii

import "io"

// Reader wraps src, expanding CR to "CR NUL" and LF to "CR LF" as bytes are
// read, so transfer.Transfer can treat a netascii stream exactly like any
// other io.Reader without knowing about the expansion.
type Reader struct {
	src    io.Reader
	raw    []byte // scratch buffer for the next unexpanded chunk from src
	out    []byte // already-expanded bytes waiting to be copied out
	outPos int
	err    error
}

// NewReader wraps src with the netascii expansion.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, raw: make([]byte, 4096)}
}

// Read fills p with expanded bytes, reading and expanding a chunk from src
// whenever its internal buffer of already-expanded bytes runs dry.
func (r *Reader) Read(p []byte) (int, error) {
	if r.outPos >= len(r.out) {
		if r.err != nil {
			return 0, r.err
		}
		if err := r.fill(); err != nil {
			r.err = err
			if len(r.out) == 0 {
				return 0, err
			}
		}
	}

	n := copy(p, r.out[r.outPos:])
	r.outPos += n
	return n, nil
}

// fill reads one chunk from src and expands it into r.out.
func (r *Reader) fill() error {
	n, err := r.src.Read(r.raw)
	r.out = r.out[:0]
	for i := 0; i < n; i++ {
		switch b := r.raw[i]; b {
		case '\r':
			r.out = append(r.out, '\r', 0x00)
		case '\n':
			r.out = append(r.out, '\r', '\n')
		default:
			r.out = append(r.out, b)
		}
	}
	r.outPos = 0
	return err
}

// Size streams src once through the same expansion Reader performs and
// returns the exact transformed length, since tsize negotiation (§4.3)
// must reflect the netascii stream's real size, not a worst-case bound.
func Size(src io.Reader) (int64, error) {
	return io.Copy(io.Discard, NewReader(src))
}
