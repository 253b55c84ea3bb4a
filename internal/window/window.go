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

// Package window implements the random-access byte-window abstraction the
// FAT reader and the partition locator are built over: a cheaply clonable
// (base, length) view into a DiskImage's memory mapping. Subwindow never
// copies; every Window over the same image shares the same backing slice.
package window

import (
	"errors"
	"io"

	"github.com/xaionaro-go/bytesextra"
)

// ErrOutOfRange is returned when a read or subwindow falls outside the
// window's bounds.
var ErrOutOfRange = errors.New("window: read past end of region")

// Window is a random-access, read-only view over a contiguous byte region
// of a DiskImage.
type Window struct {
	data []byte
}

// New wraps a raw byte slice (typically an mmap'd DiskImage, or a plain
// buffer in tests) as a Window covering the whole slice.
func New(data []byte) Window {
	return Window{data: data}
}

// Len returns the window's length in bytes.
func (w Window) Len() int64 { return int64(len(w.data)) }

// ReadAt reads len(p) bytes starting at offset off within the window. It is
// an error to read past the end of the window; partial reads never happen
// for in-bounds requests since the backing store is fully resident memory.
func (w Window) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(w.data)) {
		return 0, ErrOutOfRange
	}
	return copy(p, w.data[off:off+int64(len(p))]), nil
}

// Subwindow returns an independent Window over [offset, offset+length) of w.
// It shares the same underlying slice; no bytes are copied.
func (w Window) Subwindow(offset, length int64) (Window, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(w.data)) {
		return Window{}, ErrOutOfRange
	}
	return Window{data: w.data[offset : offset+length]}, nil
}

// SectionReader returns an io.ReadSeeker limited to [offset, offset+length)
// within the window, for callers that want the stdlib io interfaces rather
// than ReadAt (the MBR and BPB decoders use ReadAt and Subwindow).
func (w Window) SectionReader(offset, length int64) (io.ReadSeeker, error) {
	sub, err := w.Subwindow(offset, length)
	if err != nil {
		return nil, err
	}
	return bytesextra.NewReadWriteSeeker(sub.data), nil
}

// Stream exposes the whole window as an io.ReadWriteSeeker. The FAT
// driver and the afero adapter read through ReadAt and do not use it.
// Writes are never issued by this read-only server, but the wrapper is
// shared across the codebase rather than hand-rolling a read-only variant.
func (w Window) Stream() io.ReadWriteSeeker {
	return bytesextra.NewReadWriteSeeker(w.data)
}

// Bytes returns the window's backing slice directly, for callers that need
// zero-copy access rather than a stream interface (cluster chain reads go
// through ReadAt instead).
func (w Window) Bytes() []byte { return w.data }
