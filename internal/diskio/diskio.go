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

// Package diskio opens a disk image (a regular file or, where supported, a
// raw block device) and produces the memory-mapped DiskImage handle the
// rest of the server builds byte-windows over.
package diskio

import (
	"fmt"
	"os"

	"github.com/ostafen/digler-tftpd/internal/window"
)

// DefaultSectorSize is assumed when the underlying device does not expose
// its own geometry (regular files, or platforms without an ioctl probe).
const DefaultSectorSize = 512

// DiskImage is an immutable, memory-mapped handle to a disk image file or
// raw device. It owns the underlying file descriptor/mapping for the
// server's lifetime and is safe for concurrent readers.
type DiskImage struct {
	path       string
	file       *os.File
	data       []byte
	sectorSize int64
	closer     func() error
}

// Open mmaps the file or device at path read-only. If the path names a
// block device, platform-specific ioctls are used to discover its true
// sector size and total size instead of os.File.Stat, which reports 0 for
// device files on Linux.
func Open(path string) (*DiskImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("diskio: open %q: %w", path, err)
	}

	size, sectorSize, err := probe(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("diskio: probe %q: %w", path, err)
	}
	if size == 0 {
		f.Close()
		return nil, fmt.Errorf("diskio: %q is empty", path)
	}

	data, closer, err := mapFile(f, size)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("diskio: mmap %q: %w", path, err)
	}

	return &DiskImage{
		path:       path,
		file:       f,
		data:       data,
		sectorSize: sectorSize,
		closer:     closer,
	}, nil
}

// Window returns a byte-window over the entire image.
func (d *DiskImage) Window() window.Window { return window.New(d.data) }

// SectorSize returns the image's logical sector size.
func (d *DiskImage) SectorSize() int64 { return d.sectorSize }

// Size returns the total mapped length in bytes.
func (d *DiskImage) Size() int64 { return int64(len(d.data)) }

// Path returns the path the image was opened from.
func (d *DiskImage) Path() string { return d.path }

// Close unmaps the image and closes the underlying file.
func (d *DiskImage) Close() error {
	var err error
	if d.closer != nil {
		err = d.closer()
		d.closer = nil
	}
	if d.file != nil {
		closeErr := d.file.Close()
		d.file = nil
		if err == nil {
			err = closeErr
		}
	}
	return err
}
