//go:build linux

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
package diskio

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// probe returns (size, sectorSize) for f. For regular files it uses Stat;
// for block devices, Stat reports a size of 0 so the BLKGETSIZE64 and
// BLKSSZGET ioctls are used instead, the portable x/sys/unix equivalents of
// the raw syscall.Syscall(SYS_IOCTL, ...) calls PhotoRec-style tools use.
func probe(f *os.File) (size, sectorSize int64, err error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}

	if fi.Mode()&os.ModeDevice == 0 {
		return fi.Size(), DefaultSectorSize, nil
	}

	blkSize, err := unix.IoctlGetInt(int(f.Fd()), unix.BLKSSZGET)
	if err != nil {
		return 0, 0, fmt.Errorf("BLKSSZGET: %w", err)
	}

	devSize, err := unix.IoctlGetUint64(int(f.Fd()), unix.BLKGETSIZE64)
	if err != nil {
		return 0, 0, fmt.Errorf("BLKGETSIZE64: %w", err)
	}

	return int64(devSize), int64(blkSize), nil
}

// mapFile mmaps f read-only for the first size bytes using MAP_SHARED, so
// the mapping is safe to hand to multiple concurrent FAT readers.
func mapFile(f *os.File, size int64) ([]byte, func() error, error) {
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	return data, func() error { return unix.Munmap(data) }, nil
}
