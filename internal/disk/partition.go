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

// Package disk decodes MBR partition tables and hands out byte-windows for
// individual partitions. GPT is out of scope; an image with a protective
// MBR (type 0xEE) is reported as such so callers can surface a clear error
// instead of misreading the GPT header as a FAT boot sector.
package disk

import (
	"fmt"

	"github.com/ostafen/digler-tftpd/internal/window"
)

// Partition describes one entry resolved from a partition table: its type,
// its 1-based index as addressed by board configs, and the byte range it
// occupies on the disk.
type Partition struct {
	Type   MBRPartition
	Num    int    // 1-based, matches the `partition` board config field
	Offset uint64 // byte offset from the start of the disk
	Size   uint64 // size in bytes
}

// Locator is the partition-table decoder's contract: given a disk image,
// produce a byte window for partition N. The boot-server policy depends
// only on this interface, never on the MBR decoder directly.
type Locator interface {
	// Partition returns the Nth (1-based) partition's window within img.
	Partition(img window.Window, num int) (window.Window, Partition, error)
}

// MBRLocator implements Locator by reading a classic DOS MBR from the first
// 512 bytes of the image.
type MBRLocator struct{}

// NewMBRLocator returns the default, stateless MBR-backed Locator.
func NewMBRLocator() MBRLocator { return MBRLocator{} }

// Partition reads the MBR from img and returns the window and metadata for
// partition num (1-4; logical/extended partitions are not supported).
func (MBRLocator) Partition(img window.Window, num int) (window.Window, Partition, error) {
	if num < 1 || num > 4 {
		return window.Window{}, Partition{}, fmt.Errorf("disk: partition index %d out of range (want 1-4)", num)
	}

	sector, err := img.Subwindow(0, 512)
	if err != nil {
		return window.Window{}, Partition{}, fmt.Errorf("disk: read MBR: %w", err)
	}

	buf := make([]byte, 512)
	if _, err := sector.ReadAt(buf, 0); err != nil {
		return window.Window{}, Partition{}, fmt.Errorf("disk: read MBR: %w", err)
	}

	mbr, err := ParseMBR(buf)
	if err != nil {
		return window.Window{}, Partition{}, err
	}

	entry := mbr.PartitionEntries[num-1]
	if entry.PartitionType == PartitionTypeGPT {
		return window.Window{}, Partition{}, fmt.Errorf("disk: image uses a GPT protective MBR, GPT decoding is not supported")
	}
	if entry.PartitionType == PartitionTypeEmpty {
		return window.Window{}, Partition{}, fmt.Errorf("disk: partition %d is empty", num)
	}

	offset := uint64(entry.ReadStartLBA()) * 512
	size := uint64(entry.ReadTotalSectors()) * 512

	win, err := img.Subwindow(int64(offset), int64(size))
	if err != nil {
		return window.Window{}, Partition{}, fmt.Errorf("disk: partition %d window [%d,+%d) out of range: %w", num, offset, size, err)
	}

	return win, Partition{
		Type:   entry.PartitionType,
		Num:    num,
		Offset: offset,
		Size:   size,
	}, nil
}
